package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docsquare/auth-gateway/internal/observability"
	"github.com/docsquare/auth-gateway/middleware"
	"github.com/docsquare/auth-gateway/models"
	"github.com/docsquare/auth-gateway/services/auth"
	"github.com/docsquare/auth-gateway/services/quota"
	"github.com/docsquare/auth-gateway/utils"
)

// ConsumeRequest is the usage-reporting payload. The user is taken from the
// authenticated identity, never from the body.
type ConsumeRequest struct {
	ServiceType    string          `json:"service_type" validate:"required"`
	Quantity       float64         `json:"quantity" validate:"omitempty,gt=0"`
	IdempotencyKey string          `json:"idempotency_key" validate:"omitempty,max=128"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

// quotaDenialResponse is the 429 body for an exhausted dimension
type quotaDenialResponse struct {
	Error     string      `json:"error"`
	Dimension string      `json:"dimension"`
	Limit     int         `json:"limit"`
	Used      float64     `json:"used"`
	ResetTime interface{} `json:"reset_time"`
}

// UsageHandler handles quota consumption and usage stats HTTP requests
type UsageHandler struct {
	quota   QuotaService
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewUsageHandler creates a new UsageHandler
func NewUsageHandler(quotaSvc QuotaService, metrics *observability.Metrics, logger *zap.Logger) *UsageHandler {
	return &UsageHandler{
		quota:   quotaSvc,
		metrics: metrics,
		logger:  logger,
	}
}

// HandleConsume handles POST /api/v1/usage/consume. Runs behind RequireAuth.
func (h *UsageHandler) HandleConsume(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentityFromContext(r.Context())
	if identity == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req ConsumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	result, err := h.quota.Consume(r.Context(), quota.ConsumeRequest{
		UserID:         identity.UserID,
		ServiceType:    req.ServiceType,
		Quantity:       req.Quantity,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if !result.Allowed {
		denial := result.Denial
		h.metrics.RecordQuotaDecision("denied", string(denial.Dimension))
		_ = utils.WriteQuotaExceeded(w, quotaDenialResponse{
			Error:     "quota_exceeded",
			Dimension: string(denial.Dimension),
			Limit:     denial.Limit,
			Used:      denial.Used,
			ResetTime: denial.ResetAt,
		})
		return
	}

	h.metrics.RecordQuotaDecision("allowed", dimensionLabel(result))

	_ = utils.WriteJSON(w, http.StatusOK, result)
}

// HandleStats handles GET /api/v1/usage/stats. Runs behind RequireAuth.
func (h *UsageHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentityFromContext(r.Context())
	if identity == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	stats, err := h.quota.Stats(r.Context(), identity.UserID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteJSON(w, http.StatusOK, stats)
}

// HandleStatsForUser handles GET /api/v1/usage/stats/{id}. Runs behind
// RequireAuth. Callers may read their own stats; anything else requires an
// administrative identity.
func (h *UsageHandler) HandleStatsForUser(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentityFromContext(r.Context())
	if identity == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid user ID", nil)
		return
	}

	if userID != identity.UserID && !canReadOtherUsers(identity) {
		_ = utils.WriteForbidden(w, "Insufficient permissions")
		return
	}

	stats, err := h.quota.Stats(r.Context(), userID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteJSON(w, http.StatusOK, stats)
}

func canReadOtherUsers(identity *auth.VerifyResult) bool {
	if identity.IsSuperuser {
		return true
	}
	for _, role := range identity.Roles {
		if role == models.RoleAdmin || role == models.RoleSuperuser {
			return true
		}
	}
	return false
}

func dimensionLabel(result *quota.Result) string {
	if result.Unlimited {
		return "unlimited"
	}
	if len(result.Dimensions) > 0 {
		return string(result.Dimensions[0].Dimension)
	}
	return "none"
}

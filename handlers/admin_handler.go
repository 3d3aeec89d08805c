package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docsquare/auth-gateway/models"
	"github.com/docsquare/auth-gateway/utils"
)

// RoleChangeRequest names the role being granted or revoked
type RoleChangeRequest struct {
	Role string `json:"role" validate:"required,max=100"`
}

// QuotaOverrideRequest replaces a user's per-user quota overrides.
// Omitted or null fields clear the override.
type QuotaOverrideRequest struct {
	DailyQueryLimit   *int `json:"daily_query_limit" validate:"omitempty,gte=0"`
	MonthlyQueryLimit *int `json:"monthly_query_limit" validate:"omitempty,gte=0"`
	DailyUploadLimit  *int `json:"daily_upload_limit" validate:"omitempty,gte=0"`
	MaxUploadSizeMB   *int `json:"max_upload_size_mb" validate:"omitempty,gte=0"`
}

// ActiveFlagRequest toggles account activation
type ActiveFlagRequest struct {
	Active bool `json:"active"`
}

// AdminHandler handles account administration HTTP requests
type AdminHandler struct {
	admin  AdminService
	logger *zap.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(adminSvc AdminService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		admin:  adminSvc,
		logger: logger,
	}
}

// HandleListUsers handles GET /api/v1/admin/users
func (h *AdminHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	users, err := h.admin.ListUsers(r.Context(), limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, users)
}

// HandleGetUser handles GET /api/v1/admin/users/{id}
func (h *AdminHandler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUserID(w, r)
	if !ok {
		return
	}

	detail, err := h.admin.GetUser(r.Context(), userID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, detail)
}

// HandleListRoles handles GET /api/v1/admin/roles
func (h *AdminHandler) HandleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.admin.ListRoles(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, roles)
}

// HandleAssignRole handles POST /api/v1/admin/users/{id}/roles
func (h *AdminHandler) HandleAssignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUserID(w, r)
	if !ok {
		return
	}

	var req RoleChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	if err := h.admin.AssignRole(r.Context(), userID, req.Role); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	utils.WriteNoContent(w)
}

// HandleRemoveRole handles DELETE /api/v1/admin/users/{id}/roles/{role}
func (h *AdminHandler) HandleRemoveRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUserID(w, r)
	if !ok {
		return
	}

	role := chi.URLParam(r, "role")
	if role == "" {
		_ = utils.WriteBadRequest(w, "Role name is required", nil)
		return
	}

	if err := h.admin.RemoveRole(r.Context(), userID, role); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	utils.WriteNoContent(w)
}

// HandleSetQuotaOverrides handles PUT /api/v1/admin/users/{id}/quota
func (h *AdminHandler) HandleSetQuotaOverrides(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUserID(w, r)
	if !ok {
		return
	}

	var req QuotaOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	detail, err := h.admin.SetQuotaOverrides(r.Context(), userID, models.QuotaLimits{
		DailyQueries:    req.DailyQueryLimit,
		MonthlyQueries:  req.MonthlyQueryLimit,
		DailyUploads:    req.DailyUploadLimit,
		MaxUploadSizeMB: req.MaxUploadSizeMB,
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, detail)
}

// HandleSetActive handles PUT /api/v1/admin/users/{id}/active
func (h *AdminHandler) HandleSetActive(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUserID(w, r)
	if !ok {
		return
	}

	var req ActiveFlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := h.admin.SetActive(r.Context(), userID, req.Active); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	utils.WriteNoContent(w)
}

// pathUserID parses the {id} URL parameter, writing a 400 on failure
func (h *AdminHandler) pathUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	userID, err := uuid.Parse(raw)
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid user ID", nil)
		return uuid.Nil, false
	}
	return userID, true
}

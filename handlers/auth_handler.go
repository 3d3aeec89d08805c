package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/docsquare/auth-gateway/internal/observability"
	"github.com/docsquare/auth-gateway/middleware"
	"github.com/docsquare/auth-gateway/models"
	"github.com/docsquare/auth-gateway/services/auth"
	"github.com/docsquare/auth-gateway/utils"
)

// RegisterRequest is the signup payload
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"first_name" validate:"omitempty,max=100"`
	LastName  string `json:"last_name" validate:"omitempty,max=100"`
}

// LoginRequest is the credential login payload
type LoginRequest struct {
	Email      string          `json:"email" validate:"required,email"`
	Password   string          `json:"password" validate:"required"`
	DeviceInfo json.RawMessage `json:"device_info,omitempty"`
}

// RefreshRequest carries the refresh token being rotated
type RefreshRequest struct {
	RefreshToken string          `json:"refresh_token" validate:"required"`
	DeviceInfo   json.RawMessage `json:"device_info,omitempty"`
}

// LogoutRequest optionally carries the refresh token to revoke alongside the
// access token from the Authorization header
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ForgotPasswordRequest starts the password reset flow
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest completes the password reset flow
type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

// ValidateResetTokenRequest checks a reset token without consuming it
type ValidateResetTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// LoginResponse bundles the token pair with the account summary
type LoginResponse struct {
	*auth.TokenPair
	User *models.User `json:"user"`
}

// AuthHandler handles authentication HTTP requests
type AuthHandler struct {
	auth    AuthService
	reset   ResetService
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authSvc AuthService, resetSvc ResetService, metrics *observability.Metrics, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		auth:    authSvc,
		reset:   resetSvc,
		metrics: metrics,
		logger:  logger,
	}
}

// HandleRegister handles POST /api/v1/auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	user, err := h.auth.Register(r.Context(), auth.RegisterRequest{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteCreated(w, user)
}

// HandleLogin handles POST /api/v1/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	pair, user, err := h.auth.Login(r.Context(), req.Email, req.Password, req.DeviceInfo)
	if err != nil {
		h.metrics.RecordLogin("failure")
		HandleServiceError(w, err, h.logger)
		return
	}

	h.metrics.RecordLogin("success")
	h.metrics.RecordTokenIssued("password")

	_ = utils.WriteJSON(w, http.StatusOK, LoginResponse{TokenPair: pair, User: user})
}

// HandleRefresh handles POST /api/v1/auth/refresh
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	pair, err := h.auth.Refresh(r.Context(), req.RefreshToken, req.DeviceInfo)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.metrics.RecordTokenIssued("refresh")

	_ = utils.WriteJSON(w, http.StatusOK, pair)
}

// HandleVerify handles POST /api/v1/auth/verify. Downstream services call
// this with the end user's bearer token to get the live identity snapshot.
func (h *AuthHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		_ = utils.WriteUnauthorized(w, "Missing or invalid authorization")
		return
	}

	result, err := h.auth.Verify(r.Context(), token)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteJSON(w, http.StatusOK, result)
}

// HandleMe handles GET /api/v1/auth/me. Runs behind RequireAuth.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentityFromContext(r.Context())
	if identity == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	_ = utils.WriteJSON(w, http.StatusOK, identity)
}

// HandleLogout handles POST /api/v1/auth/logout. Runs behind RequireAuth.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	token := middleware.GetAccessTokenFromContext(r.Context())
	if token == "" {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req LogoutRequest
	if r.Body != nil {
		// Body is optional on logout
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if err := h.auth.Logout(r.Context(), token, req.RefreshToken); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	utils.WriteNoContent(w)
}

// HandleLogoutAll handles POST /api/v1/auth/logout-all. Runs behind RequireAuth.
func (h *AuthHandler) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	token := middleware.GetAccessTokenFromContext(r.Context())
	if token == "" {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	if err := h.auth.LogoutAll(r.Context(), token); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	utils.WriteNoContent(w)
}

// HandleForgotPassword handles POST /api/v1/auth/forgot-password. Always
// returns the same response regardless of whether the account exists.
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	if err := h.reset.RequestReset(r.Context(), req.Email, clientAddr(r)); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.metrics.RecordPasswordResetRequested()

	_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse{
		Message: "If the email is registered, a reset link has been sent",
	})
}

// HandleValidateResetToken handles POST /api/v1/auth/validate-reset-token
func (h *AuthHandler) HandleValidateResetToken(w http.ResponseWriter, r *http.Request) {
	var req ValidateResetTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	valid, err := h.reset.ValidateToken(r.Context(), req.Token)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

// HandleResetPassword handles POST /api/v1/auth/reset-password
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	if err := h.reset.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse{
		Message: "Password has been reset",
	})
}

// bearerToken extracts the token from the Authorization header
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && (header[:len(prefix)] == prefix || header[:len(prefix)] == "bearer ") {
		return header[len(prefix):]
	}
	return ""
}

// clientAddr resolves the caller's address for audit records
func clientAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	return r.RemoteAddr
}

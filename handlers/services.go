package handlers

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/docsquare/auth-gateway/models"
	"github.com/docsquare/auth-gateway/services/admin"
	"github.com/docsquare/auth-gateway/services/auth"
	"github.com/docsquare/auth-gateway/services/quota"
)

// AuthService is the authentication surface the handlers depend on
type AuthService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*models.User, error)
	Login(ctx context.Context, email, password string, deviceInfo json.RawMessage) (*auth.TokenPair, *models.User, error)
	Refresh(ctx context.Context, rawRefreshToken string, deviceInfo json.RawMessage) (*auth.TokenPair, error)
	Verify(ctx context.Context, rawAccessToken string) (*auth.VerifyResult, error)
	Logout(ctx context.Context, rawAccessToken, rawRefreshToken string) error
	LogoutAll(ctx context.Context, rawAccessToken string) error
}

// ResetService is the password reset surface the handlers depend on
type ResetService interface {
	RequestReset(ctx context.Context, email, ipAddress string) error
	ValidateToken(ctx context.Context, rawToken string) (bool, error)
	ResetPassword(ctx context.Context, rawToken, newPassword string) error
}

// QuotaService is the quota surface the handlers depend on
type QuotaService interface {
	Consume(ctx context.Context, req quota.ConsumeRequest) (*quota.Result, error)
	Stats(ctx context.Context, userID uuid.UUID) (*quota.UsageStats, error)
}

// AdminService is the administration surface the handlers depend on
type AdminService interface {
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*admin.UserDetail, error)
	ListRoles(ctx context.Context) ([]*models.Role, error)
	AssignRole(ctx context.Context, userID uuid.UUID, roleName string) error
	RemoveRole(ctx context.Context, userID uuid.UUID, roleName string) error
	SetQuotaOverrides(ctx context.Context, userID uuid.UUID, limits models.QuotaLimits) (*admin.UserDetail, error)
	SetActive(ctx context.Context, userID uuid.UUID, active bool) error
}

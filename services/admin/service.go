// Package admin implements account administration: role assignment, quota
// overrides and account activation.
package admin

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docsquare/auth-gateway/models"
	"github.com/docsquare/auth-gateway/repositories"
	"github.com/docsquare/auth-gateway/services"
	"github.com/docsquare/auth-gateway/services/rbac"
)

// UserDetail is a user together with the resolved quota limits
type UserDetail struct {
	User            *models.User       `json:"user"`
	EffectiveLimits models.QuotaLimits `json:"effective_limits"`
}

// Service implements administration operations
type Service struct {
	users  repositories.UserRepository
	roles  repositories.RoleRepository
	txMgr  repositories.TransactionManager
	rbac   *rbac.Service
	logger *zap.Logger
}

// NewService creates a new admin service
func NewService(
	users repositories.UserRepository,
	roles repositories.RoleRepository,
	txMgr repositories.TransactionManager,
	rbacSvc *rbac.Service,
	logger *zap.Logger,
) *Service {
	return &Service{
		users:  users,
		roles:  roles,
		txMgr:  txMgr,
		rbac:   rbacSvc,
		logger: logger,
	}
}

// ListUsers returns users with pagination
func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	users, err := s.users.List(ctx, limit, offset)
	if err != nil {
		return nil, services.WrapInternal("failed to list users", err)
	}
	return users, nil
}

// GetUser returns a user with roles and resolved quota limits
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*UserDetail, error) {
	user, err := s.users.GetWithRoles(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrUserNotFound
		}
		return nil, services.WrapInternal("failed to load user", err)
	}

	return &UserDetail{
		User:            user,
		EffectiveLimits: s.rbac.EffectiveQuota(user),
	}, nil
}

// ListRoles returns all roles with their permissions
func (s *Service) ListRoles(ctx context.Context) ([]*models.Role, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, services.WrapInternal("failed to list roles", err)
	}
	return roles, nil
}

// AssignRole grants a named role to a user
func (s *Service) AssignRole(ctx context.Context, userID uuid.UUID, roleName string) error {
	return s.txMgr.InTransaction(ctx, func(txCtx context.Context, _ repositories.Transaction) error {
		if _, err := s.users.GetByID(txCtx, userID); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return services.ErrUserNotFound
			}
			return services.WrapInternal("failed to load user", err)
		}

		role, err := s.roles.GetByName(txCtx, roleName)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return services.ErrRoleNotFound
			}
			return services.WrapInternal("failed to load role", err)
		}

		if err := s.roles.AssignToUser(txCtx, userID, role.ID); err != nil {
			return services.WrapInternal("failed to assign role", err)
		}

		s.logger.Info("role assigned",
			zap.String("user_id", userID.String()),
			zap.String("role", roleName))
		return nil
	})
}

// RemoveRole revokes a named role from a user
func (s *Service) RemoveRole(ctx context.Context, userID uuid.UUID, roleName string) error {
	role, err := s.roles.GetByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.ErrRoleNotFound
		}
		return services.WrapInternal("failed to load role", err)
	}

	if err := s.roles.RemoveFromUser(ctx, userID, role.ID); err != nil {
		return services.WrapInternal("failed to remove role", err)
	}

	s.logger.Info("role removed",
		zap.String("user_id", userID.String()),
		zap.String("role", roleName))
	return nil
}

// SetQuotaOverrides replaces a user's per-user quota overrides. Nil fields
// clear the override so the role defaults apply again.
func (s *Service) SetQuotaOverrides(ctx context.Context, userID uuid.UUID, limits models.QuotaLimits) (*UserDetail, error) {
	var detail *UserDetail
	err := s.txMgr.InTransaction(ctx, func(txCtx context.Context, _ repositories.Transaction) error {
		user, err := s.users.GetWithRoles(txCtx, userID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return services.ErrUserNotFound
			}
			return services.WrapInternal("failed to load user", err)
		}

		user.DailyQueryLimit = limits.DailyQueries
		user.MonthlyQueryLimit = limits.MonthlyQueries
		user.DailyUploadLimit = limits.DailyUploads
		user.MaxUploadSizeMB = limits.MaxUploadSizeMB
		user.UpdatedAt = time.Now().UTC()

		if err := s.users.Update(txCtx, user); err != nil {
			return services.WrapInternal("failed to update user", err)
		}

		detail = &UserDetail{
			User:            user,
			EffectiveLimits: s.rbac.EffectiveQuota(user),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("quota overrides updated", zap.String("user_id", userID.String()))
	return detail, nil
}

// SetActive activates or deactivates an account. Deactivation takes effect on
// the next token verification.
func (s *Service) SetActive(ctx context.Context, userID uuid.UUID, active bool) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.ErrUserNotFound
		}
		return services.WrapInternal("failed to load user", err)
	}

	user.IsActive = active
	user.UpdatedAt = time.Now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		return services.WrapInternal("failed to update user", err)
	}

	s.logger.Info("account active flag changed",
		zap.String("user_id", userID.String()),
		zap.Bool("active", active))
	return nil
}

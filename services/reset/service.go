// Package reset implements the password reset flow.
package reset

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docsquare/auth-gateway/config"
	"github.com/docsquare/auth-gateway/models"
	"github.com/docsquare/auth-gateway/repositories"
	"github.com/docsquare/auth-gateway/services"
	"github.com/docsquare/auth-gateway/services/notify"
	"github.com/docsquare/auth-gateway/services/password"
	"github.com/docsquare/auth-gateway/services/token"
)

// Service drives the password reset token lifecycle: ISSUED, then USED or
// expired. Request responses never reveal whether an email is registered.
type Service struct {
	users         repositories.UserRepository
	resetTokens   repositories.PasswordResetTokenRepository
	refreshTokens repositories.RefreshTokenRepository
	txMgr         repositories.TransactionManager
	hasher        *password.Hasher
	notifier      notify.Notifier
	cfg           config.PasswordResetConfig
	logger        *zap.Logger
	now           func() time.Time
}

// NewService creates a new password reset service
func NewService(
	users repositories.UserRepository,
	resetTokens repositories.PasswordResetTokenRepository,
	refreshTokens repositories.RefreshTokenRepository,
	txMgr repositories.TransactionManager,
	hasher *password.Hasher,
	notifier notify.Notifier,
	cfg config.PasswordResetConfig,
	logger *zap.Logger,
) *Service {
	return &Service{
		users:         users,
		resetTokens:   resetTokens,
		refreshTokens: refreshTokens,
		txMgr:         txMgr,
		hasher:        hasher,
		notifier:      notifier,
		cfg:           cfg,
		logger:        logger,
		now:           time.Now,
	}
}

// WithClock overrides the clock, for tests
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RequestReset issues a reset token for the account if it exists, is active
// and is under the per-account rate limit. It returns nil in every
// non-internal case so callers cannot probe which emails are registered.
func (s *Service) RequestReset(ctx context.Context, email, ipAddress string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			s.logger.Debug("reset requested for unknown email")
			return nil
		}
		return services.WrapInternal("failed to look up account", err)
	}

	if !user.IsActive {
		s.logger.Debug("reset requested for inactive account",
			zap.String("user_id", user.ID.String()))
		return nil
	}

	now := s.now()
	recent, err := s.resetTokens.CountRecentForUser(ctx, user.ID, now.Add(-s.cfg.RateLimitWindow))
	if err != nil {
		return services.WrapInternal("failed to check reset rate limit", err)
	}
	if recent >= s.cfg.RateLimitRequests {
		s.logger.Warn("reset rate limit reached",
			zap.String("user_id", user.ID.String()),
			zap.Int("recent_requests", recent))
		return nil
	}

	raw, hash, err := token.NewOpaqueSecret()
	if err != nil {
		return services.WrapInternal("failed to generate reset token", err)
	}

	record := &models.PasswordResetToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: hash,
		ExpiresAt: now.Add(s.cfg.TokenTTL),
		IPAddress: ipAddress,
		CreatedAt: now,
	}

	err = s.txMgr.InTransaction(ctx, func(txCtx context.Context, _ repositories.Transaction) error {
		// Only the most recent token stays usable
		if _, err := s.resetTokens.InvalidateAllForUser(txCtx, user.ID, now); err != nil {
			return err
		}
		return s.resetTokens.Create(txCtx, record)
	})
	if err != nil {
		return services.WrapInternal("failed to store reset token", err)
	}

	// Fire and forget: the token is created and usable even if dispatch fails
	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.notifier.SendPasswordResetEmail(sendCtx, user.Email, raw); err != nil {
			s.logger.Error("failed to dispatch reset email",
				zap.String("user_id", user.ID.String()),
				zap.Error(err))
		}
	}()

	s.logger.Info("password reset token issued",
		zap.String("user_id", user.ID.String()),
		zap.Time("expires_at", record.ExpiresAt))
	return nil
}

// ValidateToken reports whether a raw reset token is currently usable.
// Read-only; it does not consume the token.
func (s *Service) ValidateToken(ctx context.Context, rawToken string) (bool, error) {
	record, err := s.resetTokens.GetByHash(ctx, token.HashToken(rawToken))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return false, nil
		}
		return false, services.WrapInternal("failed to look up reset token", err)
	}
	return record.IsValidAt(s.now()), nil
}

// ResetPassword consumes a reset token and sets a new password. The password
// update, token consumption and session revocation commit or fail together.
func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	// Hash outside the transaction; bcrypt is deliberately slow
	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return services.NewDomainError(services.ErrorTypeValidation, "password does not meet requirements", err)
	}

	now := s.now()
	tokenHash := token.HashToken(rawToken)

	err = s.txMgr.InTransaction(ctx, func(txCtx context.Context, _ repositories.Transaction) error {
		record, err := s.resetTokens.GetByHash(txCtx, tokenHash)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return services.ErrInvalidResetToken
			}
			return err
		}
		if !record.IsValidAt(now) {
			return services.ErrInvalidResetToken
		}

		if err := s.users.UpdatePasswordHash(txCtx, record.UserID, newHash); err != nil {
			return err
		}
		if err := s.resetTokens.MarkUsed(txCtx, record.ID, now); err != nil {
			// A concurrent reset consumed the token first
			if errors.Is(err, repositories.ErrNotFound) {
				return services.ErrInvalidResetToken
			}
			return err
		}
		if _, err := s.resetTokens.InvalidateAllForUser(txCtx, record.UserID, now); err != nil {
			return err
		}
		// Every existing session dies with the old password
		if _, err := s.refreshTokens.RevokeAllForUser(txCtx, record.UserID, now); err != nil {
			return err
		}

		s.logger.Info("password reset completed",
			zap.String("user_id", record.UserID.String()))
		return nil
	})

	if err != nil {
		if services.IsUnauthorizedError(err) {
			return err
		}
		return services.WrapInternal("failed to reset password", err)
	}
	return nil
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/docsquare/auth-gateway/models"
	"github.com/docsquare/auth-gateway/repositories"
)

// TokenBlacklistRepository implements the repositories.TokenBlacklistRepository interface
type TokenBlacklistRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewTokenBlacklistRepository creates a new token blacklist repository
func NewTokenBlacklistRepository(db *DB, logger *zap.Logger) repositories.TokenBlacklistRepository {
	return &TokenBlacklistRepository{
		db:     db,
		logger: logger,
	}
}

// Add records a revoked access token. Idempotent on token hash so repeated
// logout requests for the same token succeed.
func (r *TokenBlacklistRepository) Add(ctx context.Context, token *models.BlacklistedToken) error {
	query := `
		INSERT INTO blacklisted_tokens (id, user_id, token_hash, expires_at, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (token_hash) DO NOTHING
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.ExpiresAt,
		token.Reason,
		token.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}

	r.logger.Debug("token blacklisted",
		zap.String("user_id", token.UserID.String()),
		zap.String("reason", token.Reason))
	return nil
}

// IsBlacklisted reports whether a token hash has been revoked
func (r *TokenBlacklistRepository) IsBlacklisted(ctx context.Context, tokenHash string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM blacklisted_tokens WHERE token_hash = $1)`

	executor := GetExecutor(ctx, r.db)
	var exists bool
	if err := executor.QueryRowContext(ctx, query, tokenHash).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check token blacklist: %w", err)
	}

	return exists, nil
}

// DeleteExpired removes entries whose token expiry is before the cutoff.
// Expired tokens fail JWT validation anyway, so their blacklist rows are dead weight.
func (r *TokenBlacklistRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM blacklisted_tokens WHERE expires_at < $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired blacklist entries: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *TokenBlacklistRepository) WithTx(tx repositories.Transaction) repositories.TokenBlacklistRepository {
	return &TokenBlacklistRepository{
		db:     r.db,
		logger: r.logger,
	}
}

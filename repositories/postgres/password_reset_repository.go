package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docsquare/auth-gateway/models"
	"github.com/docsquare/auth-gateway/repositories"
)

// PasswordResetTokenRepository implements the repositories.PasswordResetTokenRepository interface
type PasswordResetTokenRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewPasswordResetTokenRepository creates a new password reset token repository
func NewPasswordResetTokenRepository(db *DB, logger *zap.Logger) repositories.PasswordResetTokenRepository {
	return &PasswordResetTokenRepository{
		db:     db,
		logger: logger,
	}
}

// Create persists a new reset token record
func (r *PasswordResetTokenRepository) Create(ctx context.Context, token *models.PasswordResetToken) error {
	query := `
		INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at, is_used, used_at, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.ExpiresAt,
		token.IsUsed,
		token.UsedAt,
		token.IPAddress,
		token.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create reset token: %w", err)
	}

	r.logger.Debug("password reset token created",
		zap.String("id", token.ID.String()),
		zap.String("user_id", token.UserID.String()))
	return nil
}

// GetByHash retrieves a reset token by its hash
func (r *PasswordResetTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, is_used, used_at, ip_address, created_at
		FROM password_reset_tokens
		WHERE token_hash = $1
	`

	executor := GetExecutor(ctx, r.db)
	token := &models.PasswordResetToken{}

	err := executor.QueryRowContext(ctx, query, tokenHash).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.ExpiresAt,
		&token.IsUsed,
		&token.UsedAt,
		&token.IPAddress,
		&token.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("reset token: %w", repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get reset token: %w", err)
	}

	return token, nil
}

// MarkUsed marks a reset token as consumed
func (r *PasswordResetTokenRepository) MarkUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE password_reset_tokens
		SET is_used = true, used_at = $2
		WHERE id = $1 AND is_used = false
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark reset token used: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("reset token %s: %w", id, repositories.ErrNotFound)
	}

	return nil
}

// InvalidateAllForUser marks all unused tokens for a user as used.
// Called when a new token is issued so only the latest one stays valid.
func (r *PasswordResetTokenRepository) InvalidateAllForUser(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	query := `
		UPDATE password_reset_tokens
		SET is_used = true, used_at = $2
		WHERE user_id = $1 AND is_used = false
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, userID, at)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate reset tokens: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// CountRecentForUser counts tokens issued for a user since the cutoff
func (r *PasswordResetTokenRepository) CountRecentForUser(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM password_reset_tokens
		WHERE user_id = $1 AND created_at >= $2
	`

	executor := GetExecutor(ctx, r.db)
	var count int
	if err := executor.QueryRowContext(ctx, query, userID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count recent reset tokens: %w", err)
	}

	return count, nil
}

// DeleteExpired removes tokens whose expiry is before the cutoff
func (r *PasswordResetTokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM password_reset_tokens WHERE expires_at < $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired reset tokens: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *PasswordResetTokenRepository) WithTx(tx repositories.Transaction) repositories.PasswordResetTokenRepository {
	return &PasswordResetTokenRepository{
		db:     r.db,
		logger: r.logger,
	}
}

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

// RefreshTokenRepository implements the repositories.RefreshTokenRepository interface
type RefreshTokenRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRefreshTokenRepository creates a new refresh token repository
func NewRefreshTokenRepository(db *DB, logger *zap.Logger) repositories.RefreshTokenRepository {
	return &RefreshTokenRepository{
		db:     db,
		logger: logger,
	}
}

// Create persists a new refresh token record
func (r *RefreshTokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked_at, device_info, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.ExpiresAt,
		token.RevokedAt,
		token.DeviceInfo,
		token.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create refresh token: %w", err)
	}

	r.logger.Debug("refresh token created",
		zap.String("id", token.ID.String()),
		zap.String("user_id", token.UserID.String()))
	return nil
}

// GetByHash retrieves a refresh token by its hash
func (r *RefreshTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, revoked_at, device_info, created_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`

	executor := GetExecutor(ctx, r.db)
	token, err := scanRefreshToken(executor.QueryRowContext(ctx, query, tokenHash))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("refresh token: %w", repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	return token, nil
}

// scanRefreshToken reads a token row. device_info is nullable, so it goes
// through a []byte intermediate rather than the RawMessage field directly.
func scanRefreshToken(row *sql.Row) (*models.RefreshToken, error) {
	token := &models.RefreshToken{}
	var deviceInfo []byte

	err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.ExpiresAt,
		&token.RevokedAt,
		&deviceInfo,
		&token.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	token.DeviceInfo = deviceInfo
	return token, nil
}

// Claim atomically revokes an active, unexpired token identified by hash and
// returns it. The conditional update guarantees each token rotates at most once
// even under concurrent refresh requests.
func (r *RefreshTokenRepository) Claim(ctx context.Context, tokenHash string, now time.Time) (*models.RefreshToken, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = $2
		WHERE token_hash = $1
		  AND revoked_at IS NULL
		  AND expires_at > $2
		RETURNING id, user_id, token_hash, expires_at, revoked_at, device_info, created_at
	`

	executor := GetExecutor(ctx, r.db)
	token, err := scanRefreshToken(executor.QueryRowContext(ctx, query, tokenHash, now))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("refresh token: %w", repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to claim refresh token: %w", err)
	}

	r.logger.Debug("refresh token claimed", zap.String("id", token.ID.String()))
	return token, nil
}

// RevokeAllForUser revokes every active refresh token for a user
func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, userID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	r.logger.Debug("refresh tokens revoked",
		zap.String("user_id", userID.String()),
		zap.Int64("count", rowsAffected))
	return rowsAffected, nil
}

// DeleteExpired removes tokens whose expiry is before the cutoff
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE expires_at < $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *RefreshTokenRepository) WithTx(tx repositories.Transaction) repositories.RefreshTokenRepository {
	return &RefreshTokenRepository{
		db:     r.db,
		logger: r.logger,
	}
}

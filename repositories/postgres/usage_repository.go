package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docsquare/auth-gateway/models"
	"github.com/docsquare/auth-gateway/repositories"
)

// UsageRepository implements the repositories.UsageRepository interface
type UsageRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *DB, logger *zap.Logger) repositories.UsageRepository {
	return &UsageRepository{
		db:     db,
		logger: logger,
	}
}

// InsertLog appends a usage ledger entry. Returns false without error when the
// idempotency key was already recorded for the user.
func (r *UsageRepository) InsertLog(ctx context.Context, log *models.UsageLog) (bool, error) {
	query := `
		INSERT INTO usage_logs (id, user_id, service_type, quantity, idempotency_key, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, idempotency_key) DO NOTHING
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		log.ID,
		log.UserID,
		log.ServiceType,
		log.Quantity,
		log.IdempotencyKey,
		log.Metadata,
		log.CreatedAt,
	)

	if err != nil {
		return false, fmt.Errorf("failed to insert usage log: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// IncrementCounter upserts a usage counter for (user, period, dimension)
func (r *UsageRepository) IncrementCounter(ctx context.Context, userID uuid.UUID, periodBucket, dimension string, amount float64) error {
	query := `
		INSERT INTO usage_counters (user_id, period_bucket, dimension, used, updated_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id, period_bucket, dimension)
		DO UPDATE SET used = usage_counters.used + EXCLUDED.used,
		              updated_at = CURRENT_TIMESTAMP
	`

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, userID, periodBucket, dimension, amount); err != nil {
		return fmt.Errorf("failed to increment usage counter: %w", err)
	}

	return nil
}

// GetCounter retrieves the used amount for (user, period, dimension).
// Returns 0 when no counter row exists.
func (r *UsageRepository) GetCounter(ctx context.Context, userID uuid.UUID, periodBucket, dimension string) (float64, error) {
	query := `
		SELECT COALESCE(SUM(used), 0)
		FROM usage_counters
		WHERE user_id = $1 AND period_bucket = $2 AND dimension = $3
	`

	executor := GetExecutor(ctx, r.db)
	var used float64
	if err := executor.QueryRowContext(ctx, query, userID, periodBucket, dimension).Scan(&used); err != nil {
		return 0, fmt.Errorf("failed to get usage counter: %w", err)
	}

	return used, nil
}

// GetLogsByUser retrieves ledger entries for a user with pagination, newest first
func (r *UsageRepository) GetLogsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.UsageLog, error) {
	query := `
		SELECT id, user_id, service_type, quantity, idempotency_key, metadata, created_at
		FROM usage_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.UsageLog
	for rows.Next() {
		log := &models.UsageLog{}
		err := rows.Scan(
			&log.ID,
			&log.UserID,
			&log.ServiceType,
			&log.Quantity,
			&log.IdempotencyKey,
			&log.Metadata,
			&log.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan usage log: %w", err)
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage log rows: %w", err)
	}

	return logs, nil
}

// DeleteLogsBefore removes ledger entries older than the cutoff
func (r *UsageRepository) DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM usage_logs WHERE created_at < $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old usage logs: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	r.logger.Debug("old usage logs deleted", zap.Int64("count", rowsAffected))
	return rowsAffected, nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *UsageRepository) WithTx(tx repositories.Transaction) repositories.UsageRepository {
	return &UsageRepository{
		db:     r.db,
		logger: r.logger,
	}
}

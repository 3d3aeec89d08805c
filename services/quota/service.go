// Package quota enforces per-user usage limits and records consumption.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docsquare/auth-gateway/models"
	"github.com/docsquare/auth-gateway/repositories"
	"github.com/docsquare/auth-gateway/services"
	"github.com/docsquare/auth-gateway/services/rbac"
)

// Dimension identifies a tracked quota dimension
type Dimension string

const (
	DimensionDailyQueries   Dimension = "daily_queries"
	DimensionMonthlyQueries Dimension = "monthly_queries"
	DimensionDailyUploads   Dimension = "daily_uploads"
)

// ConsumeRequest represents a usage-reporting event
type ConsumeRequest struct {
	UserID         uuid.UUID
	ServiceType    string
	Quantity       float64
	IdempotencyKey string
	Metadata       []byte
}

// DimensionState reports one dimension's allowance after a consume call.
// A nil Limit means the dimension is unlimited.
type DimensionState struct {
	Dimension Dimension `json:"dimension"`
	Limit     *int      `json:"limit"`
	Used      float64   `json:"used"`
	Remaining *float64  `json:"remaining"`
}

// Denial carries the structured payload for a rejected consume call
type Denial struct {
	Dimension Dimension `json:"dimension"`
	Limit     int       `json:"limit"`
	Used      float64   `json:"used"`
	ResetAt   time.Time `json:"reset_time"`
}

// Result represents the outcome of a consume call. Denials are an expected
// control-flow outcome, returned as a Result rather than an error.
type Result struct {
	Allowed    bool             `json:"allowed"`
	Unlimited  bool             `json:"unlimited"`
	Replayed   bool             `json:"replayed"`
	Consumed   float64          `json:"consumed"`
	Dimensions []DimensionState `json:"dimensions,omitempty"`
	Denial     *Denial          `json:"denial,omitempty"`
}

// UsageStats is a read-only snapshot of a user's current usage
type UsageStats struct {
	UserID           uuid.UUID        `json:"user_id"`
	Dimensions       []DimensionState `json:"dimensions"`
	TotalQueriesUsed int              `json:"total_queries_used"`
	TotalUploads     int              `json:"total_uploads"`
	Unlimited        bool             `json:"unlimited"`
}

// Service enforces quota limits. All consume decisions run inside a
// transaction holding the user's row lock, so check-then-increment is
// atomic per user.
type Service struct {
	users  repositories.UserRepository
	usage  repositories.UsageRepository
	txMgr  repositories.TransactionManager
	rbac   *rbac.Service
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new quota service
func NewService(
	users repositories.UserRepository,
	usage repositories.UsageRepository,
	txMgr repositories.TransactionManager,
	rbacSvc *rbac.Service,
	logger *zap.Logger,
) *Service {
	return &Service{
		users:  users,
		usage:  usage,
		txMgr:  txMgr,
		rbac:   rbacSvc,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the clock, for tests
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Consume decides allow/deny for a usage event and, on allow, durably records
// it exactly once. All-or-nothing across dimensions: if any applicable
// dimension is exhausted nothing is recorded.
func (s *Service) Consume(ctx context.Context, req ConsumeRequest) (*Result, error) {
	if !models.IsValidServiceType(req.ServiceType) {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "invalid service type", nil).
			WithDetail("service_type", req.ServiceType)
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}

	var result *Result
	err := s.txMgr.InTransaction(ctx, func(txCtx context.Context, _ repositories.Transaction) error {
		// Lock the user row first; every consume for this user serializes here
		if _, err := s.users.GetForUpdate(txCtx, req.UserID); err != nil {
			return err
		}
		user, err := s.users.GetWithRoles(txCtx, req.UserID)
		if err != nil {
			return err
		}

		if !user.IsActive {
			return services.ErrAccountInactive
		}

		now := s.now().UTC()

		if s.rbac.IsPrivileged(user) {
			result, err = s.consumeUnlimited(txCtx, user, req, now)
			return err
		}

		limits := s.rbac.EffectiveQuota(user)
		dims := s.applicableDimensions(req.ServiceType, limits)

		states := make([]DimensionState, 0, len(dims))
		for _, d := range dims {
			state, err := s.dimensionState(txCtx, req.UserID, d, now)
			if err != nil {
				return err
			}
			if state.Limit != nil && state.Used+req.Quantity > float64(*state.Limit) {
				result = &Result{
					Allowed: false,
					Denial: &Denial{
						Dimension: d.dimension,
						Limit:     *state.Limit,
						Used:      state.Used,
						ResetAt:   periodReset(d.dimension, now),
					},
				}
				return nil
			}
			states = append(states, state)
		}

		inserted, err := s.appendLedger(txCtx, req, now)
		if err != nil {
			return err
		}
		if !inserted {
			// Same idempotency key already recorded: report current allowance
			// without consuming again
			result = &Result{
				Allowed:    true,
				Replayed:   true,
				Consumed:   0,
				Dimensions: states,
			}
			return nil
		}

		for i, d := range dims {
			if err := s.usage.IncrementCounter(txCtx, req.UserID, periodBucket(d.dimension, now), string(d.dimension), req.Quantity); err != nil {
				return err
			}
			states[i].Used += req.Quantity
			if states[i].Limit != nil {
				remaining := float64(*states[i].Limit) - states[i].Used
				states[i].Remaining = &remaining
			}
		}

		if err := s.incrementTotals(txCtx, req, now); err != nil {
			return err
		}

		result = &Result{
			Allowed:    true,
			Consumed:   req.Quantity,
			Dimensions: states,
		}
		return nil
	})

	if err != nil {
		return nil, mapStoreErr("failed to consume quota", err)
	}

	if !result.Allowed {
		s.logger.Info("quota exceeded",
			zap.String("user_id", req.UserID.String()),
			zap.String("service_type", req.ServiceType),
			zap.String("dimension", string(result.Denial.Dimension)),
			zap.Int("limit", result.Denial.Limit),
			zap.Float64("used", result.Denial.Used))
	}

	return result, nil
}

// consumeUnlimited handles privileged users: no limit checks, but consumption
// is still recorded in the ledger for auditing
func (s *Service) consumeUnlimited(ctx context.Context, user *models.User, req ConsumeRequest, now time.Time) (*Result, error) {
	inserted, err := s.appendLedger(ctx, req, now)
	if err != nil {
		return nil, err
	}
	consumed := 0.0
	if inserted {
		if err := s.incrementTotals(ctx, req, now); err != nil {
			return nil, err
		}
		consumed = req.Quantity
	}

	s.logger.Debug("privileged consume, limits bypassed",
		zap.String("user_id", user.ID.String()),
		zap.String("service_type", req.ServiceType))

	return &Result{
		Allowed:   true,
		Unlimited: true,
		Replayed:  !inserted,
		Consumed:  consumed,
	}, nil
}

func (s *Service) appendLedger(ctx context.Context, req ConsumeRequest, now time.Time) (bool, error) {
	return s.usage.InsertLog(ctx, &models.UsageLog{
		ID:             uuid.New(),
		UserID:         req.UserID,
		ServiceType:    req.ServiceType,
		Quantity:       req.Quantity,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
		CreatedAt:      now,
	})
}

func (s *Service) incrementTotals(ctx context.Context, req ConsumeRequest, now time.Time) error {
	// Every event bumps the query total; uploads bump the upload total too
	uploads := 0
	if models.IsUploadServiceType(req.ServiceType) {
		uploads = 1
	}
	return s.users.IncrementUsageTotals(ctx, req.UserID, 1, uploads)
}

// mapStoreErr translates repository failures into the domain taxonomy.
// Domain errors pass through untouched.
func mapStoreErr(message string, err error) error {
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	if errors.Is(err, repositories.ErrNotFound) {
		return services.ErrUserNotFound
	}
	return services.WrapInternal(message, err)
}

// boundDimension pairs a dimension with its resolved limit
type boundDimension struct {
	dimension Dimension
	limit     *int
}

// applicableDimensions maps a service type to the limit dimensions it
// consumes. Every event counts as a query; uploads additionally consume
// the daily upload dimension.
func (s *Service) applicableDimensions(serviceType string, limits models.QuotaLimits) []boundDimension {
	dims := []boundDimension{
		{DimensionDailyQueries, limits.DailyQueries},
		{DimensionMonthlyQueries, limits.MonthlyQueries},
	}
	if models.IsUploadServiceType(serviceType) {
		dims = append(dims, boundDimension{DimensionDailyUploads, limits.DailyUploads})
	}
	return dims
}

func (s *Service) dimensionState(ctx context.Context, userID uuid.UUID, d boundDimension, now time.Time) (DimensionState, error) {
	state := DimensionState{Dimension: d.dimension, Limit: d.limit}

	// Unlimited dimensions need no counter read
	if d.limit == nil {
		return state, nil
	}

	used, err := s.usage.GetCounter(ctx, userID, periodBucket(d.dimension, now), string(d.dimension))
	if err != nil {
		return state, err
	}
	state.Used = used
	remaining := float64(*d.limit) - used
	state.Remaining = &remaining
	return state, nil
}

// Stats returns a read-only snapshot of a user's current usage across all
// dimensions, without consuming anything
func (s *Service) Stats(ctx context.Context, userID uuid.UUID) (*UsageStats, error) {
	user, err := s.users.GetWithRoles(ctx, userID)
	if err != nil {
		return nil, mapStoreErr("failed to load usage stats", err)
	}

	now := s.now().UTC()
	stats := &UsageStats{
		UserID:           user.ID,
		TotalQueriesUsed: user.TotalQueriesUsed,
		TotalUploads:     user.TotalUploads,
	}

	if s.rbac.IsPrivileged(user) {
		stats.Unlimited = true
		return stats, nil
	}

	limits := s.rbac.EffectiveQuota(user)
	all := []boundDimension{
		{DimensionDailyQueries, limits.DailyQueries},
		{DimensionMonthlyQueries, limits.MonthlyQueries},
		{DimensionDailyUploads, limits.DailyUploads},
	}
	for _, d := range all {
		state := DimensionState{Dimension: d.dimension, Limit: d.limit}
		used, err := s.usage.GetCounter(ctx, userID, periodBucket(d.dimension, now), string(d.dimension))
		if err != nil {
			return nil, mapStoreErr("failed to load usage stats", err)
		}
		state.Used = used
		if d.limit != nil {
			remaining := float64(*d.limit) - used
			if remaining < 0 {
				remaining = 0
			}
			state.Remaining = &remaining
		}
		stats.Dimensions = append(stats.Dimensions, state)
	}

	return stats, nil
}

// periodBucket returns the UTC calendar bucket key a dimension accrues into
func periodBucket(d Dimension, now time.Time) string {
	if d == DimensionMonthlyQueries {
		return now.Format("2006-01")
	}
	return now.Format("2006-01-02")
}

// periodReset returns when a dimension's counter resets: the next UTC
// midnight for daily dimensions, the first of the next month for monthly
func periodReset(d Dimension, now time.Time) time.Time {
	if d == DimensionMonthlyQueries {
		year, month, _ := now.Date()
		return time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC)
	}
	year, month, day := now.Date()
	return time.Date(year, month, day+1, 0, 0, 0, 0, time.UTC)
}

// CleanupOldLogs removes ledger entries older than the retention window.
// Counter rows are the source of truth for enforcement, so pruning the
// ledger never changes a quota decision for past periods already rolled over.
func (s *Service) CleanupOldLogs(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.now().Add(-retention)
	deleted, err := s.usage.DeleteLogsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup usage logs: %w", err)
	}
	return deleted, nil
}

// StartCleanupWorker starts a background worker to periodically prune the ledger
func (s *Service) StartCleanupWorker(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("started usage cleanup worker",
		zap.Duration("interval", interval),
		zap.Duration("retention", retention))

	for {
		select {
		case <-ticker.C:
			if _, err := s.CleanupOldLogs(ctx, retention); err != nil {
				s.logger.Error("failed to cleanup usage logs", zap.Error(err))
			}
		case <-ctx.Done():
			s.logger.Info("stopping usage cleanup worker")
			return
		}
	}
}

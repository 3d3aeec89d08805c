package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/docsquare/auth-gateway/internal/observability"
	"github.com/docsquare/auth-gateway/middleware"
	"github.com/docsquare/auth-gateway/models"
	"github.com/docsquare/auth-gateway/services"
	"github.com/docsquare/auth-gateway/services/auth"
	"github.com/docsquare/auth-gateway/services/quota"
)

type stubQuotaService struct {
	result  *quota.Result
	err     error
	stats   *quota.UsageStats
	lastReq quota.ConsumeRequest
}

func (s *stubQuotaService) Consume(ctx context.Context, req quota.ConsumeRequest) (*quota.Result, error) {
	s.lastReq = req
	return s.result, s.err
}

func (s *stubQuotaService) Stats(ctx context.Context, userID uuid.UUID) (*quota.UsageStats, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.stats, nil
}

func consumeRequest(t *testing.T, h *UsageHandler, identity *auth.VerifyResult, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/usage/consume", &buf)
	if identity != nil {
		req = req.WithContext(middleware.WithIdentity(req.Context(), identity))
	}
	rec := httptest.NewRecorder()
	h.HandleConsume(rec, req)
	return rec
}

func TestHandleConsume(t *testing.T) {
	identity := &auth.VerifyResult{Valid: true, UserID: uuid.New()}

	t.Run("allowed consumption returns allowance", func(t *testing.T) {
		remaining := float64(7)
		svc := &stubQuotaService{result: &quota.Result{
			Allowed:  true,
			Consumed: 1,
			Dimensions: []quota.DimensionState{{
				Dimension: quota.DimensionDailyQueries,
				Limit:     models.IntPtr(10),
				Used:      3,
				Remaining: &remaining,
			}},
		}}
		h := NewUsageHandler(svc, observability.NewMetrics(), zap.NewNop())

		rec := consumeRequest(t, h, identity, ConsumeRequest{ServiceType: models.ServiceResearchQuery})
		require.Equal(t, http.StatusOK, rec.Code)

		var result quota.Result
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
		assert.True(t, result.Allowed)
		assert.Equal(t, identity.UserID, svc.lastReq.UserID)
		assert.Equal(t, models.ServiceResearchQuery, svc.lastReq.ServiceType)
	})

	t.Run("denial returns 429 with denial payload", func(t *testing.T) {
		resetAt := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
		svc := &stubQuotaService{result: &quota.Result{
			Allowed: false,
			Denial: &quota.Denial{
				Dimension: quota.DimensionDailyQueries,
				Limit:     10,
				Used:      10,
				ResetAt:   resetAt,
			},
		}}
		h := NewUsageHandler(svc, observability.NewMetrics(), zap.NewNop())

		rec := consumeRequest(t, h, identity, ConsumeRequest{ServiceType: models.ServiceResearchQuery})
		require.Equal(t, http.StatusTooManyRequests, rec.Code)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "quota_exceeded", body["error"])
		assert.Equal(t, "daily_queries", body["dimension"])
		assert.EqualValues(t, 10, body["limit"])
		assert.EqualValues(t, 10, body["used"])
		assert.Equal(t, "2026-03-11T00:00:00Z", body["reset_time"])
	})

	t.Run("requires authentication", func(t *testing.T) {
		h := NewUsageHandler(&stubQuotaService{}, observability.NewMetrics(), zap.NewNop())
		rec := consumeRequest(t, h, nil, ConsumeRequest{ServiceType: models.ServiceResearchQuery})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("requires service type", func(t *testing.T) {
		h := NewUsageHandler(&stubQuotaService{}, observability.NewMetrics(), zap.NewNop())
		rec := consumeRequest(t, h, identity, ConsumeRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("maps service errors", func(t *testing.T) {
		h := NewUsageHandler(&stubQuotaService{err: services.ErrAccountInactive}, observability.NewMetrics(), zap.NewNop())
		rec := consumeRequest(t, h, identity, ConsumeRequest{ServiceType: models.ServiceResearchQuery})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestHandleStats(t *testing.T) {
	identity := &auth.VerifyResult{Valid: true, UserID: uuid.New()}

	t.Run("returns snapshot", func(t *testing.T) {
		svc := &stubQuotaService{stats: &quota.UsageStats{
			UserID:           identity.UserID,
			TotalQueriesUsed: 42,
		}}
		h := NewUsageHandler(svc, observability.NewMetrics(), zap.NewNop())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/usage/stats", nil)
		req = req.WithContext(middleware.WithIdentity(req.Context(), identity))
		rec := httptest.NewRecorder()
		h.HandleStats(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var stats quota.UsageStats
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
		assert.Equal(t, 42, stats.TotalQueriesUsed)
	})

	t.Run("requires authentication", func(t *testing.T) {
		h := NewUsageHandler(&stubQuotaService{}, observability.NewMetrics(), zap.NewNop())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/usage/stats", nil)
		rec := httptest.NewRecorder()
		h.HandleStats(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func statsForUserRequest(t *testing.T, h *UsageHandler, identity *auth.VerifyResult, targetID string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/usage/stats/{id}", h.HandleStatsForUser)

	req := httptest.NewRequest(http.MethodGet, "/usage/stats/"+targetID, nil)
	if identity != nil {
		req = req.WithContext(middleware.WithIdentity(req.Context(), identity))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandleStatsForUser(t *testing.T) {
	selfID := uuid.New()
	otherID := uuid.New()
	svc := &stubQuotaService{stats: &quota.UsageStats{UserID: otherID, TotalQueriesUsed: 9}}

	t.Run("allows reading own stats", func(t *testing.T) {
		identity := &auth.VerifyResult{Valid: true, UserID: selfID}
		h := NewUsageHandler(&stubQuotaService{stats: &quota.UsageStats{UserID: selfID}}, observability.NewMetrics(), zap.NewNop())

		rec := statsForUserRequest(t, h, identity, selfID.String())
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("denies reading another user without admin role", func(t *testing.T) {
		identity := &auth.VerifyResult{Valid: true, UserID: selfID, Roles: []string{models.RoleMember}}
		h := NewUsageHandler(svc, observability.NewMetrics(), zap.NewNop())

		rec := statsForUserRequest(t, h, identity, otherID.String())
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin role may read any user", func(t *testing.T) {
		identity := &auth.VerifyResult{Valid: true, UserID: selfID, Roles: []string{models.RoleAdmin}}
		h := NewUsageHandler(svc, observability.NewMetrics(), zap.NewNop())

		rec := statsForUserRequest(t, h, identity, otherID.String())
		require.Equal(t, http.StatusOK, rec.Code)

		var stats quota.UsageStats
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
		assert.Equal(t, otherID, stats.UserID)
	})

	t.Run("superuser flag may read any user", func(t *testing.T) {
		identity := &auth.VerifyResult{Valid: true, UserID: selfID, IsSuperuser: true}
		h := NewUsageHandler(svc, observability.NewMetrics(), zap.NewNop())

		rec := statsForUserRequest(t, h, identity, otherID.String())
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("rejects malformed user ID", func(t *testing.T) {
		identity := &auth.VerifyResult{Valid: true, UserID: selfID}
		h := NewUsageHandler(&stubQuotaService{}, observability.NewMetrics(), zap.NewNop())

		rec := statsForUserRequest(t, h, identity, "not-a-uuid")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

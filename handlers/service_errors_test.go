package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/docsquare/auth-gateway/services"
)

func TestHandleServiceError(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not found", services.ErrUserNotFound, http.StatusNotFound},
		{"validation", services.ErrInvalidInput, http.StatusBadRequest},
		{"unauthorized", services.ErrInvalidCredentials, http.StatusUnauthorized},
		{"forbidden", services.ErrAccountInactive, http.StatusForbidden},
		{"rate limit", services.ErrTooManyResetRequests, http.StatusTooManyRequests},
		{"quota exceeded", services.ErrDailyQuotaExceeded, http.StatusTooManyRequests},
		{"conflict", services.ErrDuplicateEmail, http.StatusConflict},
		{"store unavailable", services.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{"internal", services.ErrInternal, http.StatusInternalServerError},
		{"unknown error", errors.New("mystery"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HandleServiceError(rec, tc.err, zap.NewNop())
			assert.Equal(t, tc.wantStatus, rec.Code)
		})
	}

	t.Run("nil error writes nothing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		HandleServiceError(rec, nil, zap.NewNop())
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Body.String())
	})

	t.Run("internal error hides the cause", func(t *testing.T) {
		rec := httptest.NewRecorder()
		HandleServiceError(rec, services.WrapInternal("db exploded", errors.New("secret detail")), zap.NewNop())
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "secret detail")
	})
}

package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrument(t *testing.T) {
	m := NewMetrics()
	handler := m.Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/usage/stats", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(
		m.httpRequestsTotal.WithLabelValues("GET", "/api/v1/usage/stats", "418")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.httpInFlight))
}

func TestDomainCounters(t *testing.T) {
	m := NewMetrics()

	m.RecordLogin("success")
	m.RecordLogin("success")
	m.RecordLogin("failure")
	m.RecordTokenIssued("password")
	m.RecordQuotaDecision("denied", "daily_queries")
	m.RecordPasswordResetRequested()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.loginsTotal.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.loginsTotal.WithLabelValues("failure")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.tokensIssuedTotal.WithLabelValues("password")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.quotaDecisions.WithLabelValues("denied", "daily_queries")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.passwordResetsSent))
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.RecordLogin("success")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "auth_logins_total"))
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("info", "json")
	require.NoError(t, err)
	require.NotNil(t, logger)

	_, err = NewLogger("not-a-level", "json")
	assert.Error(t, err)
}

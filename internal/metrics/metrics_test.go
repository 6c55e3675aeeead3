package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAreRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.CrossTenantDenied.WithLabelValues("customer").Inc()
	m.LoginAttempts.WithLabelValues("staff", "failure").Add(2)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.CrossTenantDenied.WithLabelValues("customer")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.LoginAttempts.WithLabelValues("staff", "failure")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewNoop()
	m.InvitationsIssued.WithLabelValues("customer").Inc()
	m.ObserveRequest("/company/{company}/dashboard", http.MethodGet, http.StatusOK, 15*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `ops_invitations_issued_total{kind="customer"} 1`)
	assert.Contains(t, rec.Body.String(), "ops_http_request_duration_seconds")
}

// Package metrics holds the Prometheus collectors of the identity core.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	LoginAttempts       *prometheus.CounterVec
	InvitationsIssued   *prometheus.CounterVec
	InvitationsAccepted *prometheus.CounterVec
	AcceptRejected      *prometheus.CounterVec
	CrossTenantDenied   *prometheus.CounterVec
	PermissionDenied    *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers every collector on reg. Pass prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ops",
			Name:      "login_attempts_total",
			Help:      "Login attempts by realm and outcome.",
		}, []string{"realm", "outcome"}),
		InvitationsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ops",
			Name:      "invitations_issued_total",
			Help:      "Invitations issued by kind.",
		}, []string{"kind"}),
		InvitationsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ops",
			Name:      "invitations_accepted_total",
			Help:      "Invitations accepted by kind.",
		}, []string{"kind"}),
		AcceptRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ops",
			Name:      "invitation_accept_rejected_total",
			Help:      "Rejected invitation accept attempts by reason.",
		}, []string{"reason"}),
		CrossTenantDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ops",
			Name:      "cross_tenant_denied_total",
			Help:      "Requests rejected because the principal belongs to another company.",
		}, []string{"realm"}),
		PermissionDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ops",
			Name:      "permission_denied_total",
			Help:      "Requests rejected for a missing permission.",
		}, []string{"realm", "permission"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ops",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route template and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.LoginAttempts,
		m.InvitationsIssued,
		m.InvitationsAccepted,
		m.AcceptRejected,
		m.CrossTenantDenied,
		m.PermissionDenied,
		m.RequestDuration,
	)
	return m
}

// NewNoop returns collectors bound to a private registry.
func NewNoop() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	m.RequestDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name used for authentication spans
const TracerName = "github.com/upb/headerauth"

// Tracer returns the tracer used around credential lookups
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// Authentication outcomes recorded by the header auth middleware
const (
	OutcomeAlreadyAuthenticated = "already_authenticated"
	OutcomeAnonymous            = "anonymous"
	OutcomeNotFound             = "not_found"
	OutcomeAuthenticated        = "authenticated"
	OutcomeError                = "error"
)

// AuthMetrics collects authentication metrics.
type AuthMetrics struct {
	Outcomes    *prometheus.CounterVec
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
}

// NewAuthMetrics creates the authentication collectors and registers them
// with reg. A nil registerer leaves them unregistered.
func NewAuthMetrics(reg prometheus.Registerer) *AuthMetrics {
	m := &AuthMetrics{
		Outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headerauth_outcomes_total",
				Help: "Header authentication outcomes by principal type",
			},
			[]string{"principal", "outcome"},
		),
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headerauth_cache_hits_total",
				Help: "Principal cache hits",
			},
			[]string{"principal"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headerauth_cache_misses_total",
				Help: "Principal cache misses",
			},
			[]string{"principal"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Outcomes, m.CacheHits, m.CacheMisses)
	}
	return m
}

// RecordOutcome counts one authentication outcome. Safe on a nil receiver.
func (m *AuthMetrics) RecordOutcome(principal, outcome string) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(principal, outcome).Inc()
}

// RecordCacheHit counts a principal cache hit. Safe on a nil receiver.
func (m *AuthMetrics) RecordCacheHit(principal string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(principal).Inc()
}

// RecordCacheMiss counts a principal cache miss. Safe on a nil receiver.
func (m *AuthMetrics) RecordCacheMiss(principal string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(principal).Inc()
}

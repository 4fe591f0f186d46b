package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeOK        = "ok"
	OutcomeForbidden = "forbidden"
	OutcomeConflict  = "conflict"
	OutcomeNotFound  = "not_found"
	OutcomeInvalid   = "invalid"
	OutcomeError     = "error"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	Operations         *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
	ReviewsSubmitted   prometheus.Counter
	Publishes          *prometheus.CounterVec
	GenerationAttempts *prometheus.CounterVec
	AuditDropped       prometheus.Counter
	RateLimited        *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

// New creates and registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "prodir_workflow_operations_total",
			Help: "Workflow operations by operation and outcome",
		}, []string{"operation", "outcome"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prodir_workflow_operation_duration_seconds",
			Help:    "Workflow operation latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		ReviewsSubmitted: f.NewCounter(prometheus.CounterOpts{
			Name: "prodir_reviews_submitted_total",
			Help: "Reviews accepted into the aggregate",
		}),
		Publishes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "prodir_publishes_total",
			Help: "Publish calls by whether they changed the public store",
		}, []string{"changed"}),
		GenerationAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "prodir_generation_attempts_total",
			Help: "Calls to the generation provider by outcome",
		}, []string{"outcome"}),
		AuditDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "prodir_audit_events_dropped_total",
			Help: "Audit events discarded because the delivery buffer was full",
		}),
		RateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Name: "prodir_rate_limited_total",
			Help: "Requests rejected by a rate limit, by scope",
		}, []string{"scope"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "prodir_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prodir_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// ObserveOperation records one workflow call.
func (m *Metrics) ObserveOperation(op, outcome string, elapsed time.Duration) {
	m.Operations.WithLabelValues(op, outcome).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// IncGenerationAttempt records one provider call.
func (m *Metrics) IncGenerationAttempt(_ int, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.GenerationAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncPublish(changed bool) {
	label := "false"
	if changed {
		label = "true"
	}
	m.Publishes.WithLabelValues(label).Inc()
}

func (m *Metrics) IncRateLimited(scope string) {
	m.RateLimited.WithLabelValues(scope).Inc()
}

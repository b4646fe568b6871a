package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	costsTotal      *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	throttleTotal   *prometheus.CounterVec
	queueWaitTime   *prometheus.HistogramVec
	degradedTotal   *prometheus.CounterVec
	sessionsTotal   *prometheus.CounterVec
	sessionRounds   *prometheus.HistogramVec
	sessionDuration *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a new Prometheus-based metrics recorder.
// Collectors register with reg; a nil reg uses the default registry.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "debate_llm_requests_total",
				Help: "Total number of LLM requests by model, session, worker, phase, and status",
			},
			[]string{"model", "session_id", "worker", "phase", "status", "error_type"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "debate_llm_tokens_total",
				Help: "Total number of tokens used in LLM requests",
			},
			[]string{"model", "session_id", "worker", "phase", "type"},
		),
		costsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "debate_llm_costs_total",
				Help: "Total cost in USD for LLM requests",
			},
			[]string{"model", "session_id", "worker", "phase"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "debate_llm_request_duration_seconds",
				Help:    "Duration of LLM requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model", "session_id", "worker", "phase"},
		),
		throttleTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "debate_llm_throttle_total",
				Help: "Total number of LLM throttling events",
			},
			[]string{"provider", "reason"},
		),
		queueWaitTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "debate_llm_queue_wait_duration_seconds",
				Help:    "Time spent waiting for rate limit availability",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		degradedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "debate_degraded_turns_total",
				Help: "Turns synthesized after terminal worker failure",
			},
			[]string{"worker", "reason"},
		),
		sessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "debate_sessions_total",
				Help: "Finished debate sessions by terminal status",
			},
			[]string{"status"},
		),
		sessionRounds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "debate_session_rounds",
				Help:    "Rounds executed per finished session",
				Buckets: []float64{1, 2, 3, 4, 5},
			},
			[]string{"status"},
		),
		sessionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "debate_session_duration_seconds",
				Help:    "Wall-clock duration per finished session",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"status"},
		),
	}
}

// ObserveRequest records metrics for a completed LLM request.
func (p *PrometheusRecorder) ObserveRequest(
	model, sessionID, worker, phase string,
	promptTokens, completionTokens int,
	cost float64,
	success bool,
	errorType string,
	duration time.Duration,
) {
	status := "success"
	if !success {
		status = "error"
	}

	p.requestsTotal.WithLabelValues(model, sessionID, worker, phase, status, errorType).Inc()

	// Tokens and costs are recorded only on success.
	if success {
		p.tokensTotal.WithLabelValues(model, sessionID, worker, phase, "prompt").Add(float64(promptTokens))
		p.tokensTotal.WithLabelValues(model, sessionID, worker, phase, "completion").Add(float64(completionTokens))
		p.costsTotal.WithLabelValues(model, sessionID, worker, phase).Add(cost)
	}

	p.requestDuration.WithLabelValues(model, sessionID, worker, phase).Observe(duration.Seconds())
}

// IncThrottle increments the throttle counter for rate limiting events.
func (p *PrometheusRecorder) IncThrottle(provider, reason string) {
	p.throttleTotal.WithLabelValues(provider, reason).Inc()
}

// ObserveQueueWait records time spent waiting for rate limit availability.
func (p *PrometheusRecorder) ObserveQueueWait(provider string, duration time.Duration) {
	p.queueWaitTime.WithLabelValues(provider).Observe(duration.Seconds())
}

// IncDegradedTurn counts a turn synthesized after terminal worker failure.
func (p *PrometheusRecorder) IncDegradedTurn(worker, reason string) {
	p.degradedTotal.WithLabelValues(worker, reason).Inc()
}

// ObserveSession records a finished debate session.
func (p *PrometheusRecorder) ObserveSession(status string, rounds int, duration time.Duration) {
	p.sessionsTotal.WithLabelValues(status).Inc()
	p.sessionRounds.WithLabelValues(status).Observe(float64(rounds))
	p.sessionDuration.WithLabelValues(status).Observe(duration.Seconds())
}

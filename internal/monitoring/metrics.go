// Package monitoring exposes Prometheus metrics for governance decisions.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics manages the Prometheus metrics for the governance layer.
type Metrics struct {
	RateLimitDecisions *prometheus.CounterVec
	AbuseDecisions     *prometheus.CounterVec
	AbuseViolations    *prometheus.CounterVec
	BotCacheLookups    *prometheus.CounterVec
	PlanLimitDenials   *prometheus.CounterVec
}

// NewMetrics creates and registers the governance metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RateLimitDecisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guardrail_rate_limit_decisions_total",
				Help: "Rate limit decisions by outcome.",
			},
			[]string{"result"},
		),
		AbuseDecisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guardrail_abuse_decisions_total",
				Help: "Abuse check decisions by outcome.",
			},
			[]string{"result"},
		),
		AbuseViolations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guardrail_abuse_violations_total",
				Help: "Detected abuse violations by type.",
			},
			[]string{"type"},
		),
		BotCacheLookups: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guardrail_bot_cache_lookups_total",
				Help: "Bot configuration cache lookups by outcome.",
			},
			[]string{"result"},
		),
		PlanLimitDenials: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guardrail_plan_limit_denials_total",
				Help: "Plan limit denials by quota dimension.",
			},
			[]string{"limit_type"},
		),
	}
}

// RecordRateLimit records a rate limit decision.
func (m *Metrics) RecordRateLimit(allowed bool) {
	m.RateLimitDecisions.WithLabelValues(result(allowed)).Inc()
}

// RecordAbuse records an abuse check decision.
func (m *Metrics) RecordAbuse(allowed bool) {
	m.AbuseDecisions.WithLabelValues(result(allowed)).Inc()
}

// RecordViolation records a detected violation.
func (m *Metrics) RecordViolation(violationType string) {
	m.AbuseViolations.WithLabelValues(violationType).Inc()
}

// RecordBotCacheLookup records a cache lookup outcome ("hit" or "miss").
func (m *Metrics) RecordBotCacheLookup(outcome string) {
	m.BotCacheLookups.WithLabelValues(outcome).Inc()
}

// RecordPlanDenial records a plan limit denial.
func (m *Metrics) RecordPlanDenial(limitType string) {
	m.PlanLimitDenials.WithLabelValues(limitType).Inc()
}

func result(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}

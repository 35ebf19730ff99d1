package policy

import (
	"github.com/prometheus/client_golang/prometheus"
)

// engineMetrics holds the engine's prometheus collectors.
// A nil receiver disables all recording, so the engine never branches on
// whether metrics are configured.
type engineMetrics struct {
	decisions   *prometheus.CounterVec
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
}

// WithMetrics registers decision and cache counters with the given
// registerer and enables metric recording on the engine.
func WithMetrics(reg prometheus.Registerer) EngineOption {
	return func(o *engineOptions) {
		if reg == nil {
			return
		}

		m := &engineMetrics{
			decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "authz",
				Subsystem: "policy",
				Name:      "decisions_total",
				Help:      "Policy evaluation decisions by outcome.",
			}, []string{"result"}),
			cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "authz",
				Subsystem: "policy",
				Name:      "decision_cache_hits_total",
				Help:      "Decision cache hits.",
			}),
			cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "authz",
				Subsystem: "policy",
				Name:      "decision_cache_misses_total",
				Help:      "Decision cache misses.",
			}),
		}

		reg.MustRegister(m.decisions, m.cacheHits, m.cacheMisses)
		o.metrics = m
	}
}

func (m *engineMetrics) decision(allowed bool) {
	if m == nil {
		return
	}
	result := "denied"
	if allowed {
		result = "allowed"
	}
	m.decisions.WithLabelValues(result).Inc()
}

func (m *engineMetrics) cacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *engineMetrics) cacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

// Package metrics defines the Prometheus collectors exported by the link
// runtime.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mxlink"

// Metrics groups the runtime's collectors.
type Metrics struct {
	SyncRounds      prometheus.Counter
	SyncFailures    *prometheus.CounterVec
	SyncBackoff     prometheus.Gauge
	LivenessRetries prometheus.Counter
	TypingLoops     prometheus.Gauge
	JoinAttempts    *prometheus.CounterVec
	Undecrypted     prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg
// leaves them unregistered. Registering twice with the same registry
// reuses the collectors already there.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		SyncRounds: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "rounds_total",
			Help:      "Successful long-poll rounds.",
		})),
		SyncFailures: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "failures_total",
			Help:      "Failed long-poll rounds by classification.",
		}, []string{"kind"})),
		SyncBackoff: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "backoff_seconds",
			Help:      "Current wait before the next sync attempt. Zero when healthy.",
		})),
		LivenessRetries: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "liveness_retries_total",
			Help:      "Transient failures of the startup identity check.",
		})),
		TypingLoops: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "typing",
			Name:      "active_loops",
			Help:      "Rooms with an active typing notice loop.",
		})),
		JoinAttempts: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rooms",
			Name:      "join_attempts_total",
			Help:      "Room join attempts by result.",
		}, []string{"result"})),
		Undecrypted: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "undecrypted_total",
			Help:      "Encrypted timeline events skipped by the dispatcher.",
		})),
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if reg == nil {
		return c
	}

	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}

	return c
}

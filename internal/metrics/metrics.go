package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	sidecarStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sidekick",
			Subsystem: "sidecar",
			Name:      "starts_total",
			Help:      "Number of successful sidecar starts.",
		},
	)
	sidecarStops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sidekick",
			Subsystem: "sidecar",
			Name:      "stops_total",
			Help:      "Number of sidecar stops (graceful or kill).",
		},
	)
	sidecarRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sidekick",
			Subsystem: "sidecar",
			Name:      "restarts_total",
			Help:      "Number of explicit restarts.",
		},
	)
	healthChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sidekick",
			Subsystem: "health",
			Name:      "checks_total",
			Help:      "Health probe results.",
		}, []string{"result"},
	)
	startDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sidekick",
			Subsystem: "sidecar",
			Name:      "start_duration_seconds",
			Help:      "Time from start request until the sidecar reported healthy.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	logRotations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sidekick",
			Subsystem: "logs",
			Name:      "rotations_total",
			Help:      "Captured stream log rotations.",
		}, []string{"stream"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sidekick",
			Subsystem: "sidecar",
			Name:      "state_transitions_total",
			Help:      "Number of state transitions between supervisor states.",
		}, []string{"from", "to"},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "sidekick",
			Subsystem: "sidecar",
			Name:      "current_state",
			Help:      "Current supervisor state (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
	uptimeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sidekick",
			Subsystem: "sidecar",
			Name:      "uptime_seconds",
			Help:      "Seconds since the sidecar became healthy; 0 while not running.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		sidecarStarts, sidecarStops, sidecarRestarts,
		healthChecks, startDuration, logRotations,
		stateTransitions, currentState, uptimeSeconds,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the
// DefaultGatherer. The caller is responsible for wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart() {
	if regOK.Load() {
		sidecarStarts.Inc()
	}
}

func IncStop() {
	if regOK.Load() {
		sidecarStops.Inc()
	}
}

func IncRestart() {
	if regOK.Load() {
		sidecarRestarts.Inc()
	}
}

func IncHealthCheck(healthy bool) {
	if regOK.Load() {
		result := "healthy"
		if !healthy {
			result = "unhealthy"
		}
		healthChecks.WithLabelValues(result).Inc()
	}
}

func ObserveStartDuration(seconds float64) {
	if regOK.Load() {
		startDuration.Observe(seconds)
	}
}

func IncLogRotation(stream string) {
	if regOK.Load() {
		logRotations.WithLabelValues(stream).Inc()
	}
}

func SetUptime(seconds float64) {
	if regOK.Load() {
		uptimeSeconds.Set(seconds)
	}
}

func RecordStateTransition(from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(from, to).Inc()
	}
}

func SetCurrentState(state string, active bool) {
	if regOK.Load() {
		var v float64
		if active {
			v = 1
		}
		currentState.WithLabelValues(state).Set(v)
	}
}

package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors, registered via Register.
var (
	regOK atomic.Bool

	workloadStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "k6ctl",
			Subsystem: "workload",
			Name:      "starts_total",
			Help:      "Number of successful workload starts.",
		},
	)
	workloadStops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "k6ctl",
			Subsystem: "workload",
			Name:      "stops_total",
			Help:      "Number of workload stops (graceful or kill).",
		},
	)
	workloadFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "k6ctl",
			Subsystem: "workload",
			Name:      "failures_total",
			Help:      "Number of workload exits with a nonzero code.",
		},
	)
	workloadRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "k6ctl",
			Subsystem: "workload",
			Name:      "restarts_total",
			Help:      "Number of restarts triggered by desired-state drift.",
		},
	)
	workloadState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "k6ctl",
			Subsystem: "workload",
			Name:      "state",
			Help:      "Current workload state (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
	reconciles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "k6ctl",
			Subsystem: "controller",
			Name:      "reconciles_total",
			Help:      "Number of reconciliation passes per trigger.",
		}, []string{"trigger"},
	)
	reconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "k6ctl",
			Subsystem: "controller",
			Name:      "reconcile_duration_seconds",
			Help:      "Duration of reconciliation passes.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	relationJoined = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "k6ctl",
			Subsystem: "relation",
			Name:      "joined",
			Help:      "Whether a remote unit currently populates the relation.",
		}, []string{"relation"},
	)
)

// Register registers all metrics with the provided registerer.
// Safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		workloadStarts, workloadStops, workloadFailures, workloadRestarts,
		workloadState, reconciles, reconcileDuration, relationJoined,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
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

// Handler returns an http.Handler serving Prometheus metrics for the
// DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Lightweight helpers; they no-op until Register has been called.

func IncStart() {
	if regOK.Load() {
		workloadStarts.Inc()
	}
}

func IncStop() {
	if regOK.Load() {
		workloadStops.Inc()
	}
}

func IncFailure() {
	if regOK.Load() {
		workloadFailures.Inc()
	}
}

func IncRestart() {
	if regOK.Load() {
		workloadRestarts.Inc()
	}
}

func IncReconcile(trigger string) {
	if regOK.Load() {
		reconciles.WithLabelValues(trigger).Inc()
	}
}

func ObserveReconcile(seconds float64) {
	if regOK.Load() {
		reconcileDuration.Observe(seconds)
	}
}

func SetState(state string, active bool) {
	if regOK.Load() {
		var v float64
		if active {
			v = 1
		}
		workloadState.WithLabelValues(state).Set(v)
	}
}

func SetRelationJoined(relation string, joined bool) {
	if regOK.Load() {
		var v float64
		if joined {
			v = 1
		}
		relationJoined.WithLabelValues(relation).Set(v)
	}
}

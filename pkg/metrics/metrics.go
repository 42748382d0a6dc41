// Package metrics exposes Prometheus metrics about reconciliation cycles.
package metrics

import (
	"context"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sidkik/turbosync/pkg/reconcile"
)

// Reconciler runs a single reconciliation cycle.
type Reconciler interface {
	Reconcile(ctx context.Context) reconcile.Result
}

// Recorder holds the collectors for reconciliation cycles. Each Recorder has
// its own registry.
type Recorder struct {
	registry *prometheus.Registry
	clock    clockwork.Clock

	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	foldersAdded  prometheus.Counter
	foldersRemove prometheus.Counter
	folders       prometheus.Gauge
	lastSuccess   prometheus.Gauge
}

// NewRecorder creates a Recorder and registers its collectors.
func NewRecorder(clock clockwork.Clock) *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		clock:    clock,

		cycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turbosync_reconcile_cycles_total",
				Help: "Total number of reconciliation cycles",
			},
			[]string{"result"},
		),

		cycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "turbosync_reconcile_duration_seconds",
				Help:    "Reconciliation cycle duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		foldersAdded: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "turbosync_folders_added_total",
				Help: "Total number of folders added to the sync daemon",
			},
		),

		foldersRemove: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "turbosync_folders_removed_total",
				Help: "Total number of folders removed from the sync daemon",
			},
		),

		folders: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "turbosync_folders",
				Help: "Number of folders configured in the sync daemon after the last successful cycle",
			},
		),

		lastSuccess: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "turbosync_last_success_timestamp_seconds",
				Help: "Unix time of the last successful reconciliation cycle",
			},
		),
	}
}

// Observe records the outcome of a cycle.
func (r *Recorder) Observe(res reconcile.Result, seconds float64) {
	r.cycleDuration.Observe(seconds)
	switch {
	case !res.Success:
		r.cycles.WithLabelValues("failed").Inc()
		return
	case res.Updated:
		r.cycles.WithLabelValues("updated").Inc()
	default:
		r.cycles.WithLabelValues("unchanged").Inc()
	}

	r.foldersAdded.Add(float64(res.Added))
	r.foldersRemove.Add(float64(res.Removed))
	r.folders.Set(float64(res.Folders))
	r.lastSuccess.Set(float64(r.clock.Now().Unix()))
}

// Instrument returns a Reconciler that records every cycle run by `next`.
func (r *Recorder) Instrument(next Reconciler) Reconciler {
	return instrumented{next, r}
}

type instrumented struct {
	next     Reconciler
	recorder *Recorder
}

func (i instrumented) Reconcile(ctx context.Context) reconcile.Result {
	start := i.recorder.clock.Now()
	res := i.next.Reconcile(ctx)
	i.recorder.Observe(res, i.recorder.clock.Since(start).Seconds())
	return res
}

// Handler returns the HTTP handler that serves the metrics.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ritzau/module-graph/pkg/analysis"
)

// Recorder exposes the outcome of analysis runs as prometheus metrics.
// Each recorder has its own registry.
type Recorder struct {
	registry *prometheus.Registry

	modules            prometheus.Gauge
	edges              prometheus.Gauge
	missingProviders   prometheus.Gauge
	duplicateProviders prometheus.Gauge
	cycles             prometheus.Gauge
	runs               *prometheus.CounterVec
	duration           prometheus.Histogram
	skippedFiles       prometheus.Counter
}

// NewRecorder creates a recorder and registers its collectors
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		modules: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "module_graph_modules",
			Help: "Number of modules in the last analyzed graph.",
		}),
		edges: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "module_graph_edges",
			Help: "Number of requirement edges in the last analyzed graph.",
		}),
		missingProviders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "module_graph_missing_providers",
			Help: "Number of required modules without a provider in the last analysis.",
		}),
		duplicateProviders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "module_graph_duplicate_providers",
			Help: "Number of modules with more than one provider in the last analysis.",
		}),
		cycles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "module_graph_cycles",
			Help: "Number of circular dependencies in the last analysis.",
		}),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "module_graph_analysis_runs_total",
				Help: "Number of analysis runs by outcome.",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "module_graph_analysis_duration_seconds",
			Help:    "Time taken to load, build and analyze the module graph.",
			Buckets: prometheus.DefBuckets,
		}),
		skippedFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "module_graph_ddi_files_skipped_total",
			Help: "Total number of DDI files that could not be loaded.",
		}),
	}

	r.registry.MustRegister(
		r.modules,
		r.edges,
		r.missingProviders,
		r.duplicateProviders,
		r.cycles,
		r.runs,
		r.duration,
		r.skippedFiles,
	)
	return r
}

// ObserveSuccess records a completed run
func (r *Recorder) ObserveSuccess(s analysis.Summary, skipped int, elapsed time.Duration) {
	r.modules.Set(float64(s.Modules))
	r.edges.Set(float64(s.Edges))
	r.missingProviders.Set(float64(s.MissingProviders))
	r.duplicateProviders.Set(float64(s.DuplicateProviders))
	r.cycles.Set(float64(s.Cycles))
	r.skippedFiles.Add(float64(skipped))
	r.duration.Observe(elapsed.Seconds())
	r.runs.WithLabelValues("ok").Inc()
}

// ObserveFailure records a run that produced no result
func (r *Recorder) ObserveFailure(elapsed time.Duration) {
	r.duration.Observe(elapsed.Seconds())
	r.runs.WithLabelValues("failed").Inc()
}

// Registry returns the registry the collectors are registered with
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the metrics in the prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

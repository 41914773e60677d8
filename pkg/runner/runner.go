package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ritzau/module-graph/pkg/analysis"
	"github.com/ritzau/module-graph/pkg/analysis/api"
	"github.com/ritzau/module-graph/pkg/export"
	"github.com/ritzau/module-graph/pkg/graph"
	"github.com/ritzau/module-graph/pkg/logging"
	"github.com/ritzau/module-graph/pkg/metrics"
	"github.com/ritzau/module-graph/pkg/output"
	"github.com/ritzau/module-graph/pkg/pubsub"
)

const totalSteps = 3

// Snapshot is the complete outcome of one analysis run
type Snapshot struct {
	Root     string
	Facts    *api.FactSet
	Result   *analysis.Result
	Report   *output.Report
	DOT      []byte
	Reason   string
	Finished time.Time
	Duration time.Duration
}

// Runner orchestrates loading, building and analyzing the module graph
type Runner struct {
	root      string
	source    api.FactSource
	analyzer  *analysis.Analyzer
	publisher pubsub.Publisher
	recorder  *metrics.Recorder

	mu sync.Mutex // Prevent concurrent analysis runs

	latestMu sync.RWMutex
	latest   *Snapshot
}

// Option configures a Runner
type Option func(*Runner)

// WithPublisher publishes analysis progress on pubsub.TopicAnalysisStatus
func WithPublisher(p pubsub.Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// WithRecorder records every run in prometheus metrics
func WithRecorder(rec *metrics.Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithAnalyzer replaces the default gonum backed analyzer
func WithAnalyzer(a *analysis.Analyzer) Option {
	return func(r *Runner) { r.analyzer = a }
}

// New creates a runner analyzing the facts source finds below root
func New(root string, source api.FactSource, opts ...Option) *Runner {
	r := &Runner{
		root:     root,
		source:   source,
		analyzer: analysis.NewAnalyzer(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one full analysis. Data quality findings are part of the
// snapshot; an error means no result could be produced at all.
func (r *Runner) Run(ctx context.Context, reason string) (*Snapshot, error) {
	// Lock to prevent concurrent analysis
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	logging.InfoContext(ctx, "starting analysis", "root", r.root, "reason", reason)

	snap, err := r.run(ctx, reason)
	elapsed := time.Since(start)
	if err != nil {
		logging.ErrorContext(ctx, "analysis failed", "reason", reason, "error", err)
		r.publish(pubsub.StateError, pubsub.AnalysisStatus{
			Message: err.Error(),
			Step:    totalSteps,
			Reason:  reason,
		})
		if r.recorder != nil {
			r.recorder.ObserveFailure(elapsed)
		}
		return nil, err
	}

	snap.Duration = elapsed
	snap.Finished = time.Now()

	r.latestMu.Lock()
	r.latest = snap
	r.latestMu.Unlock()

	summary := snap.Result.Summary()
	if r.recorder != nil {
		r.recorder.ObserveSuccess(summary, snap.Facts.Skipped, elapsed)
	}
	r.publish(pubsub.StateReady, pubsub.AnalysisStatus{
		Message:  "Analysis complete",
		Step:     totalSteps,
		Reason:   reason,
		Warnings: snap.Report.Warnings,
		Errors:   snap.Report.Errors,
	})

	logging.InfoContext(ctx, "analysis complete",
		"modules", summary.Modules,
		"edges", summary.Edges,
		"warnings", snap.Report.Warnings,
		"errors", snap.Report.Errors,
		"durationMs", elapsed.Milliseconds(),
	)
	return snap, nil
}

func (r *Runner) run(ctx context.Context, reason string) (*Snapshot, error) {
	// Phase 1: Facts
	r.publish(pubsub.StateLoading, pubsub.AnalysisStatus{
		Message: fmt.Sprintf("Loading %s files...", r.source.Name()),
		Step:    1,
		Reason:  reason,
	})
	facts, err := r.source.Load(ctx, r.root)
	if err != nil {
		return nil, fmt.Errorf("loading facts: %w", err)
	}

	// Phase 2: Graph and analysis
	r.publish(pubsub.StateAnalyzing, pubsub.AnalysisStatus{
		Message: "Analyzing module graph...",
		Step:    2,
		Reason:  reason,
	})
	mg := graph.Build(facts.Facts)
	result, err := r.analyzer.Analyze(mg)
	if err != nil {
		return nil, fmt.Errorf("analyzing graph: %w", err)
	}

	// Phase 3: Outputs
	dot, err := export.MarshalDOT(result)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Root:   r.root,
		Facts:  facts,
		Result: result,
		Report: output.BuildReport(r.root, result),
		DOT:    dot,
		Reason: reason,
	}, nil
}

// Forget drops cached source data for removed or rewritten files
func (r *Runner) Forget(paths []string) {
	if inv, ok := r.source.(api.Invalidator); ok && len(paths) > 0 {
		inv.Forget(paths)
	}
}

// Latest returns the most recent successful snapshot, or nil
func (r *Runner) Latest() *Snapshot {
	r.latestMu.RLock()
	defer r.latestMu.RUnlock()
	return r.latest
}

// Root returns the directory being analyzed
func (r *Runner) Root() string {
	return r.root
}

func (r *Runner) publish(state string, status pubsub.AnalysisStatus) {
	if r.publisher == nil {
		return
	}
	status.State = state
	status.Total = totalSteps
	if err := r.publisher.Publish(pubsub.TopicAnalysisStatus, state, status); err != nil {
		logging.Warn("failed to publish analysis status", "state", state, "error", err)
	}
}

package runner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ritzau/module-graph/pkg/analysis/api"
	"github.com/ritzau/module-graph/pkg/metrics"
	"github.com/ritzau/module-graph/pkg/model"
	"github.com/ritzau/module-graph/pkg/pubsub"
	"github.com/ritzau/module-graph/pkg/watcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource is a FactSource returning canned facts
type fakeSource struct {
	mu        sync.Mutex
	facts     []model.Fact
	skipped   int
	err       error
	loads     int
	forgotten []string
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) Load(ctx context.Context, root string) (*api.FactSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.err != nil {
		return nil, s.err
	}
	return &api.FactSet{Facts: s.facts, Files: len(s.facts) + s.skipped, Skipped: s.skipped}, nil
}

func (s *fakeSource) Forget(paths []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forgotten = append(s.forgotten, paths...)
}

func (s *fakeSource) loadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

func cyclicFacts() []model.Fact {
	return []model.Fact{
		{PrimaryOutput: "a.o", Provides: []model.Provide{{LogicalName: "A", SourcePath: "a.cppm"}}, Requires: []string{"B", "C"}},
		{PrimaryOutput: "b.o", Provides: []model.Provide{{LogicalName: "B", SourcePath: "b.cppm"}}, Requires: []string{"A"}},
	}
}

func statuses(t *testing.T, sub pubsub.Subscription, n int) []pubsub.AnalysisStatus {
	t.Helper()
	var out []pubsub.AnalysisStatus
	for len(out) < n {
		select {
		case event := <-sub.Events():
			var status pubsub.AnalysisStatus
			require.NoError(t, json.Unmarshal(event.Data, &status))
			assert.Equal(t, event.Type, status.State)
			out = append(out, status)
		case <-time.After(time.Second):
			t.Fatalf("timeout after %d status events", len(out))
		}
	}
	return out
}

func TestRun_ProducesSnapshot(t *testing.T) {
	src := &fakeSource{facts: cyclicFacts(), skipped: 2}
	rec := metrics.NewRecorder()
	r := New("build", src, WithRecorder(rec))

	assert.Nil(t, r.Latest())

	snap, err := r.Run(context.Background(), "initial analysis")
	require.NoError(t, err)

	assert.Equal(t, "build", snap.Root)
	assert.Equal(t, "initial analysis", snap.Reason)
	assert.Equal(t, 3, snap.Result.Graph.Len())
	assert.Len(t, snap.Result.SCCs, 1)
	assert.Equal(t, 2, snap.Report.Errors, "one missing provider and one cycle")
	assert.Contains(t, string(snap.DOT), "digraph modules")
	assert.Same(t, snap, r.Latest())

	body := scrape(t, rec)
	assert.Contains(t, body, "module_graph_modules 3")
	assert.Contains(t, body, "module_graph_ddi_files_skipped_total 2")
	assert.Contains(t, body, `module_graph_analysis_runs_total{outcome="ok"} 1`)
}

func scrape(t *testing.T, rec *metrics.Recorder) string {
	t.Helper()
	w := httptest.NewRecorder()
	rec.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestRun_PublishesProgress(t *testing.T) {
	pub := pubsub.NewSSEPublisher()
	defer pub.Close()
	sub, err := pub.Subscribe(context.Background(), pubsub.TopicAnalysisStatus)
	require.NoError(t, err)
	defer sub.Close()

	r := New("build", &fakeSource{facts: cyclicFacts()}, WithPublisher(pub))
	_, err = r.Run(context.Background(), "test")
	require.NoError(t, err)

	got := statuses(t, sub, 3)
	assert.Equal(t, pubsub.StateLoading, got[0].State)
	assert.Equal(t, pubsub.StateAnalyzing, got[1].State)
	assert.Equal(t, pubsub.StateReady, got[2].State)
	assert.Equal(t, 3, got[2].Step)
	assert.Equal(t, 3, got[2].Total)
	assert.Equal(t, 2, got[2].Errors)
	assert.Equal(t, "test", got[2].Reason)
}

func TestRun_SourceFailure(t *testing.T) {
	pub := pubsub.NewSSEPublisher()
	defer pub.Close()
	sub, err := pub.Subscribe(context.Background(), pubsub.TopicAnalysisStatus)
	require.NoError(t, err)
	defer sub.Close()

	rec := metrics.NewRecorder()
	src := &fakeSource{facts: cyclicFacts()}
	r := New("build", src, WithPublisher(pub), WithRecorder(rec))

	first, err := r.Run(context.Background(), "first")
	require.NoError(t, err)
	statuses(t, sub, 3)

	src.mu.Lock()
	src.err = errors.New("disk on fire")
	src.mu.Unlock()

	_, err = r.Run(context.Background(), "second")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")

	got := statuses(t, sub, 2)
	assert.Equal(t, pubsub.StateError, got[1].State)
	assert.Contains(t, got[1].Message, "disk on fire")

	// The previous result stays available
	assert.Same(t, first, r.Latest())
	assert.Contains(t, scrape(t, rec), `module_graph_analysis_runs_total{outcome="failed"} 1`)
}

func TestForget_UsesInvalidator(t *testing.T) {
	src := &fakeSource{}
	r := New("build", src)

	r.Forget([]string{"a.ddi"})
	r.Forget(nil)

	assert.Equal(t, []string{"a.ddi"}, src.forgotten)
}

func TestWatch_RerunsOnChanges(t *testing.T) {
	src := &fakeSource{facts: cyclicFacts()}
	r := New("build", src)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan watcher.ChangeEvent, 4)
	snaps := make(chan *Snapshot, 4)
	done := make(chan struct{})
	go func() {
		r.Watch(ctx, changes, func(s *Snapshot) { snaps <- s })
		close(done)
	}()

	changes <- watcher.ChangeEvent{Type: watcher.ChangeTypeRemoved, Paths: []string{"old.ddi"}}

	select {
	case snap := <-snaps:
		assert.Equal(t, "1 DDI file(s) removed", snap.Reason)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for re-analysis")
	}
	assert.Equal(t, 1, src.loadCount())
	src.mu.Lock()
	assert.Equal(t, []string{"old.ddi"}, src.forgotten)
	src.mu.Unlock()

	close(changes)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch did not stop after the change channel closed")
	}
}

package web

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ritzau/module-graph/pkg/analysis/api"
	"github.com/ritzau/module-graph/pkg/lens"
	"github.com/ritzau/module-graph/pkg/logging"
	"github.com/ritzau/module-graph/pkg/metrics"
	"github.com/ritzau/module-graph/pkg/model"
	"github.com/ritzau/module-graph/pkg/pubsub"
	"github.com/ritzau/module-graph/pkg/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	facts []model.Fact
	err   error
}

func (s staticSource) Name() string { return "static" }

func (s staticSource) Load(context.Context, string) (*api.FactSet, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &api.FactSet{Facts: s.facts, Files: len(s.facts)}, nil
}

func facts() []model.Fact {
	return []model.Fact{
		{PrimaryOutput: "a.o", Provides: []model.Provide{{LogicalName: "A", SourcePath: "a.cppm"}}, Requires: []string{"B", "core:util"}},
		{PrimaryOutput: "b.o", Provides: []model.Provide{{LogicalName: "B", SourcePath: "b.cppm"}}, Requires: []string{"A"}},
	}
}

type fixture struct {
	server *Server
	runner *runner.Runner
	pub    *pubsub.SSEPublisher
}

func newFixture(t *testing.T, src api.FactSource, analyze bool) fixture {
	t.Helper()
	pub := pubsub.NewSSEPublisher()
	t.Cleanup(func() { pub.Close() })
	rec := metrics.NewRecorder()

	r := runner.New("build", src, runner.WithPublisher(pub), runner.WithRecorder(rec))
	s := NewServer(r, pub, rec)
	if analyze {
		_, err := r.Run(context.Background(), "test")
		require.NoError(t, err)
	}
	return fixture{server: s, runner: r, pub: pub}
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestNoSnapshotYet(t *testing.T) {
	f := newFixture(t, staticSource{facts: facts()}, false)

	for _, path := range []string{"/api/report", "/api/modules", "/api/modules/A", "/api/cycles", "/api/graph", "/api/graph.dot"} {
		assert.Equal(t, http.StatusServiceUnavailable, get(t, f.server, path).Code, path)
	}
}

func TestReport(t *testing.T) {
	f := newFixture(t, staticSource{facts: facts()}, true)

	rec := get(t, f.server, "/api/report")
	assert.NotEmpty(t, rec.Header().Get(logging.RequestIDHeader))

	report := decode[ReportView](t, rec)
	assert.Equal(t, "build", report.Root)
	assert.Equal(t, 0, report.Warnings)
	assert.Equal(t, 2, report.Errors)
	assert.Equal(t, "Report for build", report.Lines[0])
	assert.Equal(t, "Warnings: 0, Errors: 2", report.Lines[len(report.Lines)-1])
	assert.Equal(t, "test", report.Reason)
}

func TestModules(t *testing.T) {
	f := newFixture(t, staticSource{facts: facts()}, true)

	modules := decode[[]ModuleView](t, get(t, f.server, "/api/modules"))
	require.Len(t, modules, 3)
	assert.Equal(t, "A", modules[0].Name)
	assert.Equal(t, []string{"B", "core:util"}, modules[0].Requires)
	assert.True(t, modules[0].Metrics.IsSCC)

	missing := decode[ModuleView](t, get(t, f.server, "/api/modules/core:util"))
	assert.True(t, missing.Metrics.IsMissing)
	assert.Empty(t, missing.ProvidedBy)
	assert.Equal(t, []string{"a.o"}, missing.RequiredBy)

	assert.Equal(t, http.StatusNotFound, get(t, f.server, "/api/modules/Nope").Code)
}

func TestModuleFocus(t *testing.T) {
	f := newFixture(t, staticSource{facts: facts()}, true)

	view := decode[lens.View](t, get(t, f.server, "/api/modules/B/focus?depth=1&direction=downstream"))
	require.Len(t, view.Nodes, 2)
	assert.Equal(t, lens.FocusNode{Name: "A", Distance: 1}, view.Nodes[0])
	assert.Equal(t, lens.FocusNode{Name: "B", Distance: 0}, view.Nodes[1])

	all := decode[lens.View](t, get(t, f.server, "/api/modules/B/focus?depth=-1"))
	assert.Len(t, all.Nodes, 3)

	assert.Equal(t, http.StatusBadRequest, get(t, f.server, "/api/modules/B/focus?depth=x").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, f.server, "/api/modules/B/focus?direction=up").Code)
	assert.Equal(t, http.StatusNotFound, get(t, f.server, "/api/modules/Z/focus").Code)
}

func TestCycles(t *testing.T) {
	f := newFixture(t, staticSource{facts: facts()}, true)

	cycles := decode[[]CycleView](t, get(t, f.server, "/api/cycles"))
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"A", "B"}, cycles[0].SCC)
	assert.Equal(t, []string{"B", "A", "B"}, cycles[0].Cycle)
}

func TestGraph(t *testing.T) {
	f := newFixture(t, staticSource{facts: facts()}, true)

	g := decode[GraphData](t, get(t, f.server, "/api/graph"))
	require.Len(t, g.Nodes, 3)
	require.Len(t, g.Edges, 3)

	byID := make(map[string]GraphNode)
	for _, n := range g.Nodes {
		byID[n.ID] = n
	}
	assert.Equal(t, "missing", byID["core:util"].Category)
	assert.Equal(t, "orange", byID["core:util"].Color)

	for _, e := range g.Edges {
		if e.Source == "A" && e.Target == "B" {
			assert.True(t, e.OnCycle)
			assert.Equal(t, "dashed", e.Stroke)
			assert.Equal(t, 5, e.Width)
		}
	}
}

func TestGraphDOT(t *testing.T) {
	f := newFixture(t, staticSource{facts: facts()}, true)

	rec := get(t, f.server, "/api/graph.dot")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/vnd.graphviz"))
	assert.Equal(t, string(f.runner.Latest().DOT), rec.Body.String())
}

func TestAnalyze(t *testing.T) {
	f := newFixture(t, staticSource{facts: facts()}, false)

	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/analyze", nil))
	report := decode[ReportView](t, rec)
	assert.Equal(t, "requested over HTTP", report.Reason)
	assert.NotNil(t, f.runner.Latest())

	failing := newFixture(t, staticSource{err: errors.New("no root")}, false)
	rec = httptest.NewRecorder()
	failing.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/analyze", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, staticSource{facts: facts()}, true)

	rec := get(t, f.server, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "module_graph_cycles 1")
}

func TestSubscribeAnalysis(t *testing.T) {
	f := newFixture(t, staticSource{facts: facts()}, true)

	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/subscribe/analysis", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// The last status of the completed run is replayed
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event pubsub.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
		assert.Equal(t, pubsub.TopicAnalysisStatus, event.Topic)
		assert.Equal(t, pubsub.StateReady, event.Type)
		return
	}
	t.Fatalf("stream ended without an event: %v", scanner.Err())
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/ritzau/module-graph/pkg/analysis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_ObserveSuccess(t *testing.T) {
	r := NewRecorder()

	r.ObserveSuccess(analysis.Summary{
		Modules:            4,
		Edges:              5,
		DuplicateProviders: 1,
		MissingProviders:   2,
		Cycles:             1,
	}, 3, 20*time.Millisecond)
	r.ObserveSuccess(analysis.Summary{Modules: 2}, 1, time.Millisecond)

	// Gauges follow the last run, counters accumulate
	assert.Equal(t, 2.0, testutil.ToFloat64(r.modules))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.missingProviders))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.skippedFiles))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.runs.WithLabelValues("ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.runs.WithLabelValues("failed")))
}

func TestRecorder_ObserveFailure(t *testing.T) {
	r := NewRecorder()

	r.ObserveFailure(time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.duration))
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder()
	r.ObserveSuccess(analysis.Summary{Modules: 7, Cycles: 2}, 0, time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "module_graph_modules 7")
	assert.Contains(t, body, "module_graph_cycles 2")
	assert.Contains(t, body, `module_graph_analysis_runs_total{outcome="ok"} 1`)
	assert.Contains(t, body, "module_graph_analysis_duration_seconds_count 1")
}

func TestRecorders_AreIndependent(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	a.ObserveSuccess(analysis.Summary{Modules: 1}, 0, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.modules))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.modules))
}

package analysis

import (
	"fmt"

	"github.com/ritzau/module-graph/pkg/cycles"
	"github.com/ritzau/module-graph/pkg/graph"
	"github.com/ritzau/module-graph/pkg/model"
)

// Result holds everything derived from a module graph. It is computed once
// after the graph is complete and must not outlive the graph.
type Result struct {
	Graph   *graph.ModuleGraph
	SCCs    []model.SCC   // Components with more than one member
	Cycles  []model.Cycle // One shortest cycle per component, same order as SCCs
	Metrics map[int64]model.ModuleMetrics
}

// Summary counts the findings of an analysis
type Summary struct {
	Modules            int `json:"modules"`
	Edges              int `json:"edges"`
	DuplicateProviders int `json:"duplicateProviders"`
	MissingProviders   int `json:"missingProviders"`
	Cycles             int `json:"cycles"`
}

// Analyzer runs the structural analysis with pluggable graph algorithms
type Analyzer struct {
	SCCs  cycles.SCCFinder
	Paths cycles.PathFinder
}

// NewAnalyzer creates an analyzer backed by gonum
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		SCCs:  cycles.TarjanFinder{},
		Paths: cycles.DijkstraPaths{},
	}
}

// Analyze analyzes mg with the default algorithms
func Analyze(mg *graph.ModuleGraph) (*Result, error) {
	return NewAnalyzer().Analyze(mg)
}

// Analyze finds circular dependencies and derives per-module metrics. Cycle
// membership and component membership are tracked separately: a module can
// be part of a component without being on its shortest cycle.
func (a *Analyzer) Analyze(mg *graph.ModuleGraph) (*Result, error) {
	sccs := cycles.FindSCCs(mg, a.SCCs)

	found, err := cycles.FindCycles(mg, sccs, a.Paths)
	if err != nil {
		return nil, fmt.Errorf("finding shortest cycles: %w", err)
	}

	inSCC := make(map[int64]bool)
	for _, scc := range sccs {
		for _, id := range scc {
			inSCC[id] = true
		}
	}

	inCycle := make(map[int64]bool)
	for _, cycle := range found {
		for _, id := range cycle {
			inCycle[id] = true
		}
	}

	metrics := make(map[int64]model.ModuleMetrics, mg.Len())
	for _, id := range mg.Nodes() {
		m := model.NewModuleMetrics(mg.Node(id), len(mg.Successors(id)))
		m.IsSCC = inSCC[id]
		m.IsInShortestCycle = inCycle[id]
		metrics[id] = m
	}

	return &Result{
		Graph:   mg,
		SCCs:    sccs,
		Cycles:  found,
		Metrics: metrics,
	}, nil
}

// Summary counts modules, edges and findings
func (r *Result) Summary() Summary {
	s := Summary{
		Modules: r.Graph.Len(),
		Edges:   r.Graph.EdgeCount(),
		Cycles:  len(r.SCCs),
	}
	for _, id := range r.Graph.Nodes() {
		node := r.Graph.Node(id)
		if node.IsAmbiguous() {
			s.DuplicateProviders++
		}
		if node.IsMissing() {
			s.MissingProviders++
		}
	}
	return s
}

// Errors is the number of findings reported as errors
func (s Summary) Errors() int {
	return s.MissingProviders + s.Cycles
}

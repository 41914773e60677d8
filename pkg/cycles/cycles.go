package cycles

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/ritzau/module-graph/pkg/graph"
	"github.com/ritzau/module-graph/pkg/logging"
	"github.com/ritzau/module-graph/pkg/model"
)

// FindSCCs returns the strongly connected components of the module graph that
// have more than one member. Members are sorted by node ID and components by
// their first member.
func FindSCCs(mg *graph.ModuleGraph, finder SCCFinder) []model.SCC {
	sccs := make([]model.SCC, 0)
	for _, component := range finder.FindSCCs(mg.Directed()) {
		// Single nodes are not circular dependencies
		if len(component) < 2 {
			continue
		}

		scc := model.SCC(slices.Clone(component))
		slices.Sort(scc)
		sccs = append(sccs, scc)
	}

	slices.SortFunc(sccs, func(a, b model.SCC) int {
		return cmp.Compare(a[0], b[0])
	})

	logging.Debug("found strongly connected components", "count", len(sccs))
	return sccs
}

// ShortestCycle finds one shortest cycle inside a strongly connected
// component. For every member and every successor that is also a member, the
// shortest path from the successor back to the member is closed into a cycle;
// the first cycle with the fewest nodes wins. A member requiring itself is the
// cycle [member, member].
func ShortestCycle(mg *graph.ModuleGraph, scc model.SCC, paths PathFinder) (model.Cycle, error) {
	view := mg.Directed()

	var shortest model.Cycle
	for _, id := range scc {
		for _, neighbour := range mg.Successors(id) {
			if !scc.Contains(neighbour) {
				continue
			}

			if neighbour == id {
				if shortest == nil || len(shortest) > 2 {
					shortest = model.Cycle{id, id}
				}
				continue
			}

			back, ok := paths.ShortestPath(view, neighbour, id)
			if !ok {
				return nil, fmt.Errorf("no path from %q back to %q in strongly connected component",
					mg.Name(neighbour), mg.Name(id))
			}

			// Close the loop
			candidate := append(model.Cycle(back), neighbour)
			if shortest == nil || len(candidate) < len(shortest) {
				shortest = candidate
			}
		}
	}

	if shortest == nil {
		return nil, fmt.Errorf("strongly connected component %v has no internal edges", mg.Names(scc))
	}
	return shortest, nil
}

// FindCycles finds the shortest cycle of every component, in component order
func FindCycles(mg *graph.ModuleGraph, sccs []model.SCC, paths PathFinder) ([]model.Cycle, error) {
	cycles := make([]model.Cycle, 0, len(sccs))
	for _, scc := range sccs {
		cycle, err := ShortestCycle(mg, scc, paths)
		if err != nil {
			return nil, err
		}

		logging.Trace("shortest cycle", "scc", mg.Names(scc), "cycle", mg.Names(cycle))
		cycles = append(cycles, cycle)
	}
	return cycles, nil
}

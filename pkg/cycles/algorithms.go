package cycles

import (
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// SCCFinder decomposes a directed graph into strongly connected components.
type SCCFinder interface {
	FindSCCs(g graph.Directed) [][]int64
}

// PathFinder finds a shortest path between two nodes. The returned path
// starts with from and ends with to; ok is false when to is unreachable.
type PathFinder interface {
	ShortestPath(g graph.Directed, from, to int64) (ids []int64, ok bool)
}

// TarjanFinder finds components with gonum's implementation of Tarjan's
// algorithm.
type TarjanFinder struct{}

func (TarjanFinder) FindSCCs(g graph.Directed) [][]int64 {
	components := topo.TarjanSCC(g)

	sccs := make([][]int64, 0, len(components))
	for _, component := range components {
		ids := make([]int64, 0, len(component))
		for _, node := range component {
			ids = append(ids, node.ID())
		}
		sccs = append(sccs, ids)
	}
	return sccs
}

// DijkstraPaths finds unweighted shortest paths. Edges have uniform cost, so
// the result has the same length as a breadth-first search.
type DijkstraPaths struct{}

func (DijkstraPaths) ShortestPath(g graph.Directed, from, to int64) ([]int64, bool) {
	shortest := path.DijkstraFrom(simple.Node(from), g)

	nodes, _ := shortest.To(to)
	if len(nodes) == 0 {
		return nil, false
	}

	ids := make([]int64, 0, len(nodes))
	for _, node := range nodes {
		ids = append(ids, node.ID())
	}
	return ids, true
}

package graph

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/ritzau/module-graph/pkg/logging"
	"github.com/ritzau/module-graph/pkg/model"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/iterator"
	"gonum.org/v1/gonum/graph/simple"
)

// ModuleGraph is the module requirement graph. Nodes live in a dense arena
// addressed by their gonum node ID; edges point from a providing module to
// the module it requires. simple.DirectedGraph cannot hold self edges, so a
// module requiring itself is flagged in selfLoops instead.
type ModuleGraph struct {
	graph     *simple.DirectedGraph
	nodes     []model.ModuleInfo // Arena indexed by node ID
	selfLoops []bool             // Indexed by node ID
	ids       map[string]int64   // Map from logical name to node ID
}

// NewModuleGraph creates an empty module graph
func NewModuleGraph() *ModuleGraph {
	return &ModuleGraph{
		graph: simple.NewDirectedGraph(),
		nodes: make([]model.ModuleInfo, 0),
		ids:   make(map[string]int64),
	}
}

// GetOrCreate merges info into the node with the same name, or inserts a new
// node when the name has not been seen yet. It returns the node ID.
func (mg *ModuleGraph) GetOrCreate(info model.ModuleInfo) (int64, error) {
	if id, exists := mg.ids[info.Name]; exists {
		if err := mg.nodes[id].Merge(info); err != nil {
			return 0, fmt.Errorf("merging module %d: %w", id, err)
		}
		return id, nil
	}

	id := int64(len(mg.nodes))
	mg.nodes = append(mg.nodes, model.ModuleInfo{
		Name:       info.Name,
		ProvidedBy: slices.Clone(info.ProvidedBy),
		RequiredBy: slices.Clone(info.RequiredBy),
	})
	mg.selfLoops = append(mg.selfLoops, false)
	mg.ids[info.Name] = id
	mg.graph.AddNode(simple.Node(id))

	return id, nil
}

// AddRequirement adds an edge from the provider to the required module.
// A module requiring itself gets a self loop.
func (mg *ModuleGraph) AddRequirement(providerID, requiredID int64) {
	if providerID == requiredID {
		logging.Trace("self requirement", "module", mg.nodes[providerID].Name)
		mg.selfLoops[providerID] = true
		return
	}

	if !mg.graph.HasEdgeFromTo(providerID, requiredID) {
		mg.graph.SetEdge(mg.graph.NewEdge(simple.Node(providerID), simple.Node(requiredID)))
	}
}

// Len returns the number of modules in the graph
func (mg *ModuleGraph) Len() int {
	return len(mg.nodes)
}

// Node returns the module stored under id. The returned pointer must not be
// used to modify the graph after construction.
func (mg *ModuleGraph) Node(id int64) *model.ModuleInfo {
	if id < 0 || id >= int64(len(mg.nodes)) {
		return nil
	}
	return &mg.nodes[id]
}

// Lookup returns the node ID for a logical module name
func (mg *ModuleGraph) Lookup(name string) (int64, bool) {
	id, exists := mg.ids[name]
	return id, exists
}

// Name returns the logical name of the node, or "" for an unknown id
func (mg *ModuleGraph) Name(id int64) string {
	if node := mg.Node(id); node != nil {
		return node.Name
	}
	return ""
}

// Names maps a list of node IDs to their logical names
func (mg *ModuleGraph) Names(ids []int64) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, mg.Name(id))
	}
	return names
}

// Nodes returns all node IDs in insertion order
func (mg *ModuleGraph) Nodes() []int64 {
	ids := make([]int64, len(mg.nodes))
	for i := range mg.nodes {
		ids[i] = int64(i)
	}
	return ids
}

// Successors returns the distinct modules required by id, in ascending ID
// order. A self loop lists id itself.
func (mg *ModuleGraph) Successors(id int64) []int64 {
	iter := mg.graph.From(id)
	succ := make([]int64, 0, iter.Len()+1)
	for iter.Next() {
		succ = append(succ, iter.Node().ID())
	}
	if mg.HasSelfLoop(id) {
		succ = append(succ, id)
	}
	slices.Sort(succ)
	return succ
}

// HasSelfLoop reports whether the module requires itself
func (mg *ModuleGraph) HasSelfLoop(id int64) bool {
	return id >= 0 && id < int64(len(mg.selfLoops)) && mg.selfLoops[id]
}

// HasEdge reports whether from requires to
func (mg *ModuleGraph) HasEdge(from, to int64) bool {
	if from == to {
		return mg.HasSelfLoop(from)
	}
	return mg.graph.HasEdgeFromTo(from, to)
}

// Edges returns all requirement edges as [provider, required] pairs ordered
// by provider and then required ID.
func (mg *ModuleGraph) Edges() [][2]int64 {
	var edges [][2]int64
	for _, from := range mg.Nodes() {
		for _, to := range mg.Successors(from) {
			edges = append(edges, [2]int64{from, to})
		}
	}
	return edges
}

// EdgeCount returns the number of distinct requirement edges, self loops
// included
func (mg *ModuleGraph) EdgeCount() int {
	n := mg.graph.Edges().Len()
	for _, loop := range mg.selfLoops {
		if loop {
			n++
		}
	}
	return n
}

// Directed returns a read-only view of the graph for gonum algorithms.
// Node and successor iteration is ordered by ID, so algorithm results are
// reproducible between runs. Self loops are not part of the view; they
// change neither component membership nor reachability.
func (mg *ModuleGraph) Directed() graph.Directed {
	return orderedDirected{mg.graph}
}

// orderedDirected wraps the gonum graph to iterate nodes in ID order instead
// of map order.
type orderedDirected struct {
	*simple.DirectedGraph
}

func (g orderedDirected) Nodes() graph.Nodes {
	return ordered(g.DirectedGraph.Nodes())
}

func (g orderedDirected) From(id int64) graph.Nodes {
	return ordered(g.DirectedGraph.From(id))
}

func (g orderedDirected) To(id int64) graph.Nodes {
	return ordered(g.DirectedGraph.To(id))
}

func ordered(it graph.Nodes) graph.Nodes {
	nodes := graph.NodesOf(it)
	slices.SortFunc(nodes, func(a, b graph.Node) int {
		return cmp.Compare(a.ID(), b.ID())
	})
	return iterator.NewOrderedNodes(nodes)
}

// Build builds a module graph from dependency facts. Every provided module
// of a fact gets an edge to every module the same fact requires.
func Build(facts []model.Fact) *ModuleGraph {
	mg := NewModuleGraph()

	for _, fact := range facts {
		for _, provide := range fact.Provides {
			pid := mg.mustGetOrCreate(model.ModuleInfo{
				Name:       provide.LogicalName,
				ProvidedBy: []string{provide.SourcePath},
			})

			for _, req := range fact.Requires {
				rid := mg.mustGetOrCreate(model.ModuleInfo{
					Name:       req,
					RequiredBy: []string{fact.PrimaryOutput},
				})

				// Requirement graph: arrows point towards the required module.
				mg.AddRequirement(pid, rid)
			}
		}
	}

	logging.Debug("built module graph", "facts", len(facts), "modules", mg.Len(), "edges", mg.EdgeCount())
	return mg
}

// mustGetOrCreate panics on a merge failure. Lookups are by name, so a
// failure here is a bug in the builder and not a property of the input.
func (mg *ModuleGraph) mustGetOrCreate(info model.ModuleInfo) int64 {
	id, err := mg.GetOrCreate(info)
	if err != nil {
		panic(err)
	}
	return id
}

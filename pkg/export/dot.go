package export

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/ritzau/module-graph/pkg/analysis"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/iterator"
)

// GraphName is the name of the exported digraph
const GraphName = "modules"

// node is a module as written to DOT
type node struct {
	id    int64
	name  string
	style NodeStyle
}

func (n node) ID() int64     { return n.id }
func (n node) DOTID() string { return n.name }

func (n node) Attributes() []encoding.Attribute {
	return []encoding.Attribute{
		{Key: "label", Value: n.style.Label},
		{Key: "fontname", Value: "Monospace"},
		{Key: "shape", Value: "box"},
		{Key: "style", Value: "rounded,filled"},
		{Key: "fillcolor", Value: n.style.FillColor},
	}
}

// edge is a requirement as written to DOT
type edge struct {
	from, to node
	style    EdgeStyle
}

func (e edge) From() graph.Node { return e.from }
func (e edge) To() graph.Node   { return e.to }

func (e edge) ReversedEdge() graph.Edge {
	return edge{from: e.to, to: e.from, style: e.style}
}

func (e edge) Attributes() []encoding.Attribute {
	return []encoding.Attribute{
		{Key: "style", Value: e.style.Stroke},
		{Key: "penwidth", Value: strconv.Itoa(e.style.Width)},
		{Key: "color", Value: e.style.Color},
		{Key: "fontcolor", Value: "gray"},
	}
}

// styledGraph is a read-only graph.Directed of styled modules. Unlike
// simple.DirectedGraph it holds the self loop of a module requiring itself.
type styledGraph struct {
	nodes []node // Indexed by node ID
	from  map[int64][]graph.Node
	to    map[int64][]graph.Node
	edges map[[2]int64]edge
}

func (g *styledGraph) Node(id int64) graph.Node {
	if id < 0 || id >= int64(len(g.nodes)) {
		return nil
	}
	return g.nodes[id]
}

func (g *styledGraph) Nodes() graph.Nodes {
	nodes := make([]graph.Node, len(g.nodes))
	for i, n := range g.nodes {
		nodes[i] = n
	}
	return iterator.NewOrderedNodes(nodes)
}

func (g *styledGraph) From(id int64) graph.Nodes {
	return iterator.NewOrderedNodes(g.from[id])
}

func (g *styledGraph) To(id int64) graph.Nodes {
	return iterator.NewOrderedNodes(g.to[id])
}

func (g *styledGraph) HasEdgeFromTo(uid, vid int64) bool {
	_, ok := g.edges[[2]int64{uid, vid}]
	return ok
}

func (g *styledGraph) HasEdgeBetween(xid, yid int64) bool {
	return g.HasEdgeFromTo(xid, yid) || g.HasEdgeFromTo(yid, xid)
}

func (g *styledGraph) Edge(uid, vid int64) graph.Edge {
	e, ok := g.edges[[2]int64{uid, vid}]
	if !ok {
		return nil
	}
	return e
}

// Styled builds a graph carrying the style of every node and edge. It only
// reads the metrics in result and runs no analysis of its own.
func Styled(result *analysis.Result) graph.Directed {
	mg := result.Graph
	out := &styledGraph{
		nodes: make([]node, mg.Len()),
		from:  make(map[int64][]graph.Node),
		to:    make(map[int64][]graph.Node),
		edges: make(map[[2]int64]edge, mg.EdgeCount()),
	}

	for _, id := range mg.Nodes() {
		name := mg.Name(id)
		out.nodes[id] = node{id: id, name: name, style: NodeStyleFor(name, result.Metrics[id])}
	}

	// Edges() is ordered by provider and then required ID, so the
	// adjacency lists come out sorted
	for _, e := range mg.Edges() {
		from, to := out.nodes[e[0]], out.nodes[e[1]]
		out.edges[e] = edge{
			from:  from,
			to:    to,
			style: EdgeStyleFor(result.Metrics[e[0]], result.Metrics[e[1]]),
		}
		out.from[e[0]] = append(out.from[e[0]], to)
		out.to[e[1]] = append(out.to[e[1]], from)
	}

	return out
}

// MarshalDOT renders the styled graph as a DOT document
func MarshalDOT(result *analysis.Result) ([]byte, error) {
	b, err := dot.Marshal(Styled(result), GraphName, "", "\t")
	if err != nil {
		return nil, fmt.Errorf("marshaling DOT: %w", err)
	}
	return append(b, '\n'), nil
}

// WriteDOT writes the DOT document to w
func WriteDOT(w io.Writer, result *analysis.Result) error {
	b, err := MarshalDOT(result)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// WriteDOTFile writes the DOT document to path, replacing any existing file
func WriteDOTFile(path string, result *analysis.Result) error {
	b, err := MarshalDOT(result)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

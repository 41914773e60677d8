package lens

import (
	"fmt"
	"slices"

	"github.com/ritzau/module-graph/pkg/graph"
	gonum "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"
)

// Direction selects which edges a focus view follows
type Direction string

const (
	Both       Direction = "both"       // Requirements in either direction
	Downstream Direction = "downstream" // Modules the selection requires
	Upstream   Direction = "upstream"   // Modules requiring the selection
)

// ParseDirection maps a query value to a Direction, defaulting to Both
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case "", Both:
		return Both, nil
	case Downstream, Upstream:
		return Direction(s), nil
	default:
		return "", fmt.Errorf("unknown direction %q", s)
	}
}

// FocusNode is a module within reach of the selection
type FocusNode struct {
	Name     string `json:"name"`
	Distance int    `json:"distance"`
}

// View is the part of the module graph around a set of selected modules
type View struct {
	Selected  []string    `json:"selected"`
	Depth     int         `json:"depth"`
	Direction Direction   `json:"direction"`
	Nodes     []FocusNode `json:"nodes"`
	Edges     [][2]string `json:"edges"`
}

// reversed follows requirement edges backwards
type reversed struct {
	gonum.Directed
}

func (r reversed) From(id int64) gonum.Nodes { return r.Directed.To(id) }

func (r reversed) Edge(uid, vid int64) gonum.Edge { return r.Directed.Edge(vid, uid) }

func view(mg *graph.ModuleGraph, dir Direction) traverse.Graph {
	g := mg.Directed()
	switch dir {
	case Downstream:
		return g
	case Upstream:
		return reversed{g}
	default:
		return gonum.Undirect{G: g}
	}
}

// Distances returns the number of hops from the nearest selected module
// for every module within depth. A negative depth means unlimited.
func Distances(mg *graph.ModuleGraph, selected []int64, depth int, dir Direction) map[int64]int {
	g := view(mg, dir)
	distances := make(map[int64]int)

	for _, id := range selected {
		var bf traverse.BreadthFirst
		bf.Walk(g, simple.Node(id), func(n gonum.Node, d int) bool {
			if depth >= 0 && d > depth {
				return true
			}
			if prev, ok := distances[n.ID()]; !ok || d < prev {
				distances[n.ID()] = d
			}
			return false
		})
	}
	return distances
}

// Focus builds the view of the modules within depth of the named modules
func Focus(mg *graph.ModuleGraph, names []string, depth int, dir Direction) (*View, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("no modules selected")
	}

	selected := make([]int64, 0, len(names))
	for _, name := range names {
		id, ok := mg.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("module %q not found", name)
		}
		selected = append(selected, id)
	}

	distances := Distances(mg, selected, depth, dir)

	ids := make([]int64, 0, len(distances))
	for id := range distances {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	v := &View{
		Selected:  names,
		Depth:     depth,
		Direction: dir,
		Nodes:     make([]FocusNode, 0, len(ids)),
		Edges:     [][2]string{},
	}
	for _, id := range ids {
		v.Nodes = append(v.Nodes, FocusNode{Name: mg.Name(id), Distance: distances[id]})
	}
	for _, e := range mg.Edges() {
		_, from := distances[e[0]]
		_, to := distances[e[1]]
		if from && to {
			v.Edges = append(v.Edges, [2]string{mg.Name(e[0]), mg.Name(e[1])})
		}
	}
	return v, nil
}

package export

import "github.com/ritzau/module-graph/pkg/model"

// Category is the styling class of a node. Categories are checked in
// declaration order and the first match wins.
type Category int

const (
	CategoryMissing Category = iota
	CategoryDisconnected
	CategorySink
	CategorySource
	CategoryDefault
)

var categoryNames = [...]string{"missing", "disconnected", "sink", "source", "default"}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return "unknown"
	}
	return categoryNames[c]
}

// categoryColors maps each category to its fill color
var categoryColors = map[Category]string{
	CategoryMissing:      "orange",
	CategoryDisconnected: "tomato",
	CategorySink:         "mediumspringgreen",
	CategorySource:       "lightskyblue",
	CategoryDefault:      "lightgrey",
}

// MissingFlag is appended to the label of modules nothing provides
const MissingFlag = "<missing source>"

// CategoryOf classifies a node by its metrics
func CategoryOf(m model.ModuleMetrics) Category {
	switch {
	case m.IsMissing:
		return CategoryMissing
	case m.IsDisconnected:
		return CategoryDisconnected
	case m.IsSink:
		return CategorySink
	case m.IsSource:
		return CategorySource
	default:
		return CategoryDefault
	}
}

// NodeStyle is the visual style of a module node
type NodeStyle struct {
	Category  Category
	Label     string
	FillColor string
}

// NodeStyleFor returns the style of the named module
func NodeStyleFor(name string, m model.ModuleMetrics) NodeStyle {
	c := CategoryOf(m)
	label := name
	if c == CategoryMissing {
		label += "\n" + MissingFlag
	}
	return NodeStyle{
		Category:  c,
		Label:     label,
		FillColor: categoryColors[c],
	}
}

// EdgeStyle is the visual style of a requirement edge
type EdgeStyle struct {
	InSCC   bool
	OnCycle bool
	Color   string
	Stroke  string
	Width   int
}

// EdgeStyleFor styles the edge between two modules. An edge is inside a
// component when both ends are, and on the shortest cycle when both ends are.
func EdgeStyleFor(from, to model.ModuleMetrics) EdgeStyle {
	s := EdgeStyle{
		InSCC:   from.IsSCC && to.IsSCC,
		OnCycle: from.IsInShortestCycle && to.IsInShortestCycle,
		Color:   "gray",
		Stroke:  "solid",
		Width:   1,
	}
	if s.InSCC {
		s.Color = "crimson"
		s.Width += 2
	}
	if s.OnCycle {
		s.Stroke = "dashed"
		s.Width += 2
	}
	return s
}

package model

import (
	"errors"
	"fmt"
)

// ErrNameMismatch is returned when two module nodes with different logical
// names are merged.
var ErrNameMismatch = errors.New("cannot merge modules with different names")

// Provide is a module exported by a compiled unit.
type Provide struct {
	LogicalName string `json:"logicalName"` // Module or partition name, e.g. "core:util"
	SourcePath  string `json:"sourcePath"`  // Source file that provides the module
}

// Fact is one provides/requires rule produced by the fact source.
// Facts without provides never reach the graph builder.
type Fact struct {
	PrimaryOutput string    `json:"primaryOutput"` // Compiled artifact, e.g. "a.o"
	Provides      []Provide `json:"provides"`
	Requires      []string  `json:"requires"` // Logical names this unit consumes
}

// ModuleInfo is a node of the module graph. Nodes are keyed by logical name,
// not by the physical file that provides them.
type ModuleInfo struct {
	Name string `json:"name"`

	// ProvidedBy lists the source files providing this module. More than one
	// entry means the module is ambiguous.
	ProvidedBy []string `json:"providedBy"`

	// RequiredBy lists the primary outputs that require this module.
	RequiredBy []string `json:"requiredBy"`
}

// Merge appends the provider and consumer lists of other to m.
// Duplicates are kept.
func (m *ModuleInfo) Merge(other ModuleInfo) error {
	if m.Name != other.Name {
		return fmt.Errorf("%w: %q and %q", ErrNameMismatch, m.Name, other.Name)
	}

	m.ProvidedBy = append(m.ProvidedBy, other.ProvidedBy...)
	m.RequiredBy = append(m.RequiredBy, other.RequiredBy...)
	return nil
}

// IsAmbiguous reports whether more than one source provides the module.
func (m *ModuleInfo) IsAmbiguous() bool {
	return len(m.ProvidedBy) > 1
}

// IsMissing reports whether no source provides the module.
func (m *ModuleInfo) IsMissing() bool {
	return len(m.ProvidedBy) == 0
}

// ModuleMetrics are derived per node once the graph is complete.
type ModuleMetrics struct {
	NumIn  int `json:"numIn"`  // Number of units requiring this module
	NumOut int `json:"numOut"` // Number of distinct modules this module requires

	IsMissing      bool `json:"isMissing"`
	IsSource       bool `json:"isSource"`
	IsSink         bool `json:"isSink"`
	IsDisconnected bool `json:"isDisconnected"`

	// IsSCC is true when the node is a member of a reported strongly
	// connected component. Components are pair-wise disjoint.
	IsSCC bool `json:"isSCC"`

	// IsInShortestCycle is true when the node lies on the cycle chosen for
	// its component.
	IsInShortestCycle bool `json:"isInShortestCycle"`
}

// NewModuleMetrics derives the structural flags from fan-in and fan-out.
func NewModuleMetrics(info *ModuleInfo, numOut int) ModuleMetrics {
	numIn := len(info.RequiredBy)
	return ModuleMetrics{
		NumIn:          numIn,
		NumOut:         numOut,
		IsMissing:      info.IsMissing(),
		IsSource:       numIn == 0 && numOut != 0,
		IsSink:         numIn != 0 && numOut == 0,
		IsDisconnected: numIn == 0 && numOut == 0,
	}
}

// SCC is a strongly connected component with more than one member.
type SCC []int64

// Cycle is a closed walk of node ids. The first id is repeated at the end.
type Cycle []int64

// Contains reports whether id is part of the component.
func (s SCC) Contains(id int64) bool {
	for _, member := range s {
		if member == id {
			return true
		}
	}
	return false
}

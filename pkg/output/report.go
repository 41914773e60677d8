package output

import (
	"fmt"
	"strings"

	"github.com/ritzau/module-graph/pkg/analysis"
)

// duplicateHint follows the duplicate provider warnings
const duplicateHint = "HINT: This is likely to be caused by multiple targets sharing the same set of module code. " +
	"To fix these, pass one of the target specific sub-dirs of CMakeFiles."

// Kind classifies a report entry
type Kind string

const (
	KindHeader  Kind = "header"
	KindWarning Kind = "warning"
	KindHint    Kind = "hint"
	KindError   Kind = "error"
	KindSummary Kind = "summary"
)

// Entry is one block of the report. Finding entries may span several lines.
type Entry struct {
	Kind   Kind   `json:"kind"`
	Module string `json:"module,omitempty"`
	Text   string `json:"text"`
}

// Report is the textual summary of an analysis
type Report struct {
	Root     string  `json:"root"`
	Entries  []Entry `json:"entries"`
	Warnings int     `json:"warnings"`
	Errors   int     `json:"errors"`
}

// BuildReport lists duplicate providers, then missing providers, then
// circular dependencies, followed by the counts. It does not modify result.
func BuildReport(root string, result *analysis.Result) *Report {
	r := &Report{Root: root}
	r.add(KindHeader, "", fmt.Sprintf("Report for %s\n", root))

	g := result.Graph
	for _, id := range g.Nodes() {
		node := g.Node(id)
		if !node.IsAmbiguous() {
			continue
		}
		r.add(KindWarning, node.Name, fmt.Sprintf("W: multiple source for module %q:\n   -> %s",
			node.Name, strings.Join(node.ProvidedBy, ", ")))
		r.Warnings++
	}
	if r.Warnings > 0 {
		r.add(KindHint, "", duplicateHint)
	}

	for _, id := range g.Nodes() {
		node := g.Node(id)
		if !node.IsMissing() {
			continue
		}
		r.add(KindError, node.Name, fmt.Sprintf("E: No source provides the module: %s", node.Name))
		r.Errors++
	}

	for i, scc := range result.SCCs {
		members := make([]string, len(scc))
		for j, id := range scc {
			members[j] = g.Name(id)
		}
		chain := make([]string, len(result.Cycles[i]))
		for j, id := range result.Cycles[i] {
			chain[j] = g.Name(id)
		}
		r.add(KindError, "", fmt.Sprintf("E: Circular dependency:\n   -> Strongly connected components: %s\n   -> Shortest cycle: %s",
			strings.Join(members, ", "), strings.Join(chain, " -> ")))
		r.Errors++
	}

	summary := fmt.Sprintf("Warnings: %d, Errors: %d", r.Warnings, r.Errors)
	if r.Warnings+r.Errors > 0 {
		summary = "\n" + summary
	}
	r.add(KindSummary, "", summary)

	return r
}

func (r *Report) add(kind Kind, module, text string) {
	r.Entries = append(r.Entries, Entry{Kind: kind, Module: module, Text: text})
}

// HasErrors reports whether any missing provider or cycle was found
func (r *Report) HasErrors() bool {
	return r.Errors > 0
}

// Lines returns the report as text lines without trailing newlines
func (r *Report) Lines() []string {
	return strings.Split(strings.TrimSuffix(r.String(), "\n"), "\n")
}

// String renders the report as plain text
func (r *Report) String() string {
	var b strings.Builder
	for _, e := range r.Entries {
		b.WriteString(e.Text)
		b.WriteByte('\n')
	}
	return b.String()
}

// Filter returns the entries of the given kind
func (r *Report) Filter(kind Kind) []Entry {
	var entries []Entry
	for _, e := range r.Entries {
		if e.Kind == kind {
			entries = append(entries, e)
		}
	}
	return entries
}

package watcher

import (
	"fmt"
	"strings"
)

// ChangeAnalysis describes a debounced batch of changes and how to react to it
type ChangeAnalysis struct {
	// NeedRescan is set when the set of DDI files may have changed, not
	// only their contents
	NeedRescan   bool
	ChangedFiles []string
	RemovedFiles []string
	Reason       string
}

// AnalyzeChanges folds one or more change events into a single analysis request
func AnalyzeChanges(events ...ChangeEvent) *ChangeAnalysis {
	analysis := &ChangeAnalysis{}
	var dirs int

	for _, event := range events {
		switch event.Type {
		case ChangeTypeDDI:
			analysis.ChangedFiles = append(analysis.ChangedFiles, event.Paths...)
		case ChangeTypeRemoved:
			analysis.NeedRescan = true
			analysis.RemovedFiles = append(analysis.RemovedFiles, event.Paths...)
		case ChangeTypeDirectory:
			analysis.NeedRescan = true
			dirs += len(event.Paths)
		}
	}

	var parts []string
	if n := len(analysis.ChangedFiles); n > 0 {
		parts = append(parts, fmt.Sprintf("%d DDI file(s) changed", n))
	}
	if n := len(analysis.RemovedFiles); n > 0 {
		parts = append(parts, fmt.Sprintf("%d DDI file(s) removed", n))
	}
	if dirs > 0 {
		parts = append(parts, fmt.Sprintf("%d new director(ies)", dirs))
	}
	analysis.Reason = strings.Join(parts, ", ")
	if analysis.Reason == "" {
		analysis.Reason = "no relevant changes"
	}

	return analysis
}

// Empty reports whether the batch contains nothing worth re-analyzing
func (a *ChangeAnalysis) Empty() bool {
	return !a.NeedRescan && len(a.ChangedFiles) == 0
}

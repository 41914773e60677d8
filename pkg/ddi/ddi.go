package ddi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ritzau/module-graph/pkg/model"
)

// UndefinedSourcePath is used for provides without a source-path
const UndefinedSourcePath = "<undefined>"

var (
	// ErrMissingField is returned when a required key is absent
	ErrMissingField = errors.New("missing required field")

	// ErrUnsupportedVersion is returned for files outside the supported format versions
	ErrUnsupportedVersion = errors.New("unsupported DDI version")
)

// File is a parsed dependency description file. Only modules provide
// something in format version 1.
type File struct {
	Version  int    // Format version
	Revision int    // Format revision, informational only
	Rules    []Rule // Provides/requires rules, one per compilation unit
	Path     string // Absolute or root-joined path of the file
}

// Rule describes one compilation unit
type Rule struct {
	PrimaryOutput string    // e.g. "CMakeFiles/lib.dir/a.cppm.o"
	Provides      []Provide // Modules and partitions exported by the unit
	Requires      []string  // Logical names needed to compile the unit
}

// Provide is a provided module or partition
type Provide struct {
	LogicalName string
	SourcePath  string
}

// rawFile mirrors the JSON layout. Pointers distinguish absent keys from
// zero values.
type rawFile struct {
	Version  *int       `json:"version"`
	Revision *int       `json:"revision"`
	Rules    *[]rawRule `json:"rules"`
}

type rawRule struct {
	PrimaryOutput *string      `json:"primary-output"`
	Provides      []rawProvide `json:"provides"`
	Requires      []rawRequire `json:"requires"`
}

type rawProvide struct {
	LogicalName *string `json:"logical-name"`
	SourcePath  *string `json:"source-path"`
}

type rawRequire struct {
	LogicalName *string `json:"logical-name"`
}

// ParseFile reads and parses a DDI file
func ParseFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	ddi, err := Parse(f)
	if err != nil {
		return nil, err
	}
	ddi.Path = path
	return ddi, nil
}

// Parse decodes a DDI document. The format version is not checked here; see
// Loader for version filtering.
func Parse(r io.Reader) (*File, error) {
	var raw rawFile
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding JSON: %w", err)
	}

	switch {
	case raw.Version == nil:
		return nil, fmt.Errorf("%w: version", ErrMissingField)
	case raw.Revision == nil:
		return nil, fmt.Errorf("%w: revision", ErrMissingField)
	case raw.Rules == nil:
		return nil, fmt.Errorf("%w: rules", ErrMissingField)
	}

	file := &File{
		Version:  *raw.Version,
		Revision: *raw.Revision,
		Rules:    make([]Rule, 0, len(*raw.Rules)),
	}

	for i, rr := range *raw.Rules {
		if rr.PrimaryOutput == nil {
			return nil, fmt.Errorf("%w: rules[%d].primary-output", ErrMissingField, i)
		}

		rule := Rule{PrimaryOutput: *rr.PrimaryOutput}
		for j, p := range rr.Provides {
			if p.LogicalName == nil {
				return nil, fmt.Errorf("%w: rules[%d].provides[%d].logical-name", ErrMissingField, i, j)
			}
			provide := Provide{LogicalName: *p.LogicalName, SourcePath: UndefinedSourcePath}
			if p.SourcePath != nil {
				provide.SourcePath = *p.SourcePath
			}
			rule.Provides = append(rule.Provides, provide)
		}
		for j, req := range rr.Requires {
			if req.LogicalName == nil {
				return nil, fmt.Errorf("%w: rules[%d].requires[%d].logical-name", ErrMissingField, i, j)
			}
			rule.Requires = append(rule.Requires, *req.LogicalName)
		}

		file.Rules = append(file.Rules, rule)
	}

	return file, nil
}

// DropConsumers removes rules that provide nothing. Pure consumers would
// show up as sinks that are not modules.
func (f *File) DropConsumers() {
	kept := f.Rules[:0]
	for _, rule := range f.Rules {
		if len(rule.Provides) > 0 {
			kept = append(kept, rule)
		}
	}
	f.Rules = kept
}

// Facts converts the rules of the file to dependency facts
func (f *File) Facts() []model.Fact {
	facts := make([]model.Fact, 0, len(f.Rules))
	for _, rule := range f.Rules {
		fact := model.Fact{
			PrimaryOutput: rule.PrimaryOutput,
			Provides:      make([]model.Provide, 0, len(rule.Provides)),
			Requires:      append([]string(nil), rule.Requires...),
		}
		for _, p := range rule.Provides {
			fact.Provides = append(fact.Provides, model.Provide{
				LogicalName: p.LogicalName,
				SourcePath:  p.SourcePath,
			})
		}
		facts = append(facts, fact)
	}
	return facts
}

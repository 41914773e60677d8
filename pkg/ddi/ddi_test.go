package ddi

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ritzau/module-graph/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDDI = `{
  "version": 1,
  "revision": 0,
  "rules": [
    {
      "primary-output": "CMakeFiles/lib.dir/a.cppm.o",
      "provides": [
        {"logical-name": "A", "source-path": "/src/a.cppm", "is-interface": true}
      ],
      "requires": [
        {"logical-name": "B"},
        {"logical-name": "A:detail", "lookup-method": "by-name"}
      ]
    },
    {
      "primary-output": "CMakeFiles/lib.dir/main.cpp.o",
      "requires": [{"logical-name": "A"}]
    }
  ]
}`

func TestParse(t *testing.T) {
	file, err := Parse(strings.NewReader(sampleDDI))
	require.NoError(t, err)

	assert.Equal(t, 1, file.Version)
	assert.Equal(t, 0, file.Revision)
	require.Len(t, file.Rules, 2)

	rule := file.Rules[0]
	assert.Equal(t, "CMakeFiles/lib.dir/a.cppm.o", rule.PrimaryOutput)
	assert.Equal(t, []Provide{{LogicalName: "A", SourcePath: "/src/a.cppm"}}, rule.Provides)
	assert.Equal(t, []string{"B", "A:detail"}, rule.Requires)

	assert.Empty(t, file.Rules[1].Provides)
}

func TestParseDefaultsSourcePath(t *testing.T) {
	file, err := Parse(strings.NewReader(`{"version":1,"revision":0,"rules":[
		{"primary-output":"a.o","provides":[{"logical-name":"A"}]}]}`))
	require.NoError(t, err)

	assert.Equal(t, UndefinedSourcePath, file.Rules[0].Provides[0].SourcePath)
}

func TestParseMissingFields(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
	}{
		{"version", `{"revision":0,"rules":[]}`, "version"},
		{"revision", `{"version":1,"rules":[]}`, "revision"},
		{"rules", `{"version":1,"revision":0}`, "rules"},
		{"primary output", `{"version":1,"revision":0,"rules":[{"provides":[]}]}`, "primary-output"},
		{"provide name", `{"version":1,"revision":0,"rules":[{"primary-output":"a.o","provides":[{"source-path":"a"}]}]}`, "logical-name"},
		{"require name", `{"version":1,"revision":0,"rules":[{"primary-output":"a.o","requires":[{}]}]}`, "logical-name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMissingField))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestParseInvalidJSON(t *testing.T) {
	_, err := Parse(strings.NewReader(`{"version": 1,`))
	assert.Error(t, err)
}

func TestDropConsumersAndFacts(t *testing.T) {
	file, err := Parse(strings.NewReader(sampleDDI))
	require.NoError(t, err)

	file.DropConsumers()
	require.Len(t, file.Rules, 1)

	facts := file.Facts()
	assert.Equal(t, []model.Fact{{
		PrimaryOutput: "CMakeFiles/lib.dir/a.cppm.o",
		Provides:      []model.Provide{{LogicalName: "A", SourcePath: "/src/a.cppm"}},
		Requires:      []string{"B", "A:detail"},
	}}, facts)
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.cppm.o.ddi")
	require.NoError(t, os.WriteFile(path, []byte(sampleDDI), 0o644))

	file, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, file.Path)
	assert.Len(t, file.Rules, 2)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.ddi"))
	assert.Error(t, err)
}

func TestFindFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b/CMakeFiles/lib.dir/b.cppm.o.ddi", sampleDDI)
	writeFile(t, root, "a/CMakeFiles/lib.dir/a.cppm.o.ddi", sampleDDI)
	writeFile(t, root, "a/CMakeFiles/lib.dir/a.cppm.o.d", "a.o: a.cppm")
	writeFile(t, root, ".git/objects/x.ddi", sampleDDI)

	files, err := FindFiles(root)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(root, "a/CMakeFiles/lib.dir/a.cppm.o.ddi"),
		filepath.Join(root, "b/CMakeFiles/lib.dir/b.cppm.o.ddi"),
	}, files)
}

func TestFindFilesMissingRoot(t *testing.T) {
	_, err := FindFiles(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)
}

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

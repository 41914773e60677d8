package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDDI(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func setup(t *testing.T) (root, dot string) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	root = t.TempDir()
	dot = filepath.Join(t.TempDir(), "graph.dot")
	return root, dot
}

func TestExecute_CleanTree(t *testing.T) {
	root, dot := setup(t)
	writeDDI(t, root, "a.ddi", `{"version":1,"revision":0,"rules":[
		{"primary-output":"a.o","provides":[{"logical-name":"A","source-path":"a.cppm"}]}]}`)

	var stdout, stderr bytes.Buffer
	code := execute([]string{root, "--output", dot, "--config", filepath.Join(root, "none.toml")}, &stdout, &stderr)

	require.Equal(t, exitOK, code, stderr.String())
	assert.Equal(t, "Report for "+root+"\n\nWarnings: 0, Errors: 0\n", stdout.String())

	b, err := os.ReadFile(dot)
	require.NoError(t, err)
	assert.Contains(t, string(b), "digraph modules")
}

func TestExecute_FindingsExitCode(t *testing.T) {
	root, dot := setup(t)
	writeDDI(t, root, "a.ddi", `{"version":1,"revision":0,"rules":[
		{"primary-output":"a.o","provides":[{"logical-name":"A","source-path":"a.cppm"}],"requires":[{"logical-name":"B"}]}]}`)
	config := filepath.Join(root, "none.toml")

	var stdout, stderr bytes.Buffer
	code := execute([]string{root, "-o", dot, "--config", config}, &stdout, &stderr)
	assert.Equal(t, exitOK, code, "findings alone do not fail the run")
	assert.Contains(t, stdout.String(), "E: No source provides the module: B")

	stdout.Reset()
	code = execute([]string{root, "-o", dot, "--config", config, "--fail-on-errors"}, &stdout, &stderr)
	assert.Equal(t, exitFindings, code)
}

func TestExecute_Failures(t *testing.T) {
	root, dot := setup(t)
	config := filepath.Join(root, "none.toml")

	tests := []struct {
		name string
		args []string
	}{
		{"missing root", []string{filepath.Join(root, "missing"), "-o", dot, "--config", config}},
		{"unwritable output", []string{root, "-o", filepath.Join(root, "no", "dir", "graph.dot"), "--config", config}},
		{"bad constraint", []string{root, "-o", dot, "--config", config, "--version-constraint", "what"}},
		{"bad log format", []string{root, "-o", dot, "--config", config, "--log-format", "xml"}},
		{"too many args", []string{root, root}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Equal(t, exitFailure, execute(tt.args, &stdout, &stderr))
			assert.Contains(t, stderr.String(), "Error:")
		})
	}
}

func TestExecute_ConfigFile(t *testing.T) {
	root, dot := setup(t)
	writeDDI(t, root, "a.ddi", `{"version":1,"revision":0,"rules":[
		{"primary-output":"a.o","provides":[{"logical-name":"A","source-path":"a.cppm"}],"requires":[{"logical-name":"B"}]}]}`)

	config := filepath.Join(t.TempDir(), "module-graph.toml")
	require.NoError(t, os.WriteFile(config, []byte("fail-on-errors = true\noutput = \""+filepath.ToSlash(dot)+"\"\n"), 0o644))

	var stdout, stderr bytes.Buffer
	code := execute([]string{root, "--config", config}, &stdout, &stderr)
	assert.Equal(t, exitFindings, code)
	assert.FileExists(t, dot)
}

package main_test

import (
	"database/sql"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// buildBinary compiles the semindex binary into t.TempDir().
func buildBinary(t *testing.T) string {
	t.Helper()
	binName := "semindex"
	if runtime.GOOS == "windows" {
		binName += ".exe"
	}
	bin := filepath.Join(t.TempDir(), binName)
	cmd := exec.Command("go", "build", "-o", bin, ".")
	cmd.Dir = filepath.Join(projectRoot(t), "cmd", "semindex")
	cmd.Env = append(os.Environ(), "CGO_ENABLED=1")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "build failed: %s", string(out))
	return bin
}

// projectRoot walks up from the test file's directory to find go.mod.
func projectRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok, "runtime.Caller failed")
	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		require.NotEqual(t, parent, dir, "could not find project root")
		dir = parent
	}
}

const coreSource = `import os


def load():
    return os.getcwd()


def run():
    data = load()
    again = load()
    return missing.thing(data, again)
`

// createPyFixture creates a project with a .git dir, one package and a
// test file that discovery skips by default.
func createPyFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "app"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "tests"), 0o755))

	files := map[string]string{
		"app/__init__.py":    "",
		"app/core.py":        coreSource,
		"tests/test_core.py": "from app.core import run\n\n\ndef test_run():\n    run()\n",
	}
	for rel, src := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, rel), []byte(src), 0o644))
	}
	return dir
}

func runCLI(t *testing.T, bin, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command(bin, args...)
	cmd.Dir = dir
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	require.NoError(t, cmd.Run(), "%s failed: %s", strings.Join(args, " "), stderr.String())
	return stdout.String()
}

func tableCount(t *testing.T, dbPath, table string) int {
	t.Helper()
	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

type wireRecord struct {
	Documents []struct {
		RelativePath string           `json:"relative_path" yaml:"relative_path"`
		Definitions  []map[string]any `json:"definitions" yaml:"definitions"`
		References   []map[string]any `json:"references" yaml:"references"`
	} `json:"documents" yaml:"documents"`
	ExternalSymbols []map[string]any `json:"external_symbols" yaml:"external_symbols"`
}

func TestCLI_IndexWritesRecordAndDatabase(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	bin := buildBinary(t)
	fixture := createPyFixture(t)

	out := runCLI(t, bin, fixture, "index", "--no-progress", ".")

	var rec wireRecord
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	require.Len(t, rec.Documents, 2, "tests/ is skipped by default")
	assert.Equal(t, "app/__init__.py", rec.Documents[0].RelativePath)
	assert.Equal(t, "app/core.py", rec.Documents[1].RelativePath)
	assert.Len(t, rec.Documents[1].Definitions, 2)
	require.Len(t, rec.ExternalSymbols, 1)
	assert.Equal(t, "os.getcwd", rec.ExternalSymbols[0]["symbol_id"])

	dbPath := filepath.Join(fixture, ".semindex", "index.db")
	assert.Equal(t, 2, tableCount(t, dbPath, "files"))
	assert.Equal(t, 1, tableCount(t, dbPath, "runs"))
	assert.Positive(t, tableCount(t, dbPath, "references_"))
}

func TestCLI_IndexYAMLToFile(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	bin := buildBinary(t)
	fixture := createPyFixture(t)
	outFile := filepath.Join(t.TempDir(), "record.yaml")

	stdout := runCLI(t, bin, fixture, "index", "--no-progress", "--include-tests",
		"--format", "yaml", "--out", outFile, ".")
	assert.Empty(t, stdout)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	var rec wireRecord
	require.NoError(t, yaml.Unmarshal(data, &rec))
	assert.Len(t, rec.Documents, 3)
}

func TestCLI_Query(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	bin := buildBinary(t)
	fixture := createPyFixture(t)
	runCLI(t, bin, fixture, "index", "--no-progress", "--out", filepath.Join(t.TempDir(), "r.json"), ".")

	var res struct {
		Command    string          `json:"command"`
		Results    json.RawMessage `json:"results"`
		TotalCount *int            `json:"total_count"`
		Error      string          `json:"error"`
	}

	out := runCLI(t, bin, fixture, "query", "symbol", "app.core.run")
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "symbol", res.Command)
	assert.Contains(t, string(res.Results), `"symbol_id": "app.core.run"`)

	out = runCLI(t, bin, fixture, "query", "callees", "app.core.run")
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	var edges []struct {
		Caller string `json:"caller"`
		Callee string `json:"callee"`
		Count  int    `json:"count"`
	}
	require.NoError(t, json.Unmarshal(res.Results, &edges))
	require.Len(t, edges, 1, "the unresolved call has no edge")
	assert.Equal(t, "app.core.load", edges[0].Callee)
	assert.Equal(t, 2, edges[0].Count)

	out = runCLI(t, bin, fixture, "query", "callers", "--depth", "3", "os.getcwd")
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	var graph struct {
		Nodes []struct {
			ID    string `json:"id"`
			Depth int    `json:"depth"`
		} `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal(res.Results, &graph))
	require.Len(t, graph.Nodes, 3)
	assert.Equal(t, "os.getcwd", graph.Nodes[0].ID)
	assert.Equal(t, "app.core.load", graph.Nodes[1].ID)
	assert.Equal(t, "app.core.run", graph.Nodes[2].ID)
	assert.Equal(t, 2, graph.Nodes[2].Depth)

	out = runCLI(t, bin, fixture, "query", "definition", "app/core.py", "8", "11")
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Contains(t, string(res.Results), `"symbol_id": "app.core.load"`)

	out = runCLI(t, bin, fixture, "query", "--format", "text", "unresolved")
	assert.Contains(t, out, "?.thing")

	out = runCLI(t, bin, fixture, "query", "symbol", "app.core.nothing")
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "null", string(res.Results))
}

func TestCLI_QueryWithoutIndex(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	bin := buildBinary(t)
	fixture := createPyFixture(t)

	cmd := exec.Command(bin, "query", "summary")
	cmd.Dir = fixture
	out, err := cmd.Output()
	require.Error(t, err)
	assert.Contains(t, string(out), "run 'semindex index' first")
}

func TestCLI_Script(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	bin := buildBinary(t)
	fixture := createPyFixture(t)
	runCLI(t, bin, fixture, "index", "--no-progress", "--out", filepath.Join(t.TempDir(), "r.json"), ".")

	out := runCLI(t, bin, fixture, "script", "summary")
	assert.Contains(t, out, "files:       2\n")
	assert.Contains(t, out, "externals:   1\n")

	out = runCLI(t, bin, fixture, "script", "hotspots", "1")
	assert.Equal(t, "2 calls from 1 callers  app.core.load\n", out)

	custom := filepath.Join(fixture, "count.risor")
	require.NoError(t, os.WriteFile(custom, []byte("emit(len(symbols_in_file('app/core.py')))\n"), 0o644))
	out = runCLI(t, bin, fixture, "script", custom)
	assert.Equal(t, "2\n", out)
}

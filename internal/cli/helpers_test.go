package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// testEnv is an isolated config and data directory pair.
type testEnv struct {
	t         *testing.T
	tempDir   string
	configDir string
	dataDir   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tempDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tempDir, "xdg"))
	env := &testEnv{
		t:         t,
		tempDir:   tempDir,
		configDir: filepath.Join(tempDir, "config"),
		dataDir:   filepath.Join(tempDir, "data"),
	}
	env.writeConfig("backend: sqlite\ndata_dir: " + env.dataDir + "\n")
	return env
}

func (e *testEnv) writeConfig(content string) {
	e.t.Helper()
	require.NoError(e.t, os.MkdirAll(e.configDir, 0o755))
	require.NoError(e.t, os.WriteFile(filepath.Join(e.configDir, configFileExt), []byte(content), 0o644))
}

func (e *testEnv) writeFile(name, content string) string {
	e.t.Helper()
	path := filepath.Join(e.tempDir, name)
	require.NoError(e.t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// cmdResult holds the outcome of one command line.
type cmdResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

func (e *testEnv) run(args ...string) cmdResult {
	e.t.Helper()
	var stdout, stderr bytes.Buffer
	all := append([]string{"--config-dir", e.configDir}, args...)
	code := run(all, &stdout, &stderr)
	return cmdResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: code}
}

func (e *testEnv) mustRun(args ...string) cmdResult {
	e.t.Helper()
	res := e.run(args...)
	if res.ExitCode != exitSuccess {
		e.t.Fatalf("cmdb %v failed with exit code %d:\nstdout: %s\nstderr: %s",
			args, res.ExitCode, res.Stdout, res.Stderr)
	}
	return res
}

func parseJSON[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(s), &v), "output: %s", s)
	return v
}

// recordPage mirrors the JSON printed by the record commands.
type recordPage struct {
	Items []struct {
		EntityID string         `json:"entity_id"`
		Fields   map[string]any `json:"fields"`
	} `json:"items"`
	Pagination struct {
		Count int `json:"count"`
	} `json:"pagination"`
}

// seedInventory declares Host{name, ip} and Service{owner -> Host.name, port}
// through the CLI.
func (e *testEnv) seedInventory() {
	e.t.Helper()
	e.mustRun("schema", "create", "Host", "-d", "machines")
	e.mustRun("field", "add", "Host", "name", "--type", "String", "--unique", "--required")
	e.mustRun("field", "add", "Host", "ip", "--type", "Ip")
	e.mustRun("schema", "create", "Service")
	e.mustRun("field", "add", "Service", "owner", "--relation", "Host.name", "--cascade", "set_null", "--update-cascade", "update")
	e.mustRun("field", "add", "Service", "port", "--type", "Int", "--min", "1", "--max", "65535")
}

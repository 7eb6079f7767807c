package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/cmdb/pkg/types"
)

func TestVersion(t *testing.T) {
	env := newTestEnv(t)
	res := env.mustRun("version")
	assert.Contains(t, res.Stdout, "cmdb v")
	assert.Contains(t, res.Stdout, modulePath)
}

func TestInit(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.Remove(filepath.Join(env.configDir, configFileExt)))

	res := env.mustRun("--data-dir", env.dataDir, "init")
	assert.Contains(t, res.Stdout, "Wrote")
	assert.Contains(t, res.Stdout, "cmdb initialized (sqlite backend)")
	assert.FileExists(t, filepath.Join(env.dataDir, "cmdb.db"))

	written, err := os.ReadFile(filepath.Join(env.configDir, configFileExt))
	require.NoError(t, err)
	assert.Contains(t, string(written), "data_dir: "+env.dataDir)

	res = env.mustRun("init")
	assert.NotContains(t, res.Stdout, "Wrote", "init keeps an existing config")
}

func TestInventoryWorkflow(t *testing.T) {
	env := newTestEnv(t)
	env.seedInventory()

	res := env.mustRun("--json", "entity", "create", "Host", "--set", "name=h1", "--set", "ip=10.0.0.1")
	host := parseJSON[types.Entity](t, res.Stdout)
	require.NotEmpty(t, host.EntityID)
	env.mustRun("entity", "create", "Service", "--set", "owner=h1", "--set", "port=80")

	res = env.mustRun("record", "relations", "Service")
	page := parseJSON[recordPage](t, res.Stdout)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "h1", page.Items[0].Fields["owner"])
	assert.Equal(t, "10.0.0.1", page.Items[0].Fields["ownerip"])

	res = env.run("entity", "create", "Service", "--set", "owner=ghost")
	assert.Equal(t, exitUserError, res.ExitCode)
	assert.Contains(t, res.Stderr, "associated value does not exist")

	res = env.run("entity", "create", "Service", "--set", "port=70000")
	assert.Equal(t, exitUserError, res.ExitCode)
	assert.Contains(t, res.Stderr, "port")

	env.mustRun("entity", "update", host.EntityID, "--set", "name=alpha")
	res = env.mustRun("record", "list", "Service", "--field", "owner")
	page = parseJSON[recordPage](t, res.Stdout)
	assert.Equal(t, map[string]any{"owner": "alpha"}, page.Items[0].Fields)

	env.mustRun("entity", "delete", host.EntityID)
	res = env.mustRun("record", "list", "Service", "--match", "port=80")
	page = parseJSON[recordPage](t, res.Stdout)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "", page.Items[0].Fields["owner"], "set_null cascade")

	res = env.run("entity", "get", host.EntityID)
	assert.Equal(t, exitUserError, res.ExitCode)
}

func TestSchemaAndFieldCommands(t *testing.T) {
	env := newTestEnv(t)
	env.seedInventory()

	res := env.mustRun("schema", "list", "--name", "ost")
	assert.Contains(t, res.Stdout, "Host")
	assert.NotContains(t, res.Stdout, "Service")
	assert.Contains(t, res.Stdout, "1 total")

	res = env.run("schema", "list", "--created-after", "yesterday")
	assert.Equal(t, exitUserError, res.ExitCode)

	res = env.mustRun("field", "list", "Host")
	assert.Contains(t, res.Stdout, "name")
	assert.Contains(t, res.Stdout, "Ip")

	res = env.mustRun("--json", "field", "unique", "Host")
	opts := parseJSON[[]types.FieldOption](t, res.Stdout)
	require.Len(t, opts, 1)
	assert.Equal(t, "name", opts[0].Name)

	env.mustRun("entity", "create", "Service", "--set", "port=80")
	env.mustRun("field", "update", "Service.port", "--max", "100")
	res = env.run("field", "update", "Service.port", "--max", "10")
	assert.Equal(t, exitUserError, res.ExitCode)
	assert.Contains(t, res.Stderr, "existing values do not match")

	res = env.run("field", "delete", "Host.name")
	assert.Equal(t, exitUserError, res.ExitCode)
	assert.Contains(t, res.Stderr, "other fields depend on it")
	env.mustRun("field", "update", "Service.owner", "--no-relation")
	env.mustRun("field", "delete", "Host.name")

	res = env.mustRun("value", "list", "Service.port")
	assert.Contains(t, res.Stdout, "80")

	env.mustRun("schema", "update", "Service", "--name", "Daemon")
	env.mustRun("schema", "delete", "Daemon")
	res = env.run("field", "list", "Daemon")
	assert.Equal(t, exitUserError, res.ExitCode)
}

func TestExportImport(t *testing.T) {
	env := newTestEnv(t)
	env.seedInventory()
	env.mustRun("field", "add", "Host", "tags", "--multiple")
	env.mustRun("entity", "create", "Host", "--set", "name=h1", "--set", "ip=10.0.0.1", "--set", "tags=db", "--set", "tags=prod")
	env.mustRun("entity", "create", "Host", "--set", "name=h2")
	env.mustRun("entity", "create", "Service", "--set", "owner=h1", "--set", "port=443")

	res := env.mustRun("export", "Service", "--relations")
	assert.Equal(t, "owner,port,ownerip,ownertags\nh1,443,10.0.0.1,\"db,prod\"\n", res.Stdout)

	out := filepath.Join(env.tempDir, "hosts.csv")
	env.mustRun("export", "Host", "-o", out)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "name,ip,tags\nh1,10.0.0.1,\"db,prod\"\nh2,,\n", string(data))

	env.mustRun("schema", "create", "Replica")
	env.mustRun("field", "add", "Replica", "name", "--unique")
	env.mustRun("field", "add", "Replica", "tags", "--multiple")
	res = env.mustRun("import", "Replica", "-f", out)
	assert.Contains(t, res.Stdout, "Imported 2 records into Replica")

	res = env.mustRun("record", "list", "Replica", "--match", "name=h1")
	page := parseJSON[recordPage](t, res.Stdout)
	require.Len(t, page.Items, 1)
	assert.Equal(t, []any{"db", "prod"}, page.Items[0].Fields["tags"])

	res = env.run("import", "Replica", "-f", out)
	assert.Equal(t, exitUserError, res.ExitCode)
	assert.Contains(t, res.Stderr, "row 2")
}

func TestExportImport_QuotedListValues(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun("schema", "create", "Rack")
	env.mustRun("field", "add", "Rack", "name", "--unique")
	env.mustRun("field", "add", "Rack", "slots", "--multiple")
	env.mustRun("entity", "create", "Rack", "--set", "name=r1", "--set", "slots=row 2, slot 4", "--set", "slots=spare")

	out := filepath.Join(env.tempDir, "racks.csv")
	env.mustRun("export", "Rack", "-o", out)

	env.mustRun("schema", "create", "RackCopy")
	env.mustRun("field", "add", "RackCopy", "name", "--unique")
	env.mustRun("field", "add", "RackCopy", "slots", "--multiple")
	env.mustRun("import", "RackCopy", "-f", out)

	res := env.mustRun("record", "list", "RackCopy")
	page := parseJSON[recordPage](t, res.Stdout)
	require.Len(t, page.Items, 1)
	assert.Equal(t, []any{"row 2, slot 4", "spare"}, page.Items[0].Fields["slots"])
}

func TestApply(t *testing.T) {
	env := newTestEnv(t)
	manifest := env.writeFile("inventory.yaml", `
schemas:
  - name: Host
    fields:
      - {name: name, type: String, unique: true, nullable: false}
  - name: Service
    fields:
      - name: owner
        type: String
        relation: {target: Host.name, cascade: delete}
`)

	res := env.mustRun("apply", "-f", manifest)
	assert.Equal(t, []string{
		"create schema Host",
		"create schema Service",
		"create field Host.name",
		"create field Service.owner",
	}, strings.Split(strings.TrimSpace(res.Stdout), "\n"))

	res = env.mustRun("apply", "-f", manifest)
	assert.Equal(t, "No changes\n", res.Stdout)

	bad := env.writeFile("bad.yaml", "schemas:\n  - name: Host\n    colour: red\n")
	res = env.run("apply", "-f", bad)
	assert.Equal(t, exitUserError, res.ExitCode)
}

func TestDumpRestore(t *testing.T) {
	src := newTestEnv(t)
	src.seedInventory()
	src.mustRun("entity", "create", "Host", "--set", "name=h1")
	dir := filepath.Join(src.tempDir, "dump")
	src.mustRun("dump", dir)
	assert.FileExists(t, filepath.Join(dir, "values.jsonl"))

	dst := newTestEnv(t)
	dst.mustRun("restore", dir)
	res := dst.mustRun("record", "list", "Host")
	page := parseJSON[recordPage](t, res.Stdout)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "h1", page.Items[0].Fields["name"])

	res = dst.run("restore", dir)
	assert.Equal(t, exitUserError, res.ExitCode)
}

func TestExitCodes(t *testing.T) {
	env := newTestEnv(t)

	res := env.run("schema", "delete", "Nope")
	assert.Equal(t, exitUserError, res.ExitCode)
	assert.Contains(t, res.Stderr, "record does not exist")

	res = env.run("entity", "create", "Host", "--set", "broken")
	assert.Equal(t, exitUserError, res.ExitCode)

	env.writeConfig("backend: postgres\n")
	res = env.run("schema", "list")
	assert.Equal(t, exitSysError, res.ExitCode)
	assert.Contains(t, res.Stderr, "dsn")
}

func TestParseAssignments(t *testing.T) {
	in, err := parseAssignments([]string{"name=h1", "tags=a", "tags=b", "tags=c", "ip="})
	require.NoError(t, err)
	assert.Equal(t, types.Input{"name": "h1", "tags": []string{"a", "b", "c"}, "ip": ""}, in)

	_, err = parseAssignments([]string{"=x"})
	assert.ErrorIs(t, err, types.ErrValidation)

	assert.Equal(t, map[string][]string{"owner": {"ip", "os"}, "rack": nil}, parseRelations([]string{"owner=ip, os", "rack"}))
}

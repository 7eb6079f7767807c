package cmdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mesh-intelligence/cmdb/pkg/types"
)

func newTestEngine(t *testing.T, config ...types.Config) *Engine {
	t.Helper()
	cfg := types.Config{Backend: types.BackendSQLite}
	if len(config) > 0 {
		cfg = config[0]
	}
	cfg.DataDir = t.TempDir()
	e, err := Open(context.Background(), cfg, Options{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

// inventory is the Host/Service fixture: Host{name unique required, ip},
// Service{owner -> Host.name, port}.
type inventory struct {
	e       *Engine
	host    types.Schema
	service types.Schema
	name    types.Field
	ip      types.Field
	owner   types.Field
	port    types.Field
}

func newInventory(t *testing.T, relation *types.Relation) *inventory {
	t.Helper()
	ctx := context.Background()
	inv := &inventory{e: newTestEngine(t)}

	var err error
	inv.host, err = inv.e.CreateSchema(ctx, "Host", "physical and virtual machines")
	require.NoError(t, err)
	inv.service, err = inv.e.CreateSchema(ctx, "Service", "network services")
	require.NoError(t, err)

	inv.name = mustField(t, inv.e, inv.host.SchemaID, "name", types.ValueTypeString,
		types.MetaOptions{Unique: true, Nullable: types.Ptr(false)})
	inv.ip = mustField(t, inv.e, inv.host.SchemaID, "ip", types.ValueTypeIP, types.MetaOptions{})

	var rel *types.Relation
	if relation != nil {
		r := *relation
		r.Target = inv.name.FieldID
		rel = &r
	}
	inv.owner = mustField(t, inv.e, inv.service.SchemaID, "owner", types.ValueTypeString,
		types.MetaOptions{Relation: rel})
	inv.port = mustField(t, inv.e, inv.service.SchemaID, "port", types.ValueTypeInt,
		types.MetaOptions{Min: types.Ptr(1.0), Max: types.Ptr(65535.0)})
	return inv
}

func mustField(t *testing.T, e *Engine, schemaID, name, typ string, opts types.MetaOptions) types.Field {
	t.Helper()
	f, err := e.CreateField(context.Background(), schemaID, FieldInput{Name: name, Type: typ, Options: opts})
	require.NoError(t, err)
	return f
}

func mustEntity(t *testing.T, e *Engine, schemaID string, in types.Input) types.Entity {
	t.Helper()
	ent, err := e.CreateEntity(context.Background(), schemaID, in)
	require.NoError(t, err)
	return ent
}

func mustRecord(t *testing.T, e *Engine, id string) types.Record {
	t.Helper()
	rec, err := e.GetRecord(context.Background(), id)
	require.NoError(t, err)
	return rec
}

func countRecords(t *testing.T, e *Engine, schemaID string) int {
	t.Helper()
	_, p, err := e.ListRecords(context.Background(), types.RecordQuery{SchemaID: schemaID}, 1, 100)
	require.NoError(t, err)
	return p.Count
}

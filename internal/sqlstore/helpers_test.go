package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/cmdb/pkg/types"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b := NewBackend()
	require.NoError(t, b.Attach(context.Background(), types.Config{
		Backend: types.BackendSQLite,
		DataDir: t.TempDir(),
	}))
	t.Cleanup(func() { b.Detach() })
	return b
}

func mustTx(t *testing.T, b *Backend, fn func(q *Queries) error) {
	t.Helper()
	require.NoError(t, b.WithTx(context.Background(), fn))
}

func seedSchema(t *testing.T, q *Queries, name string) types.Schema {
	t.Helper()
	now := Now()
	s := types.Schema{SchemaID: NewID(), Name: name, Description: name + " schema", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, q.InsertSchema(context.Background(), s))
	return s
}

func seedField(t *testing.T, q *Queries, schemaID, name string, meta types.FieldMeta) types.Field {
	t.Helper()
	now := Now()
	f := types.Field{FieldID: NewID(), SchemaID: schemaID, Name: name, Meta: meta, Ref: meta.RelationTarget(), CreatedAt: now, UpdatedAt: now}
	require.NoError(t, q.InsertField(context.Background(), f))
	return f
}

func seedEntity(t *testing.T, q *Queries, schemaID string) types.Entity {
	t.Helper()
	now := Now()
	e := types.Entity{EntityID: NewID(), SchemaID: schemaID, Key: NewID(), CreatedAt: now, UpdatedAt: now}
	require.NoError(t, q.InsertEntity(context.Background(), e))
	return e
}

func seedValue(t *testing.T, q *Queries, fieldID, entityID, payload string) types.Value {
	t.Helper()
	now := Now()
	v := types.Value{ValueID: NewID(), FieldID: fieldID, EntityID: entityID, Payload: payload, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, q.InsertValue(context.Background(), v))
	return v
}

func stringMeta(t *testing.T, opts types.MetaOptions) types.FieldMeta {
	t.Helper()
	meta, err := types.BuildMeta(types.ValueTypeString, opts)
	require.NoError(t, err)
	return meta
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

package cmdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/cmdb/pkg/types"
)

func TestCascadeTracker(t *testing.T) {
	c := newCascade(2)

	require.NoError(t, c.enter("f1", "v1"))
	require.NoError(t, c.enter("f2", "v2"))
	assert.ErrorIs(t, c.enter("f3", "v3"), types.ErrCascadeCycle, "depth limit")
	c.leave()
	assert.ErrorIs(t, c.enter("f1", "v1"), types.ErrCascadeCycle, "revisit")
	require.NoError(t, c.enter("f3", "v3"))

	calls := 0
	err := newCascade(1).visit("f", "v", func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestUpdateCascade(t *testing.T) {
	tests := []struct {
		name    string
		policy  string
		wantErr error
		want    string
	}{
		{name: "update follows", policy: types.UpdateCascadeUpdate, want: "h9"},
		{name: "reject refuses", policy: types.UpdateCascadeReject, wantErr: types.ErrUpdateCascadeDenied},
		{name: "no policy refuses", policy: "", wantErr: types.ErrUpdateCascadeDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			inv := newInventory(t, &types.Relation{Cascade: types.CascadeSetNull, UpdateCascade: tt.policy})
			h1 := mustEntity(t, inv.e, inv.host.SchemaID, types.Input{"name": "h1"})
			svc := mustEntity(t, inv.e, inv.service.SchemaID, types.Input{"owner": "h1"})

			_, err := inv.e.UpdateEntity(ctx, h1.EntityID, types.Input{"name": "h9"})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, "h1", mustRecord(t, inv.e, h1.EntityID).Fields["name"])
				assert.Equal(t, "h1", mustRecord(t, inv.e, svc.EntityID).Fields["owner"])
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, mustRecord(t, inv.e, h1.EntityID).Fields["name"])
			assert.Equal(t, tt.want, mustRecord(t, inv.e, svc.EntityID).Fields["owner"])
		})
	}
}

func TestUpdateWithoutDependentsIsFree(t *testing.T) {
	ctx := context.Background()
	inv := newInventory(t, &types.Relation{UpdateCascade: types.UpdateCascadeReject})
	h1 := mustEntity(t, inv.e, inv.host.SchemaID, types.Input{"name": "h1"})
	mustEntity(t, inv.e, inv.host.SchemaID, types.Input{"name": "h2"})
	mustEntity(t, inv.e, inv.service.SchemaID, types.Input{"owner": "h2"})

	_, err := inv.e.UpdateEntity(ctx, h1.EntityID, types.Input{"name": "h1-renamed"})
	require.NoError(t, err)

	_, err = inv.e.UpdateEntity(ctx, h1.EntityID, types.Input{"name": "h1-renamed"})
	require.NoError(t, err, "writing the current payload is a no-op")

	_, err = inv.e.UpdateEntity(ctx, h1.EntityID, types.Input{"name": "h2"})
	require.ErrorIs(t, err, types.ErrValueNotUnique)
}

func TestDeleteCascade(t *testing.T) {
	ctx := context.Background()
	inv := newInventory(t, &types.Relation{Cascade: types.CascadeDelete})
	h1 := mustEntity(t, inv.e, inv.host.SchemaID, types.Input{"name": "h1"})
	mustEntity(t, inv.e, inv.host.SchemaID, types.Input{"name": "h2"})
	web := mustEntity(t, inv.e, inv.service.SchemaID, types.Input{"owner": "h1"})
	ssh := mustEntity(t, inv.e, inv.service.SchemaID, types.Input{"owner": "h1"})
	other := mustEntity(t, inv.e, inv.service.SchemaID, types.Input{"owner": "h2"})

	require.NoError(t, inv.e.DeleteEntity(ctx, h1.EntityID))

	for _, id := range []string{web.EntityID, ssh.EntityID} {
		_, err := inv.e.GetEntity(ctx, id)
		assert.ErrorIs(t, err, types.ErrNotFound)
	}
	mustRecord(t, inv.e, other.EntityID)

	_, p, err := inv.e.ListValues(ctx, inv.owner.FieldID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Count)
}

// chain builds X.a <- Y.b <- Z.c with delete cascades and one entity per
// schema holding "1".
func chain(t *testing.T, e *Engine) (x types.Entity, z types.Entity) {
	t.Helper()
	ctx := context.Background()
	sx, err := e.CreateSchema(ctx, "X", "")
	require.NoError(t, err)
	sy, err := e.CreateSchema(ctx, "Y", "")
	require.NoError(t, err)
	sz, err := e.CreateSchema(ctx, "Z", "")
	require.NoError(t, err)

	a := mustField(t, e, sx.SchemaID, "a", types.ValueTypeString, types.MetaOptions{Unique: true})
	b := mustField(t, e, sy.SchemaID, "b", types.ValueTypeString, types.MetaOptions{
		Unique:   true,
		Relation: &types.Relation{Target: a.FieldID, Cascade: types.CascadeDelete},
	})
	mustField(t, e, sz.SchemaID, "c", types.ValueTypeString, types.MetaOptions{
		Relation: &types.Relation{Target: b.FieldID, Cascade: types.CascadeDelete},
	})

	x = mustEntity(t, e, sx.SchemaID, types.Input{"a": "1"})
	mustEntity(t, e, sy.SchemaID, types.Input{"b": "1"})
	z = mustEntity(t, e, sz.SchemaID, types.Input{"c": "1"})
	return x, z
}

func TestDeleteCascade_Transitive(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	x, z := chain(t, e)

	require.NoError(t, e.DeleteEntity(ctx, x.EntityID))
	_, err := e.GetEntity(ctx, z.EntityID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestDeleteCascade_DepthLimit(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, types.Config{Backend: types.BackendSQLite, CascadeDepth: 1})
	x, z := chain(t, e)

	err := e.DeleteEntity(ctx, x.EntityID)
	require.ErrorIs(t, err, types.ErrCascadeCycle)

	mustRecord(t, e, x.EntityID)
	mustRecord(t, e, z.EntityID)
}

func TestDeleteCascade_SelfReference(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	s, err := e.CreateSchema(ctx, "Node", "")
	require.NoError(t, err)
	id := mustField(t, e, s.SchemaID, "id", types.ValueTypeString, types.MetaOptions{Unique: true})
	mustField(t, e, s.SchemaID, "parent", types.ValueTypeString, types.MetaOptions{
		Relation: &types.Relation{Target: id.FieldID, Cascade: types.CascadeDelete},
	})

	root := mustEntity(t, e, s.SchemaID, types.Input{"id": "root"})
	child := mustEntity(t, e, s.SchemaID, types.Input{"id": "child", "parent": "root"})
	leaf := mustEntity(t, e, s.SchemaID, types.Input{"id": "leaf", "parent": "child"})
	mustEntity(t, e, s.SchemaID, types.Input{"id": "loop", "parent": "loop"})

	require.NoError(t, e.DeleteEntity(ctx, root.EntityID))
	for _, ent := range []types.Entity{child, leaf} {
		_, err := e.GetEntity(ctx, ent.EntityID)
		assert.ErrorIs(t, err, types.ErrNotFound)
	}
	assert.Equal(t, 1, countRecords(t, e, s.SchemaID))
}

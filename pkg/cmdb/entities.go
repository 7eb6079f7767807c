package cmdb

import (
	"context"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/cmdb/internal/sqlstore"
	"github.com/mesh-intelligence/cmdb/pkg/types"
)

// CreateEntity creates a record of a schema. Input is keyed by field name;
// a multiple-valued field takes a list. A single-valued field missing from
// input gets its default, and so does a multiple-valued field with one.
// Names that are not fields of the schema are
// ignored. The entity is created with all its values or not at all.
func (e *Engine) CreateEntity(ctx context.Context, schemaID string, input types.Input) (types.Entity, error) {
	var ent types.Entity
	err := e.mutate(ctx, "create entity", func(t *txn) error {
		if _, err := t.q.GetSchema(t.ctx, schemaID); err != nil {
			return err
		}
		ent = types.Entity{
			EntityID:  sqlstore.NewID(),
			SchemaID:  schemaID,
			Key:       ulid.Make().String(),
			CreatedAt: t.now,
			UpdatedAt: t.now,
		}
		if err := t.q.InsertEntity(t.ctx, ent); err != nil {
			return err
		}
		fields, err := t.q.SchemaFields(t.ctx, schemaID)
		if err != nil {
			return err
		}
		for _, f := range fields {
			raw, ok := input[f.Name]
			var payloads []string
			switch {
			case ok:
				if payloads, err = inputPayloads(f, raw); err != nil {
					return err
				}
			case !f.Meta.Multiple || f.Meta.Default != "":
				payloads = []string{f.Meta.Default}
			case !f.Meta.Nullable:
				return errValueRequired(f)
			}
			for _, p := range payloads {
				if _, err := t.addValue(f, ent.EntityID, p); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return types.Entity{}, err
	}
	e.log.Debug("entity created", zap.String("entity_id", ent.EntityID), zap.String("schema_id", schemaID))
	return ent, nil
}

// inputPayloads normalizes the input of one field.
func inputPayloads(f types.Field, raw any) ([]string, error) {
	payloads, err := types.Strings(raw)
	if err != nil {
		return nil, fieldErr(f, err)
	}
	if !f.Meta.Multiple && len(payloads) != 1 {
		return nil, types.ErrValidation.Withf("%s: takes exactly one value, got %d", f.Name, len(payloads))
	}
	if len(payloads) == 0 && !f.Meta.Nullable {
		return nil, errValueRequired(f)
	}
	return payloads, nil
}

// errValueRequired reports a non-nullable field left without a value.
func errValueRequired(f types.Field) error {
	return types.ErrValidation.Withf("%s: value cannot be empty", f.Name)
}

// UpdateEntity changes the values of the fields present in input. The values
// of a multiple-valued field are replaced positionally: existing values are
// updated in order, extra input values are added and surplus existing values
// are deleted. Every change runs the checks and cascades of a single value
// update, and the whole call is atomic.
func (e *Engine) UpdateEntity(ctx context.Context, id string, input types.Input) (types.Entity, error) {
	var ent types.Entity
	err := e.mutate(ctx, "update entity", func(t *txn) error {
		var err error
		if ent, err = t.q.GetEntity(t.ctx, id); err != nil {
			return err
		}
		fields, err := t.q.SchemaFields(t.ctx, ent.SchemaID)
		if err != nil {
			return err
		}
		for _, f := range fields {
			raw, ok := input[f.Name]
			if !ok {
				continue
			}
			payloads, err := inputPayloads(f, raw)
			if err != nil {
				return err
			}
			if err := t.reconcile(f, id, payloads); err != nil {
				return err
			}
		}
		ent.UpdatedAt = t.now
		return t.q.TouchEntity(t.ctx, id, t.now)
	})
	if err != nil {
		return types.Entity{}, err
	}
	return ent, nil
}

// reconcile makes the active values of f held by the entity equal to
// payloads, position by position.
func (t *txn) reconcile(f types.Field, entityID string, payloads []string) error {
	existing, err := t.q.EntityValues(t.ctx, entityID, f.FieldID)
	if err != nil {
		return err
	}
	n := min(len(existing), len(payloads))
	for i := range n {
		if err := t.updateValue(f, existing[i], payloads[i]); err != nil {
			return err
		}
	}
	for _, p := range payloads[n:] {
		if _, err := t.addValue(f, entityID, p); err != nil {
			return err
		}
	}
	for _, v := range existing[n:] {
		if err := t.deleteValue(f, v.ValueID); err != nil {
			return err
		}
	}
	return nil
}

// DeleteEntity tombstones an entity and its values, applying the delete
// cascade of each value.
func (e *Engine) DeleteEntity(ctx context.Context, id string) error {
	err := e.mutate(ctx, "delete entity", func(t *txn) error {
		if _, err := t.q.GetEntity(t.ctx, id); err != nil {
			return err
		}
		return t.deleteEntity(id)
	})
	if err != nil {
		return err
	}
	e.log.Debug("entity deleted", zap.String("entity_id", id))
	return nil
}

func (t *txn) deleteEntity(id string) error {
	if t.deleting[id] {
		return nil
	}
	t.deleting[id] = true

	ent, err := t.q.GetEntity(t.ctx, id)
	if err != nil {
		return err
	}
	fields, err := t.q.SchemaFields(t.ctx, ent.SchemaID)
	if err != nil {
		return err
	}
	byID := make(map[string]types.Field, len(fields))
	for _, f := range fields {
		byID[f.FieldID] = f
	}
	values, err := t.q.AllEntityValues(t.ctx, id)
	if err != nil {
		return err
	}
	for _, v := range values {
		f, ok := byID[v.FieldID]
		if !ok {
			// Value of a deleted field.
			if err := t.q.DeleteValue(t.ctx, v.ValueID, t.now); err != nil {
				return err
			}
			continue
		}
		if err := t.deleteValue(f, v.ValueID); err != nil {
			return err
		}
	}
	return t.q.DeleteEntity(t.ctx, id, t.now)
}

// GetEntity returns an active entity by id.
func (e *Engine) GetEntity(ctx context.Context, id string) (types.Entity, error) {
	q, err := e.read("get entity")
	if err != nil {
		return types.Entity{}, err
	}
	ent, err := q.GetEntity(ctx, id)
	return ent, e.fail("get entity", err)
}

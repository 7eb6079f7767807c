package cmdb

import (
	"context"
	"errors"
	"iter"

	"github.com/mesh-intelligence/cmdb/internal/sqlstore"
	"github.com/mesh-intelligence/cmdb/pkg/types"
)

// addValue validates raw against f and stores it for the entity.
func (t *txn) addValue(f types.Field, entityID, raw string) (types.Value, error) {
	payload, err := f.Meta.Inspect(raw)
	if err != nil {
		return types.Value{}, fieldErr(f, err)
	}
	if err := t.checkValue(f, payload, ""); err != nil {
		return types.Value{}, err
	}
	v := types.Value{
		ValueID:   sqlstore.NewID(),
		FieldID:   f.FieldID,
		EntityID:  entityID,
		Payload:   payload,
		CreatedAt: t.now,
		UpdatedAt: t.now,
	}
	if err := t.q.InsertValue(t.ctx, v); err != nil {
		return types.Value{}, err
	}
	return v, nil
}

// checkValue enforces uniqueness and relation existence for a canonical
// payload. The value exceptID is ignored by the uniqueness check.
func (t *txn) checkValue(f types.Field, payload, exceptID string) error {
	if payload == "" {
		return nil
	}
	if f.Meta.Unique {
		taken, err := t.q.PayloadTaken(t.ctx, f.FieldID, payload, exceptID)
		if err != nil {
			return err
		}
		if taken {
			return types.ErrValueNotUnique.Withf("%s: %q", f.Name, payload)
		}
	}
	if f.Ref != "" {
		found, err := t.q.PayloadTaken(t.ctx, f.Ref, payload, "")
		if err != nil {
			return err
		}
		if !found {
			return types.ErrRelationValueMissing.Withf("%s: %q", f.Name, payload)
		}
	}
	return nil
}

// updateValue replaces the payload of v and propagates the change to the
// values of related fields that hold the old payload.
func (t *txn) updateValue(f types.Field, v types.Value, raw string) error {
	payload, err := f.Meta.Inspect(raw)
	if err != nil {
		return fieldErr(f, err)
	}
	if payload == v.Payload {
		return nil
	}
	if err := t.checkValue(f, payload, v.ValueID); err != nil {
		return err
	}

	type follower struct {
		field  types.Field
		values []types.Value
	}
	var followers []follower
	if v.Payload != "" {
		deps, err := t.q.Dependents(t.ctx, f.FieldID)
		if err != nil {
			return err
		}
		for _, d := range deps {
			matches, err := t.q.MatchingValues(t.ctx, d.FieldID, v.Payload)
			if err != nil {
				return err
			}
			if len(matches) == 0 {
				continue
			}
			if d.Meta.Relation.UpdateCascade != types.UpdateCascadeUpdate {
				return types.ErrUpdateCascadeDenied.Withf("%s: %q is used by field %s", f.Name, v.Payload, d.Name)
			}
			followers = append(followers, follower{field: d, values: matches})
		}
	}

	if err := t.q.SetPayload(t.ctx, v.ValueID, payload, t.now); err != nil {
		return err
	}
	for _, fl := range followers {
		for _, m := range fl.values {
			err := t.cascade.visit(fl.field.FieldID, m.ValueID, func() error {
				return t.updateValue(fl.field, m, payload)
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// deleteValue tombstones a value after applying the delete cascade of every
// related field holding its payload.
func (t *txn) deleteValue(f types.Field, valueID string) error {
	v, err := t.q.GetValue(t.ctx, valueID)
	if errors.Is(err, types.ErrValueNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if v.Payload != "" {
		deps, err := t.q.Dependents(t.ctx, f.FieldID)
		if err != nil {
			return err
		}
		for _, d := range deps {
			matches, err := t.q.MatchingValues(t.ctx, d.FieldID, v.Payload)
			if err != nil {
				return err
			}
			if len(matches) == 0 {
				continue
			}
			switch d.Meta.Relation.Cascade {
			case types.CascadeSetNull:
				for _, m := range matches {
					err := t.cascade.visit(d.FieldID, m.ValueID, func() error {
						return t.updateValue(d, m, "")
					})
					if err != nil {
						return err
					}
				}
			case types.CascadeDelete:
				for _, m := range matches {
					err := t.cascade.visit(d.FieldID, m.ValueID, func() error {
						return t.deleteEntity(m.EntityID)
					})
					if err != nil {
						return err
					}
				}
			default:
				return types.ErrValueInUse.Withf("%s: %q is used by field %s", f.Name, v.Payload, d.Name)
			}
		}
	}
	return t.q.DeleteValue(t.ctx, v.ValueID, t.now)
}

// ListValues returns one page of the active values of a field.
func (e *Engine) ListValues(ctx context.Context, fieldID string, page, size int) ([]types.Value, types.Pagination, error) {
	q, err := e.read("list values")
	if err != nil {
		return nil, types.Pagination{}, err
	}
	if _, err := q.GetField(ctx, fieldID); err != nil {
		return nil, types.Pagination{}, e.fail("list values", err)
	}
	items, p, err := sqlstore.Paginate(ctx, page, size,
		func(ctx context.Context) (int, error) { return q.CountValues(ctx, fieldID) },
		func(ctx context.Context, limit, offset int) ([]types.Value, error) {
			return q.ListValues(ctx, fieldID, limit, offset)
		},
	)
	if err != nil {
		return nil, types.Pagination{}, e.fail("list values", err)
	}
	return items, p, nil
}

// IterateValues walks every active value of a field.
func (e *Engine) IterateValues(ctx context.Context, fieldID string) iter.Seq2[types.Value, error] {
	return iterateWith(ctx, e, "iterate values", func(q *sqlstore.Queries) sqlstore.FetchFunc[types.Value] {
		return func(ctx context.Context, limit, offset int) ([]types.Value, error) {
			return q.ListValues(ctx, fieldID, limit, offset)
		}
	})
}

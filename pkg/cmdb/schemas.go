package cmdb

import (
	"context"
	"errors"
	"iter"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/cmdb/internal/sqlstore"
	"github.com/mesh-intelligence/cmdb/pkg/types"
)

// SchemaUpdate carries the attributes UpdateSchema changes. Nil leaves an
// attribute as it is.
type SchemaUpdate struct {
	Name        *string
	Description *string
}

// CreateSchema inserts a new active schema.
func (e *Engine) CreateSchema(ctx context.Context, name, description string) (types.Schema, error) {
	var s types.Schema
	err := e.mutate(ctx, "create schema", func(t *txn) error {
		s = types.Schema{
			SchemaID:    sqlstore.NewID(),
			Name:        name,
			Description: description,
			CreatedAt:   t.now,
			UpdatedAt:   t.now,
		}
		return t.q.InsertSchema(t.ctx, s)
	})
	if err != nil {
		return types.Schema{}, err
	}
	e.log.Info("schema created", zap.String("schema_id", s.SchemaID), zap.String("name", name))
	return s, nil
}

// UpdateSchema changes the name or description of a schema.
func (e *Engine) UpdateSchema(ctx context.Context, id string, upd SchemaUpdate) (types.Schema, error) {
	var s types.Schema
	err := e.mutate(ctx, "update schema", func(t *txn) error {
		var err error
		if s, err = t.q.GetSchema(t.ctx, id); err != nil {
			return err
		}
		if upd.Name != nil {
			s.Name = *upd.Name
		}
		if upd.Description != nil {
			s.Description = *upd.Description
		}
		s.UpdatedAt = t.now
		return t.q.UpdateSchema(t.ctx, s)
	})
	if err != nil {
		return types.Schema{}, err
	}
	return s, nil
}

// DeleteSchema deletes every field and entity of a schema and then the
// schema itself. It fails with ErrHasDependents when a field of another
// schema relates to one of its fields.
func (e *Engine) DeleteSchema(ctx context.Context, id string) error {
	err := e.mutate(ctx, "delete schema", func(t *txn) error {
		if _, err := t.q.GetSchema(t.ctx, id); err != nil {
			return err
		}
		fields, err := t.q.SchemaFields(t.ctx, id)
		if err != nil {
			return err
		}
		ordered, err := t.dependentsFirst(fields)
		if err != nil {
			return err
		}
		for _, f := range fields {
			t.dropping[f.FieldID] = true
		}
		for _, f := range ordered {
			if err := t.deleteField(f); err != nil {
				return err
			}
		}
		ids, err := t.q.EntityIDs(t.ctx, id)
		if err != nil {
			return err
		}
		for _, entityID := range ids {
			if err := t.deleteEntity(entityID); err != nil {
				return err
			}
		}
		return t.q.DeleteSchema(t.ctx, id, t.now)
	})
	if err != nil {
		return err
	}
	e.log.Info("schema deleted", zap.String("schema_id", id))
	return nil
}

// dependentsFirst orders the fields of one schema so that every field comes
// before the fields it relates to. A relation from outside the set fails
// with ErrHasDependents.
func (t *txn) dependentsFirst(fields []types.Field) ([]types.Field, error) {
	inSet := make(map[string]bool, len(fields))
	for _, f := range fields {
		inSet[f.FieldID] = true
	}
	pending := make(map[string]int, len(fields))
	for _, f := range fields {
		deps, err := t.q.Dependents(t.ctx, f.FieldID)
		if err != nil {
			return nil, err
		}
		for _, d := range deps {
			if !inSet[d.FieldID] {
				return nil, types.ErrHasDependents.Withf("field %s is referenced by field %s of schema %s", f.Name, d.Name, d.SchemaID)
			}
			if d.FieldID != f.FieldID {
				pending[f.FieldID]++
			}
		}
	}

	ordered := make([]types.Field, 0, len(fields))
	done := make(map[string]bool, len(fields))
	for len(ordered) < len(fields) {
		progressed := false
		for _, f := range fields {
			if done[f.FieldID] || pending[f.FieldID] > 0 {
				continue
			}
			ordered = append(ordered, f)
			done[f.FieldID] = true
			progressed = true
			if f.Ref != "" && f.Ref != f.FieldID {
				pending[f.Ref]--
			}
		}
		if !progressed {
			// Relation cycle inside the schema: keep the remaining fields
			// in creation order.
			for _, f := range fields {
				if !done[f.FieldID] {
					ordered = append(ordered, f)
					done[f.FieldID] = true
				}
			}
		}
	}
	return ordered, nil
}

// ListSchemas returns one page of the active schemas matching filter.
func (e *Engine) ListSchemas(ctx context.Context, filter types.SchemaFilter, page, size int) ([]types.Schema, types.Pagination, error) {
	q, err := e.read("list schemas")
	if err != nil {
		return nil, types.Pagination{}, err
	}
	items, p, err := sqlstore.Paginate(ctx, page, size,
		func(ctx context.Context) (int, error) { return q.CountSchemas(ctx, filter) },
		func(ctx context.Context, limit, offset int) ([]types.Schema, error) {
			return q.ListSchemas(ctx, filter, limit, offset)
		},
	)
	if err != nil {
		return nil, types.Pagination{}, e.fail("list schemas", err)
	}
	return items, p, nil
}

// IterateSchemas walks every active schema matching filter.
func (e *Engine) IterateSchemas(ctx context.Context, filter types.SchemaFilter) iter.Seq2[types.Schema, error] {
	return iterateWith(ctx, e, "iterate schemas", func(q *sqlstore.Queries) sqlstore.FetchFunc[types.Schema] {
		return func(ctx context.Context, limit, offset int) ([]types.Schema, error) {
			return q.ListSchemas(ctx, filter, limit, offset)
		}
	})
}

// GetSchema returns an active schema by id.
func (e *Engine) GetSchema(ctx context.Context, id string) (types.Schema, error) {
	q, err := e.read("get schema")
	if err != nil {
		return types.Schema{}, err
	}
	s, err := q.GetSchema(ctx, id)
	return s, e.fail("get schema", err)
}

// ResolveSchema finds an active schema by id or, failing that, by exact name.
func (e *Engine) ResolveSchema(ctx context.Context, ref string) (types.Schema, error) {
	s, err := e.GetSchema(ctx, ref)
	if err == nil || !errors.Is(err, types.ErrNotFound) {
		return s, err
	}
	for s, err := range e.IterateSchemas(ctx, types.SchemaFilter{Name: ref}) {
		if err != nil {
			return types.Schema{}, err
		}
		if s.Name == ref {
			return s, nil
		}
	}
	return types.Schema{}, types.ErrNotFound.Withf("schema %s", ref)
}

// iterateWith adapts a fetch over a read handle to a lazy sequence whose
// errors are mapped like those of any other operation.
func iterateWith[T any](ctx context.Context, e *Engine, op string, fetch func(q *sqlstore.Queries) sqlstore.FetchFunc[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		q, err := e.read(op)
		if err != nil {
			var zero T
			yield(zero, err)
			return
		}
		for item, err := range sqlstore.Iterate(ctx, e.batchSize, fetch(q)) {
			if !yield(item, e.fail(op, err)) {
				return
			}
			if err != nil {
				return
			}
		}
	}
}

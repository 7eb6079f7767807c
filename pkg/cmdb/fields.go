package cmdb

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/cmdb/internal/sqlstore"
	"github.com/mesh-intelligence/cmdb/pkg/types"
)

// FieldInput describes a field to create.
type FieldInput struct {
	Name        string
	Description string
	Type        string
	Options     types.MetaOptions
}

// FieldUpdate carries the attributes UpdateField changes. Nil leaves an
// attribute as it is. Options, when set, replace the constraints wholesale;
// a Type without Options keeps the current constraints.
type FieldUpdate struct {
	Name        *string
	Description *string
	Type        *string
	Options     *types.MetaOptions
}

// CreateField adds a field to a schema. On a schema that already holds
// entities the field may not be unique, a required field needs a default,
// and every entity is backfilled with the default value.
func (e *Engine) CreateField(ctx context.Context, schemaID string, in FieldInput) (types.Field, error) {
	var f types.Field
	err := e.mutate(ctx, "create field", func(t *txn) error {
		var err error
		f, err = t.createField(schemaID, in)
		return err
	})
	if err != nil {
		return types.Field{}, err
	}
	e.log.Info("field created",
		zap.String("field_id", f.FieldID),
		zap.String("schema_id", schemaID),
		zap.Stringer("meta", f.Meta))
	return f, nil
}

func (t *txn) createField(schemaID string, in FieldInput) (types.Field, error) {
	if _, err := t.q.GetSchema(t.ctx, schemaID); err != nil {
		return types.Field{}, err
	}
	if in.Name == "" {
		return types.Field{}, types.ErrValidation.Withf("field name must not be empty")
	}
	siblings, err := t.q.SchemaFields(t.ctx, schemaID)
	if err != nil {
		return types.Field{}, err
	}
	for _, s := range siblings {
		if s.Name == in.Name {
			return types.Field{}, types.ErrValidation.Withf("field %q already exists", in.Name)
		}
	}

	meta, err := types.BuildMeta(in.Type, in.Options)
	if err != nil {
		return types.Field{}, err
	}
	if meta.HasRelation() {
		target, err := t.q.GetField(t.ctx, meta.Relation.Target)
		if errors.Is(err, types.ErrNotFound) {
			return types.Field{}, types.ErrRelationTargetMissing.Withf("field %s", meta.Relation.Target)
		}
		if err != nil {
			return types.Field{}, err
		}
		if !target.Meta.Unique {
			return types.Field{}, types.ErrNonUniqueForeignKey.Withf("field %s", target.Name)
		}
		if !meta.Compatible(target.Meta) {
			return types.Field{}, types.ErrIncompatibleRelation.Withf("%s does not match %s", meta, target.Meta)
		}
	}

	populated, err := t.q.CountEntities(t.ctx, sqlstore.EntityFilter{SchemaID: schemaID})
	if err != nil {
		return types.Field{}, err
	}
	if populated > 0 {
		if meta.Unique {
			return types.Field{}, types.ErrUniqueOnPopulatedSchema.Withf("field %s", in.Name)
		}
		if !meta.Nullable && meta.Default == "" {
			return types.Field{}, types.ErrMissingDefault.Withf("field %s", in.Name)
		}
	}

	f := types.Field{
		FieldID:     sqlstore.NewID(),
		SchemaID:    schemaID,
		Name:        in.Name,
		Description: in.Description,
		Meta:        meta,
		Ref:         meta.RelationTarget(),
		CreatedAt:   t.now,
		UpdatedAt:   t.now,
	}
	if err := t.q.InsertField(t.ctx, f); err != nil {
		return types.Field{}, err
	}
	if populated > 0 && (!meta.Multiple || meta.Default != "") {
		if err := t.backfill(f); err != nil {
			return types.Field{}, err
		}
	}
	return f, nil
}

// backfill gives every active entity of the field's schema the default value.
func (t *txn) backfill(f types.Field) error {
	ids, err := t.q.EntityIDs(t.ctx, f.SchemaID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := t.addValue(f, id, f.Meta.Default); err != nil {
			return err
		}
	}
	return nil
}

// DeleteField tombstones a field and its values. It fails with
// ErrHasDependents while another active field relates to it.
func (e *Engine) DeleteField(ctx context.Context, id string) error {
	err := e.mutate(ctx, "delete field", func(t *txn) error {
		f, err := t.q.GetField(t.ctx, id)
		if err != nil {
			return err
		}
		return t.deleteField(f)
	})
	if err != nil {
		return err
	}
	e.log.Info("field deleted", zap.String("field_id", id))
	return nil
}

func (t *txn) deleteField(f types.Field) error {
	deps, err := t.q.Dependents(t.ctx, f.FieldID)
	if err != nil {
		return err
	}
	for _, d := range deps {
		if d.FieldID != f.FieldID && !t.dropping[d.FieldID] {
			return types.ErrHasDependents.Withf("field %s is referenced by field %s", f.Name, d.Name)
		}
	}
	if err := t.q.DeleteField(t.ctx, f.FieldID, t.now); err != nil {
		return err
	}
	// No active field relates to f any more, so its values carry no
	// cascades.
	values, err := t.q.FieldValues(t.ctx, f.FieldID)
	if err != nil {
		return err
	}
	for _, v := range values {
		if err := t.q.DeleteValue(t.ctx, v.ValueID, t.now); err != nil {
			return err
		}
	}
	return nil
}

// UpdateField changes the name, description, type or constraints of a
// field. Constraint changes are checked against the stored values and the
// fields related to it.
func (e *Engine) UpdateField(ctx context.Context, id string, upd FieldUpdate) (types.Field, error) {
	var f types.Field
	err := e.mutate(ctx, "update field", func(t *txn) error {
		var err error
		if f, err = t.q.GetField(t.ctx, id); err != nil {
			return err
		}
		if upd.Type != nil || upd.Options != nil {
			typ, opts := f.Meta.Type, f.Meta.Options()
			if upd.Type != nil {
				typ = *upd.Type
			}
			if upd.Options != nil {
				opts = *upd.Options
			}
			candidate, err := types.BuildMeta(typ, opts)
			if err != nil {
				return err
			}
			if !candidate.Same(f.Meta) {
				if err := t.checkMetaChange(f, candidate); err != nil {
					return err
				}
				f.Meta = candidate
				f.Ref = candidate.RelationTarget()
			}
		}
		if upd.Name != nil && *upd.Name != f.Name {
			if err := t.checkFieldName(f, *upd.Name); err != nil {
				return err
			}
			f.Name = *upd.Name
		}
		if upd.Description != nil {
			f.Description = *upd.Description
		}
		f.UpdatedAt = t.now
		return t.q.UpdateField(t.ctx, f)
	})
	if err != nil {
		return types.Field{}, err
	}
	return f, nil
}

func (t *txn) checkFieldName(f types.Field, name string) error {
	if name == "" {
		return types.ErrValidation.Withf("field name must not be empty")
	}
	siblings, err := t.q.SchemaFields(t.ctx, f.SchemaID)
	if err != nil {
		return err
	}
	for _, s := range siblings {
		if s.FieldID != f.FieldID && s.Name == name {
			return types.ErrValidation.Withf("field %q already exists", name)
		}
	}
	return nil
}

// checkMetaChange rejects a constraint change that the stored values or the
// related fields cannot follow.
func (t *txn) checkMetaChange(f types.Field, candidate types.FieldMeta) error {
	old := f.Meta
	deps, err := t.q.Dependents(t.ctx, f.FieldID)
	if err != nil {
		return err
	}

	switch {
	case old.Unique && !candidate.Unique:
		if len(deps) > 0 {
			return types.ErrUniqueRequiredByDependent.Withf("field %s is referenced by field %s", f.Name, deps[0].Name)
		}
	case !old.Unique && candidate.Unique:
		dup, err := t.q.HasDuplicatePayloads(t.ctx, f.FieldID)
		if err != nil {
			return err
		}
		if dup {
			return types.ErrValuesNotUnique.Withf("field %s", f.Name)
		}
	}

	if old.Multiple && !candidate.Multiple {
		multi, err := t.q.HasMultipleValues(t.ctx, f.FieldID)
		if err != nil {
			return err
		}
		if multi {
			return types.ErrMultipleValuesPresent.Withf("field %s", f.Name)
		}
	}

	if candidate.HasRelation() {
		target, err := t.q.GetField(t.ctx, candidate.Relation.Target)
		if errors.Is(err, types.ErrNotFound) {
			return types.ErrRelationTargetGone.Withf("field %s", candidate.Relation.Target)
		}
		if err != nil {
			return err
		}
		if !target.Meta.Unique {
			return types.ErrNonUniqueForeignKey.Withf("field %s", target.Name)
		}
		if !candidate.Compatible(target.Meta) {
			return types.ErrRelationTypeMismatch.Withf("%s does not match %s", candidate, target.Meta)
		}
		if candidate.RelationTarget() != old.RelationTarget() {
			payload, found, err := t.q.UnmatchedPayload(t.ctx, f.FieldID, target.FieldID)
			if err != nil {
				return err
			}
			if found {
				return types.ErrRelationConflict.Withf("value %q of field %s is missing from field %s", payload, f.Name, target.Name)
			}
		}
	}

	for _, d := range deps {
		if !d.Meta.Compatible(candidate) {
			return types.ErrIncompatibleRelation.Withf("field %s relates to %s with %s", d.Name, f.Name, d.Meta)
		}
	}

	if old.Nullable && !candidate.Nullable {
		id, found, err := t.q.EntityWithoutValue(t.ctx, f.SchemaID, f.FieldID)
		if err != nil {
			return err
		}
		if found {
			return types.ErrExistingValueMismatch.Withf("field %s has no value in entity %s", f.Name, id)
		}
	}

	if !candidate.Equal(old, true) {
		values, err := t.q.FieldValues(t.ctx, f.FieldID)
		if err != nil {
			return err
		}
		for _, v := range values {
			canon, err := candidate.Inspect(v.Payload)
			if err != nil {
				return types.ErrExistingValueMismatch.Withf("field %s value %q: %v", f.Name, v.Payload, err)
			}
			if canon != v.Payload {
				return types.ErrExistingValueMismatch.Withf("field %s value %q would be stored as %q", f.Name, v.Payload, canon)
			}
		}
	}
	return nil
}

// GetField returns an active field by id.
func (e *Engine) GetField(ctx context.Context, id string) (types.Field, error) {
	q, err := e.read("get field")
	if err != nil {
		return types.Field{}, err
	}
	f, err := q.GetField(ctx, id)
	return f, e.fail("get field", err)
}

// ResolveField finds an active field by id or by a "<schema>.<field>"
// reference, the schema part being a schema id or name.
func (e *Engine) ResolveField(ctx context.Context, ref string) (types.Field, error) {
	schemaRef, name, qualified := strings.Cut(ref, ".")
	if !qualified {
		return e.GetField(ctx, ref)
	}
	s, err := e.ResolveSchema(ctx, schemaRef)
	if err != nil {
		return types.Field{}, err
	}
	fields, err := e.ListFields(ctx, types.FieldFilter{SchemaID: s.SchemaID})
	if err != nil {
		return types.Field{}, err
	}
	for _, f := range fields {
		if f.Name == name {
			return f, nil
		}
	}
	return types.Field{}, types.ErrNotFound.Withf("field %s", ref)
}

// ListFields returns the active fields of the schema named by filter, or of
// the schema owning filter.FieldID.
func (e *Engine) ListFields(ctx context.Context, filter types.FieldFilter) ([]types.Field, error) {
	q, err := e.read("list fields")
	if err != nil {
		return nil, err
	}
	schemaID := filter.SchemaID
	switch {
	case filter.FieldID != "":
		f, err := q.GetField(ctx, filter.FieldID)
		if err != nil {
			return nil, e.fail("list fields", err)
		}
		schemaID = f.SchemaID
	case schemaID != "":
		if _, err := q.GetSchema(ctx, schemaID); err != nil {
			return nil, e.fail("list fields", err)
		}
	default:
		return nil, types.ErrValidation.Withf("a schema id or a field id is required")
	}
	fields, err := q.SchemaFields(ctx, schemaID)
	return fields, e.fail("list fields", err)
}

// UniqueFields lists the unique fields of a schema, the fields other fields
// may relate to.
func (e *Engine) UniqueFields(ctx context.Context, schemaID string) ([]types.FieldOption, error) {
	fields, err := e.ListFields(ctx, types.FieldFilter{SchemaID: schemaID})
	if err != nil {
		return nil, err
	}
	var out []types.FieldOption
	for _, f := range fields {
		if f.Meta.Unique {
			out = append(out, types.FieldOption{FieldID: f.FieldID, Name: f.Name})
		}
	}
	return out, nil
}

// ColumnsWithRelations lists the field names of a schema followed, for each
// relation field, by the "<field><targetField>" columns under which the
// related record is inlined.
func (e *Engine) ColumnsWithRelations(ctx context.Context, schemaID string) ([]string, error) {
	q, err := e.read("list columns")
	if err != nil {
		return nil, err
	}
	p, err := planProjection(ctx, q, types.RecordQuery{SchemaID: schemaID}, true)
	if err != nil {
		return nil, e.fail("list columns", err)
	}
	return p.header(), nil
}

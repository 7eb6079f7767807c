package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mesh-intelligence/cmdb/pkg/types"
)

const fieldColumns = "field_id, schema_id, name, description, meta, ref, created_at, updated_at, deleted"

func scanField(row scanner) (types.Field, error) {
	var (
		f                      types.Field
		meta, created, updated string
		ref                    sql.NullString
		deleted                int
	)
	if err := row.Scan(&f.FieldID, &f.SchemaID, &f.Name, &f.Description, &meta, &ref, &created, &updated, &deleted); err != nil {
		return types.Field{}, err
	}
	var err error
	if f.Meta, err = types.ParseMeta(meta); err != nil {
		return types.Field{}, err
	}
	if f.CreatedAt, f.UpdatedAt, err = stamps(created, updated); err != nil {
		return types.Field{}, err
	}
	f.Ref = ref.String
	f.Deleted = deleted != 0
	return f, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// InsertField stores f as given, including its deleted flag.
func (q *Queries) InsertField(ctx context.Context, f types.Field) error {
	meta, err := f.Meta.Marshal()
	if err != nil {
		return err
	}
	err = q.exec(ctx,
		"INSERT INTO fields ("+fieldColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		f.FieldID, f.SchemaID, f.Name, f.Description, meta, nullable(f.Ref),
		formatTime(f.CreatedAt), formatTime(f.UpdatedAt), boolInt(f.Deleted),
	)
	if err != nil {
		return fmt.Errorf("inserting field %s: %w", f.FieldID, err)
	}
	return nil
}

// GetField returns the active field with the given id.
func (q *Queries) GetField(ctx context.Context, id string) (types.Field, error) {
	row := q.queryRow(ctx, "SELECT "+fieldColumns+" FROM fields WHERE field_id = ? AND deleted = 0", id)
	f, err := scanField(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Field{}, types.ErrNotFound.Withf("field %s", id)
	}
	if err != nil {
		return types.Field{}, fmt.Errorf("getting field %s: %w", id, err)
	}
	return f, nil
}

// UpdateField writes the mutable attributes of f.
func (q *Queries) UpdateField(ctx context.Context, f types.Field) error {
	meta, err := f.Meta.Marshal()
	if err != nil {
		return err
	}
	err = q.exec(ctx,
		"UPDATE fields SET name = ?, description = ?, meta = ?, ref = ?, updated_at = ? WHERE field_id = ?",
		f.Name, f.Description, meta, nullable(f.Ref), formatTime(f.UpdatedAt), f.FieldID,
	)
	if err != nil {
		return fmt.Errorf("updating field %s: %w", f.FieldID, err)
	}
	return nil
}

// DeleteField tombstones a field.
func (q *Queries) DeleteField(ctx context.Context, id string, at time.Time) error {
	if err := q.exec(ctx, "UPDATE fields SET deleted = 1, updated_at = ? WHERE field_id = ?", formatTime(at), id); err != nil {
		return fmt.Errorf("deleting field %s: %w", id, err)
	}
	return nil
}

func (q *Queries) listFields(ctx context.Context, what, query string, args ...any) ([]types.Field, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", what, err)
	}
	out, err := collect(rows, scanField)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", what, err)
	}
	return out, nil
}

// SchemaFields returns the active fields of a schema in creation order.
func (q *Queries) SchemaFields(ctx context.Context, schemaID string) ([]types.Field, error) {
	return q.listFields(ctx, "fields of schema "+schemaID,
		"SELECT "+fieldColumns+" FROM fields WHERE schema_id = ? AND deleted = 0 ORDER BY field_id", schemaID)
}

// Dependents returns the active fields whose ref points at fieldID.
func (q *Queries) Dependents(ctx context.Context, fieldID string) ([]types.Field, error) {
	return q.listFields(ctx, "dependents of field "+fieldID,
		"SELECT "+fieldColumns+" FROM fields WHERE ref = ? AND deleted = 0 ORDER BY field_id", fieldID)
}

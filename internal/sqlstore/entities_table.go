package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mesh-intelligence/cmdb/pkg/types"
)

const entityColumns = "entity_id, schema_id, entity_key, created_at, updated_at, deleted"

// Predicate keeps entities holding an active value of FieldID that contains
// Substring.
type Predicate struct {
	FieldID   string
	Substring string
}

// EntityFilter selects the active entities of one schema.
type EntityFilter struct {
	SchemaID string
	Match    []Predicate
}

func scanEntity(row scanner) (types.Entity, error) {
	var (
		e                types.Entity
		created, updated string
		deleted          int
	)
	if err := row.Scan(&e.EntityID, &e.SchemaID, &e.Key, &created, &updated, &deleted); err != nil {
		return types.Entity{}, err
	}
	var err error
	if e.CreatedAt, e.UpdatedAt, err = stamps(created, updated); err != nil {
		return types.Entity{}, err
	}
	e.Deleted = deleted != 0
	return e, nil
}

// InsertEntity stores e as given, including its deleted flag.
func (q *Queries) InsertEntity(ctx context.Context, e types.Entity) error {
	err := q.exec(ctx,
		"INSERT INTO entities ("+entityColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		e.EntityID, e.SchemaID, e.Key, formatTime(e.CreatedAt), formatTime(e.UpdatedAt), boolInt(e.Deleted),
	)
	if err != nil {
		return fmt.Errorf("inserting entity %s: %w", e.EntityID, err)
	}
	return nil
}

// GetEntity returns the active entity with the given id.
func (q *Queries) GetEntity(ctx context.Context, id string) (types.Entity, error) {
	row := q.queryRow(ctx, "SELECT "+entityColumns+" FROM entities WHERE entity_id = ? AND deleted = 0", id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Entity{}, types.ErrNotFound.Withf("entity %s", id)
	}
	if err != nil {
		return types.Entity{}, fmt.Errorf("getting entity %s: %w", id, err)
	}
	return e, nil
}

// TouchEntity sets the updated_at of an entity.
func (q *Queries) TouchEntity(ctx context.Context, id string, at time.Time) error {
	if err := q.exec(ctx, "UPDATE entities SET updated_at = ? WHERE entity_id = ?", formatTime(at), id); err != nil {
		return fmt.Errorf("touching entity %s: %w", id, err)
	}
	return nil
}

// DeleteEntity tombstones an entity.
func (q *Queries) DeleteEntity(ctx context.Context, id string, at time.Time) error {
	if err := q.exec(ctx, "UPDATE entities SET deleted = 1, updated_at = ? WHERE entity_id = ?", formatTime(at), id); err != nil {
		return fmt.Errorf("deleting entity %s: %w", id, err)
	}
	return nil
}

// entityWhere builds one EXISTS clause per predicate so that every predicate
// is tested against its own field.
func entityWhere(f EntityFilter) (string, []any) {
	var sb strings.Builder
	sb.WriteString(" WHERE e.schema_id = ? AND e.deleted = 0")
	args := []any{f.SchemaID}
	for _, p := range f.Match {
		sb.WriteString(` AND EXISTS (SELECT 1 FROM field_values v WHERE v.entity_id = e.entity_id AND v.field_id = ? AND v.deleted = 0 AND v.payload LIKE ? ESCAPE '\')`)
		args = append(args, p.FieldID, likePattern(p.Substring))
	}
	return sb.String(), args
}

// CountEntities counts the entities matching f.
func (q *Queries) CountEntities(ctx context.Context, f EntityFilter) (int, error) {
	where, args := entityWhere(f)
	n, err := q.count(ctx, "SELECT COUNT(*) FROM entities e"+where, args...)
	if err != nil {
		return 0, fmt.Errorf("counting entities of schema %s: %w", f.SchemaID, err)
	}
	return n, nil
}

// ListEntities returns one window of the entities matching f in creation
// order.
func (q *Queries) ListEntities(ctx context.Context, f EntityFilter, limit, offset int) ([]types.Entity, error) {
	where, args := entityWhere(f)
	rows, err := q.query(ctx,
		"SELECT e.entity_id, e.schema_id, e.entity_key, e.created_at, e.updated_at, e.deleted FROM entities e"+
			where+" ORDER BY e.entity_id LIMIT ? OFFSET ?",
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing entities of schema %s: %w", f.SchemaID, err)
	}
	out, err := collect(rows, scanEntity)
	if err != nil {
		return nil, fmt.Errorf("listing entities of schema %s: %w", f.SchemaID, err)
	}
	return out, nil
}

// EntityIDs returns the ids of every active entity of a schema.
func (q *Queries) EntityIDs(ctx context.Context, schemaID string) ([]string, error) {
	rows, err := q.query(ctx, "SELECT entity_id FROM entities WHERE schema_id = ? AND deleted = 0 ORDER BY entity_id", schemaID)
	if err != nil {
		return nil, fmt.Errorf("listing entity ids of schema %s: %w", schemaID, err)
	}
	ids, err := collect(rows, func(row scanner) (string, error) {
		var id string
		err := row.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing entity ids of schema %s: %w", schemaID, err)
	}
	return ids, nil
}

// EntityWithoutValue returns an active entity of the schema that holds no
// active value of the field.
func (q *Queries) EntityWithoutValue(ctx context.Context, schemaID, fieldID string) (string, bool, error) {
	rows, err := q.query(ctx,
		`SELECT e.entity_id FROM entities e
WHERE e.schema_id = ? AND e.deleted = 0
AND NOT EXISTS (SELECT 1 FROM field_values v WHERE v.entity_id = e.entity_id AND v.field_id = ? AND v.deleted = 0)
ORDER BY e.entity_id LIMIT 1`,
		schemaID, fieldID)
	if err != nil {
		return "", false, fmt.Errorf("finding entities of schema %s without field %s: %w", schemaID, fieldID, err)
	}
	defer rows.Close()
	if !rows.Next() {
		return "", false, rows.Err()
	}
	var id string
	if err := rows.Scan(&id); err != nil {
		return "", false, err
	}
	return id, true, nil
}

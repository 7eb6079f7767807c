package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mesh-intelligence/cmdb/pkg/types"
)

const valueColumns = "value_id, field_id, entity_id, payload, created_at, updated_at, deleted"

func scanValue(row scanner) (types.Value, error) {
	var (
		v                types.Value
		created, updated string
		deleted          int
	)
	if err := row.Scan(&v.ValueID, &v.FieldID, &v.EntityID, &v.Payload, &created, &updated, &deleted); err != nil {
		return types.Value{}, err
	}
	var err error
	if v.CreatedAt, v.UpdatedAt, err = stamps(created, updated); err != nil {
		return types.Value{}, err
	}
	v.Deleted = deleted != 0
	return v, nil
}

// InsertValue stores v as given, including its deleted flag.
func (q *Queries) InsertValue(ctx context.Context, v types.Value) error {
	err := q.exec(ctx,
		"INSERT INTO field_values ("+valueColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		v.ValueID, v.FieldID, v.EntityID, v.Payload, formatTime(v.CreatedAt), formatTime(v.UpdatedAt), boolInt(v.Deleted),
	)
	if err != nil {
		return fmt.Errorf("inserting value %s: %w", v.ValueID, err)
	}
	return nil
}

// GetValue returns the active value with the given id.
func (q *Queries) GetValue(ctx context.Context, id string) (types.Value, error) {
	row := q.queryRow(ctx, "SELECT "+valueColumns+" FROM field_values WHERE value_id = ? AND deleted = 0", id)
	v, err := scanValue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Value{}, types.ErrValueNotFound.Withf("value %s", id)
	}
	if err != nil {
		return types.Value{}, fmt.Errorf("getting value %s: %w", id, err)
	}
	return v, nil
}

// SetPayload replaces the payload of a value.
func (q *Queries) SetPayload(ctx context.Context, id, payload string, at time.Time) error {
	if err := q.exec(ctx, "UPDATE field_values SET payload = ?, updated_at = ? WHERE value_id = ?", payload, formatTime(at), id); err != nil {
		return fmt.Errorf("updating value %s: %w", id, err)
	}
	return nil
}

// DeleteValue tombstones a value.
func (q *Queries) DeleteValue(ctx context.Context, id string, at time.Time) error {
	if err := q.exec(ctx, "UPDATE field_values SET deleted = 1, updated_at = ? WHERE value_id = ?", formatTime(at), id); err != nil {
		return fmt.Errorf("deleting value %s: %w", id, err)
	}
	return nil
}

func (q *Queries) listValues(ctx context.Context, what, query string, args ...any) ([]types.Value, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", what, err)
	}
	out, err := collect(rows, scanValue)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", what, err)
	}
	return out, nil
}

// EntityValues returns the active values an entity holds for one field, in
// insertion order.
func (q *Queries) EntityValues(ctx context.Context, entityID, fieldID string) ([]types.Value, error) {
	return q.listValues(ctx, "values of entity "+entityID,
		"SELECT "+valueColumns+" FROM field_values WHERE entity_id = ? AND field_id = ? AND deleted = 0 ORDER BY value_id",
		entityID, fieldID)
}

// AllEntityValues returns every active value of an entity.
func (q *Queries) AllEntityValues(ctx context.Context, entityID string) ([]types.Value, error) {
	return q.listValues(ctx, "values of entity "+entityID,
		"SELECT "+valueColumns+" FROM field_values WHERE entity_id = ? AND deleted = 0 ORDER BY value_id",
		entityID)
}

// ValuesOfEntities returns the active values of the given entities.
func (q *Queries) ValuesOfEntities(ctx context.Context, entityIDs []string) ([]types.Value, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	args := make([]any, len(entityIDs))
	for i, id := range entityIDs {
		args[i] = id
	}
	return q.listValues(ctx, "values of entities",
		"SELECT "+valueColumns+" FROM field_values WHERE entity_id IN ("+placeholders(len(entityIDs))+") AND deleted = 0 ORDER BY value_id",
		args...)
}

// FieldValues returns every active value of a field.
func (q *Queries) FieldValues(ctx context.Context, fieldID string) ([]types.Value, error) {
	return q.listValues(ctx, "values of field "+fieldID,
		"SELECT "+valueColumns+" FROM field_values WHERE field_id = ? AND deleted = 0 ORDER BY value_id",
		fieldID)
}

// MatchingValues returns the active values of a field equal to payload.
func (q *Queries) MatchingValues(ctx context.Context, fieldID, payload string) ([]types.Value, error) {
	return q.listValues(ctx, "values of field "+fieldID,
		"SELECT "+valueColumns+" FROM field_values WHERE field_id = ? AND payload = ? AND deleted = 0 ORDER BY value_id",
		fieldID, payload)
}

// PayloadTaken reports whether an active value of the field other than
// exceptID holds payload.
func (q *Queries) PayloadTaken(ctx context.Context, fieldID, payload, exceptID string) (bool, error) {
	ok, err := q.exists(ctx,
		"SELECT 1 FROM field_values WHERE field_id = ? AND payload = ? AND value_id <> ? AND deleted = 0 LIMIT 1",
		fieldID, payload, exceptID)
	if err != nil {
		return false, fmt.Errorf("checking payload of field %s: %w", fieldID, err)
	}
	return ok, nil
}

// HasDuplicatePayloads reports whether two active non-empty values of the
// field are equal.
func (q *Queries) HasDuplicatePayloads(ctx context.Context, fieldID string) (bool, error) {
	ok, err := q.exists(ctx,
		"SELECT payload FROM field_values WHERE field_id = ? AND deleted = 0 AND payload <> '' GROUP BY payload HAVING COUNT(*) > 1",
		fieldID)
	if err != nil {
		return false, fmt.Errorf("checking duplicates of field %s: %w", fieldID, err)
	}
	return ok, nil
}

// HasMultipleValues reports whether some entity holds more than one active
// value of the field.
func (q *Queries) HasMultipleValues(ctx context.Context, fieldID string) (bool, error) {
	ok, err := q.exists(ctx,
		"SELECT entity_id FROM field_values WHERE field_id = ? AND deleted = 0 GROUP BY entity_id HAVING COUNT(*) > 1",
		fieldID)
	if err != nil {
		return false, fmt.Errorf("checking multiplicity of field %s: %w", fieldID, err)
	}
	return ok, nil
}

// UnmatchedPayload returns a non-empty active payload of fieldID that no
// active value of targetID holds.
func (q *Queries) UnmatchedPayload(ctx context.Context, fieldID, targetID string) (string, bool, error) {
	rows, err := q.query(ctx,
		`SELECT v.payload FROM field_values v
WHERE v.field_id = ? AND v.deleted = 0 AND v.payload <> ''
AND NOT EXISTS (SELECT 1 FROM field_values t WHERE t.field_id = ? AND t.deleted = 0 AND t.payload = v.payload)
ORDER BY v.value_id LIMIT 1`,
		fieldID, targetID)
	if err != nil {
		return "", false, fmt.Errorf("matching field %s against %s: %w", fieldID, targetID, err)
	}
	defer rows.Close()
	if !rows.Next() {
		return "", false, rows.Err()
	}
	var payload string
	if err := rows.Scan(&payload); err != nil {
		return "", false, err
	}
	return payload, true, nil
}

// CountValues counts the active values of a field.
func (q *Queries) CountValues(ctx context.Context, fieldID string) (int, error) {
	n, err := q.count(ctx, "SELECT COUNT(*) FROM field_values WHERE field_id = ? AND deleted = 0", fieldID)
	if err != nil {
		return 0, fmt.Errorf("counting values of field %s: %w", fieldID, err)
	}
	return n, nil
}

// ListValues returns one window of the active values of a field.
func (q *Queries) ListValues(ctx context.Context, fieldID string, limit, offset int) ([]types.Value, error) {
	return q.listValues(ctx, "values of field "+fieldID,
		"SELECT "+valueColumns+" FROM field_values WHERE field_id = ? AND deleted = 0 ORDER BY value_id LIMIT ? OFFSET ?",
		fieldID, limit, offset)
}

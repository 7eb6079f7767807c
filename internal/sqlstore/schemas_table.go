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

const schemaColumns = "schema_id, name, description, created_at, updated_at, deleted"

func scanSchema(row scanner) (types.Schema, error) {
	var (
		s                types.Schema
		created, updated string
		deleted          int
	)
	if err := row.Scan(&s.SchemaID, &s.Name, &s.Description, &created, &updated, &deleted); err != nil {
		return types.Schema{}, err
	}
	var err error
	if s.CreatedAt, s.UpdatedAt, err = stamps(created, updated); err != nil {
		return types.Schema{}, err
	}
	s.Deleted = deleted != 0
	return s, nil
}

// InsertSchema stores s as given, including its deleted flag.
func (q *Queries) InsertSchema(ctx context.Context, s types.Schema) error {
	err := q.exec(ctx,
		"INSERT INTO schemas ("+schemaColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		s.SchemaID, s.Name, s.Description, formatTime(s.CreatedAt), formatTime(s.UpdatedAt), boolInt(s.Deleted),
	)
	if err != nil {
		return fmt.Errorf("inserting schema %s: %w", s.SchemaID, err)
	}
	return nil
}

// GetSchema returns the active schema with the given id.
func (q *Queries) GetSchema(ctx context.Context, id string) (types.Schema, error) {
	row := q.queryRow(ctx, "SELECT "+schemaColumns+" FROM schemas WHERE schema_id = ? AND deleted = 0", id)
	s, err := scanSchema(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Schema{}, types.ErrNotFound.Withf("schema %s", id)
	}
	if err != nil {
		return types.Schema{}, fmt.Errorf("getting schema %s: %w", id, err)
	}
	return s, nil
}

// UpdateSchema writes the name, description and updated_at of s.
func (q *Queries) UpdateSchema(ctx context.Context, s types.Schema) error {
	err := q.exec(ctx,
		"UPDATE schemas SET name = ?, description = ?, updated_at = ? WHERE schema_id = ?",
		s.Name, s.Description, formatTime(s.UpdatedAt), s.SchemaID,
	)
	if err != nil {
		return fmt.Errorf("updating schema %s: %w", s.SchemaID, err)
	}
	return nil
}

// DeleteSchema tombstones a schema.
func (q *Queries) DeleteSchema(ctx context.Context, id string, at time.Time) error {
	if err := q.exec(ctx, "UPDATE schemas SET deleted = 1, updated_at = ? WHERE schema_id = ?", formatTime(at), id); err != nil {
		return fmt.Errorf("deleting schema %s: %w", id, err)
	}
	return nil
}

func schemaWhere(f types.SchemaFilter) (string, []any) {
	clauses := []string{"deleted = 0"}
	var args []any
	if f.Name != "" {
		clauses = append(clauses, `name LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(f.Name))
	}
	if f.Description != "" {
		clauses = append(clauses, `description LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(f.Description))
	}
	if !f.CreatedAfter.IsZero() {
		clauses = append(clauses, "created_at > ?")
		args = append(args, formatTime(f.CreatedAfter))
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// CountSchemas counts the active schemas matching f.
func (q *Queries) CountSchemas(ctx context.Context, f types.SchemaFilter) (int, error) {
	where, args := schemaWhere(f)
	n, err := q.count(ctx, "SELECT COUNT(*) FROM schemas"+where, args...)
	if err != nil {
		return 0, fmt.Errorf("counting schemas: %w", err)
	}
	return n, nil
}

// ListSchemas returns one window of the active schemas matching f in
// creation order.
func (q *Queries) ListSchemas(ctx context.Context, f types.SchemaFilter, limit, offset int) ([]types.Schema, error) {
	where, args := schemaWhere(f)
	rows, err := q.query(ctx,
		"SELECT "+schemaColumns+" FROM schemas"+where+" ORDER BY schema_id LIMIT ? OFFSET ?",
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing schemas: %w", err)
	}
	out, err := collect(rows, scanSchema)
	if err != nil {
		return nil, fmt.Errorf("listing schemas: %w", err)
	}
	return out, nil
}

package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
)

// Table DDL. Statements are valid for both SQLite and PostgreSQL.
const (
	createSchemas = `CREATE TABLE IF NOT EXISTS schemas (
    schema_id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    deleted INTEGER NOT NULL DEFAULT 0
);`

	createFields = `CREATE TABLE IF NOT EXISTS fields (
    field_id TEXT PRIMARY KEY,
    schema_id TEXT NOT NULL REFERENCES schemas(schema_id),
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    meta TEXT NOT NULL,
    ref TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    deleted INTEGER NOT NULL DEFAULT 0
);`

	createEntities = `CREATE TABLE IF NOT EXISTS entities (
    entity_id TEXT PRIMARY KEY,
    schema_id TEXT NOT NULL REFERENCES schemas(schema_id),
    entity_key TEXT NOT NULL UNIQUE,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    deleted INTEGER NOT NULL DEFAULT 0
);`

	createValues = `CREATE TABLE IF NOT EXISTS field_values (
    value_id TEXT PRIMARY KEY,
    field_id TEXT NOT NULL REFERENCES fields(field_id),
    entity_id TEXT NOT NULL REFERENCES entities(entity_id),
    payload TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    deleted INTEGER NOT NULL DEFAULT 0
);`
)

// Index DDL for the lookups issued by the engine.
const (
	idxFieldsSchema   = `CREATE INDEX IF NOT EXISTS idx_fields_schema ON fields(schema_id, deleted);`
	idxFieldsRef      = `CREATE INDEX IF NOT EXISTS idx_fields_ref ON fields(ref);`
	idxEntitiesSchema = `CREATE INDEX IF NOT EXISTS idx_entities_schema ON entities(schema_id, deleted);`
	idxValuesEntity   = `CREATE INDEX IF NOT EXISTS idx_values_entity ON field_values(entity_id, field_id);`
	idxValuesPayload  = `CREATE INDEX IF NOT EXISTS idx_values_payload ON field_values(field_id, payload);`
)

// schemaDDL lists all CREATE TABLE statements in dependency order.
var schemaDDL = []string{
	createSchemas,
	createFields,
	createEntities,
	createValues,
}

// indexDDL lists all CREATE INDEX statements.
var indexDDL = []string{
	idxFieldsSchema,
	idxFieldsRef,
	idxEntitiesSchema,
	idxValuesEntity,
	idxValuesPayload,
}

// migrate creates the tables and indexes that do not exist yet.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range append(append([]string{}, schemaDDL...), indexDDL...) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

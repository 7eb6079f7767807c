package types

import "time"

// Schema is a named, user-defined record type. It owns fields and entities.
type Schema struct {
	SchemaID    string    `json:"schema_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Deleted     bool      `json:"deleted"`
}

// Field is an attribute definition of a schema. Ref holds the id of the
// field this one relates to and is empty unless Meta declares a relation.
type Field struct {
	FieldID     string    `json:"field_id"`
	SchemaID    string    `json:"schema_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Meta        FieldMeta `json:"meta"`
	Ref         string    `json:"ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Deleted     bool      `json:"deleted"`
}

// Entity is one record instance of a schema.
type Entity struct {
	EntityID  string    `json:"entity_id"`
	SchemaID  string    `json:"schema_id"`
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Deleted   bool      `json:"deleted"`
}

// Value is one stored attribute value of one entity for one field. An empty
// Payload is the null value.
type Value struct {
	ValueID   string    `json:"value_id"`
	FieldID   string    `json:"field_id"`
	EntityID  string    `json:"entity_id"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Deleted   bool      `json:"deleted"`
}

// Record is the flattened view of an entity. Each entry of Fields is a string
// for single-valued fields and a []string for multiple-valued ones.
type Record struct {
	EntityID  string         `json:"entity_id"`
	Key       string         `json:"key"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Fields    map[string]any `json:"fields"`
}

// FieldOption is a compact (id, name) pair, used to offer relation targets.
type FieldOption struct {
	FieldID string `json:"value"`
	Name    string `json:"label"`
}

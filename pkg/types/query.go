package types

import "time"

// SchemaFilter narrows ListSchemas. Name and Description match substrings;
// a zero CreatedAfter matches every schema.
type SchemaFilter struct {
	Name         string
	Description  string
	CreatedAfter time.Time
}

// FieldFilter selects the fields returned by ListFields. With FieldID set the
// result is every field of that field's schema.
type FieldFilter struct {
	SchemaID string
	FieldID  string
}

// RecordQuery selects and shapes the records of one schema.
type RecordQuery struct {
	SchemaID string

	// Fields names the fields to project. Empty projects every field.
	Fields []string

	// Match keeps records whose value for the named field contains the
	// given substring.
	Match map[string]string

	// Relations names the relation fields whose target record is inlined,
	// each mapped to the target schema field names to inline. An empty list
	// inlines every field of the target schema.
	Relations map[string][]string
}

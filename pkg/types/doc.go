// Package types defines the record model of the configuration database:
// schemas, fields, entities and values, the field metadata that constrains
// them, the registry of value types, pagination, backend configuration and
// the error taxonomy shared by the engine and its storage backends.
package types

package types

import (
	"encoding/json"
	"fmt"
)

// Delete cascade policies applied to dependent values when a related value
// is deleted.
const (
	CascadeSetNull = "set_null"
	CascadeDelete  = "delete"
	CascadeReject  = "reject"
)

// Update cascade policies applied to dependent values when a related value
// changes.
const (
	UpdateCascadeUpdate = "update"
	UpdateCascadeReject = "reject"
)

// Relation declares that a field's values must match values of Target, a
// unique field, and how dependent values react to changes of the target.
type Relation struct {
	Target        string `json:"target" yaml:"target"`
	Cascade       string `json:"cascade,omitempty" yaml:"cascade,omitempty"`
	UpdateCascade string `json:"update_cascade,omitempty" yaml:"update_cascade,omitempty"`
}

// FieldMeta is the constraint descriptor stored with every field. It combines
// the value type tag, the type specific constraints (Min, Max, Len) and the
// generic ones.
type FieldMeta struct {
	Type     string    `json:"type"`
	Nullable bool      `json:"nullable"`
	Unique   bool      `json:"unique"`
	Multiple bool      `json:"multiple"`
	Default  string    `json:"default,omitempty"`
	Min      *float64  `json:"min,omitempty"`
	Max      *float64  `json:"max,omitempty"`
	Len      *int      `json:"len,omitempty"`
	Relation *Relation `json:"relation,omitempty"`
}

// MetaOptions are the caller supplied inputs from which a value type builds
// FieldMeta. A nil Nullable means nullable.
type MetaOptions struct {
	Nullable *bool     `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	Unique   bool      `json:"unique,omitempty" yaml:"unique,omitempty"`
	Multiple bool      `json:"multiple,omitempty" yaml:"multiple,omitempty"`
	Default  string    `json:"default,omitempty" yaml:"default,omitempty"`
	Min      *float64  `json:"min,omitempty" yaml:"min,omitempty"`
	Max      *float64  `json:"max,omitempty" yaml:"max,omitempty"`
	Len      *int      `json:"len,omitempty" yaml:"len,omitempty"`
	Relation *Relation `json:"relation,omitempty" yaml:"relation,omitempty"`
}

// Ptr returns a pointer to v. It keeps optional MetaOptions literals short.
func Ptr[T any](v T) *T { return &v }

// BuildMeta builds the metadata of a field of the given type. It fails with
// ErrInvalidFieldType for an unregistered type and with ErrValidation when
// the options contradict each other or the default does not validate.
func BuildMeta(typeName string, opts MetaOptions) (FieldMeta, error) {
	vt, ok := LookupValueType(typeName)
	if !ok {
		return FieldMeta{}, ErrInvalidFieldType.Withf("%q", typeName)
	}
	meta := vt.DefaultMeta(opts)
	if meta.Min != nil && meta.Max != nil && *meta.Min > *meta.Max {
		return FieldMeta{}, ErrValidation.Withf("min %v is greater than max %v", *meta.Min, *meta.Max)
	}
	if meta.Len != nil && *meta.Len < 0 {
		return FieldMeta{}, ErrValidation.Withf("len must not be negative")
	}
	if r := meta.Relation; r != nil {
		switch r.Cascade {
		case "", CascadeSetNull, CascadeDelete, CascadeReject:
		default:
			return FieldMeta{}, ErrValidation.Withf("unknown cascade %q", r.Cascade)
		}
		switch r.UpdateCascade {
		case "", UpdateCascadeUpdate, UpdateCascadeReject:
		default:
			return FieldMeta{}, ErrValidation.Withf("unknown update cascade %q", r.UpdateCascade)
		}
	}
	if meta.Default != "" {
		def, err := meta.Inspect(meta.Default)
		if err != nil {
			return FieldMeta{}, err
		}
		meta.Default = def
	}
	return meta, nil
}

// genericMeta fills the constraints every value type shares.
func genericMeta(typeName string, opts MetaOptions) FieldMeta {
	nullable := true
	if opts.Nullable != nil {
		nullable = *opts.Nullable
	}
	meta := FieldMeta{
		Type:     typeName,
		Nullable: nullable,
		Unique:   opts.Unique,
		Multiple: opts.Multiple,
		Default:  opts.Default,
	}
	if opts.Relation != nil && opts.Relation.Target != "" {
		r := *opts.Relation
		meta.Relation = &r
	}
	return meta
}

// HasRelation reports whether the metadata declares a relation.
func (m FieldMeta) HasRelation() bool {
	return m.Relation != nil && m.Relation.Target != ""
}

// Inspect validates raw against the metadata and returns the canonical
// payload to store. Empty input is the null value.
func (m FieldMeta) Inspect(raw string) (string, error) {
	vt, ok := LookupValueType(m.Type)
	if !ok {
		return "", ErrInvalidFieldType.Withf("%q", m.Type)
	}
	if raw == "" {
		if !m.Nullable {
			return "", ErrValidation.Withf("value cannot be empty")
		}
		return "", nil
	}
	return vt.Validate(raw, m)
}

// Compatible reports whether o has the same type and numeric and length
// constraints. Nullability is ignored.
func (m FieldMeta) Compatible(o FieldMeta) bool {
	return m.Type == o.Type && eqPtr(m.Min, o.Min) && eqPtr(m.Max, o.Max) && eqPtr(m.Len, o.Len)
}

// Equal reports whether m and o are compatible and, when withNullable is
// set, agree on nullability.
func (m FieldMeta) Equal(o FieldMeta, withNullable bool) bool {
	if !m.Compatible(o) {
		return false
	}
	return !withNullable || m.Nullable == o.Nullable
}

// Same reports whether every attribute of m and o matches.
func (m FieldMeta) Same(o FieldMeta) bool {
	return m.Equal(o, true) &&
		m.Unique == o.Unique &&
		m.Multiple == o.Multiple &&
		m.Default == o.Default &&
		m.RelationTarget() == o.RelationTarget() &&
		m.cascades() == o.cascades()
}

// RelationTarget returns the id of the related field, or "".
func (m FieldMeta) RelationTarget() string {
	if m.Relation == nil {
		return ""
	}
	return m.Relation.Target
}

func (m FieldMeta) cascades() [2]string {
	if m.Relation == nil {
		return [2]string{}
	}
	return [2]string{m.Relation.Cascade, m.Relation.UpdateCascade}
}

// Marshal encodes the metadata as the flat JSON document stored with a field.
func (m FieldMeta) Marshal() (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encoding field meta: %w", err)
	}
	return string(b), nil
}

// ParseMeta decodes a stored metadata document.
func ParseMeta(s string) (FieldMeta, error) {
	var m FieldMeta
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return FieldMeta{}, fmt.Errorf("decoding field meta: %w", err)
	}
	return m, nil
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// String implements fmt.Stringer for diagnostics.
func (m FieldMeta) String() string {
	s := fmt.Sprintf("%s(nullable=%t unique=%t multiple=%t", m.Type, m.Nullable, m.Unique, m.Multiple)
	if m.HasRelation() {
		s += " relation=" + m.Relation.Target
	}
	return s + ")"
}

// Options returns the MetaOptions that rebuild m with BuildMeta.
func (m FieldMeta) Options() MetaOptions {
	opts := MetaOptions{
		Nullable: Ptr(m.Nullable),
		Unique:   m.Unique,
		Multiple: m.Multiple,
		Default:  m.Default,
		Min:      m.Min,
		Max:      m.Max,
		Len:      m.Len,
	}
	if m.Relation != nil {
		r := *m.Relation
		opts.Relation = &r
	}
	return opts
}

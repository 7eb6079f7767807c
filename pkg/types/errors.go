package types

import (
	"errors"
	"fmt"
)

// Kind classifies an Error for callers that render or route failures.
type Kind int

// Error kinds.
const (
	KindNotFound Kind = iota + 1
	KindValidation
	KindSchemaIntegrity
	KindValueIntegrity
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindSchemaIntegrity:
		return "schema_integrity"
	case KindValueIntegrity:
		return "value_integrity"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Error is a typed failure with a stable numeric code. Two Errors match under
// errors.Is when their codes are equal, so a copy carrying extra detail still
// matches its sentinel.
type Error struct {
	Kind   Kind
	Code   int
	Msg    string
	Detail string
	Err    error // underlying cause, never rendered
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Msg
	}
	return e.Msg + ": " + e.Detail
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Withf returns a copy of e carrying a formatted detail.
func (e *Error) Withf(format string, args ...any) *Error {
	c := *e
	c.Detail = fmt.Sprintf(format, args...)
	return &c
}

// Wrap returns a copy of e that records cause. The cause is reachable through
// errors.Unwrap but does not appear in Error().
func (e *Error) Wrap(cause error) *Error {
	c := *e
	c.Err = cause
	return &c
}

func newError(kind Kind, code int, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

// Generic failures.
var (
	ErrNotFound = newError(KindNotFound, 1, "record does not exist")
	ErrStorage  = newError(KindStorage, 2, "internal storage error")
)

// Schema integrity errors, raised by field and schema lifecycle operations.
var (
	ErrRelationTargetMissing     = newError(KindSchemaIntegrity, 1101, "associated field does not exist")
	ErrNonUniqueForeignKey       = newError(KindSchemaIntegrity, 1102, "non unique field cannot be a foreign key")
	ErrIncompatibleRelation      = newError(KindSchemaIntegrity, 1103, "meta of the associated field does not match")
	ErrUniqueOnPopulatedSchema   = newError(KindSchemaIntegrity, 1104, "cannot add unique field, schema is not empty")
	ErrMissingDefault            = newError(KindSchemaIntegrity, 1105, "cannot add required field without default value")
	ErrHasDependents             = newError(KindSchemaIntegrity, 1106, "cannot delete field, other fields depend on it")
	ErrValuesNotUnique           = newError(KindSchemaIntegrity, 1107, "cannot set unique constraint, values are not unique")
	ErrMultipleValuesPresent     = newError(KindSchemaIntegrity, 1108, "cannot unset multiple, entities hold multiple values")
	ErrRelationTargetGone        = newError(KindSchemaIntegrity, 1109, "associated target field does not exist")
	ErrRelationTypeMismatch      = newError(KindSchemaIntegrity, 1110, "associated target field type does not match")
	ErrUniqueRequiredByDependent = newError(KindSchemaIntegrity, 1111, "cannot unset unique constraint, field has dependents")
	ErrRelationConflict          = newError(KindSchemaIntegrity, 1112, "existing values have no match on the associated field")
	ErrExistingValueMismatch     = newError(KindSchemaIntegrity, 1113, "cannot update field meta, existing values do not match")
	ErrInvalidFieldType          = newError(KindSchemaIntegrity, 1114, "illegal field type")
)

// Value level errors.
var (
	ErrValueNotFound        = newError(KindNotFound, 1301, "value does not exist")
	ErrValidation           = newError(KindValidation, 1302, "invalid value")
	ErrValueNotUnique       = newError(KindValueIntegrity, 1303, "invalid value, value is not unique")
	ErrRelationValueMissing = newError(KindValueIntegrity, 1304, "invalid value, associated value does not exist")
	ErrUpdateCascadeDenied  = newError(KindValueIntegrity, 1305, "cannot update value, it is used by associated fields")
	ErrValueInUse           = newError(KindValueIntegrity, 1306, "cannot delete value, it is used by associated fields")
	ErrCascadeCycle         = newError(KindValueIntegrity, 1307, "cascade cycle detected")
)

// KindOf classifies err. Errors that are not *Error are storage failures.
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

// CodeOf returns the numeric code carried by err, or the storage code for
// untyped errors.
func CodeOf(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrStorage.Code
}

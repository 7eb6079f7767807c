package types

import (
	"math"
	"net/netip"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Built-in value type names.
const (
	ValueTypeString   = "String"
	ValueTypeInt      = "Int"
	ValueTypeFloat    = "Float"
	ValueTypeDate     = "Date"
	ValueTypeDateTime = "DateTime"
	ValueTypeIP       = "Ip"
)

// Layouts accepted by the Date and DateTime value types.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05"
)

// ValueType is one entry of the type registry. Validate receives a non-empty
// raw payload and returns its canonical form; the null check is done by
// FieldMeta.Inspect before Validate is called.
type ValueType interface {
	Name() string
	Validate(raw string, meta FieldMeta) (string, error)
	DefaultMeta(opts MetaOptions) FieldMeta
}

var registry = struct {
	mu    sync.RWMutex
	types map[string]ValueType
}{types: make(map[string]ValueType)}

// RegisterValueType makes vt available to field metadata under vt.Name().
// It panics if the name is empty or already registered.
func RegisterValueType(vt ValueType) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	name := vt.Name()
	if name == "" {
		panic("types: RegisterValueType with empty name")
	}
	if _, dup := registry.types[name]; dup {
		panic("types: RegisterValueType called twice for " + name)
	}
	registry.types[name] = vt
}

// LookupValueType returns the registered value type with the given name.
func LookupValueType(name string) (ValueType, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	vt, ok := registry.types[name]
	return vt, ok
}

// ValueTypes returns the registered type names in sorted order.
func ValueTypes() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	names := make([]string, 0, len(registry.types))
	for name := range registry.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	RegisterValueType(stringType{})
	RegisterValueType(intType{})
	RegisterValueType(floatType{})
	RegisterValueType(layoutType{name: ValueTypeDate, layout: DateLayout})
	RegisterValueType(layoutType{name: ValueTypeDateTime, layout: DateTimeLayout})
	RegisterValueType(ipType{})
}

type stringType struct{}

func (stringType) Name() string { return ValueTypeString }

func (stringType) Validate(raw string, meta FieldMeta) (string, error) {
	if meta.Len != nil && utf8.RuneCountInString(raw) > *meta.Len {
		return "", ErrValidation.Withf("length of value exceeds %d", *meta.Len)
	}
	return raw, nil
}

func (stringType) DefaultMeta(opts MetaOptions) FieldMeta {
	meta := genericMeta(ValueTypeString, opts)
	meta.Len = opts.Len
	return meta
}

type intType struct{}

func (intType) Name() string { return ValueTypeInt }

func (intType) Validate(raw string, meta FieldMeta) (string, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return "", ErrValidation.Withf("%q is not an integer", raw)
	}
	if err := checkRange(float64(n), meta); err != nil {
		return "", err
	}
	return strconv.FormatInt(n, 10), nil
}

func (intType) DefaultMeta(opts MetaOptions) FieldMeta {
	meta := genericMeta(ValueTypeInt, opts)
	meta.Min, meta.Max = opts.Min, opts.Max
	return meta
}

type floatType struct{}

func (floatType) Name() string { return ValueTypeFloat }

func (floatType) Validate(raw string, meta FieldMeta) (string, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return "", ErrValidation.Withf("%q is not a number", raw)
	}
	if err := checkRange(f, meta); err != nil {
		return "", err
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

func (floatType) DefaultMeta(opts MetaOptions) FieldMeta {
	meta := genericMeta(ValueTypeFloat, opts)
	meta.Min, meta.Max = opts.Min, opts.Max
	return meta
}

// checkRange applies inclusive, optional bounds.
func checkRange(v float64, meta FieldMeta) error {
	if meta.Min != nil && v < *meta.Min {
		return ErrValidation.Withf("value cannot be less than %v", *meta.Min)
	}
	if meta.Max != nil && v > *meta.Max {
		return ErrValidation.Withf("value cannot be greater than %v", *meta.Max)
	}
	return nil
}

// layoutType validates calendar values against a fixed time layout.
type layoutType struct {
	name   string
	layout string
}

func (t layoutType) Name() string { return t.name }

func (t layoutType) Validate(raw string, _ FieldMeta) (string, error) {
	if _, err := time.Parse(t.layout, raw); err != nil {
		return "", ErrValidation.Withf("%q does not match %s", raw, t.layout)
	}
	return raw, nil
}

func (t layoutType) DefaultMeta(opts MetaOptions) FieldMeta {
	return genericMeta(t.name, opts)
}

type ipType struct{}

func (ipType) Name() string { return ValueTypeIP }

func (ipType) Validate(raw string, _ FieldMeta) (string, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return "", ErrValidation.Withf("%q is not a legal IP address", raw)
	}
	return addr.String(), nil
}

func (ipType) DefaultMeta(opts MetaOptions) FieldMeta {
	return genericMeta(ValueTypeIP, opts)
}

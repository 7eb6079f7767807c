package types

import (
	"fmt"
	"strconv"
)

// Input maps field names to the values supplied for an entity. A value is a
// scalar (string, number, bool or nil) or a list of scalars for multiple
// valued fields.
type Input map[string]any

// Strings normalizes one Input value into payload strings. A nil value is a
// single null payload; a list yields one payload per element.
func Strings(v any) ([]string, error) {
	switch t := v.(type) {
	case []string:
		return t, nil
	case []any:
		out := make([]string, 0, len(t))
		for i, item := range t {
			s, err := scalar(item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		s, err := scalar(v)
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	}
}

func scalar(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case fmt.Stringer:
		return t.String(), nil
	default:
		return "", ErrValidation.Withf("unsupported value of type %T", v)
	}
}

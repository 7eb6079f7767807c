package types

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"
)

// JoinValues renders the values of a multiple-valued field as one comma
// separated cell. Values holding a comma, a quote or a line break are quoted
// as in CSV, so SplitValues recovers them.
func JoinValues(values []string) string {
	if len(values) == 0 {
		return ""
	}
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	// Writes to a strings.Builder cannot fail.
	_ = w.Write(values)
	w.Flush()
	return strings.TrimSuffix(sb.String(), "\n")
}

// SplitValues parses a cell written by JoinValues. An empty cell holds no
// values.
func SplitValues(cell string) ([]string, error) {
	if cell == "" {
		return []string{}, nil
	}
	r := csv.NewReader(strings.NewReader(cell))
	r.LazyQuotes = true
	values, err := r.Read()
	if err != nil {
		return nil, ErrValidation.Withf("list %q: %v", cell, err)
	}
	if _, err := r.Read(); !errors.Is(err, io.EOF) {
		return nil, ErrValidation.Withf("list %q: unquoted line break", cell)
	}
	return values, nil
}

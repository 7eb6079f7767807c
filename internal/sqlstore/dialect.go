package sqlstore

import (
	"strconv"
	"strings"

	"github.com/mesh-intelligence/cmdb/pkg/types"
)

// dialect adapts the statements of this package, written with ? placeholders,
// to the driver in use.
type dialect struct {
	numbered bool
}

func dialectFor(backend string) dialect {
	return dialect{numbered: backend == types.BackendPostgres}
}

// writeLockKey is the advisory lock every postgres write transaction holds.
const writeLockKey = 0x636d6462

// writeLock returns the statement that serializes write transactions across
// every client of the database, or "" when the database does it itself.
// SQLite allows a single writer per file.
func (d dialect) writeLock() string {
	if !d.numbered {
		return ""
	}
	return "SELECT pg_advisory_xact_lock(" + strconv.Itoa(writeLockKey) + ")"
}

// rebind rewrites ? placeholders as $1, $2, ... for numbered dialects.
func (d dialect) rebind(query string) string {
	if !d.numbered || !strings.Contains(query, "?") {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// placeholders returns n comma separated ? markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// likePattern escapes s for use as a LIKE substring pattern with ESCAPE '\'.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

package sqlstore

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mesh-intelligence/cmdb/pkg/types"
)

// JSONL file names written by Dump and read by Restore.
const (
	SchemasJSONL  = "schemas.jsonl"
	FieldsJSONL   = "fields.jsonl"
	EntitiesJSONL = "entities.jsonl"
	ValuesJSONL   = "values.jsonl"
)

// ErrNotEmpty is returned by Restore when the database already holds rows.
var ErrNotEmpty = errors.New("database is not empty")

// readJSONL reads a JSONL file and returns each non-empty, parseable line as
// a json.RawMessage. Malformed lines are skipped. A missing file reads as
// empty.
func readJSONL(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var records []json.RawMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 || !json.Valid(line) {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		records = append(records, json.RawMessage(cp))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return records, nil
}

// writeJSONL atomically writes records to a JSONL file using the temp-file,
// fsync, rename pattern.
func writeJSONL(path string, records []json.RawMessage) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		if _, err := w.Write(rec); err != nil {
			return fail(fmt.Errorf("writing record: %w", err))
		}
		if err := w.WriteByte('\n'); err != nil {
			return fail(fmt.Errorf("writing newline: %w", err))
		}
	}
	if err := w.Flush(); err != nil {
		return fail(fmt.Errorf("flushing buffer: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("syncing temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

func encodeAll[T any](items []T) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		b, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func decodeAll[T any](records []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(records))
	for i, rec := range records {
		var item T
		if err := json.Unmarshal(rec, &item); err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}
		out = append(out, item)
	}
	return out, nil
}

// Dump writes every row of the four tables, tombstones included, to JSONL
// files in dir.
func (b *Backend) Dump(ctx context.Context, dir string) error {
	q, err := b.Read()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating dump dir: %w", err)
	}

	dumps := []struct {
		file  string
		query string
		scan  func(context.Context, *Queries, string) ([]json.RawMessage, error)
	}{
		{SchemasJSONL, "SELECT " + schemaColumns + " FROM schemas ORDER BY schema_id", dumpRows(scanSchema)},
		{FieldsJSONL, "SELECT " + fieldColumns + " FROM fields ORDER BY field_id", dumpRows(scanField)},
		{EntitiesJSONL, "SELECT " + entityColumns + " FROM entities ORDER BY entity_id", dumpRows(scanEntity)},
		{ValuesJSONL, "SELECT " + valueColumns + " FROM field_values ORDER BY value_id", dumpRows(scanValue)},
	}
	for _, d := range dumps {
		records, err := d.scan(ctx, q, d.query)
		if err != nil {
			return fmt.Errorf("dumping %s: %w", d.file, err)
		}
		if err := writeJSONL(filepath.Join(dir, d.file), records); err != nil {
			return fmt.Errorf("dumping %s: %w", d.file, err)
		}
	}
	return nil
}

func dumpRows[T any](scan func(scanner) (T, error)) func(context.Context, *Queries, string) ([]json.RawMessage, error) {
	return func(ctx context.Context, q *Queries, query string) ([]json.RawMessage, error) {
		rows, err := q.query(ctx, query)
		if err != nil {
			return nil, err
		}
		items, err := collect(rows, scan)
		if err != nil {
			return nil, err
		}
		return encodeAll(items)
	}
}

// Restore loads the JSONL files written by Dump into an empty database in
// one transaction.
func (b *Backend) Restore(ctx context.Context, dir string) error {
	var (
		schemas  []types.Schema
		fields   []types.Field
		entities []types.Entity
		values   []types.Value
	)
	if err := load(filepath.Join(dir, SchemasJSONL), &schemas); err != nil {
		return err
	}
	if err := load(filepath.Join(dir, FieldsJSONL), &fields); err != nil {
		return err
	}
	if err := load(filepath.Join(dir, EntitiesJSONL), &entities); err != nil {
		return err
	}
	if err := load(filepath.Join(dir, ValuesJSONL), &values); err != nil {
		return err
	}

	return b.WithTx(ctx, func(q *Queries) error {
		n, err := q.count(ctx, "SELECT (SELECT COUNT(*) FROM schemas) + (SELECT COUNT(*) FROM entities)")
		if err != nil {
			return fmt.Errorf("checking database: %w", err)
		}
		if n > 0 {
			return ErrNotEmpty
		}
		for _, s := range schemas {
			if err := q.InsertSchema(ctx, s); err != nil {
				return err
			}
		}
		for _, f := range fields {
			if err := q.InsertField(ctx, f); err != nil {
				return err
			}
		}
		for _, e := range entities {
			if err := q.InsertEntity(ctx, e); err != nil {
				return err
			}
		}
		for _, v := range values {
			if err := q.InsertValue(ctx, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func load[T any](path string, dst *[]T) error {
	records, err := readJSONL(path)
	if err != nil {
		return err
	}
	items, err := decodeAll[T](records)
	if err != nil {
		return fmt.Errorf("loading %s: %w", filepath.Base(path), err)
	}
	*dst = items
	return nil
}

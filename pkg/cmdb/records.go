package cmdb

import (
	"context"
	"iter"
	"sort"
	"strings"

	"github.com/mesh-intelligence/cmdb/internal/sqlstore"
	"github.com/mesh-intelligence/cmdb/pkg/types"
)

// inline is a relation field whose target record is copied into the
// projection under "<field><column>" names.
type inline struct {
	field   types.Field
	target  types.Field
	columns []types.Field
}

// projection is a resolved RecordQuery.
type projection struct {
	fields  []types.Field
	inlines []inline
	filter  sqlstore.EntityFilter
}

func planProjection(ctx context.Context, q *sqlstore.Queries, rq types.RecordQuery, withRelations bool) (*projection, error) {
	if _, err := q.GetSchema(ctx, rq.SchemaID); err != nil {
		return nil, err
	}
	all, err := q.SchemaFields(ctx, rq.SchemaID)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]types.Field, len(all))
	for _, f := range all {
		byName[f.Name] = f
	}

	p := &projection{fields: all, filter: sqlstore.EntityFilter{SchemaID: rq.SchemaID}}
	if len(rq.Fields) > 0 {
		p.fields = make([]types.Field, 0, len(rq.Fields))
		for _, name := range rq.Fields {
			f, ok := byName[name]
			if !ok {
				return nil, types.ErrValidation.Withf("unknown field %q", name)
			}
			p.fields = append(p.fields, f)
		}
	}

	names := make([]string, 0, len(rq.Match))
	for name := range rq.Match {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f, ok := byName[name]
		if !ok {
			return nil, types.ErrValidation.Withf("unknown field %q", name)
		}
		p.filter.Match = append(p.filter.Match, sqlstore.Predicate{FieldID: f.FieldID, Substring: rq.Match[name]})
	}

	if !withRelations {
		return p, nil
	}
	used := 0
	for _, f := range p.fields {
		if f.Ref == "" {
			continue
		}
		wanted, requested := rq.Relations[f.Name]
		if rq.Relations != nil && !requested {
			continue
		}
		used++
		in, err := planInline(ctx, q, f, wanted)
		if err != nil {
			return nil, err
		}
		p.inlines = append(p.inlines, in)
	}
	if used < len(rq.Relations) {
		for name := range rq.Relations {
			if f, ok := byName[name]; !ok || f.Ref == "" {
				return nil, types.ErrValidation.Withf("%q is not a projected relation field", name)
			}
		}
		return nil, types.ErrValidation.Withf("relations name fields that are not projected")
	}
	return p, nil
}

func planInline(ctx context.Context, q *sqlstore.Queries, f types.Field, wanted []string) (inline, error) {
	target, err := q.GetField(ctx, f.Ref)
	if err != nil {
		return inline{}, err
	}
	siblings, err := q.SchemaFields(ctx, target.SchemaID)
	if err != nil {
		return inline{}, err
	}
	in := inline{field: f, target: target}
	if len(wanted) == 0 {
		for _, s := range siblings {
			if s.FieldID != target.FieldID {
				in.columns = append(in.columns, s)
			}
		}
		return in, nil
	}
	for _, name := range wanted {
		found := false
		for _, s := range siblings {
			if s.Name == name {
				in.columns = append(in.columns, s)
				found = true
				break
			}
		}
		if !found {
			return inline{}, types.ErrValidation.Withf("unknown field %q of relation %s", name, f.Name)
		}
	}
	return in, nil
}

// header returns the column names of the projection in row order.
func (p *projection) header() []string {
	out := make([]string, 0, len(p.fields))
	for _, f := range p.fields {
		out = append(out, f.Name)
	}
	for _, in := range p.inlines {
		for _, c := range in.columns {
			out = append(out, in.field.Name+c.Name)
		}
	}
	return out
}

// fieldValues groups payloads by entity and field, keeping value order.
type fieldValues map[string]map[string][]string

func groupValues(values []types.Value) fieldValues {
	out := make(fieldValues)
	for _, v := range values {
		m, ok := out[v.EntityID]
		if !ok {
			m = make(map[string][]string)
			out[v.EntityID] = m
		}
		m[v.FieldID] = append(m[v.FieldID], v.Payload)
	}
	return out
}

// shape renders payloads as a string for single-valued fields and as a
// list for multiple-valued ones.
func shape(multiple bool, payloads []string) any {
	if multiple {
		return append([]string{}, payloads...)
	}
	if len(payloads) == 0 {
		return ""
	}
	return payloads[0]
}

// records flattens a batch of entities.
func (p *projection) records(ctx context.Context, q *sqlstore.Queries, ents []types.Entity) ([]types.Record, error) {
	if len(ents) == 0 {
		return nil, nil
	}
	ids := make([]string, len(ents))
	for i, ent := range ents {
		ids[i] = ent.EntityID
	}
	values, err := q.ValuesOfEntities(ctx, ids)
	if err != nil {
		return nil, err
	}
	grouped := groupValues(values)
	targets := newTargetCache(q)

	out := make([]types.Record, 0, len(ents))
	for _, ent := range ents {
		rec := types.Record{
			EntityID:  ent.EntityID,
			Key:       ent.Key,
			CreatedAt: ent.CreatedAt,
			UpdatedAt: ent.UpdatedAt,
			Fields:    make(map[string]any, len(p.fields)),
		}
		own := grouped[ent.EntityID]
		for _, f := range p.fields {
			rec.Fields[f.Name] = shape(f.Meta.Multiple, own[f.FieldID])
		}
		for _, in := range p.inlines {
			payloads := own[in.field.FieldID]
			cells := make(map[string][]string, len(in.columns))
			for _, payload := range payloads {
				linked, err := targets.lookup(ctx, in.target.FieldID, payload)
				if err != nil {
					return nil, err
				}
				for _, c := range in.columns {
					cells[c.FieldID] = append(cells[c.FieldID], strings.Join(linked[c.FieldID], ","))
				}
			}
			for _, c := range in.columns {
				rec.Fields[in.field.Name+c.Name] = shape(in.field.Meta.Multiple, cells[c.FieldID])
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// row renders a record in header order. Lists are joined with
// types.JoinValues.
func row(header []string, rec types.Record) []string {
	out := make([]string, len(header))
	for i, name := range header {
		switch v := rec.Fields[name].(type) {
		case string:
			out[i] = v
		case []string:
			out[i] = types.JoinValues(v)
		}
	}
	return out
}

func (p *projection) fetch(q *sqlstore.Queries) sqlstore.FetchFunc[types.Record] {
	return func(ctx context.Context, limit, offset int) ([]types.Record, error) {
		ents, err := q.ListEntities(ctx, p.filter, limit, offset)
		if err != nil {
			return nil, err
		}
		return p.records(ctx, q, ents)
	}
}

// targetCache resolves relation payloads to the values of the record that
// holds them on the target field.
type targetCache struct {
	q    *sqlstore.Queries
	seen map[[2]string]map[string][]string
}

func newTargetCache(q *sqlstore.Queries) *targetCache {
	return &targetCache{q: q, seen: make(map[[2]string]map[string][]string)}
}

func (c *targetCache) lookup(ctx context.Context, targetID, payload string) (map[string][]string, error) {
	if payload == "" {
		return nil, nil
	}
	key := [2]string{targetID, payload}
	if m, ok := c.seen[key]; ok {
		return m, nil
	}
	matches, err := c.q.MatchingValues(ctx, targetID, payload)
	if err != nil {
		return nil, err
	}
	var m map[string][]string
	if len(matches) > 0 {
		values, err := c.q.AllEntityValues(ctx, matches[0].EntityID)
		if err != nil {
			return nil, err
		}
		m = groupValues(values)[matches[0].EntityID]
	}
	c.seen[key] = m
	return m, nil
}

func (e *Engine) listRecords(ctx context.Context, op string, rq types.RecordQuery, withRelations bool, page, size int) ([]types.Record, types.Pagination, error) {
	q, err := e.read(op)
	if err != nil {
		return nil, types.Pagination{}, err
	}
	p, err := planProjection(ctx, q, rq, withRelations)
	if err != nil {
		return nil, types.Pagination{}, e.fail(op, err)
	}
	items, pg, err := sqlstore.Paginate(ctx, page, size,
		func(ctx context.Context) (int, error) { return q.CountEntities(ctx, p.filter) },
		p.fetch(q),
	)
	if err != nil {
		return nil, types.Pagination{}, e.fail(op, err)
	}
	return items, pg, nil
}

func (e *Engine) iterateRecords(ctx context.Context, op string, rq types.RecordQuery, withRelations bool) iter.Seq2[types.Record, error] {
	return iterateWith(ctx, e, op, func(q *sqlstore.Queries) sqlstore.FetchFunc[types.Record] {
		var p *projection
		return func(ctx context.Context, limit, offset int) ([]types.Record, error) {
			if p == nil {
				var err error
				if p, err = planProjection(ctx, q, rq, withRelations); err != nil {
					return nil, err
				}
			}
			return p.fetch(q)(ctx, limit, offset)
		}
	})
}

// ListRecords returns one page of flattened records of a schema.
func (e *Engine) ListRecords(ctx context.Context, rq types.RecordQuery, page, size int) ([]types.Record, types.Pagination, error) {
	return e.listRecords(ctx, "list records", rq, false, page, size)
}

// ListRelationRecords is ListRecords with related records inlined.
func (e *Engine) ListRelationRecords(ctx context.Context, rq types.RecordQuery, page, size int) ([]types.Record, types.Pagination, error) {
	return e.listRecords(ctx, "list relation records", rq, true, page, size)
}

// IterateRecords walks every flattened record of a schema.
func (e *Engine) IterateRecords(ctx context.Context, rq types.RecordQuery) iter.Seq2[types.Record, error] {
	return e.iterateRecords(ctx, "iterate records", rq, false)
}

// IterateRelationRecords is IterateRecords with related records inlined.
func (e *Engine) IterateRelationRecords(ctx context.Context, rq types.RecordQuery) iter.Seq2[types.Record, error] {
	return e.iterateRecords(ctx, "iterate relation records", rq, true)
}

// GetRecord returns the flattened record of one entity.
func (e *Engine) GetRecord(ctx context.Context, id string) (types.Record, error) {
	q, err := e.read("get record")
	if err != nil {
		return types.Record{}, err
	}
	ent, err := q.GetEntity(ctx, id)
	if err != nil {
		return types.Record{}, e.fail("get record", err)
	}
	p, err := planProjection(ctx, q, types.RecordQuery{SchemaID: ent.SchemaID}, false)
	if err != nil {
		return types.Record{}, e.fail("get record", err)
	}
	recs, err := p.records(ctx, q, []types.Entity{ent})
	if err != nil {
		return types.Record{}, e.fail("get record", err)
	}
	return recs[0], nil
}

// Export streams a schema as a table: the header names the columns and each
// row holds one record, with multiple values joined by types.JoinValues.
func (e *Engine) Export(ctx context.Context, rq types.RecordQuery, withRelations bool) ([]string, iter.Seq2[[]string, error], error) {
	q, err := e.read("export")
	if err != nil {
		return nil, nil, err
	}
	p, err := planProjection(ctx, q, rq, withRelations)
	if err != nil {
		return nil, nil, e.fail("export", err)
	}
	header := p.header()
	rows := func(yield func([]string, error) bool) {
		for rec, err := range sqlstore.Iterate(ctx, e.batchSize, p.fetch(q)) {
			if err != nil {
				yield(nil, e.fail("export", err))
				return
			}
			if !yield(row(header, rec), nil) {
				return
			}
		}
	}
	return header, rows, nil
}

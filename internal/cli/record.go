package cli

import (
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cmdb/pkg/types"
)

func newRecordCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Query the flattened records of a schema",
	}
	cmd.AddCommand(newRecordListCmd(a, false), newRecordListCmd(a, true))
	return cmd
}

// queryFlags select and filter the records of a schema.
type queryFlags struct {
	fields    []string
	matches   []string
	relations []string
}

func (q *queryFlags) bind(cmd *cobra.Command, withRelations bool) {
	cmd.Flags().StringSliceVarP(&q.fields, "field", "f", nil, "fields to project, in order (default: all)")
	cmd.Flags().StringArrayVarP(&q.matches, "match", "m", nil, "keep records whose field contains a substring, as name=substring (repeatable)")
	if withRelations {
		cmd.Flags().StringArrayVarP(&q.relations, "relation", "r", nil, "relation to inline, as field or field=col1,col2 (default: all)")
	}
}

// query resolves the schema and builds the RecordQuery.
func (q *queryFlags) query(cmd *cobra.Command, a *app, schemaRef string) (types.RecordQuery, error) {
	match, err := parseMatches(q.matches)
	if err != nil {
		return types.RecordQuery{}, err
	}
	e, err := a.open(cmd.Context())
	if err != nil {
		return types.RecordQuery{}, err
	}
	s, err := e.ResolveSchema(cmd.Context(), schemaRef)
	if err != nil {
		return types.RecordQuery{}, err
	}
	return types.RecordQuery{
		SchemaID:  s.SchemaID,
		Fields:    q.fields,
		Match:     match,
		Relations: parseRelations(q.relations),
	}, nil
}

func newRecordListCmd(a *app, withRelations bool) *cobra.Command {
	var (
		qf         queryFlags
		page, size int
	)
	cmd := &cobra.Command{
		Use:   "list <schema>",
		Short: "List records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rq, err := qf.query(cmd, a, args[0])
			if err != nil {
				return err
			}
			list := a.engine.ListRecords
			if withRelations {
				list = a.engine.ListRelationRecords
			}
			items, p, err := list(cmd.Context(), rq, page, size)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"items": items, "pagination": p})
		},
	}
	if withRelations {
		cmd.Use = "relations <schema>"
		cmd.Short = "List records with their related records inlined"
		cmd.Long = `List records with their related records inlined. A relation field
"owner" pointing at Host.name adds the columns of the Host record it names
as "owner<column>".`
	}
	qf.bind(cmd, withRelations)
	addPageFlags(cmd, &page, &size)
	return cmd
}

func newValueCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "value",
		Short: "Inspect stored values",
	}
	var page, size int
	list := &cobra.Command{
		Use:   "list <field>",
		Short: "List the values of a field",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			f, err := e.ResolveField(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			items, p, err := e.ListValues(cmd.Context(), f.FieldID, page, size)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.flags.jsonMode {
				return printJSON(out, map[string]any{"items": items, "pagination": p})
			}
			rows := make([][]string, len(items))
			for i, v := range items {
				rows[i] = []string{v.ValueID, v.EntityID, v.Payload}
			}
			if err := printTable(out, []string{"ID", "ENTITY", "PAYLOAD"}, rows); err != nil {
				return err
			}
			printPage(out, p)
			return nil
		},
	}
	addPageFlags(list, &page, &size)
	cmd.AddCommand(list)
	return cmd
}

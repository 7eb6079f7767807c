package cli

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cmdb/pkg/cmdb"
	"github.com/mesh-intelligence/cmdb/pkg/types"
)

func newFieldCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "field",
		Short: "Manage the fields of a schema",
		Long: `Manage the fields of a schema.

A field is named by its id or as <schema>.<field>, where the schema part is
a schema id or name.`,
	}
	cmd.AddCommand(newFieldAddCmd(a), newFieldUpdateCmd(a), newFieldDeleteCmd(a), newFieldListCmd(a), newFieldUniqueCmd(a))
	return cmd
}

// metaFlags are the constraint flags shared by field add and field update.
type metaFlags struct {
	required      bool
	unique        bool
	multiple      bool
	def           string
	min, max      float64
	length        int
	relation      string
	cascade       string
	updateCascade string
	noRelation    bool
}

func (m *metaFlags) bind(cmd *cobra.Command, withDrop bool) {
	f := cmd.Flags()
	f.BoolVar(&m.required, "required", false, "values may not be empty")
	f.BoolVar(&m.unique, "unique", false, "values must be unique")
	f.BoolVar(&m.multiple, "multiple", false, "an entity may hold several values")
	f.StringVar(&m.def, "default", "", "default value")
	f.Float64Var(&m.min, "min", 0, "inclusive lower bound (Int, Float)")
	f.Float64Var(&m.max, "max", 0, "inclusive upper bound (Int, Float)")
	f.IntVar(&m.length, "len", 0, "maximum length (String)")
	f.StringVar(&m.relation, "relation", "", "related unique field, as <schema>.<field> or an id")
	f.StringVar(&m.cascade, "cascade", "", "on delete of the related value: set_null, delete or reject")
	f.StringVar(&m.updateCascade, "update-cascade", "", "on update of the related value: update or reject")
	if withDrop {
		f.BoolVar(&m.noRelation, "no-relation", false, "remove the relation")
	}
}

// changed reports whether any constraint flag was given.
func (m *metaFlags) changed(cmd *cobra.Command) bool {
	for _, name := range []string{"required", "unique", "multiple", "default", "min", "max", "len", "relation", "cascade", "update-cascade", "no-relation"} {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			return true
		}
	}
	return false
}

// overlay applies the given flags to opts. Relation targets are resolved
// through e.
func (m *metaFlags) overlay(ctx context.Context, cmd *cobra.Command, e *cmdb.Engine, opts *types.MetaOptions) error {
	f := cmd.Flags()
	if f.Changed("required") {
		opts.Nullable = types.Ptr(!m.required)
	}
	if f.Changed("unique") {
		opts.Unique = m.unique
	}
	if f.Changed("multiple") {
		opts.Multiple = m.multiple
	}
	if f.Changed("default") {
		opts.Default = m.def
	}
	if f.Changed("min") {
		opts.Min = types.Ptr(m.min)
	}
	if f.Changed("max") {
		opts.Max = types.Ptr(m.max)
	}
	if f.Changed("len") {
		opts.Len = types.Ptr(m.length)
	}
	if m.noRelation {
		opts.Relation = nil
		return nil
	}
	if f.Changed("relation") {
		target, err := e.ResolveField(ctx, m.relation)
		if err != nil {
			return err
		}
		opts.Relation = &types.Relation{Target: target.FieldID}
	}
	if f.Changed("cascade") || f.Changed("update-cascade") {
		if opts.Relation == nil {
			return types.ErrValidation.Withf("cascade policies need a relation")
		}
		r := *opts.Relation
		if f.Changed("cascade") {
			r.Cascade = m.cascade
		}
		if f.Changed("update-cascade") {
			r.UpdateCascade = m.updateCascade
		}
		opts.Relation = &r
	}
	return nil
}

func newFieldAddCmd(a *app) *cobra.Command {
	var (
		typ, description string
		meta             metaFlags
	)
	cmd := &cobra.Command{
		Use:   "add <schema> <name>",
		Short: "Add a field to a schema",
		Long: `Add a field to a schema. On a schema that already holds entities the
field may not be unique, a required field needs a default, and every entity
receives the default value.`,
		Example: `  cmdb field add Host name --type String --unique --required
  cmdb field add Service owner --type String --relation Host.name --cascade set_null`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := a.open(ctx)
			if err != nil {
				return err
			}
			s, err := e.ResolveSchema(ctx, args[0])
			if err != nil {
				return err
			}
			var opts types.MetaOptions
			if err := meta.overlay(ctx, cmd, e, &opts); err != nil {
				return err
			}
			f, err := e.CreateField(ctx, s.SchemaID, cmdb.FieldInput{
				Name:        args[1],
				Description: description,
				Type:        typ,
				Options:     opts,
			})
			if err != nil {
				return err
			}
			return a.report(cmd, f, "Added field %s.%s (%s) %s", s.Name, f.Name, f.FieldID, f.Meta)
		},
	}
	cmd.Flags().StringVarP(&typ, "type", "t", types.ValueTypeString, "value type, one of the registered types")
	cmd.Flags().StringVarP(&description, "description", "d", "", "field description")
	meta.bind(cmd, false)
	return cmd
}

func newFieldUpdateCmd(a *app) *cobra.Command {
	var (
		name, typ, description string
		meta                   metaFlags
	)
	cmd := &cobra.Command{
		Use:   "update <field>",
		Short: "Rename a field or change its type and constraints",
		Long: `Rename a field or change its type and constraints. Constraint flags
that are not given keep their current value. The change is refused when
stored values or related fields cannot follow it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := a.open(ctx)
			if err != nil {
				return err
			}
			f, err := e.ResolveField(ctx, args[0])
			if err != nil {
				return err
			}
			var upd cmdb.FieldUpdate
			if cmd.Flags().Changed("name") {
				upd.Name = &name
			}
			if cmd.Flags().Changed("description") {
				upd.Description = &description
			}
			if cmd.Flags().Changed("type") {
				upd.Type = &typ
			}
			if meta.changed(cmd) {
				opts := f.Meta.Options()
				if err := meta.overlay(ctx, cmd, e, &opts); err != nil {
					return err
				}
				upd.Options = &opts
			}
			if f, err = e.UpdateField(ctx, f.FieldID, upd); err != nil {
				return err
			}
			return a.report(cmd, f, "Updated field %s %s", f.Name, f.Meta)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new field name")
	cmd.Flags().StringVarP(&typ, "type", "t", "", "new value type")
	cmd.Flags().StringVarP(&description, "description", "d", "", "new field description")
	meta.bind(cmd, true)
	return cmd
}

func newFieldDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <field>",
		Short: "Delete a field and its values",
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
			if err := e.DeleteField(cmd.Context(), f.FieldID); err != nil {
				return err
			}
			return a.report(cmd, f, "Deleted field %s", f.Name)
		},
	}
}

func newFieldListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list <schema>",
		Short: "List the fields of a schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			s, err := e.ResolveSchema(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fields, err := e.ListFields(cmd.Context(), types.FieldFilter{SchemaID: s.SchemaID})
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), fields)
			}
			rows := make([][]string, len(fields))
			for i, f := range fields {
				rows[i] = []string{
					f.FieldID, f.Name, f.Meta.Type,
					strconv.FormatBool(!f.Meta.Nullable),
					strconv.FormatBool(f.Meta.Unique),
					strconv.FormatBool(f.Meta.Multiple),
					f.Ref,
				}
			}
			return printTable(cmd.OutOrStdout(), []string{"ID", "NAME", "TYPE", "REQUIRED", "UNIQUE", "MULTIPLE", "RELATION"}, rows)
		},
	}
}

func newFieldUniqueCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unique <schema>",
		Short: "List the unique fields of a schema, the possible relation targets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			s, err := e.ResolveSchema(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			opts, err := e.UniqueFields(cmd.Context(), s.SchemaID)
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), opts)
			}
			rows := make([][]string, len(opts))
			for i, o := range opts {
				rows[i] = []string{o.FieldID, s.Name + "." + o.Name}
			}
			return printTable(cmd.OutOrStdout(), []string{"ID", "FIELD"}, rows)
		},
	}
}

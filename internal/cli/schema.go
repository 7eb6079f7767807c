package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cmdb/pkg/cmdb"
	"github.com/mesh-intelligence/cmdb/pkg/types"
)

func newSchemaCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Create, update, delete and list schemas",
	}
	cmd.AddCommand(newSchemaCreateCmd(a), newSchemaUpdateCmd(a), newSchemaDeleteCmd(a), newSchemaListCmd(a))
	return cmd
}

func newSchemaCreateCmd(a *app) *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			s, err := e.CreateSchema(cmd.Context(), args[0], description)
			if err != nil {
				return err
			}
			return a.report(cmd, s, "Created schema %s (%s)", s.Name, s.SchemaID)
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "schema description")
	return cmd
}

func newSchemaUpdateCmd(a *app) *cobra.Command {
	var name, description string
	cmd := &cobra.Command{
		Use:   "update <schema>",
		Short: "Rename a schema or change its description",
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
			var upd cmdb.SchemaUpdate
			if cmd.Flags().Changed("name") {
				upd.Name = &name
			}
			if cmd.Flags().Changed("description") {
				upd.Description = &description
			}
			if s, err = e.UpdateSchema(cmd.Context(), s.SchemaID, upd); err != nil {
				return err
			}
			return a.report(cmd, s, "Updated schema %s", s.Name)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new schema name")
	cmd.Flags().StringVarP(&description, "description", "d", "", "new schema description")
	return cmd
}

func newSchemaDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <schema>",
		Short: "Delete a schema with its fields and entities",
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
			if err := e.DeleteSchema(cmd.Context(), s.SchemaID); err != nil {
				return err
			}
			return a.report(cmd, s, "Deleted schema %s", s.Name)
		},
	}
}

func newSchemaListCmd(a *app) *cobra.Command {
	var (
		filter       types.SchemaFilter
		createdAfter string
		page, size   int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if createdAfter != "" {
				t, err := time.ParseInLocation(types.DateTimeLayout, createdAfter, time.UTC)
				if err != nil {
					return types.ErrValidation.Withf("--created-after %q does not match %s", createdAfter, types.DateTimeLayout)
				}
				filter.CreatedAfter = t
			}
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			items, p, err := e.ListSchemas(cmd.Context(), filter, page, size)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.flags.jsonMode {
				return printJSON(out, map[string]any{"items": items, "pagination": p})
			}
			rows := make([][]string, len(items))
			for i, s := range items {
				rows[i] = []string{s.SchemaID, s.Name, s.Description, s.CreatedAt.Format(types.DateTimeLayout)}
			}
			if err := printTable(out, []string{"ID", "NAME", "DESCRIPTION", "CREATED"}, rows); err != nil {
				return err
			}
			printPage(out, p)
			return nil
		},
	}
	cmd.Flags().StringVar(&filter.Name, "name", "", "name substring")
	cmd.Flags().StringVar(&filter.Description, "description", "", "description substring")
	cmd.Flags().StringVar(&createdAfter, "created-after", "", "only schemas created after this UTC time ("+types.DateTimeLayout+")")
	addPageFlags(cmd, &page, &size)
	return cmd
}

func addPageFlags(cmd *cobra.Command, page, size *int) {
	cmd.Flags().IntVar(page, "page", 1, "page number")
	cmd.Flags().IntVar(size, "size", types.DefaultPageSize, "page size (at most 100)")
}

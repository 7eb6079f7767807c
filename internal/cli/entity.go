package cli

import (
	"github.com/spf13/cobra"
)

func newEntityCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entity",
		Short: "Create, update, delete and show entities",
		Long: `Create, update, delete and show entities.

Values are given as --set name=value. Repeating a name gives a
multiple-valued field several values; an empty value is the null value.`,
	}
	cmd.AddCommand(newEntityCreateCmd(a), newEntityUpdateCmd(a), newEntityDeleteCmd(a), newEntityGetCmd(a))
	return cmd
}

func newEntityCreateCmd(a *app) *cobra.Command {
	var sets []string
	cmd := &cobra.Command{
		Use:     "create <schema>",
		Short:   "Create an entity",
		Example: `  cmdb entity create Host --set name=web-1 --set ip=10.0.0.1`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := parseAssignments(sets)
			if err != nil {
				return err
			}
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			s, err := e.ResolveSchema(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			ent, err := e.CreateEntity(cmd.Context(), s.SchemaID, input)
			if err != nil {
				return err
			}
			return a.report(cmd, ent, "Created entity %s", ent.EntityID)
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field value as name=value (repeatable)")
	return cmd
}

func newEntityUpdateCmd(a *app) *cobra.Command {
	var sets []string
	cmd := &cobra.Command{
		Use:   "update <entity-id>",
		Short: "Change the values of an entity",
		Long: `Change the values of the named fields of an entity. The values of a
multiple-valued field are replaced in order: existing values are updated,
extra values added and surplus values deleted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := parseAssignments(sets)
			if err != nil {
				return err
			}
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			ent, err := e.UpdateEntity(cmd.Context(), args[0], input)
			if err != nil {
				return err
			}
			return a.report(cmd, ent, "Updated entity %s", ent.EntityID)
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field value as name=value (repeatable)")
	return cmd
}

func newEntityDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <entity-id>",
		Short: "Delete an entity, applying the delete cascades of related fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := e.DeleteEntity(cmd.Context(), args[0]); err != nil {
				return err
			}
			return a.report(cmd, map[string]string{"entity_id": args[0]}, "Deleted entity %s", args[0])
		},
	}
}

func newEntityGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <entity-id>",
		Short: "Show the record of an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			rec, err := e.GetRecord(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
}

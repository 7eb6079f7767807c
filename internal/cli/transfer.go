package cli

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cmdb/pkg/cmdb"
	"github.com/mesh-intelligence/cmdb/pkg/types"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		qf            queryFlags
		output        string
		withRelations bool
	)
	cmd := &cobra.Command{
		Use:   "export <schema>",
		Short: "Write the records of a schema as CSV",
		Long: `Write the records of a schema as CSV. The first row names the columns;
the values of a multiple-valued field are comma joined in one cell, and a
value holding a comma or a quote is quoted inside the cell the way CSV quotes
fields.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			rq, err := qf.query(cmd, a, args[0])
			if err != nil {
				return err
			}
			header, rows, err := a.engine.Export(cmd.Context(), rq, withRelations || len(rq.Relations) > 0)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return sysErrorf("create %s: %w", output, err)
				}
				defer func() {
					if cerr := f.Close(); err == nil && cerr != nil {
						err = sysErrorf("close %s: %w", output, cerr)
					}
				}()
				out = f
			}

			w := csv.NewWriter(out)
			if err := w.Write(header); err != nil {
				return sysErrorf("write csv: %w", err)
			}
			n := 0
			for row, err := range rows {
				if err != nil {
					return err
				}
				if err := w.Write(row); err != nil {
					return sysErrorf("write csv: %w", err)
				}
				n++
			}
			w.Flush()
			if err := w.Error(); err != nil {
				return sysErrorf("write csv: %w", err)
			}
			if output != "" && output != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d records to %s\n", n, output)
			}
			return nil
		},
	}
	qf.bind(cmd, true)
	cmd.Flags().BoolVar(&withRelations, "relations", false, "inline every related record")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "import <schema>",
		Short: "Create entities from CSV rows",
		Long: `Create one entity per CSV row. The header names the fields; columns that
are not fields of the schema are ignored. Cells of multiple-valued fields are
split on commas outside quotes, the format export writes. Import stops at the first row that fails; earlier rows stay.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if input != "" && input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return sysErrorf("open %s: %w", input, err)
				}
				defer f.Close()
				in = f
			}
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			s, err := e.ResolveSchema(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			n, err := importCSV(cmd, e, s, in)
			if err != nil {
				return fmt.Errorf("row %d: %w", n+2, err)
			}
			return a.report(cmd, map[string]int{"created": n}, "Imported %d records into %s", n, s.Name)
		},
	}
	cmd.Flags().StringVarP(&input, "file", "f", "", "input file (default: stdin)")
	return cmd
}

// importCSV creates the entities of the rows read from r and returns how
// many it created.
func importCSV(cmd *cobra.Command, e *cmdb.Engine, s types.Schema, r io.Reader) (int, error) {
	fields, err := e.ListFields(cmd.Context(), types.FieldFilter{SchemaID: s.SchemaID})
	if err != nil {
		return 0, err
	}
	multiple := make(map[string]bool, len(fields))
	for _, f := range fields {
		multiple[f.Name] = f.Meta.Multiple
	}

	cr := csv.NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return 0, nil
	}
	if err != nil {
		return 0, types.ErrValidation.Withf("reading header: %v", err)
	}
	cr.FieldsPerRecord = len(header)

	n := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, types.ErrValidation.Withf("%v", err)
		}
		input := make(types.Input, len(rec))
		for i, name := range header {
			if !multiple[name] {
				input[name] = rec[i]
				continue
			}
			values, err := types.SplitValues(rec[i])
			if err != nil {
				return n, fmt.Errorf("%s: %w", name, err)
			}
			input[name] = values
		}
		if _, err := e.CreateEntity(cmd.Context(), s.SchemaID, input); err != nil {
			return n, err
		}
		n++
	}
}

func newApplyCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "apply -f <manifest.yaml>",
		Short: "Create or update schemas and fields from a YAML manifest",
		Long: `Create or update schemas and fields from a YAML manifest, matching
existing schemas and fields by name. Relation targets are written as
<schema>.<field>. Applying an unchanged manifest does nothing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return sysErrorf("open %s: %w", file, err)
				}
				defer f.Close()
				in = f
			}
			m, err := cmdb.ParseManifest(in)
			if err != nil {
				return err
			}
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			changes, err := e.Apply(cmd.Context(), m)
			out := cmd.OutOrStdout()
			if a.flags.jsonMode {
				if perr := printJSON(out, changes); perr != nil {
					return perr
				}
			} else {
				for _, c := range changes {
					fmt.Fprintln(out, c)
				}
				if err == nil && len(changes) == 0 {
					fmt.Fprintln(out, "No changes")
				}
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "manifest file, - for stdin")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newDumpCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dump <dir>",
		Short: "Write the whole database, deleted rows included, as JSONL files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := e.Dump(cmd.Context(), args[0]); err != nil {
				return err
			}
			return a.report(cmd, map[string]string{"dir": args[0]}, "Dumped to %s", args[0])
		},
	}
}

func newRestoreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <dir>",
		Short: "Load a dump into an empty database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := e.Restore(cmd.Context(), args[0]); err != nil {
				return err
			}
			return a.report(cmd, map[string]string{"dir": args[0]}, "Restored from %s", args[0])
		},
	}
}

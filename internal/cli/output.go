package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cmdb/pkg/types"
)

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// report prints v as JSON in --json mode and the formatted message otherwise.
func (a *app) report(cmd *cobra.Command, v any, format string, args ...any) error {
	if a.flags.jsonMode {
		return printJSON(cmd.OutOrStdout(), v)
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), format+"\n", args...)
	return err
}

func printTable(w io.Writer, header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	return tw.Flush()
}

func printPage(w io.Writer, p types.Pagination) {
	fmt.Fprintf(w, "page %d/%d, %d total\n", p.Page, max(p.Pages, 1), p.Count)
}

// parseAssignments turns repeated name=value arguments into entity input.
// A name given more than once collects a list.
func parseAssignments(pairs []string) (types.Input, error) {
	in := make(types.Input, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, types.ErrValidation.Withf("invalid assignment %q (expected name=value)", pair)
		}
		switch cur := in[name].(type) {
		case nil:
			in[name] = value
		case string:
			in[name] = []string{cur, value}
		case []string:
			in[name] = append(cur, value)
		}
	}
	return in, nil
}

// parseMatches turns name=substring arguments into a match map.
func parseMatches(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	m := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, types.ErrValidation.Withf("invalid match %q (expected name=substring)", pair)
		}
		m[name] = value
	}
	return m, nil
}

// parseRelations turns "field" or "field=col1,col2" arguments into the
// relation columns of a RecordQuery.
func parseRelations(specs []string) map[string][]string {
	if len(specs) == 0 {
		return nil
	}
	m := make(map[string][]string, len(specs))
	for _, spec := range specs {
		name, cols, _ := strings.Cut(spec, "=")
		var list []string
		for c := range strings.SplitSeq(cols, ",") {
			if c = strings.TrimSpace(c); c != "" {
				list = append(list, c)
			}
		}
		m[name] = list
	}
	return m
}

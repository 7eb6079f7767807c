package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cmdb/internal/paths"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize cmdb storage",
		Long:  "Create the configuration file if it is missing, then create the data directory and the database tables.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, err := paths.ResolveConfigDir(a.flags.configDir)
			if err != nil {
				return sysErrorf("resolve config dir: %w", err)
			}
			path := filepath.Join(configDir, configFileExt)
			written, err := writeConfigIfMissing(path, configFile{
				Backend: a.config.Backend,
				DataDir: a.config.DataDir,
				DSN:     a.config.DSN,
			})
			if err != nil {
				return sysErrorf("write config: %w", err)
			}
			if _, err := a.open(cmd.Context()); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if written {
				fmt.Fprintf(out, "Wrote %s\n", path)
			}
			fmt.Fprintf(out, "cmdb initialized (%s backend)\n", a.config.Backend)
			return nil
		},
	}
}

// Package cli implements the cmdb command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/cmdb/internal/paths"
	"github.com/mesh-intelligence/cmdb/pkg/cmdb"
	"github.com/mesh-intelligence/cmdb/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
	verbose   bool
}

// app is the state shared by the commands of one invocation.
type app struct {
	flags  rootFlags
	config types.Config
	log    *zap.Logger
	engine *cmdb.Engine
}

// NewRootCmd creates the top-level "cmdb" command with global flags and all
// subcommands registered.
func NewRootCmd() *cobra.Command {
	root, _ := newRoot()
	return root
}

func newRoot() (*cobra.Command, *app) {
	a := &app{log: zap.NewNop()}
	root := &cobra.Command{
		Use:     "cmdb",
		Short:   "A configuration database with runtime-defined schemas",
		Long:    "cmdb stores records of user-defined schemas. Fields carry typed\nconstraints and may relate to unique fields of other schemas.",
		Version: cmdb.Version,
		// Do not print usage on errors returned by subcommands.
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	root.PersistentFlags().StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: $(CWD)/.cmdb)")
	root.PersistentFlags().StringVar(&a.flags.dataDir, "data-dir", "", "data directory (default: $(CWD)/.cmdb-db)")
	root.PersistentFlags().BoolVar(&a.flags.jsonMode, "json", false, "output in JSON format")
	root.PersistentFlags().BoolVarP(&a.flags.verbose, "verbose", "v", false, "log engine activity to stderr")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(a),
		newSchemaCmd(a),
		newFieldCmd(a),
		newEntityCmd(a),
		newRecordCmd(a),
		newValueCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newApplyCmd(a),
		newDumpCmd(a),
		newRestoreCmd(a),
	)
	return root, a
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command line and returns its exit code. The engine is
// released even when the command fails.
func run(args []string, stdout, stderr io.Writer) int {
	root, a := newRoot()
	defer a.close() //nolint:errcheck
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitCode(err)
	}
	return exitSuccess
}

// exitCode maps storage and configuration failures to exitSysError and
// everything the caller can fix to exitUserError.
func exitCode(err error) int {
	var te *types.Error
	if errors.As(err, &te) {
		if te.Kind == types.KindStorage {
			return exitSysError
		}
		return exitUserError
	}
	var se *sysError
	if errors.As(err, &se) {
		return exitSysError
	}
	return exitUserError
}

// sysError marks failures of the environment rather than of the input.
type sysError struct{ err error }

func (e *sysError) Error() string { return e.err.Error() }
func (e *sysError) Unwrap() error { return e.err }

func sysErrorf(format string, args ...any) error {
	return &sysError{err: fmt.Errorf(format, args...)}
}

// setup loads the configuration and the logger. The engine is opened on
// first use.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" {
		return nil
	}
	configDir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return sysErrorf("resolve config dir: %w", err)
	}
	v, err := loadConfig(configDir)
	if err != nil {
		return sysErrorf("load config: %w", err)
	}
	dataDir, err := paths.ResolveDataDir(a.flags.dataDir, v.GetString(cfgKeyDataDir))
	if err != nil {
		return sysErrorf("resolve data dir: %w", err)
	}
	a.config = types.Config{
		Backend:      v.GetString(cfgKeyBackend),
		DataDir:      dataDir,
		DSN:          v.GetString(cfgKeyDSN),
		CascadeDepth: v.GetInt(cfgKeyCascadeDepth),
		BatchSize:    v.GetInt(cfgKeyBatchSize),
	}
	if a.log, err = newLogger(a.flags.verbose); err != nil {
		return sysErrorf("create logger: %w", err)
	}
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	return cfg.Build()
}

// open returns the engine, attaching the configured backend on first use.
func (a *app) open(ctx context.Context) (*cmdb.Engine, error) {
	if a.engine != nil {
		return a.engine, nil
	}
	e, err := cmdb.Open(ctx, a.config, cmdb.Options{Logger: a.log})
	if err != nil {
		return nil, sysErrorf("%w", err)
	}
	a.engine = e
	return e, nil
}

func (a *app) close() error {
	defer a.log.Sync() //nolint:errcheck
	if a.engine == nil {
		return nil
	}
	err := a.engine.Close()
	a.engine = nil
	return err
}

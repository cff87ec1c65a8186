// Package cli implements the decodecheck command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/decodecheck/internal/config"
)

// RootOptions holds global flags for all commands, and the state
// PersistentPreRunE derives from them.
type RootOptions struct {
	Verbose    bool
	Quiet      bool
	Format     string // "json" | "text"
	ConfigPath string
	Catalogs   []string
	DB         string
	Schema     bool

	Config *config.Config
	Logger *slog.Logger

	// catalogsExplicit is set when the catalog list came from a flag or a
	// config file rather than the built-in default.
	catalogsExplicit bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decodecheck",
		Short: "decodecheck - protocol decoder conformance harness",
		Long: "Runs an external decode tool over captured sample files and checks\n" +
			"the output against recorded size, CRC-32, BLAKE2b and SHA-256 digests.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitUsage, ErrCodeUsage,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			opts.Logger = setupLogger(cmd.ErrOrStderr(), opts.Verbose, opts.Quiet)
			return opts.loadConfig(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output (debug logs)")
	flags.BoolVarP(&opts.Quiet, "quiet", "q", false, "no console output, exit code only")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.ConfigPath, "config", config.DefaultPath, "config file (used if present)")
	flags.StringArrayVarP(&opts.Catalogs, "load", "l", []string{config.DefaultCatalog}, "test catalog file (repeatable)")
	flags.StringVar(&opts.DB, "db", "", "SQLite run history database")
	flags.BoolVar(&opts.Schema, "schema", false, "validate catalogs against the CUE schema")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewRegenCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewVerifySnapshotCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// loadConfig reads the config file and lays explicitly set global flags
// over it.
func (opts *RootOptions) loadConfig(cmd *cobra.Command) error {
	flags := cmd.Flags()
	explicit := flags.Changed("config")
	cfg, err := config.LoadOptional(opts.ConfigPath, explicit)
	if err != nil {
		return WrapExitError(ExitUsage, ErrCodeConfig, "invalid configuration", err)
	}
	if !slices.Equal(cfg.Catalogs, []string{config.DefaultCatalog}) {
		opts.catalogsExplicit = true
	}
	if flags.Changed("load") {
		cfg.Catalogs = opts.Catalogs
		opts.catalogsExplicit = true
	}
	if flags.Changed("db") {
		cfg.DB = opts.DB
	}
	if flags.Changed("schema") {
		cfg.Schema = opts.Schema
	}
	opts.Config = cfg
	return nil
}

// formatter returns the OutputFormatter for cmd. Quiet mode discards
// everything.
func (opts *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	f := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if opts.Quiet {
		f.Writer = io.Discard
		f.ErrWriter = io.Discard
	}
	return f
}

// Execute runs decodecheck with args and returns the process exit code.
// Errors are reported on stderr, or as a JSON error response on stdout
// when --format json is in effect.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return WrapExitError(ExitUsage, ErrCodeUsage, "", err)
	})

	err := cmd.ExecuteContext(ctx)
	var exitErr *ExitError
	if err != nil && !errors.As(err, &exitErr) {
		// cobra's own errors: unknown command, bad positional args.
		exitErr = WrapExitError(ExitUsage, ErrCodeUsage, "", err)
		err = exitErr
	}
	code := GetExitCode(err)
	if exitErr == nil || (exitErr.Message == "" && exitErr.Err == nil) {
		return code
	}
	if !opts.Quiet {
		f := &OutputFormatter{Format: opts.Format, Writer: stdout, ErrWriter: stderr, Verbose: opts.Verbose}
		if !isValidFormat(opts.Format) {
			f.Format = "text"
		}
		_ = f.Error(exitErr, errorDetails(exitErr))
	}
	return code
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// Package cli implements the descriptor command line: statistics passes,
// forward evaluation, and version reporting.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/atomistic/descriptor/internal/config"
	"github.com/atomistic/descriptor/internal/monitoring/logging"
	"github.com/atomistic/descriptor/internal/monitoring/metrics"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// cliContextKey is the context key for CLIContext.
type cliContextKey struct{}

// RootOptions holds global CLI flags.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
}

// CLIContext carries initialized dependencies through the command tree.
type CLIContext struct {
	Config  *config.Config
	Logger  logging.Logger
	Metrics metrics.DescriptorMetrics
}

// NewRootCommand creates the root cobra command with global flags and
// subcommands.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "descriptor",
		Short:   "Attention descriptor engine for neural-network interatomic potentials",
		Long:    "descriptor converts atomic neighborhoods into fixed-length invariant\nfeature vectors using a type-conditioned embedding and a self-attention\nstack, for consumption by a fitting network.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return persistentPreRun(cmd, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (YAML)")
	pf.StringVar(&opts.LogLevel, "log-level", "", "log level override (debug, info, warn, error)")

	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newForwardCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// persistentPreRun loads configuration and wires logger and metrics into the
// command context.  The version subcommand runs without configuration.
func persistentPreRun(cmd *cobra.Command, opts *RootOptions) error {
	if cmd.Name() == "version" {
		return nil
	}

	var cfg *config.Config
	var err error
	if opts.ConfigPath != "" {
		cfg, err = config.Load(opts.ConfigPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return err
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
	})
	if err != nil {
		return fmt.Errorf("cli: failed to build logger: %w", err)
	}
	logging.SetDefault(logger)

	m := metrics.NewNoopMetrics()
	if cfg.Metrics.Enabled {
		if m, err = metrics.NewPrometheusMetrics(nil); err != nil {
			return fmt.Errorf("cli: failed to register metrics: %w", err)
		}
	}

	cliCtx := &CLIContext{Config: cfg, Logger: logger, Metrics: m}
	cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cliCtx))
	return nil
}

// GetCLIContext extracts the CLIContext placed by persistentPreRun.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	v := cmd.Context().Value(cliContextKey{})
	c, ok := v.(*CLIContext)
	if !ok {
		return nil, fmt.Errorf("cli: command context not initialized")
	}
	return c, nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

// printJSON writes v to the command's stdout as indented JSON.
func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readJSONFile decodes a JSON file into v.
func readJSONFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cli: read %q: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("cli: parse %q: %w", path, err)
	}
	return nil
}

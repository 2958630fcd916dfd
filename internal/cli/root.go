// Package cli implements the dittocat command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittocat/internal/logger"
	"github.com/marmos91/dittocat/pkg/config"
)

// Version is the build-time version. Override with:
//
//	-ldflags "-X github.com/marmos91/dittocat/internal/cli.Version=v1.2.3"
var Version = "dev"

// annotationNoConfig marks commands that run without loading a config file.
const annotationNoConfig = "dittocat/no-config"

// Option configures command dependencies.
type Option func(*Deps)

// Deps holds the injectable dependencies shared by every command.
type Deps struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer

	// Config, when set, is used instead of loading one from disk.
	Config *config.Config

	flags globalFlags
}

type globalFlags struct {
	CfgFile  string
	LogLevel string
}

// WithIO sets the streams commands read from and write to. A nil errOut
// falls back to out.
func WithIO(in io.Reader, out, errOut io.Writer) Option {
	return func(d *Deps) {
		d.In = in
		d.Out = out
		d.Err = errOut
	}
}

// WithConfig injects an already loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(d *Deps) {
		d.Config = cfg
	}
}

func applyOptions(opts ...Option) *Deps {
	deps := &Deps{}
	for _, o := range opts {
		if o != nil {
			o(deps)
		}
	}
	if deps.In == nil {
		deps.In = os.Stdin
	}
	if deps.Out == nil {
		deps.Out = os.Stdout
	}
	if deps.Err == nil {
		deps.Err = deps.Out
	}
	return deps
}

// NewRootCmd builds the root command with every subcommand attached.
func NewRootCmd(opts ...Option) *cobra.Command {
	return newRootCmdWithDeps(applyOptions(opts...))
}

func newRootCmdWithDeps(deps *Deps) *cobra.Command {
	root := &cobra.Command{
		Use:   "dittocat",
		Short: "dittocat - federated metadata catalog",
		Long: `dittocat ingests products into a local catalog, federates queries across
configured sources and serves the stored resources back.

Configuration is read from $XDG_CONFIG_HOME/dittocat/config.yaml unless
--config is given. Run "dittocat init" to write a commented sample.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[annotationNoConfig] != "" {
				return nil
			}
			return deps.loadConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.SetIn(deps.In)
	root.SetOut(deps.Out)
	root.SetErr(deps.Err)

	root.PersistentFlags().StringVar(
		&deps.flags.CfgFile,
		"config",
		"",
		"config file (default: $XDG_CONFIG_HOME/dittocat/config.yaml)",
	)
	root.PersistentFlags().StringVar(
		&deps.flags.LogLevel,
		"log-level",
		"",
		"override the configured log level (DEBUG, INFO, WARN, ERROR)",
	)

	root.AddCommand(
		newServeCmd(deps),
		newIngestCmd(deps),
		newQueryCmd(deps),
		newGetCmd(deps),
		newDeleteCmd(deps),
		newSourcesCmd(deps),
		newTransformCmd(deps),
		newGCCmd(deps),
		newInitCmd(deps),
		newVersionCmd(),
	)

	return root
}

// loadConfig reads the configuration and applies the log level override.
func (d *Deps) loadConfig() error {
	if d.Config == nil {
		cfg, err := config.Load(d.flags.CfgFile)
		if err != nil {
			return err
		}
		d.Config = cfg
	}
	if d.flags.LogLevel != "" {
		level := strings.ToUpper(d.flags.LogLevel)
		switch level {
		case "DEBUG", "INFO", "WARN", "ERROR":
		default:
			return fmt.Errorf("invalid log level %q", d.flags.LogLevel)
		}
		d.Config.Logging.Level = level
	}
	return nil
}

// setupLogging applies the logging section. Commands that print results
// pass interactive=true so log lines sent to stdout go to the error stream
// instead and never mix with the output.
func (d *Deps) setupLogging(interactive bool) error {
	cfg := d.Config.Logging
	logger.SetLevel(cfg.Level)
	logger.SetFormat(cfg.Format)

	target := strings.ToLower(cfg.Output)
	if interactive && (target == "" || target == "stdout") {
		logger.SetOutput(d.Err)
		return nil
	}

	w, err := logger.OpenOutput(cfg.Output)
	if err != nil {
		return err
	}
	logger.SetOutput(w)
	return nil
}

// runtime builds a one-shot runtime for commands that do not serve. The
// metrics endpoint and the background services are left off.
func (d *Deps) runtime(ctx context.Context) (*config.Runtime, error) {
	if err := d.setupLogging(true); err != nil {
		return nil, err
	}

	cfg := *d.Config
	cfg.Metrics.Enabled = false
	cfg.GC.Enabled = false

	rt, err := config.NewRuntime(ctx, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}
	return rt, nil
}

// closeRuntime releases the runtime, logging failures.
func closeRuntime(rt *config.Runtime) {
	if err := rt.Close(); err != nil {
		logger.Warn("Error closing catalog: %v", err)
	}
}

// Run builds the root command and executes it with args.
func Run(ctx context.Context, args []string, opts ...Option) error {
	root := NewRootCmd(opts...)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittocat/internal/logger"
	"github.com/marmos91/dittocat/pkg/config"
	"github.com/marmos91/dittocat/pkg/server"
)

func newServeCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the catalog with its ingest adapters and background services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.setupLogging(false); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, deps.Config)
		},
	}
}

// serve runs the configured catalog until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config) error {
	logger.Info("DittoCat %s starting", Version)

	// ========================================================================
	// Step 1: Build the runtime
	// ========================================================================

	rt, err := config.NewRuntime(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize catalog: %w", err)
	}
	defer closeRuntime(rt)

	// ========================================================================
	// Step 2: Register services and adapters
	// ========================================================================

	srv := server.New(rt.Framework, server.WithShutdownTimeout(cfg.Server.ShutdownTimeout))

	services := []server.Service{server.PollerService(rt.Framework.Poller())}
	if rt.Metrics != nil && rt.Metrics.Server != nil {
		services = append(services, server.MetricsService(rt.Metrics.Server))
	}
	if rt.Collector != nil {
		services = append(services, server.CollectorService(rt.Collector))
	}
	for _, svc := range services {
		if err := srv.AddService(svc); err != nil {
			return err
		}
	}
	for _, a := range rt.Adapters {
		if err := srv.AddAdapter(a); err != nil {
			return err
		}
	}

	// ========================================================================
	// Step 3: Serve until interrupted
	// ========================================================================

	logger.Info("Catalog %q is running. Press Ctrl+C to stop.", rt.Framework.ID())

	err = srv.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

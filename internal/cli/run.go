package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/dynrelay/dynrelay/internal/handler"
	"github.com/dynrelay/dynrelay/internal/observability"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type RunOptions struct {
	*RootOptions
	Once bool
}

func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the relay service",
		Long: `Run the relay service: poll the Dynatrace problems API on a fixed
interval, classify each record against the local state database and forward
new problems and status changes to every configured connector.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelay(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Once, "once", false, "run a single poll cycle and exit")

	return cmd
}

func runRelay(parentCtx context.Context, opts *RunOptions) error {
	application, err := bootstrap(opts.ConfigPath)
	if err != nil {
		return err
	}
	defer application.Close()

	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.Once {
		return application.engine.RunCycle(ctx)
	}

	metrics := observability.NewMetrics()
	application.engine.SetMetrics(metrics)

	if application.cfg.Admin.Enabled {
		adminApp := handler.NewAdminApp(application.engine, application.sqlDB, metrics, application.logger)
		addr := fmt.Sprintf(":%d", application.cfg.Admin.Port)

		go func() {
			application.logger.Info("admin server listening", zap.String("addr", addr))
			if err := adminApp.Listen(addr); err != nil {
				application.logger.Error("admin server stopped", zap.Error(err))
			}
		}()
		defer func() {
			if err := adminApp.Shutdown(); err != nil {
				application.logger.Error("admin server shutdown failed", zap.Error(err))
			}
		}()
	}

	return application.engine.Run(ctx)
}

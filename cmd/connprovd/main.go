// connprovd runs the configured connection providers and answers echo
// requests on every inbound connection until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/connprov/internal/config"
	"github.com/danmuck/connprov/internal/logging"
	"github.com/danmuck/connprov/internal/node"
	"github.com/danmuck/connprov/internal/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "connprovd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath, logLevel, adminAddr string
	cmd := &cobra.Command{
		Use:          "connprovd",
		Short:        "Run connection providers and answer echo requests",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Default()
			if configPath != "" {
				var err error
				if cfg, err = config.Load(configPath); err != nil {
					return err
				}
			}
			if v := os.Getenv(config.EnvAdminToken); v != "" {
				cfg.Admin.Token = v
			}
			if cmd.Flags().Changed("admin") {
				cfg.Admin.Addr = adminAddr
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level override")
	cmd.Flags().StringVar(&adminAddr, "admin", "", "admin HTTP address (empty disables)")
	return cmd
}

func run(ctx context.Context, cfg config.DaemonConfig) error {
	logging.ConfigureRuntime()
	// The environment wins over the file so a single run can be turned up.
	if os.Getenv(logging.EnvLogLevel) == "" && cfg.LogLevel != "" {
		logging.SetLevel(cfg.LogLevel)
	}
	logger := logging.Component("connprovd")

	n, err := node.New(cfg, &logger)
	if err != nil {
		return err
	}
	if err := n.Start(); err != nil {
		_ = n.Shutdown(context.Background())
		return err
	}
	logger.Info().Str("node", n.NodeID()).Int("providers", len(cfg.Providers)).Msg("connprovd started")

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Admin.Addr != "" {
		admin := server.New(n, cfg.Admin, logger)
		g.Go(func() error {
			return admin.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	runErr := g.Wait()

	logger.Info().Msg("connprovd shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(runErr, n.Shutdown(shutdownCtx))
}

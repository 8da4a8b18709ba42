package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/repoindex/internal/api"
	"github.com/Aman-CERP/repoindex/internal/config"
	"github.com/Aman-CERP/repoindex/internal/logging"
	"github.com/Aman-CERP/repoindex/pkg/version"
)

func newServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Start the HTTP API: index builds stream their progress as server-sent
events, and search, document listing and status queries read the index.

The server stops gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			if !debugMode {
				logger, cleanup, err := logging.Setup(logging.Config{
					Level:         cfg.Logging.Level,
					FilePath:      cfg.Logging.File,
					MaxSizeMB:     cfg.Logging.MaxSizeMB,
					MaxFiles:      cfg.Logging.MaxFiles,
					WriteToStderr: true,
				})
				if err != nil {
					return err
				}
				defer cleanup()
				slog.SetDefault(logger)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Listen host (overrides server.host)")
	cmd.Flags().IntVar(&port, "port", 0, "Listen port (overrides server.port)")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	svc, err := openServices(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	srv, err := api.NewServer(cfg.Server, api.Deps{
		Builds:    svc.builds,
		Queries:   svc.queries,
		Lifecycle: svc.lifecycle,
		Metrics:   svc.metrics,
	})
	if err != nil {
		return err
	}

	slog.Info("repoindex_starting",
		slog.String("version", version.Version),
		slog.String("index_dir", cfg.Index.Dir),
		slog.String("embedding", cfg.Embedding.Provider))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("repoindex_stopping", slog.Int("active_builds", svc.builds.Active()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeoutDuration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"snapshare/internal/server/api"
	"snapshare/internal/server/config"
	"snapshare/internal/server/database"
	"snapshare/internal/server/metrics"
	"snapshare/internal/server/reaper"
	"snapshare/internal/server/service"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "snapshare-server",
		Short:         "snapshare - ephemeral text and file sharing",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		slog.SetDefault(newLogger(os.Stdout, cfg))
		return cfg, nil
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the expiry reaper",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			slog.Info("database migrations complete")
			return nil
		},
	}

	reapCmd := &cobra.Command{
		Use:   "reap",
		Short: "Delete expired shares once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			deleted, err := reaper.New(store, cfg.ReaperInterval, nil).RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired share(s)\n", deleted)
			return nil
		},
	}

	rootCmd.AddCommand(serveCmd, migrateCmd, reapCmd)
	return rootCmd
}

// openStore connects to the configured store and brings its schema up to date.
func openStore(ctx context.Context, cfg *config.Config) (database.ShareStore, error) {
	store, err := database.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := store.RunMigrations(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

func runServer(ctx context.Context, cfg *config.Config) error {
	slog.Info("configuration loaded",
		"port", cfg.Port,
		"database_driver", cfg.DatabaseDriver,
		"max_file_size", cfg.MaxFileSize,
		"reaper_interval", cfg.ReaperInterval,
	)

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	slog.Info("database migrations complete")

	m := metrics.New()
	svc := service.NewShareService(store, cfg, m)

	// Start reaper
	reaperCtx, reaperCancel := context.WithCancel(context.Background())
	r := reaper.New(store, cfg.ReaperInterval, m)
	r.Start(reaperCtx)

	// Setup HTTP router
	e := api.SetupRouter(api.NewHandler(svc, cfg), cfg, m)

	// Start server in a goroutine
	serveErr := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		slog.Info("starting server", "addr", addr, "base_url", cfg.BaseURL)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Graceful shutdown
	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case runErr = <-serveErr:
		slog.Error("server failed", "error", runErr)
	}

	// Stop accepting new requests, finish in-flight within the timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop reaper
	reaperCancel()
	r.Wait()

	slog.Info("server exited cleanly")
	return runErr
}

// newLogger builds the process logger from LOG_FORMAT and LOG_LEVEL.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

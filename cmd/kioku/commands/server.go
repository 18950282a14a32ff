package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kiokusearch/kioku/internal/server"
	"github.com/kiokusearch/kioku/internal/watcher"
)

const serverStopTimeout = 10 * time.Second

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the HTTP API server",
	Long: `Run the HTTP API server.

The server loads all persisted records into memory on startup, then serves
ingest, search, and delete requests. When watch directories are configured,
it also keeps the index in sync with files on disk. On shutdown, dirty
records are flushed to durable storage.`,
	Args: cobra.NoArgs,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, configPath, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", configPath),
		zap.String("backend", cfg.Storage.Backend),
		zap.Bool("debug", cfg.Debug || flagDebug))

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	c, err := initComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	if len(cfg.Watch.Directories) > 0 {
		watch := watcher.NewService(cfg.Watch, c.Pipeline, c.Syncer, c.Index, logger)
		if err := watch.Start(ctx); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		defer watch.Stop()
		// Reconcile files already on disk without holding up startup.
		go watch.SyncExisting()
	}

	srv := server.NewServer(c.Pipeline, c.Engine, c.Syncer, c.Index, cfg, logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), serverStopTimeout)
	defer stopCancel()
	if err := srv.Stop(stopCtx); err != nil {
		logger.Warn("server shutdown failed", zap.Error(err))
	}
	return nil
}

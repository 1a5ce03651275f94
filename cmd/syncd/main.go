// syncd runs the sync client as a headless agent. It keeps the realtime
// connection open, replays queued mutations, and serves a small local HTTP
// API for status, manual sync and enqueueing writes.
//
// Usage: syncd --config configs/syncd.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/realtime-sync/internal/client"
	"github.com/rickgao/realtime-sync/internal/config"
	"github.com/rickgao/realtime-sync/internal/logging"
	"github.com/rickgao/realtime-sync/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/syncd.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "syncd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.Logging)
	logger.Info("starting syncd",
		"version", version.Version,
		"commit", version.Commit,
		"config", configPath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := client.NewFromConfig(ctx, cfg, client.LogNotifier{Logger: logger}, logger)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	if err := c.Start(ctx); err != nil {
		c.Close(context.Background())
		return fmt.Errorf("start client: %w", err)
	}
	c.Connect()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           newHandler(c, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting status server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return errors.Join(
			srv.Shutdown(shutdownCtx),
			c.Close(shutdownCtx),
		)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("syncd stopped")
	return nil
}

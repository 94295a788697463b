package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maltedev/marketplace-scraper/internal/api"
	"github.com/maltedev/marketplace-scraper/internal/queue"
	"github.com/spf13/cobra"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the run queue over HTTP",
		Long: `Serve accepts runs over HTTP and executes them one at a time, each in its
own browser session.

Endpoints:
  POST /api/v1/runs        {"mode": 0-4 or name, "input": "...", "tag": "..."}
  GET  /api/v1/runs        list runs, newest first
  GET  /api/v1/runs/{id}   run status and report
  GET  /api/v1/stats       job counts
  GET  /health             job counts and outbox backlog`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if a.relay != nil {
		go func() {
			if err := a.relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("relay stopped with error", "error", err)
			}
		}()
	}

	jobs := queue.NewInMemoryQueue()
	defer jobs.Close()

	manager := api.NewManager(jobs, api.RunnerFunc(a.run), a.logger)
	go manager.StartWorker(ctx)

	var outbox api.OutboxStats
	if a.relay != nil {
		outbox = a.relay
	}
	handlers := api.NewHandlers(manager, outbox, a.logger)

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handlers, a.logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigChan:
		case <-ctx.Done():
		}

		a.logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown failed", "error", err)
		}
	}()

	a.logger.Info("server starting", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	a.logger.Info("server stopped")
	return nil
}

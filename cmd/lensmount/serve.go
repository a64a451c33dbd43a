package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwbudde/lensmount/internal/metrics"
	"github.com/cwbudde/lensmount/internal/model"
	"github.com/cwbudde/lensmount/internal/server"
	"github.com/cwbudde/lensmount/internal/store"
	"github.com/spf13/cobra"
)

var (
	serveAddr    string
	serveDataDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP job server",
	Long: `Starts an HTTP server that accepts mount selection jobs, runs them one at
a time against the configured model backend and streams their progress.
Prometheus metrics are exposed on /metrics.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from settings)")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "", "Run store directory (default from settings)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := serveAddr
	if addr == "" {
		addr = settings.Addr
	}

	st, err := store.NewFSStore(dataDir(serveDataDir))
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}

	open := func(ctx context.Context) (model.Model, error) {
		return openModel(ctx, settings.Backend)
	}
	worker := server.NewWorker(server.NewJobManager(), st, metrics.NewManager(), open, settings.MaxTuples)
	srv := server.NewServer(addr, worker, server.JobConfig{
		AxisType: settings.AxisType,
		Merit:    string(model.MeritSpot),
		Cycles:   model.CyclesNone,
		Backend:  settings.Backend,
	})

	go worker.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

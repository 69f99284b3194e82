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

	"github.com/AppleHolic/recording-studio-api/internal/api"
	"github.com/AppleHolic/recording-studio-api/internal/config"
	"github.com/AppleHolic/recording-studio-api/internal/corpus"
	"github.com/AppleHolic/recording-studio-api/internal/journal"
	"github.com/AppleHolic/recording-studio-api/internal/journal/pgstore"
	"github.com/AppleHolic/recording-studio-api/internal/metrics"
)

func main() {
	startTime := time.Now()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(cfg.SlogHandler(os.Stdout)))

	slog.Info("starting studio",
		"http_port", cfg.HTTPPort,
		"master_dir", cfg.MasterDir,
		"page_size", cfg.PageSize,
		"sample_rate", cfg.SampleRate,
	)

	ix, err := corpus.Open(cfg.MasterDir, corpus.WithPageSize(cfg.PageSize), corpus.WithLogger(slog.Default()))
	if err != nil {
		slog.Error("failed to open corpus", "error", err)
		os.Exit(1)
	}

	events, err := openJournal(cfg)
	if err != nil {
		slog.Error("failed to open take journal", "error", err)
		os.Exit(1)
	}
	defer events.Close()

	collector := metrics.NewCollector(ix, events, startTime)
	handler := api.NewServer(ix, events, cfg, metrics.Handler(collector))
	defer handler.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("studio stopped")
}

// openJournal returns the PostgreSQL journal when a DSN is configured and
// the SQLite journal under the data directory otherwise.
func openJournal(cfg *config.Config) (journal.Store, error) {
	if cfg.JournalDSN != "" {
		store, err := pgstore.New(cfg.JournalDSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	store, err := journal.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	return store, nil
}

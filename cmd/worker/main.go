package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/contest-tracker/contest-aggregator-go/internal/app"
	"github.com/contest-tracker/contest-aggregator-go/internal/config"
	"github.com/contest-tracker/contest-aggregator-go/internal/metrics"
	"github.com/contest-tracker/contest-aggregator-go/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.L()
	defer func() { _ = logger.Sync() }()

	log.Info("Contest worker starting",
		zap.Duration("interval", cfg.Scheduler.Interval),
		zap.Bool("run_on_start", cfg.Scheduler.RunOnStart),
		zap.Int("playlists", len(cfg.YouTube.Playlists)),
	)

	ctx := context.Background()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer a.Close()

	metricsSrv := newMetricsServer(cfg.Metrics.Port)
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics listener failed", zap.Error(err))
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	a.Scheduler.Start()

	sig := <-shutdown
	log.Info("Shutdown signal received", zap.String("signal", sig.String()))

	if err := a.Scheduler.Shutdown(); err != nil {
		log.Error("Failed to stop scheduler", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	log.Info("Contest worker stopped gracefully")
}

// newMetricsServer serves /metrics and a liveness endpoint for the worker.
func newMetricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"UP"}`))
	})

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

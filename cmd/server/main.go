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

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/contest-tracker/contest-aggregator-go/internal/app"
	"github.com/contest-tracker/contest-aggregator-go/internal/config"
	"github.com/contest-tracker/contest-aggregator-go/internal/handler"
	"github.com/contest-tracker/contest-aggregator-go/internal/metrics"
	"github.com/contest-tracker/contest-aggregator-go/internal/middleware"
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

	ctx := context.Background()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer a.Close()

	if len(cfg.Server.APIKeys) == 0 {
		log.Warn("No API keys configured, vote and admin endpoints will reject all requests")
	}

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(log))

	if cfg.Server.Mode == gin.DebugMode {
		pprof.Register(router)
	}

	health := handler.NewHealthHandler(a.Pool, a.Cache)
	router.GET("/health/live", health.LivenessProbe)
	router.GET("/health/ready", health.ReadinessProbe)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	guard := middleware.NewAPIKeyAuth(cfg.Server.APIKeys, log).Middleware()
	api := router.Group("/api")
	handler.NewContestHandler(a.Query, log).RegisterRoutes(api, guard)
	handler.NewAdminHandler(a.Scheduler, a.Cache, log).RegisterRoutes(api, guard)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.Int("port", cfg.Server.Port), zap.String("mode", cfg.Server.Mode))
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", zap.Error(err))
		}
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Error("Graceful shutdown failed", zap.Error(err))
			_ = server.Close()
		}
		if err := a.Scheduler.Shutdown(); err != nil {
			log.Error("Failed to stop scheduler", zap.Error(err))
		}

		log.Info("Server stopped gracefully")
	}
}

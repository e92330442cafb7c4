// Package app wires the store, cache, upstream clients and jobs shared by the
// server and the worker.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/contest-tracker/contest-aggregator-go/internal/cache"
	"github.com/contest-tracker/contest-aggregator-go/internal/config"
	"github.com/contest-tracker/contest-aggregator-go/internal/db"
	"github.com/contest-tracker/contest-aggregator-go/internal/db/repository"
	"github.com/contest-tracker/contest-aggregator-go/internal/scheduler"
	"github.com/contest-tracker/contest-aggregator-go/internal/service"
	"github.com/contest-tracker/contest-aggregator-go/internal/service/youtube"
	"github.com/contest-tracker/contest-aggregator-go/internal/source"
	"github.com/contest-tracker/contest-aggregator-go/internal/source/codechef"
	"github.com/contest-tracker/contest-aggregator-go/internal/source/codeforces"
	"github.com/contest-tracker/contest-aggregator-go/internal/source/leetcode"
	"github.com/contest-tracker/contest-aggregator-go/internal/validation"
)

// App holds the long-lived dependencies of a process.
type App struct {
	Pool      *pgxpool.Pool
	Redis     *redis.Client
	Cache     *service.ContestCache
	Query     *service.ContestQuery
	Scheduler *scheduler.Scheduler

	publisher *service.MessagePublisher
	logger    *zap.Logger
}

// New connects to the store and the cache and registers both periodic jobs.
// The scheduler is returned stopped.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	redisClient, err := cache.NewClient(ctx, cfg.Redis.URL)
	if err != nil {
		db.Close(pool)
		return nil, err
	}

	a := &App{
		Pool:   pool,
		Redis:  redisClient,
		logger: logger,
	}

	events := service.NopPublisher()
	if cfg.RabbitMQ.Host != "" {
		publisher, err := service.NewMessagePublisher(&cfg.RabbitMQ)
		if err != nil {
			logger.Warn("Event publishing disabled, RabbitMQ unavailable", zap.Error(err))
		} else {
			a.publisher = publisher
			events = publisher
		}
	}

	contests := repository.NewContestRepository(pool)
	solutions := repository.NewSolutionRepository(pool)
	v := validation.New()

	a.Cache = service.NewContestCache(redisClient, cfg.Redis.UpcomingKey, cfg.Redis.TTL, logger)
	a.Query = service.NewContestQuery(contests, solutions, a.Cache)

	reconciler := service.NewReconciler(contests, events, logger)
	clients := []source.Client{
		codeforces.New(cfg.Sources.Codeforces, v, logger),
		leetcode.New(cfg.Sources.LeetCode, cfg.Backfill.PageSize, v, logger),
		codechef.New(cfg.Sources.CodeChef, cfg.Backfill.PageSize, v, logger),
	}
	adapters := make([]service.Adapter, 0, len(clients))
	for _, c := range clients {
		adapters = append(adapters, service.NewSourceAdapter(c, reconciler, cfg.Backfill, logger))
	}
	aggregator := service.NewAggregator(adapters, contests, a.Cache, logger)

	sched, err := scheduler.New(cfg.Scheduler, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Scheduler = sched

	if err := sched.Register(scheduler.JobRefreshContests, aggregator.RefreshAndCache); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.YouTube.APIKey == "" {
		logger.Info("YouTube API key not configured, solution sync disabled")
		return a, nil
	}

	yt, err := youtube.NewClient(ctx, cfg.YouTube.APIKey, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	matcher := service.NewMatcher(contests, solutions, v, events, logger)
	sync := service.NewSolutionSync(yt, matcher, cfg.YouTube.Playlists, cfg.YouTube.Workers, logger)

	if err := sched.Register(scheduler.JobSyncSolutions, func(ctx context.Context) error {
		summary, err := sync.Sync(ctx)
		if err != nil {
			return err
		}
		if summary.Playlists > 0 && summary.FailedPlaylists == summary.Playlists {
			return fmt.Errorf("all %d playlists failed", summary.Playlists)
		}
		return nil
	}); err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

// Close releases every connection. It does not stop the scheduler.
func (a *App) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("Failed to close publisher", zap.Error(err))
		}
	}
	if err := a.Redis.Close(); err != nil {
		a.logger.Warn("Failed to close redis", zap.Error(err))
	}
	db.Close(a.Pool)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/contest-tracker/contest-aggregator-go/internal/db/models"
	"github.com/contest-tracker/contest-aggregator-go/internal/metrics"
)

const (
	defaultUpcomingKey = "upcoming_contests"
	defaultUpcomingTTL = 10 * time.Minute
)

// UpcomingCache stores the most recent upcoming-contest list.
type UpcomingCache interface {
	CacheUpcoming(ctx context.Context, contests []*models.Contest) error
	GetCached(ctx context.Context) []models.ContestView
	Clear(ctx context.Context) error
}

// ContestCache keeps the upcoming-contest list in Redis under a single key.
// The cache is best effort: reads never fail, they miss.
type ContestCache struct {
	redisClient *redis.Client
	key         string
	ttl         time.Duration
	logger      *zap.Logger
}

// NewContestCache creates a new ContestCache. Empty key and zero ttl fall back
// to upcoming_contests and ten minutes.
func NewContestCache(redisClient *redis.Client, key string, ttl time.Duration, logger *zap.Logger) *ContestCache {
	if key == "" {
		key = defaultUpcomingKey
	}
	if ttl <= 0 {
		ttl = defaultUpcomingTTL
	}
	return &ContestCache{
		redisClient: redisClient,
		key:         key,
		ttl:         ttl,
		logger:      logger,
	}
}

// CacheUpcoming replaces the cached list with contests sorted by start time
// ascending.
func (c *ContestCache) CacheUpcoming(ctx context.Context, contests []*models.Contest) error {
	views := make([]models.ContestView, 0, len(contests))
	for _, contest := range contests {
		if contest != nil {
			views = append(views, contest.View())
		}
	}
	slices.SortStableFunc(views, func(a, b models.ContestView) int {
		return a.StartTime.Compare(b.StartTime)
	})

	payload, err := sonic.Marshal(views)
	if err != nil {
		return fmt.Errorf("failed to encode upcoming contests: %w", err)
	}

	if err := c.redisClient.Set(ctx, c.key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("Cache unavailable, upcoming contests not cached", zap.Error(err))
		return fmt.Errorf("failed to cache upcoming contests: %w", err)
	}

	c.logger.Info("Cached upcoming contests",
		zap.Int("count", len(views)),
		zap.Duration("ttl", c.ttl),
	)
	return nil
}

// GetCached returns the cached list, or nil on a miss. Connection and decode
// failures are logged and reported as a miss.
func (c *ContestCache) GetCached(ctx context.Context) []models.ContestView {
	payload, err := c.redisClient.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil
	}
	if err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn("Cache unavailable", zap.String("key", c.key), zap.Error(err))
		return nil
	}

	var views []models.ContestView
	if err := sonic.Unmarshal(payload, &views); err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn("Cache unavailable, undecodable payload",
			zap.String("key", c.key),
			zap.Int("bytes", len(payload)),
			zap.Error(err),
		)
		return nil
	}

	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return views
}

// Clear removes the cached list.
func (c *ContestCache) Clear(ctx context.Context) error {
	if err := c.redisClient.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("failed to clear upcoming contests cache: %w", err)
	}
	return nil
}

// Ping checks the connection for readiness probes.
func (c *ContestCache) Ping(ctx context.Context) error {
	return c.redisClient.Ping(ctx).Err()
}

//go:build integration

package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/contest-tracker/contest-aggregator-go/internal/cache"
	"github.com/contest-tracker/contest-aggregator-go/internal/db/models"
)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client, err := cache.NewClient(ctx, fmt.Sprintf("redis://%s:%d/0", host, port.Int()))
	require.NoError(t, err)

	cleanup := func() {
		_ = client.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}
	return client, cleanup
}

func TestContestCache_Integration(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	c := NewContestCache(client, "upcoming_contests", 10*time.Minute, zap.NewNop())
	base := time.Date(2025, 3, 1, 14, 35, 0, 0, time.UTC)

	t.Run("miss before first write", func(t *testing.T) {
		assert.Nil(t, c.GetCached(ctx))
	})

	t.Run("stores sorted by start with ttl", func(t *testing.T) {
		later := models.NewContest(models.PlatformCodeforces, "codeforces-round-1000-div-2", "2063", "Codeforces Round 1000 (Div. 2)", base.Add(48*time.Hour), 7200, models.StatusUpcoming)
		sooner := models.NewContest(models.PlatformLeetCode, "weekly-contest-440", "", "Weekly Contest 440", base, 5400, models.StatusUpcoming)
		middle := models.NewContest(models.PlatformCodeChef, "175", "START175", "Starters 175", base.Add(24*time.Hour), 7200, models.StatusUpcoming)

		require.NoError(t, c.CacheUpcoming(ctx, []*models.Contest{later, sooner, nil, middle}))

		got := c.GetCached(ctx)
		require.Len(t, got, 3)
		assert.Equal(t, "weekly-contest-440", got[0].ContestID)
		assert.Equal(t, "175", got[1].ContestID)
		assert.Equal(t, "START175", got[1].OriginalID)
		assert.Equal(t, "codeforces-round-1000-div-2", got[2].ContestID)
		assert.True(t, got[0].StartTime.Equal(base))

		ttl, err := client.TTL(ctx, "upcoming_contests").Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, 9*time.Minute)
		assert.LessOrEqual(t, ttl, 10*time.Minute)
	})

	t.Run("empty list is cached as empty", func(t *testing.T) {
		require.NoError(t, c.CacheUpcoming(ctx, nil))
		got := c.GetCached(ctx)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("undecodable payload is a miss", func(t *testing.T) {
		require.NoError(t, client.Set(ctx, "upcoming_contests", "{not json", time.Minute).Err())
		assert.Nil(t, c.GetCached(ctx))
	})

	t.Run("clear removes the key", func(t *testing.T) {
		require.NoError(t, c.CacheUpcoming(ctx, nil))
		require.NoError(t, c.Clear(ctx))
		assert.Nil(t, c.GetCached(ctx))
		assert.NoError(t, c.Ping(ctx))
	})
}

//go:build integration

package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/contest-tracker/contest-aggregator-go/internal/config"
	"github.com/contest-tracker/contest-aggregator-go/internal/db/models"
)

func setupTestRabbitMQ(t *testing.T) (*config.RabbitMQConfig, func()) {
	t.Helper()
	ctx := context.Background()

	rabbitmqContainer, err := rabbitmq.Run(ctx,
		"rabbitmq:3.13-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	host, err := rabbitmqContainer.Host(ctx)
	require.NoError(t, err)

	port, err := rabbitmqContainer.MappedPort(ctx, "5672/tcp")
	require.NoError(t, err)

	cfg := &config.RabbitMQConfig{
		Host:     host,
		Port:     port.Int(),
		User:     "guest",
		Password: "guest",
		Exchange: "test.contests",
	}

	cleanup := func() {
		if err := rabbitmqContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}

	return cfg, cleanup
}

// bindTestQueue declares an exclusive queue bound to the exchange with key.
func bindTestQueue(t *testing.T, cfg *config.RabbitMQConfig, key string) (<-chan amqp.Delivery, func()) {
	t.Helper()

	conn, err := amqp.Dial(fmt.Sprintf("amqp://%s:%s@%s:%d/", cfg.User, cfg.Password, cfg.Host, cfg.Port))
	require.NoError(t, err)

	ch, err := conn.Channel()
	require.NoError(t, err)

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(q.Name, key, cfg.Exchange, false, nil))

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	require.NoError(t, err)

	return deliveries, func() {
		_ = ch.Close()
		_ = conn.Close()
	}
}

func TestMessagePublisher_Publish(t *testing.T) {
	cfg, cleanup := setupTestRabbitMQ(t)
	defer cleanup()

	mp, err := NewMessagePublisher(cfg)
	require.NoError(t, err)
	defer mp.Close()

	assert.True(t, mp.IsHealthy())

	deliveries, closeConsumer := bindTestQueue(t, cfg, "contest.*")
	defer closeConsumer()

	contest := models.NewContest(models.PlatformCodeChef, "172", "START172", "Starters 172", time.Now().Add(time.Hour), 7200, models.StatusUpcoming)
	event := NewContestEvent(EventContestDiscovered, contest)

	require.NoError(t, mp.Publish(context.Background(), event))

	select {
	case d := <-deliveries:
		assert.Equal(t, EventContestDiscovered, d.RoutingKey)
		assert.Equal(t, event.ID.String(), d.MessageId)

		var got ContestEvent
		require.NoError(t, sonic.Unmarshal(d.Body, &got))
		assert.Equal(t, "172", got.ContestID)
		assert.Equal(t, "START172", got.OriginalID)
		assert.Equal(t, models.PlatformCodeChef, got.Platform)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestMessagePublisher_Close(t *testing.T) {
	cfg, cleanup := setupTestRabbitMQ(t)
	defer cleanup()

	mp, err := NewMessagePublisher(cfg)
	require.NoError(t, err)

	require.NoError(t, mp.Close())
	assert.False(t, mp.IsHealthy())

	contest := models.NewContest(models.PlatformLeetCode, "weekly-contest-1", "", "Weekly Contest 1", time.Now(), 5400, models.StatusUpcoming)
	assert.Error(t, mp.Publish(context.Background(), NewContestEvent(EventContestDiscovered, contest)))
}

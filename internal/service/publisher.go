package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/contest-tracker/contest-aggregator-go/internal/config"
	"github.com/contest-tracker/contest-aggregator-go/internal/db/models"
	"github.com/contest-tracker/contest-aggregator-go/pkg/logger"
)

// Routing keys of published contest events.
const (
	EventContestDiscovered    = "contest.discovered"
	EventContestStatusChanged = "contest.status_changed"
	EventSolutionAttached     = "solution.attached"
)

const confirmTimeout = 5 * time.Second

// ContestEvent is the message body of every published event.
type ContestEvent struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	ContestID   string          `json:"contestId"`
	OriginalID  string          `json:"originalId,omitempty"`
	Platform    models.Platform `json:"platform"`
	Name        string          `json:"name"`
	Status      models.Status   `json:"status"`
	StartTime   time.Time       `json:"startTime"`
	SolutionURL string          `json:"solutionUrl,omitempty"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

// NewContestEvent builds an event of eventType describing c.
func NewContestEvent(eventType string, c *models.Contest) *ContestEvent {
	return &ContestEvent{
		ID:         uuid.New(),
		Type:       eventType,
		ContestID:  c.CanonicalID,
		OriginalID: c.OriginalID,
		Platform:   c.Platform,
		Name:       c.Name,
		Status:     c.Status,
		StartTime:  c.StartTime,
		OccurredAt: time.Now().UTC(),
	}
}

// EventPublisher publishes contest events.
type EventPublisher interface {
	Publish(ctx context.Context, event *ContestEvent) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, *ContestEvent) error { return nil }

// NopPublisher returns a publisher that drops every event. It is used when
// no broker is configured.
func NopPublisher() EventPublisher {
	return nopPublisher{}
}

// MessagePublisher publishes events to a RabbitMQ topic exchange with
// publisher confirms. The routing key is the event type.
type MessagePublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  *config.RabbitMQConfig
	mu      sync.Mutex
}

func NewMessagePublisher(cfg *config.RabbitMQConfig) (*MessagePublisher, error) {
	mp := &MessagePublisher{
		config: cfg,
	}

	if err := mp.connect(); err != nil {
		return nil, err
	}

	return mp, nil
}

func (mp *MessagePublisher) connect() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	connURL := fmt.Sprintf("amqp://%s:%s@%s:%d/",
		mp.config.User, mp.config.Password, mp.config.Host, mp.config.Port)

	conn, err := amqp.Dial(connURL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	if err := ch.ExchangeDeclare(
		mp.config.Exchange, // name
		"topic",            // type
		true,               // durable
		false,              // auto-deleted
		false,              // internal
		false,              // no-wait
		nil,                // arguments
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	mp.conn = conn
	mp.channel = ch

	logger.L().Info("Connected to RabbitMQ",
		zap.String("exchange", mp.config.Exchange),
	)

	return nil
}

// Publish sends event and waits for the broker's confirmation. Publishes are
// serialized so each confirmation is matched to its message.
func (mp *MessagePublisher) Publish(ctx context.Context, event *ContestEvent) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.channel == nil {
		return fmt.Errorf("channel is not initialized")
	}

	body, err := sonic.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	confirmation, err := mp.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		mp.config.Exchange, // exchange
		event.Type,         // routing key
		false,              // mandatory
		false,              // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.OccurredAt,
			MessageId:    event.ID.String(),
			Type:         event.Type,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()

	acked, err := confirmation.WaitContext(waitCtx)
	if err != nil {
		return fmt.Errorf("waiting for publish confirmation: %w", err)
	}
	if !acked {
		return fmt.Errorf("message was not acknowledged by broker")
	}

	logger.L().Debug("Published event to RabbitMQ",
		zap.String("eventId", event.ID.String()),
		zap.String("routingKey", event.Type),
		zap.String("contestId", event.ContestID),
	)

	return nil
}

func (mp *MessagePublisher) Close() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	var errs []error
	if mp.channel != nil {
		if err := mp.channel.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if mp.conn != nil {
		if err := mp.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing publisher: %v", errs)
	}

	logger.L().Info("RabbitMQ publisher closed")
	return nil
}

func (mp *MessagePublisher) IsHealthy() bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	return mp.conn != nil && !mp.conn.IsClosed() && mp.channel != nil
}

// publishQuietly publishes event and logs a failure instead of returning it.
// Events never fail the operation that produced them.
func publishQuietly(ctx context.Context, p EventPublisher, log *zap.Logger, event *ContestEvent) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		log.Warn("Failed to publish event",
			zap.String("type", event.Type),
			zap.String("platform", string(event.Platform)),
			zap.String("contestId", event.ContestID),
			zap.Error(err),
		)
	}
}

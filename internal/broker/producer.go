package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	exchangeKindTopic   = "topic"
	contentTypeJSON     = "application/json"
	defaultDialTimeout  = 10 * time.Second
	amqpSchemePlain     = "amqp"
	amqpSchemeEncrypted = "amqps"
)

var errInvalidAMQPScheme = errors.New("amqp url scheme must be amqp:// or amqps://")

// Publisher sends JSON events to an exchange.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body any) error
	Close()
}

// Producer publishes events to RabbitMQ over a single channel.
type Producer struct {
	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
	logger  *zap.Logger
}

// NewProducer dials RabbitMQ with a bounded timeout and opens a channel.
func NewProducer(amqpURL string, logger *zap.Logger) (*Producer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(defaultDialTimeout)})
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	return &Producer{conn: conn, channel: channel, logger: logger}, nil
}

// Publish declares the durable topic exchange and publishes body as JSON.
// A failed publish reopens the channel once and retries.
func (producer *Producer) Publish(ctx context.Context, exchange, routingKey string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", routingKey, err)
	}
	producer.mu.Lock()
	defer producer.mu.Unlock()

	publishErr := producer.publish(ctx, exchange, routingKey, payload)
	if publishErr == nil {
		return nil
	}
	producer.logger.Warn("publish failed; reopening channel",
		zap.String("exchange", exchange),
		zap.String("routing_key", routingKey),
		zap.Error(publishErr))
	channel, err := producer.conn.Channel()
	if err != nil {
		return errors.Join(publishErr, err)
	}
	producer.channel = channel
	return producer.publish(ctx, exchange, routingKey, payload)
}

func (producer *Producer) publish(ctx context.Context, exchange, routingKey string, payload []byte) error {
	if err := producer.channel.ExchangeDeclare(exchange, exchangeKindTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return producer.channel.PublishWithContext(ctx, exchange, routingKey, false, false, amqp091.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	})
}

// Close closes the channel and connection.
func (producer *Producer) Close() {
	producer.mu.Lock()
	defer producer.mu.Unlock()
	if producer.channel != nil {
		_ = producer.channel.Close()
	}
	if producer.conn != nil {
		_ = producer.conn.Close()
	}
}

// LogPublisher stands in for RabbitMQ when no broker is configured; events are only logged.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher returns a publisher that logs and drops every event.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

func (publisher *LogPublisher) Publish(_ context.Context, exchange, routingKey string, _ any) error {
	publisher.logger.Warn("publish skipped; no broker configured",
		zap.String("exchange", exchange),
		zap.String("routing_key", routingKey))
	return nil
}

func (publisher *LogPublisher) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	if index := strings.Index(strings.ToLower(clean), amqpSchemePlain); index > 0 {
		clean = clean[index:]
	}
	parsed, err := url.Parse(clean)
	if err != nil {
		return "", fmt.Errorf("parse amqp url: %w", err)
	}
	if parsed.Scheme != amqpSchemePlain && parsed.Scheme != amqpSchemeEncrypted {
		return "", errInvalidAMQPScheme
	}
	return clean, nil
}

// Package rabbitmq adapts RabbitMQ to the transport.Transport contract.
// It follows the connection/producer/consumer split used throughout
// (common/mrabbitmq + components/*/adapters/rabbitmq) but collapses
// them into one adapter type since the contract here is symmetric.
package rabbitmq

import (
	"context"
	"fmt"
	"sync"

	libCommons "github.com/LerianStudio/lib-commons/v2/commons"
	libLog "github.com/LerianStudio/lib-commons/v2/commons/log"
	libOpenTelemetry "github.com/LerianStudio/lib-commons/v2/commons/opentelemetry"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/whizbang-io/whizbang/internal/envelope"
	"github.com/whizbang-io/whizbang/internal/transport"
	"github.com/whizbang-io/whizbang/pkg/assert"
)

// Config holds the connection and topology settings for the adapter.
type Config struct {
	URL          string
	ExchangeName string
	ExchangeKind string // "topic" by default
}

func (c Config) withDefaults() Config {
	if c.ExchangeKind == "" {
		c.ExchangeKind = "topic"
	}

	return c
}

// Adapter is a RabbitMQ-backed transport.Transport. A single AMQP
// connection and channel are shared across publish and subscribe calls,
// mirroring a singleton RabbitMQConnection.
type Adapter struct {
	cfg    Config
	logger libLog.Logger

	mu          sync.Mutex
	conn        *amqp.Connection
	channel     *amqp.Channel
	initialized bool
}

func New(cfg Config, logger libLog.Logger) *Adapter {
	return &Adapter{cfg: cfg.withDefaults(), logger: logger}
}

func (a *Adapter) Initialize(ctx context.Context) error {
	assert.NotEmpty(a.cfg.URL, "rabbitmq: Config.URL must not be empty")

	a.mu.Lock()
	defer a.mu.Unlock()

	conn, err := amqp.Dial(a.cfg.URL)
	if err != nil {
		return fmt.Errorf("rabbitmq: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq: open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(a.cfg.ExchangeName, a.cfg.ExchangeKind, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()

		return fmt.Errorf("rabbitmq: declare exchange %s: %w", a.cfg.ExchangeName, err)
	}

	a.conn = conn
	a.channel = ch
	a.initialized = true

	if a.logger != nil {
		a.logger.Infof("rabbitmq: connected, exchange %s declared", a.cfg.ExchangeName)
	}

	return nil
}

func (a *Adapter) IsInitialized() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.initialized && !a.conn.IsClosed()
}

// Publish routes by destination-as-routing-key on the adapter's single
// declared exchange.
func (a *Adapter) Publish(ctx context.Context, env *envelope.Envelope, destination string) (err error) {
	_, tracer, _, _ := libCommons.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "transport.rabbitmq.publish")
	defer span.End()

	defer func() {
		if err != nil {
			libOpenTelemetry.HandleSpanError(&span, "Failed to publish to rabbitmq", err)
		}
	}()

	if !a.IsInitialized() {
		return fmt.Errorf("rabbitmq: not initialized")
	}

	body, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal envelope: %w", err)
	}

	headers, err := env.ToHeaders("")
	if err != nil {
		return fmt.Errorf("rabbitmq: build headers: %w", err)
	}

	a.mu.Lock()
	ch := a.channel
	a.mu.Unlock()

	err = ch.PublishWithContext(ctx, a.cfg.ExchangeName, destination, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    headers.MessageID,
		Headers: amqp.Table{
			"MessageId":     headers.MessageID,
			"CorrelationId": headers.CorrelationID,
			"CausationId":   headers.CausationID,
			"PayloadType":   headers.PayloadType,
		},
		Body: body,
	})

	return err
}

func (a *Adapter) Subscribe(ctx context.Context, destination string, mode transport.SubscriptionMode, handler transport.Handler) (transport.Subscription, error) {
	if !a.IsInitialized() {
		return nil, fmt.Errorf("rabbitmq: not initialized")
	}

	a.mu.Lock()
	ch := a.channel
	a.mu.Unlock()

	queueName := a.cfg.ExchangeName + "." + destination

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("rabbitmq: declare queue %s: %w", queueName, err)
	}

	if err := ch.QueueBind(queueName, destination, a.cfg.ExchangeName, false, nil); err != nil {
		return nil, fmt.Errorf("rabbitmq: bind queue %s: %w", queueName, err)
	}

	// RabbitMQ always pushes deliveries; Polling mode has no effect here
	// beyond controlling how the worker drains the internal channel, so
	// this adapter treats both modes identically.
	_ = mode

	deliveries, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: consume %s: %w", queueName, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		for {
			select {
			case <-subCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}

				env, err := envelope.Unmarshal(d.Body)
				if err != nil {
					if a.logger != nil {
						a.logger.Errorf("rabbitmq: undecodable delivery on %s: %v", queueName, err)
					}

					_ = d.Nack(false, false)

					continue
				}

				if err := handler(subCtx, env); err != nil {
					_ = d.Nack(false, true)
					continue
				}

				_ = d.Ack(false)
			}
		}
	}()

	return &subscription{cancel: cancel, done: done}, nil
}

type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *subscription) Close(ctx context.Context) error {
	s.cancel()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

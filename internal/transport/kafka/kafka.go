// Package kafka adapts Kafka (via IBM/sarama) to the transport.Transport
// contract. Partition key is always the message's StreamKey, so ordering
// within a stream is preserved at the broker level.
package kafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/IBM/sarama"

	libCommons "github.com/LerianStudio/lib-commons/v2/commons"
	libLog "github.com/LerianStudio/lib-commons/v2/commons/log"
	libOpenTelemetry "github.com/LerianStudio/lib-commons/v2/commons/opentelemetry"

	"github.com/whizbang-io/whizbang/internal/envelope"
	"github.com/whizbang-io/whizbang/internal/transport"
)

type Config struct {
	Brokers []string
	GroupID string
}

type Adapter struct {
	cfg    Config
	logger libLog.Logger

	mu          sync.Mutex
	producer    sarama.SyncProducer
	client      sarama.Client
	initialized bool
}

func New(cfg Config, logger libLog.Logger) *Adapter {
	return &Adapter{cfg: cfg, logger: logger}
}

func (a *Adapter) Initialize(ctx context.Context) error {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest

	client, err := sarama.NewClient(a.cfg.Brokers, saramaCfg)
	if err != nil {
		return fmt.Errorf("kafka: client: %w", err)
	}

	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("kafka: producer: %w", err)
	}

	a.mu.Lock()
	a.client = client
	a.producer = producer
	a.initialized = true
	a.mu.Unlock()

	if a.logger != nil {
		a.logger.Infof("kafka: connected to %v", a.cfg.Brokers)
	}

	return nil
}

func (a *Adapter) IsInitialized() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.initialized
}

func (a *Adapter) Publish(ctx context.Context, env *envelope.Envelope, destination string) (err error) {
	_, tracer, _, _ := libCommons.NewTrackingFromContext(ctx)

	_, span := tracer.Start(ctx, "transport.kafka.publish")
	defer span.End()

	defer func() {
		if err != nil {
			libOpenTelemetry.HandleSpanError(&span, "Failed to publish to kafka", err)
		}
	}()

	if !a.IsInitialized() {
		return fmt.Errorf("kafka: not initialized")
	}

	body, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("kafka: marshal envelope: %w", err)
	}

	headers, err := env.ToHeaders("")
	if err != nil {
		return fmt.Errorf("kafka: build headers: %w", err)
	}

	streamKey := env.LastHop().Metadata["streamKey"]

	msg := &sarama.ProducerMessage{
		Topic: destination,
		Key:   sarama.StringEncoder(streamKey),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("MessageId"), Value: []byte(headers.MessageID)},
			{Key: []byte("CorrelationId"), Value: []byte(headers.CorrelationID)},
			{Key: []byte("CausationId"), Value: []byte(headers.CausationID)},
			{Key: []byte("PayloadType"), Value: []byte(headers.PayloadType)},
		},
	}

	a.mu.Lock()
	producer := a.producer
	a.mu.Unlock()

	_, _, err = producer.SendMessage(msg)

	return err
}

func (a *Adapter) Subscribe(ctx context.Context, destination string, mode transport.SubscriptionMode, handler transport.Handler) (transport.Subscription, error) {
	if !a.IsInitialized() {
		return nil, fmt.Errorf("kafka: not initialized")
	}

	a.mu.Lock()
	client := a.client
	a.mu.Unlock()

	group, err := sarama.NewConsumerGroupFromClient(a.cfg.GroupID, client)
	if err != nil {
		return nil, fmt.Errorf("kafka: consumer group: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	consumer := &groupConsumer{handler: handler, logger: a.logger}

	go func() {
		defer close(done)

		for {
			if subCtx.Err() != nil {
				return
			}

			if err := group.Consume(subCtx, []string{destination}, consumer); err != nil {
				if a.logger != nil {
					a.logger.Errorf("kafka: consume group %s: %v", a.cfg.GroupID, err)
				}

				return
			}
		}
	}()

	return &subscription{cancel: cancel, done: done, group: group}, nil
}

// groupConsumer bridges sarama's ConsumerGroupHandler interface to a
// plain transport.Handler.
type groupConsumer struct {
	handler transport.Handler
	logger  libLog.Logger
}

func (groupConsumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (groupConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (c groupConsumer) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			env, err := envelope.Unmarshal(msg.Value)
			if err != nil {
				if c.logger != nil {
					c.logger.Errorf("kafka: undecodable message at offset %d: %v", msg.Offset, err)
				}

				sess.MarkMessage(msg, "")

				continue
			}

			if err := c.handler(sess.Context(), env); err != nil {
				// Offset is not marked; sarama redelivers on the next
				// rebalance/restart.
				continue
			}

			sess.MarkMessage(msg, "")

		case <-sess.Context().Done():
			return nil
		}
	}
}

type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	group  sarama.ConsumerGroup
}

func (s *subscription) Close(ctx context.Context) error {
	s.cancel()

	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return s.group.Close()
}

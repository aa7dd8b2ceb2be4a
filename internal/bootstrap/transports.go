package bootstrap

import (
	"context"
	"fmt"

	libLog "github.com/LerianStudio/lib-commons/v2/commons/log"

	"github.com/whizbang-io/whizbang/internal/transport/kafka"
	"github.com/whizbang-io/whizbang/internal/transport/rabbitmq"
	"github.com/whizbang-io/whizbang/internal/transport/servicebus"
	"github.com/whizbang-io/whizbang/internal/worker"
)

// buildTransports initializes every transport the Config enables and
// returns a resolver keyed by the same names policy.PublishTarget.Transport
// and policy.SubscribeTarget.Transport values use ("rabbitmq", "servicebus",
// "kafka").
func buildTransports(ctx context.Context, cfg *Config, logger libLog.Logger) (worker.TransportResolver, error) {
	resolver := worker.TransportResolver{}

	if cfg.RabbitMQEnabled {
		adapter := rabbitmq.New(rabbitmq.Config{
			URL:          cfg.RabbitMQURI,
			ExchangeName: cfg.RabbitMQExchangeName,
			ExchangeKind: cfg.RabbitMQExchangeKind,
		}, logger)

		if err := adapter.Initialize(ctx); err != nil {
			return nil, fmt.Errorf("bootstrap: failed to initialize rabbitmq transport: %w", err)
		}

		resolver["rabbitmq"] = adapter
	}

	if cfg.ServiceBusEnabled {
		adapter := servicebus.New(servicebus.Config{
			ConnectionString: cfg.ServiceBusConnectionString,
		}, logger)

		if err := adapter.Initialize(ctx); err != nil {
			return nil, fmt.Errorf("bootstrap: failed to initialize servicebus transport: %w", err)
		}

		resolver["servicebus"] = adapter
	}

	if cfg.KafkaEnabled {
		adapter := kafka.New(kafka.Config{
			Brokers: cfg.kafkaBrokers(),
			GroupID: cfg.KafkaGroupID,
		}, logger)

		if err := adapter.Initialize(ctx); err != nil {
			return nil, fmt.Errorf("bootstrap: failed to initialize kafka transport: %w", err)
		}

		resolver["kafka"] = adapter
	}

	return resolver, nil
}

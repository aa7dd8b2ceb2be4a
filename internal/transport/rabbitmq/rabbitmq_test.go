package rabbitmq

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{URL: "amqp://localhost", ExchangeName: "whizbang"}.withDefaults()
	require.Equal(t, "topic", cfg.ExchangeKind)

	cfg = Config{ExchangeKind: "fanout"}.withDefaults()
	require.Equal(t, "fanout", cfg.ExchangeKind)
}

func TestAdapter_IsInitialized_BeforeInitialize(t *testing.T) {
	a := New(Config{URL: "amqp://localhost"}, nil)
	require.False(t, a.IsInitialized())
}

func TestAdapter_Publish_NotInitialized(t *testing.T) {
	a := New(Config{URL: "amqp://localhost"}, nil)

	err := a.Publish(context.Background(), nil, "orders")
	require.Error(t, err)
}

func TestAdapter_Subscribe_NotInitialized(t *testing.T) {
	a := New(Config{URL: "amqp://localhost"}, nil)

	_, err := a.Subscribe(context.Background(), "orders", 0, nil)
	require.Error(t, err)
}

func TestSubscription_Close_WaitsForDone(t *testing.T) {
	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	sub := &subscription{cancel: cancel, done: done}

	go func() {
		<-ctx.Done()
		close(done)
	}()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), time.Second)
	defer closeCancel()

	require.NoError(t, sub.Close(closeCtx))
}

func TestSubscription_Close_RespectsCallerContext(t *testing.T) {
	done := make(chan struct{})
	sub := &subscription{cancel: func() {}, done: done}

	closeCtx, closeCancel := context.WithCancel(context.Background())
	closeCancel()

	err := sub.Close(closeCtx)
	require.Error(t, err)
}

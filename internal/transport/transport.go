// Package transport defines the adapter contract every broker binding
// (RabbitMQ, Kafka, Service Bus) implements, plus the routing helpers
// the Policy Engine's PublishTargets/SubscribeTargets resolve against.
package transport

import (
	"context"
	"hash/fnv"

	"github.com/whizbang-io/whizbang/internal/envelope"
)

// SubscriptionMode selects how a consumer worker pulls envelopes off a
// destination. Processor mode is transport-driven (production); Polling
// mode is used where the transport lacks server push — the Azure
// Service Bus emulator being the motivating case.
type SubscriptionMode int

const (
	ModeProcessor SubscriptionMode = iota
	ModePolling
)

func (m SubscriptionMode) String() string {
	if m == ModePolling {
		return "polling"
	}

	return "processor"
}

// Handler processes one received envelope. Returning a non-nil error
// tells the transport the message was not handled; whether that means
// redelivery or dead-lettering is transport-specific.
type Handler func(ctx context.Context, env *envelope.Envelope) error

// Subscription represents one active Subscribe call. Close is
// cooperative: it asks the underlying consumer loop to stop and waits
// for in-flight handler invocations to finish.
type Subscription interface {
	Close(ctx context.Context) error
}

// Transport is the uniform contract the coordinator's workers drive.
// Every concrete adapter (RabbitMQ, Kafka, Service Bus) must satisfy
// this without leaking broker-specific types into internal/worker.
type Transport interface {
	// Initialize connects and prepares topology (exchanges, topics,
	// queues) as needed. It is called once at process startup.
	Initialize(ctx context.Context) error

	// IsInitialized reports current readiness without attempting to
	// reconnect; the publisher worker polls this before every publish.
	IsInitialized() bool

	// Publish sends one envelope at-least-once. Implementations must be
	// safe to call again with the same envelope (broker-side dedup is
	// out of scope; MessageId-based dedup happens on the receive side).
	Publish(ctx context.Context, env *envelope.Envelope, destination string) error

	// Subscribe starts streaming envelopes from destination into
	// handler according to mode, returning a disposable Subscription.
	Subscribe(ctx context.Context, destination string, mode SubscriptionMode, handler Handler) (Subscription, error)
}

// Sender is an optional capability for request/response-style
// transports. Not every Transport implements it.
type Sender interface {
	Send(ctx context.Context, env *envelope.Envelope, destination string) (*envelope.Envelope, error)
}

// ITopicRoutingStrategy maps a logical topic to the physical
// destination(s) a publish or subscribe call actually targets.
type ITopicRoutingStrategy interface {
	// Destinations lists every physical destination a subscriber of
	// topic must consume from.
	Destinations(topic string) []string

	// Resolve picks the single physical destination a publish of a
	// message with the given stream key should target.
	Resolve(topic, streamKey string) string
}

// DefaultTopicRoutingStrategy is the 1:1 mapping: the logical topic is
// the physical destination.
type DefaultTopicRoutingStrategy struct{}

func (DefaultTopicRoutingStrategy) Destinations(topic string) []string { return []string{topic} }

func (DefaultTopicRoutingStrategy) Resolve(topic, _ string) string { return topic }

// GenericTopicRoutingStrategy hash-distributes messages across N
// physical "topic-00".."topic-(N-1)" destinations so transports with
// weak server-side filtering (e.g. RabbitMQ without per-type exchanges)
// can keep a flat topology; subscribers consume every generic topic and
// filter in-process.
type GenericTopicRoutingStrategy struct {
	N int
}

func NewGenericTopicRoutingStrategy(n int) GenericTopicRoutingStrategy {
	if n <= 0 {
		n = 1
	}

	return GenericTopicRoutingStrategy{N: n}
}

func (g GenericTopicRoutingStrategy) Destinations(topic string) []string {
	out := make([]string, g.N)
	for i := range out {
		out[i] = genericName(topic, i)
	}

	return out
}

func (g GenericTopicRoutingStrategy) Resolve(topic, streamKey string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(streamKey))

	return genericName(topic, int(h.Sum32())%g.N)
}

func genericName(topic string, i int) string {
	const digits = "0123456789"

	tens, ones := i/10, i%10

	return topic + "-" + string(digits[tens]) + string(digits[ones])
}

package policy

import (
	"context"
	"fmt"

	libCommons "github.com/LerianStudio/lib-commons/v2/commons"
	libOpenTelemetry "github.com/LerianStudio/lib-commons/v2/commons/opentelemetry"

	"github.com/whizbang-io/whizbang/pkg/assert"
)

// PublishTarget names one destination a winning configuration sends to.
type PublishTarget struct {
	Transport   string
	Destination string
	RoutingKey  string
}

// SubscribeTarget names one source a winning configuration listens on.
type SubscribeTarget struct {
	Transport        string
	Topic            string
	ConsumerGroup    string
	Subscription     string
	Queue            string
	Filter           string
}

// Configuration is what the winning policy builds for a message: where
// it goes, how it is ordered, and how it is executed.
type Configuration struct {
	Topic             string
	StreamKey         string
	PartitionCount    int
	PartitionRouter   PartitionRouter
	ExecutionStrategy ExecutionStrategy
	SequenceProvider  SequenceProvider
	PublishTargets    []PublishTarget
	SubscribeTargets  []SubscribeTarget
}

// DefaultPartitionCount is the default partition count a Configuration
// uses when not overridden.
const DefaultPartitionCount = 10_000

// NewConfiguration returns a Configuration with sensible defaults:
// hash partitioning, serial execution, and DefaultPartitionCount.
func NewConfiguration(topic, streamKey string) Configuration {
	return Configuration{
		Topic:             topic,
		StreamKey:         streamKey,
		PartitionCount:    DefaultPartitionCount,
		PartitionRouter:   HashPartitionRouter{},
		ExecutionStrategy: SerialExecutor{},
	}
}

// Predicate decides whether a policy applies to the message in ctx.
// Predicates must be pure — the engine may evaluate one multiple times.
type Predicate func(ctx *Context) bool

// Builder constructs the configuration for a message the predicate
// matched.
type Builder func(ctx *Context) Configuration

// Policy pairs a predicate with the configuration it builds when matched.
type Policy struct {
	Name      string
	Predicate Predicate
	Build     Builder
}

// Engine evaluates policies in declaration order; first match wins.
// Every evaluation — matched or not — is appended to the context's
// decision trail.
type Engine struct {
	policies []Policy
}

// NewEngine returns an engine with no policies registered. Register
// must be called at least once with a catch-all predicate, or Evaluate
// will return ErrNoPolicyMatched.
func NewEngine() *Engine {
	return &Engine{}
}

// Register appends a policy. Order matters: specific policies must
// precede general ones — the engine does not rank by specificity.
func (e *Engine) Register(p Policy) {
	assert.NotEmpty(p.Name, "policy: Name must not be empty")
	assert.NotNil(p.Predicate, "policy: Predicate must not be nil")
	assert.NotNil(p.Build, "policy: Build must not be nil")

	e.policies = append(e.policies, p)
}

// ErrNoPolicyMatched is returned when no registered policy matched and
// no catch-all was registered — a configuration error, not a per-message
// failure.
type ErrNoPolicyMatched struct {
	MessageType string
}

func (e ErrNoPolicyMatched) Error() string {
	return fmt.Sprintf("policy: no policy matched message type %q and no default is registered", e.MessageType)
}

// Evaluate walks the registered policies in order, recording every
// decision, and returns the first match's built configuration.
func (e *Engine) Evaluate(ctx *Context) (result Configuration, err error) {
	evalCtx := ctx.Ctx
	if evalCtx == nil {
		evalCtx = context.Background()
	}

	_, tracer, _, _ := libCommons.NewTrackingFromContext(evalCtx)

	_, span := tracer.Start(evalCtx, "policy.evaluate")
	defer span.End()

	defer func() {
		if err != nil {
			libOpenTelemetry.HandleSpanError(&span, "Failed to evaluate policy", err)
		}
	}()

	for _, p := range e.policies {
		if p.Predicate(ctx) {
			ctx.record(p.Name, true, "matched")
			return p.Build(ctx), nil
		}

		ctx.record(p.Name, false, "not matched")
	}

	err = ErrNoPolicyMatched{MessageType: ctx.MessageType}

	return Configuration{}, err
}

package worker

import (
	"context"
	"fmt"
	"time"

	libCommons "github.com/LerianStudio/lib-commons/v2/commons"
	libLog "github.com/LerianStudio/lib-commons/v2/commons/log"
	libOpenTelemetry "github.com/LerianStudio/lib-commons/v2/commons/opentelemetry"

	"github.com/whizbang-io/whizbang/internal/coordinator"
	"github.com/whizbang-io/whizbang/internal/dedup"
	"github.com/whizbang-io/whizbang/internal/envelope"
	"github.com/whizbang-io/whizbang/internal/policy"
	"github.com/whizbang-io/whizbang/internal/transport"
	"github.com/whizbang-io/whizbang/pkg/assert"
	"github.com/whizbang-io/whizbang/pkg/constant"
)

// Receptor handles one inbound message type. Consumer.Handle looks the
// receptor up by the envelope's PayloadType; implementations register
// these through Consumer.RegisterReceptor.
type Receptor func(ctx context.Context, env *envelope.Envelope) error

// Consumer runs the inbox side: subscribes to a
// transport, dedups, inserts an authoritative inbox row, dispatches to
// receptors, and reports completions through the same ProcessWorkBatch
// cadence the publisher uses.
type Consumer struct {
	cfg        Config
	coord      *coordinator.Coordinator
	identity   coordinator.Identity
	dedupe     *dedup.Cache
	partitions policy.PartitionRouter
	logger     libLog.Logger
	receptors  map[string]Receptor

	bag outcomeBag

	dbReady            func() bool
	consecutiveNotReady int
}

func NewConsumer(cfg Config, coord *coordinator.Coordinator, identity coordinator.Identity, dedupe *dedup.Cache, dbReady func() bool, logger libLog.Logger) *Consumer {
	assert.NotNil(coord, "worker: Consumer coordinator must not be nil")
	assert.NotEmpty(identity.InstanceID, "worker: Consumer Identity.InstanceID must not be empty")

	if dbReady == nil {
		dbReady = func() bool { return true }
	}

	return &Consumer{
		cfg:        cfg.withDefaults(),
		coord:      coord,
		identity:   identity,
		dedupe:     dedupe,
		partitions: policy.HashPartitionRouter{},
		dbReady:    dbReady,
		logger:     logger,
		receptors:  map[string]Receptor{},
	}
}

// RegisterReceptor binds payloadType to
// the handler invoked once a message of that type is deduplicated and
// has its current hop appended.
func (c *Consumer) RegisterReceptor(payloadType string, r Receptor) {
	c.receptors[payloadType] = r
}

// Handle implements transport.Handler — each transport.Subscribe call
// drives envelopes straight into this method. The dedup cache is only a
// fast-path negative cache: a miss there still goes through
// ProcessWorkBatch's InsertMessageDeduplication, the authoritative
// exactly-once ledger, before the receptor ever runs.
func (c *Consumer) Handle(ctx context.Context, env *envelope.Envelope) (err error) {
	_, tracer, _, _ := libCommons.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "worker.consumer.handle")
	defer span.End()

	defer func() {
		if err != nil {
			libOpenTelemetry.HandleSpanError(&span, "Failed to handle inbound envelope", err)
		}
	}()

	seen, err := c.dedupe.SeenBefore(ctx, env.MessageID)
	if err == nil && seen {
		return nil
	}

	streamID := env.LastHop().Metadata["streamKey"]
	if streamID == "" {
		streamID = env.CorrelationID()
	}

	source := env.LastHop().Service

	scope, scopeErr := envelope.MarshalScope(env.Scope)
	if scopeErr != nil && c.logger != nil {
		c.logger.Warnf("worker: consumer: failed to marshal scope for %s: %v", env.MessageID, scopeErr)
	}

	batch, err := c.coord.ProcessWorkBatch(ctx, coordinator.Request{
		Identity: c.identity,
		NewInboxMessages: []coordinator.InboxRow{{
			MessageID:       env.MessageID,
			Source:          source,
			MessageType:     env.PayloadType,
			Payload:         env.Payload,
			StreamID:        streamID,
			PartitionNumber: c.partitions.Route(streamID, c.cfg.PartitionCount),
			Scope:           scope,
		}},
		LeaseSeconds: c.cfg.LeaseSeconds,
	})
	if err != nil {
		return fmt.Errorf("worker: consumer: insert inbox row for %s: %w", env.MessageID, err)
	}

	if len(batch.InsertedInboxIDs) == 0 {
		// message_deduplication already held this MessageId: either a
		// previous delivery completed it, or a concurrent delivery won
		// the race to record it first. Either way this delivery must not
		// run the receptor again.
		return nil
	}

	env.AddHop(c.identity.ServiceName, c.identity.InstanceID, "", map[string]string{})

	receptor, ok := c.receptors[env.PayloadType]
	if !ok {
		return fmt.Errorf("worker: consumer: no receptor registered for payload type %q", env.PayloadType)
	}

	handleErr := receptor(ctx, env)

	if handleErr == nil {
		c.bag.addCompletion(coordinator.Completion{MessageID: env.MessageID, CompletedStatus: constant.Processed})

		if markErr := c.dedupe.MarkSeen(ctx, env.MessageID); markErr != nil && c.logger != nil {
			c.logger.Warnf("worker: consumer: failed to mark %s seen in dedup cache: %v", env.MessageID, markErr)
		}

		return nil
	}

	c.bag.addFailure(coordinator.Failure{
		MessageID:     env.MessageID,
		Error:         handleErr.Error(),
		FailureReason: classifyReceptorError(handleErr),
	})

	// Return the error so the transport's own retry policy applies; the
	// inbox row itself stays put until the next tick reports this failure.
	return handleErr
}

func classifyReceptorError(err error) constant.FailureReason {
	if c, ok := err.(Classifier); ok {
		return c.FailureReason()
	}

	return constant.FailureUnknown
}

// ReportLoop periodically flushes accumulated completions/failures via
// ProcessWorkBatch. It is the consumer-side analogue of the publisher's
// coordinator loop — subscriptions push work in as it arrives, this loop
// reports outcomes out on the shared polling cadence.
func (c *Consumer) ReportLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.reportTick(ctx)
		}
	}
}

func (c *Consumer) reportTick(ctx context.Context) {
	if !c.dbReady() {
		c.consecutiveNotReady++
		return
	}

	c.consecutiveNotReady = 0

	completions, failures, renewals := c.bag.snapshotAndClear()
	if len(completions) == 0 && len(failures) == 0 && len(renewals) == 0 {
		return
	}

	_, err := c.coord.ProcessWorkBatch(ctx, coordinator.Request{
		Identity:           c.identity,
		InboxCompletions:   completions,
		InboxFailures:      failures,
		RenewInboxLeaseIDs: renewals,
		LeaseSeconds:       c.cfg.LeaseSeconds,
	})
	if err != nil {
		if c.logger != nil {
			c.logger.Errorf("worker: consumer ProcessWorkBatch failed: %v", err)
		}

		for _, cc := range completions {
			c.bag.addCompletion(cc)
		}

		for _, f := range failures {
			c.bag.addFailure(f)
		}

		for _, id := range renewals {
			c.bag.addLeaseRenewal(id)
		}
	}
}

// Subscribe wires the consumer's Handle method onto a transport
// subscription, honouring the requested SubscriptionMode.
func (c *Consumer) Subscribe(ctx context.Context, t transport.Transport, destination string, mode transport.SubscriptionMode) (transport.Subscription, error) {
	return t.Subscribe(ctx, destination, mode, c.Handle)
}

// Package worker implements the three long-running loops driven by the
// batch coordinator: Publisher, Consumer, and Perspective.
// All three share the same skeleton — snapshot outcome bags, call
// ProcessWorkBatch, funnel returned work to a processing stage — built
// around the familiar ticker-plus-signal-context bootstrap loop shape.
package worker

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	libCommons "github.com/LerianStudio/lib-commons/v2/commons"
	libLog "github.com/LerianStudio/lib-commons/v2/commons/log"
	libOpenTelemetry "github.com/LerianStudio/lib-commons/v2/commons/opentelemetry"
	"github.com/google/uuid"

	"github.com/whizbang-io/whizbang/internal/coordinator"
	"github.com/whizbang-io/whizbang/internal/envelope"
	"github.com/whizbang-io/whizbang/internal/transport"
	"github.com/whizbang-io/whizbang/pkg/assert"
	"github.com/whizbang-io/whizbang/pkg/constant"
)

// Config carries the configuration surface every worker loop honours.
type Config struct {
	PollingInterval       time.Duration
	IdleThresholdPolls    int
	LeaseSeconds          int
	DebugMode             bool
	NotReadyWarnAfter     int
	PartitionCount        int
	MaxConcurrentStreams  int
}

func (c Config) withDefaults() Config {
	if c.PollingInterval <= 0 {
		c.PollingInterval = time.Second
	}

	if c.IdleThresholdPolls <= 0 {
		c.IdleThresholdPolls = 2
	}

	if c.NotReadyWarnAfter <= 0 {
		c.NotReadyWarnAfter = 10
	}

	if c.PartitionCount <= 0 {
		c.PartitionCount = coordinator.DefaultPartitionCount
	}

	if c.MaxConcurrentStreams <= 0 {
		c.MaxConcurrentStreams = 8
	}

	return c
}

// outcomeBag accumulates completions/failures/lease-renewals between
// ProcessWorkBatch calls: append-only between RPC calls, snapshotted
// and cleared atomically on each tick.
type outcomeBag struct {
	mu            sync.Mutex
	completions   []coordinator.Completion
	failures      []coordinator.Failure
	leaseRenewals []uuid.UUID
}

func (b *outcomeBag) addCompletion(c coordinator.Completion) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.completions = append(b.completions, c)
}

func (b *outcomeBag) addFailure(f coordinator.Failure) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = append(b.failures, f)
}

func (b *outcomeBag) addLeaseRenewal(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leaseRenewals = append(b.leaseRenewals, id)
}

func (b *outcomeBag) snapshotAndClear() ([]coordinator.Completion, []coordinator.Failure, []uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, f, l := b.completions, b.failures, b.leaseRenewals
	b.completions, b.failures, b.leaseRenewals = nil, nil, nil

	return c, f, l
}

// TransportResolver maps an outbox row's destination to the transport
// that must publish it. Destinations are namespaced "transportName/rest"
// so one worker can fan out across every registered transport.
type TransportResolver map[string]transport.Transport

func (r TransportResolver) resolve(destination string) (transport.Transport, string, bool) {
	name, rest, found := strings.Cut(destination, "/")
	if !found {
		return nil, "", false
	}

	t, ok := r[name]

	return t, rest, ok
}

// Publisher runs the publisher loop: drains claimed
// outbox rows to their transports and reports completions/failures on
// the next tick.
type Publisher struct {
	cfg          Config
	coord        *coordinator.Coordinator
	transports   TransportResolver
	identity     coordinator.Identity
	dbReady      func() bool
	logger       libLog.Logger

	bag outcomeBag

	OnIdle    func()
	OnStarted func()

	consecutiveEmpty   int
	consecutiveNotReady int
	idle                bool
}

func NewPublisher(cfg Config, coord *coordinator.Coordinator, transports TransportResolver, identity coordinator.Identity, dbReady func() bool, logger libLog.Logger) *Publisher {
	assert.NotNil(coord, "worker: Publisher coordinator must not be nil")
	assert.NotEmpty(identity.InstanceID, "worker: Publisher Identity.InstanceID must not be empty")

	if dbReady == nil {
		dbReady = func() bool { return true }
	}

	return &Publisher{cfg: cfg.withDefaults(), coord: coord, transports: transports, identity: identity, dbReady: dbReady, logger: logger}
}

// Run executes the loop until ctx is cancelled. It performs one
// immediate tick before entering the ticker.
func (p *Publisher) Run(ctx context.Context) error {
	p.tick(ctx)

	ticker := time.NewTicker(p.cfg.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Publisher) tick(ctx context.Context) {
	_, tracer, _, _ := libCommons.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "worker.publisher.tick")
	defer span.End()

	var tickErr error

	defer func() {
		if tickErr != nil {
			libOpenTelemetry.HandleSpanError(&span, "Failed to process publisher tick", tickErr)
		}
	}()

	if !p.dbReady() {
		p.consecutiveNotReady++
		p.logNotReady()

		return
	}

	p.consecutiveNotReady = 0

	completions, failures, renewals := p.bag.snapshotAndClear()

	batch, err := p.coord.ProcessWorkBatch(ctx, coordinator.Request{
		Identity:            p.identity,
		OutboxCompletions:   completions,
		OutboxFailures:      failures,
		RenewOutboxLeaseIDs: renewals,
		LeaseSeconds:        p.cfg.LeaseSeconds,
		Flags:               coordinator.ControlFlags{DebugMode: p.cfg.DebugMode},
	})
	if err != nil {
		tickErr = err

		if p.logger != nil {
			p.logger.Errorf("worker: publisher ProcessWorkBatch failed: %v", err)
		}
		// Re-queue the snapshot so it is resubmitted next tick.
		p.requeue(completions, failures, renewals)

		return
	}

	p.signalIdleOrStarted(len(batch.OutboxWork))

	rows := batch.OutboxWork
	sort.Slice(rows, func(i, j int) bool { return rows[i].MessageID.String() < rows[j].MessageID.String() })

	p.publishAll(ctx, rows)
}

// publishAll fans rows out across streams with bounded concurrency: rows
// sharing a StreamID publish strictly in the sorted order above on one
// goroutine, preserving per-stream ordering, while distinct streams
// publish concurrently up to Config.MaxConcurrentStreams — the same
// grouped-worker-pool shape used for per-partition fan-out elsewhere in
// the ecosystem.
func (p *Publisher) publishAll(ctx context.Context, rows []coordinator.OutboxRow) {
	if len(rows) == 0 {
		return
	}

	var streamOrder []string

	groups := map[string][]coordinator.OutboxRow{}

	for _, row := range rows {
		if _, ok := groups[row.StreamID]; !ok {
			streamOrder = append(streamOrder, row.StreamID)
		}

		groups[row.StreamID] = append(groups[row.StreamID], row)
	}

	sem := make(chan struct{}, p.cfg.MaxConcurrentStreams)

	var wg sync.WaitGroup

	for _, streamID := range streamOrder {
		group := groups[streamID]

		wg.Add(1)
		sem <- struct{}{}

		go func(group []coordinator.OutboxRow) {
			defer wg.Done()
			defer func() { <-sem }()

			for _, row := range group {
				p.publishOne(ctx, row)
			}
		}(group)
	}

	wg.Wait()
}

func (p *Publisher) requeue(completions []coordinator.Completion, failures []coordinator.Failure, renewals []uuid.UUID) {
	for _, c := range completions {
		p.bag.addCompletion(c)
	}

	for _, f := range failures {
		p.bag.addFailure(f)
	}

	for _, id := range renewals {
		p.bag.addLeaseRenewal(id)
	}
}

func (p *Publisher) signalIdleOrStarted(claimed int) {
	if claimed == 0 {
		p.consecutiveEmpty++

		if !p.idle && p.consecutiveEmpty >= p.cfg.IdleThresholdPolls {
			p.idle = true

			if p.OnIdle != nil {
				p.OnIdle()
			}
		}

		return
	}

	p.consecutiveEmpty = 0

	if p.idle {
		p.idle = false

		if p.OnStarted != nil {
			p.OnStarted()
		}
	}
}

func (p *Publisher) publishOne(ctx context.Context, row coordinator.OutboxRow) {
	t, destination, ok := p.transports.resolve(row.Destination)
	if !ok || t == nil || !t.IsInitialized() {
		// Transport not ready: defer publish to a future tick by
		// renewing the lease rather than failing the row.
		p.bag.addLeaseRenewal(row.MessageID)

		return
	}

	env, err := envelope.Unmarshal(row.Payload)
	if err != nil {
		p.bag.addFailure(coordinator.Failure{
			MessageID:     row.MessageID,
			Error:         err.Error(),
			FailureReason: constant.FailureSerialization,
		})

		return
	}

	// Egress hop: the previous hop's metadata is carried forward so the
	// transport still finds routing keys such as streamKey on LastHop.
	meta := make(map[string]string, len(env.LastHop().Metadata))
	for k, v := range env.LastHop().Metadata {
		meta[k] = v
	}

	env.AddHop(p.identity.ServiceName, p.identity.InstanceID, destination, meta)

	if err := t.Publish(ctx, env, destination); err != nil {
		reason := classifyPublishError(err)

		if reason == constant.FailureTransportException {
			p.bag.addLeaseRenewal(row.MessageID)
			return
		}

		p.bag.addFailure(coordinator.Failure{MessageID: row.MessageID, Error: err.Error(), FailureReason: reason})

		return
	}

	p.bag.addCompletion(coordinator.Completion{MessageID: row.MessageID, CompletedStatus: constant.Published})
}

func (p *Publisher) logNotReady() {
	if p.logger == nil {
		return
	}

	if p.consecutiveNotReady > p.cfg.NotReadyWarnAfter {
		p.logger.Warnf("worker: publisher database not ready for %d consecutive polls", p.consecutiveNotReady)
		return
	}

	p.logger.Infof("worker: publisher database not ready (poll %d)", p.consecutiveNotReady)
}

// classifyPublishError maps a transport error to a failure reason. A
// transport that returns a typed error implementing Classifier is
// honoured directly; otherwise TransportException is assumed, since a
// broker-level error is the common case for a Publish call failing
//.
func classifyPublishError(err error) constant.FailureReason {
	if c, ok := err.(Classifier); ok {
		return c.FailureReason()
	}

	return constant.FailureTransportException
}

// Classifier lets a transport adapter attach a precise FailureReason to
// an error it returns from Publish, instead of the default
// TransportException classification.
type Classifier interface {
	FailureReason() constant.FailureReason
}

package worker

import (
	"context"
	"time"

	libCommons "github.com/LerianStudio/lib-commons/v2/commons"
	libLog "github.com/LerianStudio/lib-commons/v2/commons/log"
	libOpenTelemetry "github.com/LerianStudio/lib-commons/v2/commons/opentelemetry"
	"github.com/google/uuid"

	"github.com/whizbang-io/whizbang/internal/coordinator"
	"github.com/whizbang-io/whizbang/internal/perspective"
	"github.com/whizbang-io/whizbang/pkg/assert"
	"github.com/whizbang-io/whizbang/pkg/constant"
	"github.com/whizbang-io/whizbang/pkg/retry"
)

// EventFetcher loads events newer than afterEventID on a stream, in
// version order. The concrete implementation lives alongside whatever
// event-store reader the deployment uses; the worker only needs this
// narrow seam.
type EventFetcher func(ctx context.Context, streamID string, afterEventID string, limit int) ([]perspective.Event, error)

// CompletionStrategy reports a checkpoint advance. Two implementations
// are provided: Batched (accumulate, flush on next ProcessWorkBatch)
// and Instant (flush immediately, one RPC per completion).
type CompletionStrategy interface {
	Report(streamID, perspectiveName string, lastEventID uuid.UUID)
	Drain() []coordinator.PerspectiveCompletion
}

// checkpointKey identifies a checkpoint by (streamID, perspectiveName).
// Report appends a new completion on every call, so several completions
// can be outstanding for one key; Acknowledge removes all of them.
type checkpointKey struct {
	streamID        string
	perspectiveName string
}

// trackedCompletion carries the Pending->Sent->Acknowledged lifecycle:
// a completion stuck in Sent past a timeout reverts to Pending with an
// exponentially-backed-off retry count.
type trackedCompletion struct {
	completion coordinator.PerspectiveCompletion
	state      completionState
	sentAt     time.Time
	attempts   int
}

type completionState int

const (
	statePending completionState = iota
	stateSent
	stateAcknowledged
)

// BatchedCompletionStrategy accumulates completions and only reports
// them when Drain is called by the perspective worker's own
// ProcessWorkBatch tick.
type BatchedCompletionStrategy struct {
	retryCfg retry.Config
	pending  []*trackedCompletion
}

func NewBatchedCompletionStrategy(retryCfg retry.Config) *BatchedCompletionStrategy {
	return &BatchedCompletionStrategy{retryCfg: retryCfg}
}

func (s *BatchedCompletionStrategy) Report(streamID, perspectiveName string, lastEventID uuid.UUID) {
	s.pending = append(s.pending, &trackedCompletion{
		completion: coordinator.PerspectiveCompletion{
			StreamID:        streamID,
			PerspectiveName: perspectiveName,
			LastEventID:     lastEventID,
			CompletedStatus: constant.Processed,
		},
		state: statePending,
	})
}

// Drain returns every Pending completion (marking it Sent) plus any Sent
// completion whose retry backoff has elapsed, per the completion
// lifecycle. Acknowledge must be called once the coordinator confirms
// receipt.
func (s *BatchedCompletionStrategy) Drain() []coordinator.PerspectiveCompletion {
	now := time.Now()

	var out []coordinator.PerspectiveCompletion

	for _, tc := range s.pending {
		switch tc.state {
		case statePending:
			tc.state = stateSent
			tc.sentAt = now
			out = append(out, tc.completion)
		case stateSent:
			if now.Sub(tc.sentAt) > s.retryCfg.Backoff(tc.attempts) {
				tc.attempts++
				tc.sentAt = now
				out = append(out, tc.completion)
			}
		}
	}

	return out
}

// Acknowledge marks every completion whose (streamID, perspectiveName)
// key is in ids as Acknowledged, removing it from the pending set.
func (s *BatchedCompletionStrategy) Acknowledge(ids map[checkpointKey]bool) {
	kept := s.pending[:0]

	for _, tc := range s.pending {
		key := checkpointKey{streamID: tc.completion.StreamID, perspectiveName: tc.completion.PerspectiveName}
		if ids[key] {
			continue
		}

		kept = append(kept, tc)
	}

	s.pending = kept
}

// InstantCompletionStrategy reports each completion the moment it
// arrives, for test determinism.
type InstantCompletionStrategy struct {
	flush func(coordinator.PerspectiveCompletion)
}

func NewInstantCompletionStrategy(flush func(coordinator.PerspectiveCompletion)) *InstantCompletionStrategy {
	return &InstantCompletionStrategy{flush: flush}
}

func (s *InstantCompletionStrategy) Report(streamID, perspectiveName string, lastEventID uuid.UUID) {
	s.flush(coordinator.PerspectiveCompletion{
		StreamID:        streamID,
		PerspectiveName: perspectiveName,
		LastEventID:     lastEventID,
		CompletedStatus: constant.Processed,
	})
}

func (s *InstantCompletionStrategy) Drain() []coordinator.PerspectiveCompletion { return nil }

// Perspective runs the perspective worker loop: claim
// checkpoints, fetch events newer than last_event_id, Apply them in
// order, persist the projection, and report advancement.
type Perspective struct {
	cfg      Config
	coord    *coordinator.Coordinator
	identity coordinator.Identity
	store    *perspective.Store
	fetch    EventFetcher
	apply    perspective.Apply
	strategy CompletionStrategy
	logger   libLog.Logger

	bag outcomeBag
}

func NewPerspective(cfg Config, coord *coordinator.Coordinator, identity coordinator.Identity, store *perspective.Store, fetch EventFetcher, apply perspective.Apply, strategy CompletionStrategy, logger libLog.Logger) *Perspective {
	assert.NotNil(coord, "worker: Perspective coordinator must not be nil")
	assert.NotNil(store, "worker: Perspective store must not be nil")
	assert.NotNil(fetch, "worker: Perspective fetch must not be nil")
	assert.NotNil(apply, "worker: Perspective apply must not be nil")

	return &Perspective{cfg: cfg.withDefaults(), coord: coord, identity: identity, store: store, fetch: fetch, apply: apply, strategy: strategy, logger: logger}
}

func (p *Perspective) Run(ctx context.Context) error {
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

func (p *Perspective) tick(ctx context.Context) {
	_, tracer, _, _ := libCommons.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "worker.perspective.tick")
	defer span.End()

	var tickErr error

	defer func() {
		if tickErr != nil {
			libOpenTelemetry.HandleSpanError(&span, "Failed to process perspective tick", tickErr)
		}
	}()

	completions := p.strategy.Drain()

	batch, err := p.coord.ProcessWorkBatch(ctx, coordinator.Request{
		Identity:               p.identity,
		PerspectiveCompletions: completions,
		LeaseSeconds:           p.cfg.LeaseSeconds,
	})
	if err != nil {
		tickErr = err

		if p.logger != nil {
			p.logger.Errorf("worker: perspective ProcessWorkBatch failed: %v", err)
		}

		return
	}

	if batched, ok := p.strategy.(*BatchedCompletionStrategy); ok && len(completions) > 0 {
		acked := make(map[checkpointKey]bool, len(completions))
		for _, c := range completions {
			acked[checkpointKey{streamID: c.StreamID, perspectiveName: c.PerspectiveName}] = true
		}

		batched.Acknowledge(acked)
	}

	for _, ckpt := range batch.PerspectiveWork {
		p.advance(ctx, ckpt)
	}
}

func (p *Perspective) advance(ctx context.Context, ckpt coordinator.PerspectiveCheckpointRow) {
	after := ""
	if ckpt.LastEventID != nil {
		after = ckpt.LastEventID.String()
	}

	events, err := p.fetch(ctx, ckpt.StreamID, after, 100)
	if err != nil {
		if p.logger != nil {
			p.logger.Errorf("worker: perspective fetch failed for stream %s: %v", ckpt.StreamID, err)
		}

		return
	}

	if len(events) == 0 {
		return
	}

	model, err := p.store.Load(ctx, ckpt.PerspectiveName, ckpt.StreamID)
	if err != nil {
		if p.logger != nil {
			p.logger.Errorf("worker: perspective load failed for stream %s: %v", ckpt.StreamID, err)
		}

		return
	}

	var lastEventID uuid.UUID

	for _, ev := range events {
		model, err = p.apply(model, ev)
		if err != nil {
			if p.logger != nil {
				p.logger.Errorf("worker: perspective apply failed for stream %s event %s: %v", ckpt.StreamID, ev.EventID, err)
			}

			return
		}

		parsed, parseErr := uuid.Parse(ev.EventID)
		if parseErr == nil {
			lastEventID = parsed
		}
	}

	if err := p.store.Save(ctx, ckpt.PerspectiveName, ckpt.StreamID, model); err != nil {
		if p.logger != nil {
			p.logger.Errorf("worker: perspective save failed for stream %s: %v", ckpt.StreamID, err)
		}

		return
	}

	p.strategy.Report(ckpt.StreamID, ckpt.PerspectiveName, lastEventID)
}

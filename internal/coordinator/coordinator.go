package coordinator

import (
	"context"
	"database/sql"
	"time"

	libCommons "github.com/LerianStudio/lib-commons/v2/commons"
	libLog "github.com/LerianStudio/lib-commons/v2/commons/log"
	libOpenTelemetry "github.com/LerianStudio/lib-commons/v2/commons/opentelemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/whizbang-io/whizbang/pkg/assert"
	"github.com/whizbang-io/whizbang/pkg/dbtx"
)

const (
	DefaultPartitionCount       = 10_000
	DefaultLeaseSeconds         = 300
	DefaultStaleThresholdSeconds = 600
	DefaultBatchLimit           = 100
	DefaultMaxAttempts          = 10
)

// Coordinator owns the single atomic ProcessWorkBatch exchange. It
// holds the database handle directly (rather than accepting an
// already-open transaction) because the routine's atomicity is the
// coordinator's own responsibility, not the caller's.
type Coordinator struct {
	db           *sql.DB
	repo         Repository
	associations []MessageAssociationRow
	logger       libLog.Logger
}

// recordBatchAttributes tags a ProcessWorkBatch span with the request's
// shape, the same per-call attribute.KeyValue pattern the mongodb
// repositories elsewhere in this stack build for their own spans.
func recordBatchAttributes(span trace.Span, req Request) {
	span.SetAttributes(
		attribute.String("whizbang.instance_id", req.Identity.InstanceID),
		attribute.Int("whizbang.new_inbox_count", len(req.NewInboxMessages)),
		attribute.Int("whizbang.new_outbox_count", len(req.NewOutboxMessages)),
		attribute.Int("whizbang.new_event_count", len(req.NewEvents)),
	)
}

// New builds a Coordinator. db and repo must be non-nil; logger may be
// nil only in tests that don't exercise logging paths.
func New(db *sql.DB, repo Repository, associations []MessageAssociationRow, logger libLog.Logger) *Coordinator {
	assert.NotNil(db, "coordinator: db must not be nil")
	assert.NotNil(repo, "coordinator: repo must not be nil")

	return &Coordinator{db: db, repo: repo, associations: associations, logger: logger}
}

// ProcessWorkBatch runs the full atomic exchange — apply outcomes, renew
// leases, insert new work, claim eligible work — as one serializable
// transaction. Any error aborts the whole exchange — the caller must
// treat the call as "nothing happened" and retry with the same
// outcome/new-message arrays.
func (c *Coordinator) ProcessWorkBatch(ctx context.Context, req Request) (result Batch, err error) {
	assert.NotEmpty(req.Identity.InstanceID, "coordinator: Identity.InstanceID must not be empty")

	_, tracer, _, _ := libCommons.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "coordinator.process_work_batch")
	defer span.End()

	recordBatchAttributes(span, req)

	defer func() {
		if err != nil {
			libOpenTelemetry.HandleSpanError(&span, "Failed to process work batch", err)
		}
	}()

	partitionCount := req.PartitionCount
	if partitionCount <= 0 {
		partitionCount = DefaultPartitionCount
	}

	leaseSeconds := req.LeaseSeconds
	if leaseSeconds <= 0 {
		leaseSeconds = DefaultLeaseSeconds
	}

	staleThresholdSeconds := req.StaleThresholdSeconds
	if staleThresholdSeconds <= 0 {
		staleThresholdSeconds = DefaultStaleThresholdSeconds
	}

	limit := req.BatchLimit
	if limit <= 0 {
		limit = DefaultBatchLimit
	}

	err = dbtx.RunInTransactionOpts(ctx, c.db, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(ctx context.Context) error {
		nowTs := time.Now().UTC()

		// Step 1: upsert the caller's service-instance row.
		if err := c.repo.UpsertServiceInstance(ctx, ServiceInstanceRow{
			InstanceID:      req.Identity.InstanceID,
			ServiceName:     req.Identity.ServiceName,
			HostName:        req.Identity.HostName,
			ProcessID:       req.Identity.ProcessID,
			StartedAt:       nowTs,
			LastHeartbeatAt: nowTs,
			Metadata:        req.Identity.Metadata,
		}); err != nil {
			return err
		}

		// Step 2: garbage-collect stale instances and immediately free
		// the leases they were holding, so their work is claimable again
		// this same round instead of idling until the lease times out.
		staleCutoff := nowTs.Add(-time.Duration(staleThresholdSeconds) * time.Second)

		staleIDs, err := c.repo.DeleteStaleInstances(ctx, staleCutoff)
		if err != nil {
			return err
		}

		if len(staleIDs) > 0 {
			if err := c.repo.ReleaseLeasesForInstances(ctx, staleIDs); err != nil {
				return err
			}
		}

		// Step 3: apply reported outcomes, completions before claims so a
		// retrying caller cannot both report success and re-receive a row.
		if err := c.repo.ApplyOutboxOutcomes(ctx, req.OutboxCompletions, req.OutboxFailures, DefaultMaxAttempts); err != nil {
			return err
		}

		if err := c.repo.ApplyInboxOutcomes(ctx, req.InboxCompletions, req.InboxFailures, DefaultMaxAttempts); err != nil {
			return err
		}

		if err := c.repo.ApplyPerspectiveOutcomes(ctx, req.PerspectiveCompletions, req.PerspectiveFailures, DefaultMaxAttempts); err != nil {
			return err
		}

		result.CompletionsAcked = len(req.OutboxCompletions) + len(req.InboxCompletions) + len(req.PerspectiveCompletions)
		result.FailuresAcked = len(req.OutboxFailures) + len(req.InboxFailures) + len(req.PerspectiveFailures)

		// Step 4: extend leases for rows that must stay claimed.
		leaseExpiry := nowTs.Add(time.Duration(leaseSeconds) * time.Second)

		if len(req.RenewOutboxLeaseIDs) > 0 {
			if err := c.repo.RenewOutboxLeases(ctx, req.RenewOutboxLeaseIDs, leaseExpiry); err != nil {
				return err
			}
		}

		if len(req.RenewInboxLeaseIDs) > 0 {
			if err := c.repo.RenewInboxLeases(ctx, req.RenewInboxLeaseIDs, leaseExpiry); err != nil {
				return err
			}
		}

		result.RenewalsAcked = len(req.RenewOutboxLeaseIDs) + len(req.RenewInboxLeaseIDs)

		// Step 5: insert newly enqueued work. Inbound messages go through
		// the authoritative deduplication ledger first: a message_id
		// already recorded there has been handled before (or is being
		// handled by a concurrent caller that lost the race to insert
		// it), so it is dropped rather than inserted into inbox a
		// second time.
		if len(req.NewOutboxMessages) > 0 {
			if err := c.repo.InsertOutboxMessages(ctx, req.NewOutboxMessages); err != nil {
				return err
			}
		}

		if len(req.NewInboxMessages) > 0 {
			var toInsert []InboxRow

			for _, row := range req.NewInboxMessages {
				inserted, err := c.repo.InsertMessageDeduplication(ctx, row.MessageID, nowTs)
				if err != nil {
					return err
				}

				if inserted {
					toInsert = append(toInsert, row)
					result.InsertedInboxIDs = append(result.InsertedInboxIDs, row.MessageID)
				}
			}

			if len(toInsert) > 0 {
				if err := c.repo.InsertInboxMessages(ctx, toInsert); err != nil {
					return err
				}
			}
		}

		if len(req.NewEvents) > 0 {
			if err := c.repo.InsertEvents(ctx, req.NewEvents); err != nil {
				return err
			}

			// Step 6: auto-create perspective checkpoints for newly
			// inserted events. Receptor associations never create
			// checkpoints.
			if err := c.repo.AutoCreateCheckpoints(ctx, req.NewEvents, c.associations); err != nil {
				return err
			}
		}

		// Step 7: compute this caller's partition assignment and claim
		// eligible, unleased rows within it.
		liveIDs, err := c.repo.ListLiveInstanceIDs(ctx)
		if err != nil {
			return err
		}

		assigned := AssignedPartitions(req.Identity.InstanceID, liveIDs, partitionCount)
		partitions := PartitionsSlice(assigned)

		outboxWork, err := c.repo.ClaimOutbox(ctx, partitions, req.Identity.InstanceID, leaseExpiry, limit)
		if err != nil {
			return err
		}

		inboxWork, err := c.repo.ClaimInbox(ctx, partitions, req.Identity.InstanceID, leaseExpiry, limit)
		if err != nil {
			return err
		}

		perspectiveWork, err := c.repo.ClaimPerspectiveCheckpoints(ctx, partitions, req.Identity.InstanceID, leaseExpiry, limit)
		if err != nil {
			return err
		}

		// Step 8: return the claimed rows.
		result.OutboxWork = outboxWork
		result.InboxWork = inboxWork
		result.PerspectiveWork = perspectiveWork

		return nil
	})
	if err != nil {
		if c.logger != nil {
			c.logger.Errorf("coordinator: ProcessWorkBatch failed for instance %s: %v", req.Identity.InstanceID, err)
		}

		return Batch{}, err
	}

	return result, nil
}

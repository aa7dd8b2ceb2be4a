package coordinator

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence seam ProcessWorkBatch drives. Every
// method is called inside the same database transaction (wired via
// pkg/dbtx), so implementations must use dbtx.GetExecutor(ctx, db)
// rather than opening their own connection or transaction.
//
//go:generate mockgen -source=repository.go -destination=mock_repository.go -package=coordinator
type Repository interface {
	UpsertServiceInstance(ctx context.Context, row ServiceInstanceRow) error
	DeleteStaleInstances(ctx context.Context, olderThan time.Time) (deletedInstanceIDs []string, err error)
	ListLiveInstanceIDs(ctx context.Context) ([]string, error)

	ApplyOutboxOutcomes(ctx context.Context, completions []Completion, failures []Failure, maxAttempts int) error
	ApplyInboxOutcomes(ctx context.Context, completions []Completion, failures []Failure, maxAttempts int) error
	ApplyPerspectiveOutcomes(ctx context.Context, completions []PerspectiveCompletion, failures []PerspectiveFailure, maxAttempts int) error

	RenewOutboxLeases(ctx context.Context, ids []uuid.UUID, leaseExpiry time.Time) error
	RenewInboxLeases(ctx context.Context, ids []uuid.UUID, leaseExpiry time.Time) error

	// ReleaseLeasesForInstances clears instance_id/lease_expiry on every
	// outbox, inbox, and perspective_checkpoints row still held by one of
	// instanceIDs, so their work becomes immediately claimable by a live
	// instance instead of waiting out the lease.
	ReleaseLeasesForInstances(ctx context.Context, instanceIDs []string) error

	InsertOutboxMessages(ctx context.Context, rows []OutboxRow) error
	InsertInboxMessages(ctx context.Context, rows []InboxRow) error

	// InsertMessageDeduplication records messageID in the authoritative
	// deduplication ledger if and only if it has never been seen before.
	// inserted reports whether this call was the first sighting; a caller
	// that gets inserted=false must not process the message again, even
	// if a fast-path cache (internal/dedup.Cache) missed.
	InsertMessageDeduplication(ctx context.Context, messageID uuid.UUID, firstSeenAt time.Time) (inserted bool, err error)

	// InsertEvents appends to the event store, enforcing the
	// (stream_id, version) and (aggregate_id, version) uniqueness
	// constraints. A conflicting row is reported via ErrConflict and
	// aborts the whole call.
	InsertEvents(ctx context.Context, rows []EventStoreRow) error

	// AutoCreateCheckpoints materialises a perspective_checkpoints row
	// for every (stream_id, perspective_name) implied by newly inserted
	// events and the perspective associations, skipping rows that
	// already exist.
	AutoCreateCheckpoints(ctx context.Context, events []EventStoreRow, associations []MessageAssociationRow) error

	ClaimOutbox(ctx context.Context, partitions []int, instanceID string, leaseExpiry time.Time, limit int) ([]OutboxRow, error)
	ClaimInbox(ctx context.Context, partitions []int, instanceID string, leaseExpiry time.Time, limit int) ([]InboxRow, error)
	ClaimPerspectiveCheckpoints(ctx context.Context, partitions []int, instanceID string, leaseExpiry time.Time, limit int) ([]PerspectiveCheckpointRow, error)
}

// ErrConflict is returned by InsertEvents when an appended event
// violates the (stream_id, version) or (aggregate_id, version)
// uniqueness constraint, so callers can distinguish an optimistic-
// concurrency conflict from a transport or connection failure.
type ErrConflict struct {
	StreamID      string
	AggregateID   string
	Version       int64
}

func (e ErrConflict) Error() string {
	return "coordinator: optimistic concurrency conflict on stream " + e.StreamID
}

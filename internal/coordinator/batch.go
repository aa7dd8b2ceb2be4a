package coordinator

import (
	"github.com/google/uuid"

	"github.com/whizbang-io/whizbang/pkg/constant"
)

// Completion reports that a claimed row reached a terminal-or-advancing
// status.
type Completion struct {
	MessageID       uuid.UUID
	CompletedStatus constant.StatusFlags
}

// Failure reports that a claimed row did not complete cleanly.
type Failure struct {
	MessageID     uuid.UUID
	Error         string
	FailureReason constant.FailureReason
}

// PerspectiveCompletion advances a perspective checkpoint. Checkpoints are
// keyed by (StreamID, PerspectiveName), not by the message that triggered
// the advance, so the new cursor position travels alongside the key
// instead of being inferred from MessageID.
type PerspectiveCompletion struct {
	StreamID        string
	PerspectiveName string
	LastEventID     uuid.UUID
	CompletedStatus constant.StatusFlags
}

// PerspectiveFailure reports that a perspective's processing of its
// current checkpoint failed without advancing the cursor.
type PerspectiveFailure struct {
	StreamID        string
	PerspectiveName string
	Error           string
	FailureReason   constant.FailureReason
}

// Identity is the caller's service-instance stamp.
type Identity struct {
	InstanceID  string
	ServiceName string
	HostName    string
	ProcessID   int
	Metadata    map[string]string
}

// ControlFlags carries the DebugMode bit and any future per-call flags.
type ControlFlags struct {
	DebugMode bool
}

// Request is the full input to ProcessWorkBatch.
type Request struct {
	Identity Identity

	OutboxCompletions []Completion
	OutboxFailures    []Failure
	InboxCompletions  []Completion
	InboxFailures     []Failure

	PerspectiveCompletions []PerspectiveCompletion
	PerspectiveFailures    []PerspectiveFailure

	NewOutboxMessages []OutboxRow
	NewInboxMessages  []InboxRow
	NewEvents         []EventStoreRow

	RenewOutboxLeaseIDs []uuid.UUID
	RenewInboxLeaseIDs  []uuid.UUID

	PartitionCount       int
	LeaseSeconds         int
	StaleThresholdSeconds int
	BatchLimit           int
	Flags                ControlFlags
}

// Batch is the work newly leased to the caller, plus acknowledgement
// counts for the outcomes it submitted.
type Batch struct {
	OutboxWork      []OutboxRow
	InboxWork       []InboxRow
	PerspectiveWork []PerspectiveCheckpointRow

	// InsertedInboxIDs carries the message IDs from NewInboxMessages that
	// passed the deduplication check and were actually inserted, in the
	// same order as the request's NewInboxMessages slice (skipped
	// duplicates are simply absent). Callers use this to know which
	// messages still need handling this round.
	InsertedInboxIDs []uuid.UUID

	CompletionsAcked int
	FailuresAcked    int
	RenewalsAcked    int
}

// Package coordinator implements the batch coordinator RPC:
// the single atomic exchange of outcomes-for-work between a service
// instance and the relational store.
package coordinator

import (
	"time"

	"github.com/google/uuid"

	"github.com/whizbang-io/whizbang/pkg/constant"
)

// OutboxRow is the durable representation of one message awaiting
// publication.
type OutboxRow struct {
	MessageID       uuid.UUID
	Destination     string
	MessageType     string
	Payload         []byte
	Metadata        map[string]string
	Scope           []byte
	StatusFlags     constant.StatusFlags
	Attempts        int
	Error           string
	CreatedAt       time.Time
	PublishedAt     *time.Time
	ProcessedAt     *time.Time
	InstanceID      *string
	LeaseExpiry     *time.Time
	StreamID        string
	PartitionNumber int
	FailureReason   constant.FailureReason
	ScheduledFor    *time.Time
}

// Claimable reports whether this row may be claimed for publishing
//: status lacks Published and either unowned or lease expired.
func (r OutboxRow) Claimable(now time.Time) bool {
	if !r.StatusFlags.Claimable() {
		return false
	}

	if r.InstanceID == nil {
		return true
	}

	return r.LeaseExpiry != nil && r.LeaseExpiry.Before(now)
}

// InboxRow mirrors OutboxRow but for the inbound side; message_id is the
// exactly-once dedup token.
type InboxRow struct {
	MessageID       uuid.UUID
	Source          string
	MessageType     string
	Payload         []byte
	Metadata        map[string]string
	Scope           []byte
	StatusFlags     constant.StatusFlags
	Attempts        int
	Error           string
	CreatedAt       time.Time
	ProcessedAt     *time.Time
	InstanceID      *string
	LeaseExpiry     *time.Time
	StreamID        string
	PartitionNumber int
	FailureReason   constant.FailureReason
}

func (r InboxRow) Claimable(now time.Time) bool {
	if !r.StatusFlags.Claimable() {
		return false
	}

	if r.InstanceID == nil {
		return true
	}

	return r.LeaseExpiry != nil && r.LeaseExpiry.Before(now)
}

// EventStoreRow is one appended domain event. Uniqueness on
// (StreamID, Version) and (AggregateID, Version) enforces optimistic
// concurrency on append.
type EventStoreRow struct {
	EventID       uuid.UUID
	StreamID      string
	AggregateID   string
	AggregateType string
	Version       int64
	EventType     string
	EventData     []byte
	Metadata      map[string]string
	Scope         []byte
	CreatedAt     time.Time
}

// PerspectiveCheckpointRow tracks how far a named perspective has
// advanced through a stream's events.
type PerspectiveCheckpointRow struct {
	StreamID        string
	PerspectiveName string
	LastEventID     *uuid.UUID
	Status          constant.StatusFlags
	ProcessedAt     *time.Time
	Error           string
	PartitionNumber int
	InstanceID      *string
	LeaseExpiry     *time.Time
}

func (r PerspectiveCheckpointRow) Claimable(now time.Time) bool {
	if r.InstanceID == nil {
		return true
	}

	return r.LeaseExpiry != nil && r.LeaseExpiry.Before(now)
}

// ServiceInstanceRow records one live process. Rows whose
// LastHeartbeatAt falls behind the stale threshold are garbage collected.
type ServiceInstanceRow struct {
	InstanceID      string
	ServiceName     string
	HostName        string
	ProcessID       int
	StartedAt       time.Time
	LastHeartbeatAt time.Time
	Metadata        map[string]string
}

// AssociationType distinguishes a receptor registration from a
// perspective registration in the Message Association table.
type AssociationType string

const (
	AssociationReceptor    AssociationType = "receptor"
	AssociationPerspective AssociationType = "perspective"
)

// MessageAssociationRow is the declarative registry telling the batch
// routine which checkpoints to auto-materialize and which inbox rows
// need receptor handling.
type MessageAssociationRow struct {
	MessageType     string
	AssociationType AssociationType
	TargetName      string
	ServiceName     string
}

// MessageDeduplicationRow records the first sighting of a MessageId that
// might replay across an inbound transport.
type MessageDeduplicationRow struct {
	MessageID  uuid.UUID
	FirstSeenAt time.Time
}

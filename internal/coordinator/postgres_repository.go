package coordinator

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/whizbang-io/whizbang/pkg/assert"
	"github.com/whizbang-io/whizbang/pkg/constant"
	"github.com/whizbang-io/whizbang/pkg/dbtx"
)

// PostgresRepository is the default Repository backed by a PostgreSQL
// schema for the outbox/inbox/event-store tables. It never opens its
// own transaction — every statement runs against
// dbtx.GetExecutor(ctx, db), so the Coordinator's surrounding
// dbtx.RunInTransactionOpts call is what makes the whole exchange
// atomic.
type PostgresRepository struct {
	db  *sql.DB
	psql sq.StatementBuilderType
}

// NewPostgresRepository builds a repository over an already-connected
// *sql.DB (e.g. opened via the pgx stdlib driver).
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	assert.NotNil(db, "coordinator: postgres db must not be nil")

	return &PostgresRepository{db: db, psql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

func (r *PostgresRepository) exec(ctx context.Context, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return err
	}

	_, err = dbtx.GetExecutor(ctx, r.db).ExecContext(ctx, query, args...)

	return err
}

func metadataJSON(m map[string]string) []byte {
	if m == nil {
		m = map[string]string{}
	}

	b, _ := json.Marshal(m)

	return b
}

func (r *PostgresRepository) UpsertServiceInstance(ctx context.Context, row ServiceInstanceRow) error {
	return r.exec(ctx, r.psql.Insert("service_instances").
		Columns("instance_id", "service_name", "host_name", "process_id", "started_at", "last_heartbeat_at", "metadata").
		Values(row.InstanceID, row.ServiceName, row.HostName, row.ProcessID, row.StartedAt, row.LastHeartbeatAt, metadataJSON(row.Metadata)).
		Suffix("ON CONFLICT (instance_id) DO UPDATE SET last_heartbeat_at = EXCLUDED.last_heartbeat_at, metadata = EXCLUDED.metadata"))
}

func (r *PostgresRepository) DeleteStaleInstances(ctx context.Context, olderThan time.Time) ([]string, error) {
	query, args, err := r.psql.Delete("service_instances").
		Where(sq.Lt{"last_heartbeat_at": olderThan}).
		Suffix("RETURNING instance_id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := dbtx.GetExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}

		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (r *PostgresRepository) ListLiveInstanceIDs(ctx context.Context) ([]string, error) {
	query, args, err := r.psql.Select("instance_id").From("service_instances").OrderBy("instance_id").ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := dbtx.GetExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}

		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (r *PostgresRepository) applyOutcomes(ctx context.Context, table string, completions []Completion, failures []Failure, maxAttempts int) error {
	for _, c := range completions {
		if err := r.exec(ctx, r.psql.Update(table).
			Set("status_flags", sq.Expr("status_flags | ?", uint8(c.CompletedStatus))).
			Set("instance_id", nil).
			Set("lease_expiry", nil).
			Set("processed_at", time.Now().UTC()).
			Where(sq.Eq{"message_id": c.MessageID})); err != nil {
			return err
		}
	}

	for _, f := range failures {
		if f.FailureReason.Terminal() {
			if err := r.exec(ctx, r.psql.Update(table).
				Set("status_flags", sq.Expr("status_flags | ?", uint8(terminalFlagFor(f.FailureReason)))).
				Set("error", f.Error).
				Set("failure_reason", string(f.FailureReason)).
				Set("instance_id", nil).
				Set("lease_expiry", nil).
				Where(sq.Eq{"message_id": f.MessageID})); err != nil {
				return err
			}

			continue
		}

		// Retryable: increment attempts; dead-letter once the incremented
		// count reaches maxAttempts.
		if err := r.exec(ctx, r.psql.Update(table).
			Set("attempts", sq.Expr("attempts + 1")).
			Set("error", f.Error).
			Set("failure_reason", string(f.FailureReason)).
			Set("instance_id", nil).
			Set("lease_expiry", nil).
			Set("status_flags", sq.Expr(
				"CASE WHEN attempts + 1 >= ? THEN status_flags | ? ELSE status_flags END",
				maxAttempts, uint8(constant.DeadLettered))).
			Where(sq.Eq{"message_id": f.MessageID})); err != nil {
			return err
		}
	}

	return nil
}

func terminalFlagFor(reason constant.FailureReason) constant.StatusFlags {
	if reason == constant.FailurePermanentReject {
		return constant.DeadLettered
	}

	return constant.Failed
}

func (r *PostgresRepository) ApplyOutboxOutcomes(ctx context.Context, completions []Completion, failures []Failure, maxAttempts int) error {
	return r.applyOutcomes(ctx, "outbox", completions, failures, maxAttempts)
}

func (r *PostgresRepository) ApplyInboxOutcomes(ctx context.Context, completions []Completion, failures []Failure, maxAttempts int) error {
	return r.applyOutcomes(ctx, "inbox", completions, failures, maxAttempts)
}

// ApplyPerspectiveOutcomes advances each checkpoint's last_event_id to the
// cursor position the worker actually reached, keyed by the checkpoint's
// own identity (stream_id, perspective_name) rather than by any single
// message — a perspective's "completion" always means "caught up through
// event X", not "processed message X".
// maxAttempts is unused: perspective checkpoints advance by cursor
// position, not by a retry counter, so there is no dead-letter threshold
// to apply here. It stays in the signature to match the outbox/inbox
// ApplyOutcomes shape ProcessWorkBatch calls uniformly.
func (r *PostgresRepository) ApplyPerspectiveOutcomes(ctx context.Context, completions []PerspectiveCompletion, failures []PerspectiveFailure, maxAttempts int) error {
	for _, c := range completions {
		if err := r.exec(ctx, r.psql.Update("perspective_checkpoints").
			Set("status", sq.Expr("status | ?", uint8(c.CompletedStatus))).
			Set("last_event_id", c.LastEventID).
			Set("processed_at", time.Now().UTC()).
			Set("error", nil).
			Set("instance_id", nil).
			Set("lease_expiry", nil).
			Where(sq.Eq{"stream_id": c.StreamID, "perspective_name": c.PerspectiveName})); err != nil {
			return err
		}
	}

	for _, f := range failures {
		if err := r.exec(ctx, r.psql.Update("perspective_checkpoints").
			Set("error", f.Error).
			Set("instance_id", nil).
			Set("lease_expiry", nil).
			Where(sq.Eq{"stream_id": f.StreamID, "perspective_name": f.PerspectiveName})); err != nil {
			return err
		}
	}

	return nil
}

func (r *PostgresRepository) renewLeases(ctx context.Context, table string, ids []uuid.UUID, leaseExpiry time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	anyIDs := make([]any, len(ids))
	for i, id := range ids {
		anyIDs[i] = id
	}

	return r.exec(ctx, r.psql.Update(table).
		Set("lease_expiry", leaseExpiry).
		Where(sq.Eq{"message_id": anyIDs}))
}

func (r *PostgresRepository) RenewOutboxLeases(ctx context.Context, ids []uuid.UUID, leaseExpiry time.Time) error {
	return r.renewLeases(ctx, "outbox", ids, leaseExpiry)
}

func (r *PostgresRepository) RenewInboxLeases(ctx context.Context, ids []uuid.UUID, leaseExpiry time.Time) error {
	return r.renewLeases(ctx, "inbox", ids, leaseExpiry)
}

// ReleaseLeasesForInstances is called right after DeleteStaleInstances
// removes dead instances, so their in-flight work is claimable again this
// same round instead of sitting idle until its lease naturally expires.
func (r *PostgresRepository) ReleaseLeasesForInstances(ctx context.Context, instanceIDs []string) error {
	if len(instanceIDs) == 0 {
		return nil
	}

	anyIDs := make([]any, len(instanceIDs))
	for i, id := range instanceIDs {
		anyIDs[i] = id
	}

	for _, table := range []string{"outbox", "inbox", "perspective_checkpoints"} {
		if err := r.exec(ctx, r.psql.Update(table).
			Set("instance_id", nil).
			Set("lease_expiry", nil).
			Where(sq.Eq{"instance_id": anyIDs})); err != nil {
			return err
		}
	}

	return nil
}

// InsertMessageDeduplication is the authoritative exactly-once ledger:
// ON CONFLICT DO NOTHING makes the insert idempotent, and RowsAffected
// tells the caller whether this was the first sighting.
func (r *PostgresRepository) InsertMessageDeduplication(ctx context.Context, messageID uuid.UUID, firstSeenAt time.Time) (bool, error) {
	query, args, err := r.psql.Insert("message_deduplication").
		Columns("message_id", "first_seen_at").
		Values(messageID, firstSeenAt).
		Suffix("ON CONFLICT (message_id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, err
	}

	result, err := dbtx.GetExecutor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

func (r *PostgresRepository) InsertOutboxMessages(ctx context.Context, rows []OutboxRow) error {
	if len(rows) == 0 {
		return nil
	}

	ins := r.psql.Insert("outbox").Columns(
		"message_id", "destination", "message_type", "payload", "metadata", "scope",
		"status_flags", "stream_id", "partition_number", "created_at", "scheduled_for",
	)

	for _, row := range rows {
		ins = ins.Values(row.MessageID, row.Destination, row.MessageType, row.Payload, metadataJSON(row.Metadata), row.Scope,
			uint8(row.StatusFlags|constant.Stored), row.StreamID, row.PartitionNumber, time.Now().UTC(), row.ScheduledFor)
	}

	return r.exec(ctx, ins)
}

func (r *PostgresRepository) InsertInboxMessages(ctx context.Context, rows []InboxRow) error {
	if len(rows) == 0 {
		return nil
	}

	ins := r.psql.Insert("inbox").Columns(
		"message_id", "source", "message_type", "payload", "metadata", "scope",
		"status_flags", "stream_id", "partition_number", "created_at",
	)

	for _, row := range rows {
		ins = ins.Values(row.MessageID, row.Source, row.MessageType, row.Payload, metadataJSON(row.Metadata), row.Scope,
			uint8(row.StatusFlags|constant.Stored), row.StreamID, row.PartitionNumber, time.Now().UTC())
	}

	return r.exec(ctx, ins)
}

func (r *PostgresRepository) InsertEvents(ctx context.Context, rows []EventStoreRow) error {
	for _, row := range rows {
		err := r.exec(ctx, r.psql.Insert("event_store").
			Columns("event_id", "stream_id", "aggregate_id", "aggregate_type", "version", "event_type", "event_data", "metadata", "created_at").
			Values(row.EventID, row.StreamID, row.AggregateID, row.AggregateType, row.Version, row.EventType, row.EventData, metadataJSON(row.Metadata), time.Now().UTC()))
		if isUniqueViolation(err) {
			return ErrConflict{StreamID: row.StreamID, AggregateID: row.AggregateID, Version: row.Version}
		}

		if err != nil {
			return err
		}
	}

	return nil
}

// AutoCreateCheckpoints materialises a perspective_checkpoints row for
// every (stream_id, perspective_name) implied by a newly appended event
// whose message_type has a registered perspective association,
// skipping rows that already exist. Receptor
// associations never create checkpoints.
func (r *PostgresRepository) AutoCreateCheckpoints(ctx context.Context, events []EventStoreRow, associations []MessageAssociationRow) error {
	perspectivesFor := map[string][]string{}

	for _, a := range associations {
		if a.AssociationType != AssociationPerspective {
			continue
		}

		perspectivesFor[a.MessageType] = append(perspectivesFor[a.MessageType], a.TargetName)
	}

	for _, ev := range events {
		for _, perspectiveName := range perspectivesFor[ev.EventType] {
			err := r.exec(ctx, r.psql.Insert("perspective_checkpoints").
				Columns("stream_id", "perspective_name", "status").
				Values(ev.StreamID, perspectiveName, uint8(constant.Stored)).
				Suffix("ON CONFLICT (stream_id, perspective_name) DO NOTHING"))
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// claimableIDs selects the message_id set eligible for claiming: within
// the caller's assigned partitions, not already Published/Failed/
// DeadLettered, and either unowned or lease-expired.
func (r *PostgresRepository) claimableIDs(table string, partitions []any, limit int) sq.SelectBuilder {
	return r.psql.Select("message_id").From(table).
		Where(sq.Eq{"partition_number": partitions}).
		Where(sq.Or{
			sq.Eq{"instance_id": nil},
			sq.Lt{"lease_expiry": time.Now().UTC()},
		}).
		Where("status_flags & ? = 0", uint8(constant.Published|constant.Failed|constant.DeadLettered)).
		Limit(uint64(limit)).
		Suffix("FOR UPDATE SKIP LOCKED")
}

var outboxClaimColumns = []string{
	"message_id", "destination", "message_type", "payload", "metadata", "scope",
	"status_flags", "attempts", "error", "created_at", "published_at", "processed_at",
	"instance_id", "lease_expiry", "stream_id", "partition_number", "failure_reason", "scheduled_for",
}

var inboxClaimColumns = []string{
	"message_id", "source", "message_type", "payload", "metadata", "scope",
	"status_flags", "attempts", "error", "created_at", "processed_at",
	"instance_id", "lease_expiry", "stream_id", "partition_number", "failure_reason",
}

func (r *PostgresRepository) ClaimOutbox(ctx context.Context, partitions []int, instanceID string, leaseExpiry time.Time, limit int) ([]OutboxRow, error) {
	if len(partitions) == 0 || limit <= 0 {
		return nil, nil
	}

	ids := r.claimableIDs("outbox", toAny(partitions), limit)

	query, args, err := r.psql.Update("outbox").
		Set("instance_id", instanceID).
		Set("lease_expiry", leaseExpiry).
		Where(sq.Expr("message_id IN (?)", ids)).
		Suffix("RETURNING " + columnList(outboxClaimColumns)).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := dbtx.GetExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OutboxRow

	for rows.Next() {
		var row OutboxRow
		var metadata []byte
		var statusFlags uint8
		var failureReason string

		if err := rows.Scan(&row.MessageID, &row.Destination, &row.MessageType, &row.Payload, &metadata, &row.Scope,
			&statusFlags, &row.Attempts, &row.Error, &row.CreatedAt, &row.PublishedAt, &row.ProcessedAt,
			&row.InstanceID, &row.LeaseExpiry, &row.StreamID, &row.PartitionNumber, &failureReason, &row.ScheduledFor); err != nil {
			return nil, err
		}

		row.StatusFlags = constant.StatusFlags(statusFlags)
		row.FailureReason = constant.FailureReason(failureReason)
		row.Metadata = unmarshalMetadata(metadata)

		out = append(out, row)
	}

	return out, rows.Err()
}

func (r *PostgresRepository) ClaimInbox(ctx context.Context, partitions []int, instanceID string, leaseExpiry time.Time, limit int) ([]InboxRow, error) {
	if len(partitions) == 0 || limit <= 0 {
		return nil, nil
	}

	ids := r.claimableIDs("inbox", toAny(partitions), limit)

	query, args, err := r.psql.Update("inbox").
		Set("instance_id", instanceID).
		Set("lease_expiry", leaseExpiry).
		Where(sq.Expr("message_id IN (?)", ids)).
		Suffix("RETURNING " + columnList(inboxClaimColumns)).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := dbtx.GetExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []InboxRow

	for rows.Next() {
		var row InboxRow
		var metadata []byte
		var statusFlags uint8
		var failureReason string

		if err := rows.Scan(&row.MessageID, &row.Source, &row.MessageType, &row.Payload, &metadata, &row.Scope,
			&statusFlags, &row.Attempts, &row.Error, &row.CreatedAt, &row.ProcessedAt,
			&row.InstanceID, &row.LeaseExpiry, &row.StreamID, &row.PartitionNumber, &failureReason); err != nil {
			return nil, err
		}

		row.StatusFlags = constant.StatusFlags(statusFlags)
		row.FailureReason = constant.FailureReason(failureReason)
		row.Metadata = unmarshalMetadata(metadata)

		out = append(out, row)
	}

	return out, rows.Err()
}

func toAny(ints []int) []any {
	out := make([]any, len(ints))
	for i, v := range ints {
		out[i] = v
	}

	return out
}

func columnList(cols []string) string {
	out := cols[0]
	for _, c := range cols[1:] {
		out += ", " + c
	}

	return out
}

func unmarshalMetadata(raw []byte) map[string]string {
	if len(raw) == 0 {
		return nil
	}

	m := map[string]string{}
	_ = json.Unmarshal(raw, &m)

	return m
}

func (r *PostgresRepository) ClaimPerspectiveCheckpoints(ctx context.Context, partitions []int, instanceID string, leaseExpiry time.Time, limit int) ([]PerspectiveCheckpointRow, error) {
	if len(partitions) == 0 || limit <= 0 {
		return nil, nil
	}

	anyPartitions := make([]any, len(partitions))
	for i, p := range partitions {
		anyPartitions[i] = p
	}

	ids := r.psql.Select("stream_id", "perspective_name", "last_event_id").From("perspective_checkpoints").
		Where(sq.Eq{"partition_number": anyPartitions}).
		Where(sq.Or{sq.Eq{"instance_id": nil}, sq.Lt{"lease_expiry": time.Now().UTC()}}).
		Limit(uint64(limit)).
		Suffix("FOR UPDATE SKIP LOCKED")

	query, args, err := ids.ToSql()
	if err != nil {
		return nil, err
	}

	// Each returned row carries the checkpoint's last_event_id (nil for a
	// checkpoint that has not advanced yet); the perspective worker fetches
	// events newer than it.
	rows, err := dbtx.GetExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PerspectiveCheckpointRow

	for rows.Next() {
		var row PerspectiveCheckpointRow
		if err := rows.Scan(&row.StreamID, &row.PerspectiveName, &row.LastEventID); err != nil {
			return nil, err
		}

		row.InstanceID = &instanceID
		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, row := range out {
		if err := r.exec(ctx, r.psql.Update("perspective_checkpoints").
			Set("instance_id", instanceID).
			Set("lease_expiry", leaseExpiry).
			Where(sq.Eq{"stream_id": row.StreamID, "perspective_name": row.PerspectiveName})); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// isUniqueViolation is deliberately loose: PostgreSQL unique-violation
// detection differs between the pgx stdlib driver and lib/pq. Production
// wiring should narrow this with the driver's own error type (pgconn.PgError
// / pq.Error) at the call site that owns the driver import.
func isUniqueViolation(err error) bool {
	return err != nil && containsSQLState23505(err.Error())
}

func containsSQLState23505(msg string) bool {
	for i := 0; i+5 <= len(msg); i++ {
		if msg[i:i+5] == "23505" {
			return true
		}
	}

	return false
}

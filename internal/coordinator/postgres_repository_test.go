package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/whizbang-io/whizbang/pkg/constant"
)

func newTestPostgresRepository(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewPostgresRepository(db), mock
}

func TestPostgresRepository_UpsertServiceInstance(t *testing.T) {
	repo, mock := newTestPostgresRepository(t)

	mock.ExpectExec("INSERT INTO service_instances").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpsertServiceInstance(context.Background(), ServiceInstanceRow{
		InstanceID:  "instance-a",
		ServiceName: "svc",
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_DeleteStaleInstances(t *testing.T) {
	repo, mock := newTestPostgresRepository(t)

	mock.ExpectQuery("DELETE FROM service_instances").
		WillReturnRows(sqlmock.NewRows([]string{"instance_id"}).AddRow("stale-1").AddRow("stale-2"))

	ids, err := repo.DeleteStaleInstances(context.Background(), time.Now())

	require.NoError(t, err)
	require.Equal(t, []string{"stale-1", "stale-2"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ApplyOutboxOutcomes_Completion(t *testing.T) {
	repo, mock := newTestPostgresRepository(t)

	mock.ExpectExec("UPDATE outbox").WillReturnResult(sqlmock.NewResult(0, 1))

	id := uuid.Must(uuid.NewV7())
	err := repo.ApplyOutboxOutcomes(context.Background(),
		[]Completion{{MessageID: id, CompletedStatus: constant.Published}},
		nil, DefaultMaxAttempts)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ApplyOutboxOutcomes_TerminalFailure(t *testing.T) {
	repo, mock := newTestPostgresRepository(t)

	mock.ExpectExec("UPDATE outbox").WillReturnResult(sqlmock.NewResult(0, 1))

	id := uuid.Must(uuid.NewV7())
	err := repo.ApplyOutboxOutcomes(context.Background(), nil,
		[]Failure{{MessageID: id, FailureReason: constant.FailureValidation, Error: "bad payload"}},
		DefaultMaxAttempts)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ApplyOutboxOutcomes_RetryableFailure(t *testing.T) {
	repo, mock := newTestPostgresRepository(t)

	mock.ExpectExec("UPDATE outbox").WillReturnResult(sqlmock.NewResult(0, 1))

	id := uuid.Must(uuid.NewV7())
	err := repo.ApplyOutboxOutcomes(context.Background(), nil,
		[]Failure{{MessageID: id, FailureReason: constant.FailureTimeout, Error: "deadline exceeded"}},
		DefaultMaxAttempts)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_InsertEvents_ConflictMapsToErrConflict(t *testing.T) {
	repo, mock := newTestPostgresRepository(t)

	mock.ExpectExec("INSERT INTO event_store").
		WillReturnError(errSQLState23505)

	err := repo.InsertEvents(context.Background(), []EventStoreRow{{
		StreamID: "stream-1", AggregateID: "agg-1", Version: 2, EventType: "Whatever",
	}})

	require.Error(t, err)
	var conflict ErrConflict
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, "stream-1", conflict.StreamID)
	require.NoError(t, mock.ExpectationsWereMet())
}

// errSQLState23505 stands in for a real driver unique-violation error; its
// message only needs to contain the SQLSTATE code isUniqueViolation scans for.
type fakeUniqueViolation struct{}

func (fakeUniqueViolation) Error() string { return "pq: duplicate key value violates unique constraint (SQLSTATE 23505)" }

var errSQLState23505 = fakeUniqueViolation{}

func TestPostgresRepository_InsertOutboxMessages_Empty(t *testing.T) {
	repo, mock := newTestPostgresRepository(t)

	err := repo.InsertOutboxMessages(context.Background(), nil)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ClaimOutbox_NoPartitions(t *testing.T) {
	repo, mock := newTestPostgresRepository(t)

	rows, err := repo.ClaimOutbox(context.Background(), nil, "instance-a", time.Now(), 100)

	require.NoError(t, err)
	require.Nil(t, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ClaimOutbox_ScansReturnedRow(t *testing.T) {
	repo, mock := newTestPostgresRepository(t)

	id := uuid.Must(uuid.NewV7())
	now := time.Now().UTC()

	cols := []string{
		"message_id", "destination", "message_type", "payload", "metadata", "scope",
		"status_flags", "attempts", "error", "created_at", "published_at", "processed_at",
		"instance_id", "lease_expiry", "stream_id", "partition_number", "failure_reason", "scheduled_for",
	}

	mock.ExpectQuery("UPDATE outbox").WillReturnRows(sqlmock.NewRows(cols).AddRow(
		id, "topic.a", "OrderPlaced", []byte("{}"), []byte(`{"k":"v"}`), nil,
		uint8(constant.Stored), 0, "", now, nil, nil,
		"instance-a", now.Add(time.Minute), "stream-1", 7, "", nil,
	))

	rows, err := repo.ClaimOutbox(context.Background(), []int{7}, "instance-a", now.Add(time.Minute), 10)

	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, id, rows[0].MessageID)
	require.Equal(t, "v", rows[0].Metadata["k"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_RenewOutboxLeases_EmptyIsNoop(t *testing.T) {
	repo, mock := newTestPostgresRepository(t)

	err := repo.RenewOutboxLeases(context.Background(), nil, time.Now())

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ApplyPerspectiveOutcomes_CompletionKeysOnCheckpoint(t *testing.T) {
	repo, mock := newTestPostgresRepository(t)

	mock.ExpectExec("UPDATE perspective_checkpoints").WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.ApplyPerspectiveOutcomes(context.Background(),
		[]PerspectiveCompletion{{
			StreamID:        "stream-1",
			PerspectiveName: "balances",
			LastEventID:     uuid.Must(uuid.NewV7()),
			CompletedStatus: constant.Processed,
		}},
		nil, DefaultMaxAttempts)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ApplyPerspectiveOutcomes_Failure(t *testing.T) {
	repo, mock := newTestPostgresRepository(t)

	mock.ExpectExec("UPDATE perspective_checkpoints").WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.ApplyPerspectiveOutcomes(context.Background(), nil,
		[]PerspectiveFailure{{
			StreamID:        "stream-1",
			PerspectiveName: "balances",
			Error:           "apply failed",
			FailureReason:   constant.FailureUnknown,
		}},
		DefaultMaxAttempts)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_InsertMessageDeduplication_FirstSighting(t *testing.T) {
	repo, mock := newTestPostgresRepository(t)

	mock.ExpectExec("INSERT INTO message_deduplication").
		WillReturnResult(sqlmock.NewResult(0, 1))

	inserted, err := repo.InsertMessageDeduplication(context.Background(), uuid.Must(uuid.NewV7()), time.Now().UTC())

	require.NoError(t, err)
	require.True(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_InsertMessageDeduplication_AlreadySeen(t *testing.T) {
	repo, mock := newTestPostgresRepository(t)

	mock.ExpectExec("INSERT INTO message_deduplication").
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := repo.InsertMessageDeduplication(context.Background(), uuid.Must(uuid.NewV7()), time.Now().UTC())

	require.NoError(t, err)
	require.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ReleaseLeasesForInstances_EmptyIsNoop(t *testing.T) {
	repo, mock := newTestPostgresRepository(t)

	err := repo.ReleaseLeasesForInstances(context.Background(), nil)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ReleaseLeasesForInstances_UpdatesEachTable(t *testing.T) {
	repo, mock := newTestPostgresRepository(t)

	mock.ExpectExec("UPDATE outbox").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE inbox").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE perspective_checkpoints").WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.ReleaseLeasesForInstances(context.Background(), []string{"dead-instance"})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestCoordinator(t *testing.T) (*Coordinator, sqlmock.Sqlmock, *MockRepository) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctrl := gomock.NewController(t)
	repo := NewMockRepository(ctrl)

	return New(db, repo, nil, nil), mock, repo
}

func TestProcessWorkBatch_HappyPath(t *testing.T) {
	c, mock, repo := newTestCoordinator(t)

	mock.ExpectBegin()
	mock.ExpectCommit()

	repo.EXPECT().UpsertServiceInstance(gomock.Any(), gomock.Any()).Return(nil)
	repo.EXPECT().DeleteStaleInstances(gomock.Any(), gomock.Any()).Return(nil, nil)
	repo.EXPECT().ApplyOutboxOutcomes(gomock.Any(), gomock.Any(), gomock.Any(), DefaultMaxAttempts).Return(nil)
	repo.EXPECT().ApplyInboxOutcomes(gomock.Any(), gomock.Any(), gomock.Any(), DefaultMaxAttempts).Return(nil)
	repo.EXPECT().ApplyPerspectiveOutcomes(gomock.Any(), gomock.Any(), gomock.Any(), DefaultMaxAttempts).Return(nil)
	repo.EXPECT().ListLiveInstanceIDs(gomock.Any()).Return([]string{"instance-a"}, nil)
	repo.EXPECT().ClaimOutbox(gomock.Any(), gomock.Any(), "instance-a", gomock.Any(), DefaultBatchLimit).
		Return([]OutboxRow{{MessageID: uuid.Must(uuid.NewV7())}}, nil)
	repo.EXPECT().ClaimInbox(gomock.Any(), gomock.Any(), "instance-a", gomock.Any(), DefaultBatchLimit).Return(nil, nil)
	repo.EXPECT().ClaimPerspectiveCheckpoints(gomock.Any(), gomock.Any(), "instance-a", gomock.Any(), DefaultBatchLimit).Return(nil, nil)

	batch, err := c.ProcessWorkBatch(context.Background(), Request{
		Identity: Identity{InstanceID: "instance-a", ServiceName: "svc"},
	})

	require.NoError(t, err)
	require.Len(t, batch.OutboxWork, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessWorkBatch_AbortsOnRepositoryError(t *testing.T) {
	c, mock, repo := newTestCoordinator(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	repo.EXPECT().UpsertServiceInstance(gomock.Any(), gomock.Any()).Return(assertErr{"boom"})

	_, err := c.ProcessWorkBatch(context.Background(), Request{
		Identity: Identity{InstanceID: "instance-a"},
	})

	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessWorkBatch_OutcomesAppliedBeforeClaims(t *testing.T) {
	// Outcomes must be applied before new claims. We assert this by
	// recording call order via gomock.InOrder.
	c, mock, repo := newTestCoordinator(t)

	mock.ExpectBegin()
	mock.ExpectCommit()

	id := uuid.Must(uuid.NewV7())

	repo.EXPECT().UpsertServiceInstance(gomock.Any(), gomock.Any()).Return(nil)
	repo.EXPECT().DeleteStaleInstances(gomock.Any(), gomock.Any()).Return(nil, nil)

	applyCall := repo.EXPECT().ApplyOutboxOutcomes(gomock.Any(), []Completion{{MessageID: id}}, gomock.Any(), DefaultMaxAttempts).Return(nil)
	repo.EXPECT().ApplyInboxOutcomes(gomock.Any(), gomock.Any(), gomock.Any(), DefaultMaxAttempts).Return(nil)
	repo.EXPECT().ApplyPerspectiveOutcomes(gomock.Any(), gomock.Any(), gomock.Any(), DefaultMaxAttempts).Return(nil)
	repo.EXPECT().ListLiveInstanceIDs(gomock.Any()).Return([]string{"instance-a"}, nil)
	claimCall := repo.EXPECT().ClaimOutbox(gomock.Any(), gomock.Any(), "instance-a", gomock.Any(), DefaultBatchLimit).Return(nil, nil)
	repo.EXPECT().ClaimInbox(gomock.Any(), gomock.Any(), "instance-a", gomock.Any(), DefaultBatchLimit).Return(nil, nil)
	repo.EXPECT().ClaimPerspectiveCheckpoints(gomock.Any(), gomock.Any(), "instance-a", gomock.Any(), DefaultBatchLimit).Return(nil, nil)

	gomock.InOrder(applyCall, claimCall)

	_, err := c.ProcessWorkBatch(context.Background(), Request{
		Identity:          Identity{InstanceID: "instance-a"},
		OutboxCompletions: []Completion{{MessageID: id}},
	})
	require.NoError(t, err)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }

func TestAssignedPartitions_FairSplit(t *testing.T) {
	instances := []string{"b", "a", "c"}
	total := 0
	counts := map[string]int{}

	for _, id := range instances {
		p := AssignedPartitions(id, instances, 100)
		counts[id] = len(p)
		total += len(p)
	}

	require.Equal(t, 100, total)

	for _, c := range counts {
		require.True(t, c == 33 || c == 34, "expected floor/ceil split, got %d", c)
	}
}

func TestAssignedPartitions_UnknownInstanceGetsNone(t *testing.T) {
	p := AssignedPartitions("ghost", []string{"a", "b"}, 10)
	require.Empty(t, p)
}

func TestOutboxRow_Claimable(t *testing.T) {
	now := time.Now()
	expired := now.Add(-time.Second)
	future := now.Add(time.Minute)
	owner := "instance-a"

	require.True(t, OutboxRow{}.Claimable(now))
	require.True(t, OutboxRow{InstanceID: &owner, LeaseExpiry: &expired}.Claimable(now))
	require.False(t, OutboxRow{InstanceID: &owner, LeaseExpiry: &future}.Claimable(now))
}

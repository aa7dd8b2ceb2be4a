// Code generated by MockGen would normally overwrite this file; it is
// committed by hand here since the toolchain that regenerates it is not
// run in this environment. Keep its shape in sync with repository.go.
package coordinator

import (
	"context"
	"reflect"
	"time"

	"github.com/google/uuid"
	gomock "go.uber.org/mock/gomock"
)

// MockRepository is a mock of the Repository interface.
type MockRepository struct {
	ctrl     *gomock.Controller
	recorder *MockRepositoryMockRecorder
}

// MockRepositoryMockRecorder is the mock recorder for MockRepository.
type MockRepositoryMockRecorder struct {
	mock *MockRepository
}

// NewMockRepository creates a new mock instance.
func NewMockRepository(ctrl *gomock.Controller) *MockRepository {
	mock := &MockRepository{ctrl: ctrl}
	mock.recorder = &MockRepositoryMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockRepository) EXPECT() *MockRepositoryMockRecorder {
	return m.recorder
}

func (m *MockRepository) UpsertServiceInstance(ctx context.Context, row ServiceInstanceRow) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "UpsertServiceInstance", ctx, row)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockRepositoryMockRecorder) UpsertServiceInstance(ctx, row any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "UpsertServiceInstance", reflect.TypeOf((*MockRepository)(nil).UpsertServiceInstance), ctx, row)
}

func (m *MockRepository) DeleteStaleInstances(ctx context.Context, olderThan time.Time) ([]string, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "DeleteStaleInstances", ctx, olderThan)
	ret0, _ := ret[0].([]string)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockRepositoryMockRecorder) DeleteStaleInstances(ctx, olderThan any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "DeleteStaleInstances", reflect.TypeOf((*MockRepository)(nil).DeleteStaleInstances), ctx, olderThan)
}

func (m *MockRepository) ListLiveInstanceIDs(ctx context.Context) ([]string, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ListLiveInstanceIDs", ctx)
	ret0, _ := ret[0].([]string)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockRepositoryMockRecorder) ListLiveInstanceIDs(ctx any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ListLiveInstanceIDs", reflect.TypeOf((*MockRepository)(nil).ListLiveInstanceIDs), ctx)
}

func (m *MockRepository) ApplyOutboxOutcomes(ctx context.Context, completions []Completion, failures []Failure, maxAttempts int) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ApplyOutboxOutcomes", ctx, completions, failures, maxAttempts)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockRepositoryMockRecorder) ApplyOutboxOutcomes(ctx, completions, failures, maxAttempts any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ApplyOutboxOutcomes", reflect.TypeOf((*MockRepository)(nil).ApplyOutboxOutcomes), ctx, completions, failures, maxAttempts)
}

func (m *MockRepository) ApplyInboxOutcomes(ctx context.Context, completions []Completion, failures []Failure, maxAttempts int) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ApplyInboxOutcomes", ctx, completions, failures, maxAttempts)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockRepositoryMockRecorder) ApplyInboxOutcomes(ctx, completions, failures, maxAttempts any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ApplyInboxOutcomes", reflect.TypeOf((*MockRepository)(nil).ApplyInboxOutcomes), ctx, completions, failures, maxAttempts)
}

func (m *MockRepository) ApplyPerspectiveOutcomes(ctx context.Context, completions []PerspectiveCompletion, failures []PerspectiveFailure, maxAttempts int) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ApplyPerspectiveOutcomes", ctx, completions, failures, maxAttempts)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockRepositoryMockRecorder) ApplyPerspectiveOutcomes(ctx, completions, failures, maxAttempts any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ApplyPerspectiveOutcomes", reflect.TypeOf((*MockRepository)(nil).ApplyPerspectiveOutcomes), ctx, completions, failures, maxAttempts)
}

func (m *MockRepository) RenewOutboxLeases(ctx context.Context, ids []uuid.UUID, leaseExpiry time.Time) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "RenewOutboxLeases", ctx, ids, leaseExpiry)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockRepositoryMockRecorder) RenewOutboxLeases(ctx, ids, leaseExpiry any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "RenewOutboxLeases", reflect.TypeOf((*MockRepository)(nil).RenewOutboxLeases), ctx, ids, leaseExpiry)
}

func (m *MockRepository) RenewInboxLeases(ctx context.Context, ids []uuid.UUID, leaseExpiry time.Time) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "RenewInboxLeases", ctx, ids, leaseExpiry)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockRepositoryMockRecorder) RenewInboxLeases(ctx, ids, leaseExpiry any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "RenewInboxLeases", reflect.TypeOf((*MockRepository)(nil).RenewInboxLeases), ctx, ids, leaseExpiry)
}

func (m *MockRepository) ReleaseLeasesForInstances(ctx context.Context, instanceIDs []string) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ReleaseLeasesForInstances", ctx, instanceIDs)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockRepositoryMockRecorder) ReleaseLeasesForInstances(ctx, instanceIDs any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ReleaseLeasesForInstances", reflect.TypeOf((*MockRepository)(nil).ReleaseLeasesForInstances), ctx, instanceIDs)
}

func (m *MockRepository) InsertMessageDeduplication(ctx context.Context, messageID uuid.UUID, firstSeenAt time.Time) (bool, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "InsertMessageDeduplication", ctx, messageID, firstSeenAt)
	ret0, _ := ret[0].(bool)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockRepositoryMockRecorder) InsertMessageDeduplication(ctx, messageID, firstSeenAt any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "InsertMessageDeduplication", reflect.TypeOf((*MockRepository)(nil).InsertMessageDeduplication), ctx, messageID, firstSeenAt)
}

func (m *MockRepository) InsertOutboxMessages(ctx context.Context, rows []OutboxRow) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "InsertOutboxMessages", ctx, rows)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockRepositoryMockRecorder) InsertOutboxMessages(ctx, rows any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "InsertOutboxMessages", reflect.TypeOf((*MockRepository)(nil).InsertOutboxMessages), ctx, rows)
}

func (m *MockRepository) InsertInboxMessages(ctx context.Context, rows []InboxRow) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "InsertInboxMessages", ctx, rows)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockRepositoryMockRecorder) InsertInboxMessages(ctx, rows any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "InsertInboxMessages", reflect.TypeOf((*MockRepository)(nil).InsertInboxMessages), ctx, rows)
}

func (m *MockRepository) InsertEvents(ctx context.Context, rows []EventStoreRow) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "InsertEvents", ctx, rows)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockRepositoryMockRecorder) InsertEvents(ctx, rows any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "InsertEvents", reflect.TypeOf((*MockRepository)(nil).InsertEvents), ctx, rows)
}

func (m *MockRepository) AutoCreateCheckpoints(ctx context.Context, events []EventStoreRow, associations []MessageAssociationRow) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "AutoCreateCheckpoints", ctx, events, associations)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockRepositoryMockRecorder) AutoCreateCheckpoints(ctx, events, associations any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "AutoCreateCheckpoints", reflect.TypeOf((*MockRepository)(nil).AutoCreateCheckpoints), ctx, events, associations)
}

func (m *MockRepository) ClaimOutbox(ctx context.Context, partitions []int, instanceID string, leaseExpiry time.Time, limit int) ([]OutboxRow, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ClaimOutbox", ctx, partitions, instanceID, leaseExpiry, limit)
	ret0, _ := ret[0].([]OutboxRow)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockRepositoryMockRecorder) ClaimOutbox(ctx, partitions, instanceID, leaseExpiry, limit any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ClaimOutbox", reflect.TypeOf((*MockRepository)(nil).ClaimOutbox), ctx, partitions, instanceID, leaseExpiry, limit)
}

func (m *MockRepository) ClaimInbox(ctx context.Context, partitions []int, instanceID string, leaseExpiry time.Time, limit int) ([]InboxRow, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ClaimInbox", ctx, partitions, instanceID, leaseExpiry, limit)
	ret0, _ := ret[0].([]InboxRow)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockRepositoryMockRecorder) ClaimInbox(ctx, partitions, instanceID, leaseExpiry, limit any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ClaimInbox", reflect.TypeOf((*MockRepository)(nil).ClaimInbox), ctx, partitions, instanceID, leaseExpiry, limit)
}

func (m *MockRepository) ClaimPerspectiveCheckpoints(ctx context.Context, partitions []int, instanceID string, leaseExpiry time.Time, limit int) ([]PerspectiveCheckpointRow, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ClaimPerspectiveCheckpoints", ctx, partitions, instanceID, leaseExpiry, limit)
	ret0, _ := ret[0].([]PerspectiveCheckpointRow)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockRepositoryMockRecorder) ClaimPerspectiveCheckpoints(ctx, partitions, instanceID, leaseExpiry, limit any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ClaimPerspectiveCheckpoints", reflect.TypeOf((*MockRepository)(nil).ClaimPerspectiveCheckpoints), ctx, partitions, instanceID, leaseExpiry, limit)
}

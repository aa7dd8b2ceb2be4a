package worker

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/whizbang-io/whizbang/internal/coordinator"
	"github.com/whizbang-io/whizbang/internal/envelope"
	"github.com/whizbang-io/whizbang/internal/transport"
	"github.com/whizbang-io/whizbang/pkg/constant"
	"github.com/whizbang-io/whizbang/pkg/retry"
)

func TestOutcomeBag_SnapshotAndClear(t *testing.T) {
	var bag outcomeBag

	id := uuid.Must(uuid.NewV7())
	bag.addCompletion(coordinator.Completion{MessageID: id, CompletedStatus: constant.Published})
	bag.addFailure(coordinator.Failure{MessageID: id, FailureReason: constant.FailureTimeout})
	bag.addLeaseRenewal(id)

	completions, failures, renewals := bag.snapshotAndClear()

	require.Len(t, completions, 1)
	require.Len(t, failures, 1)
	require.Len(t, renewals, 1)

	completions2, failures2, renewals2 := bag.snapshotAndClear()
	require.Empty(t, completions2)
	require.Empty(t, failures2)
	require.Empty(t, renewals2)
}

// fakeTransport is a minimal transport.Transport used only to exercise
// TransportResolver's name/destination split.
type fakeTransport struct{}

func (fakeTransport) Initialize(context.Context) error { return nil }
func (fakeTransport) IsInitialized() bool               { return true }
func (fakeTransport) Publish(context.Context, *envelope.Envelope, string) error {
	return nil
}
func (fakeTransport) Subscribe(context.Context, string, transport.SubscriptionMode, transport.Handler) (transport.Subscription, error) {
	return nil, nil
}

var _ transport.Transport = fakeTransport{}

func TestTransportResolver_Resolve(t *testing.T) {
	resolver := TransportResolver{"rabbitmq": fakeTransport{}}

	tr, dest, ok := resolver.resolve("rabbitmq/orders.created")
	require.True(t, ok)
	require.NotNil(t, tr)
	require.Equal(t, "orders.created", dest)

	_, _, ok = resolver.resolve("no-slash-here")
	require.False(t, ok)

	_, _, ok = resolver.resolve("unregistered/dest")
	require.False(t, ok)
}

func TestClassifyPublishError_DefaultsToTransportException(t *testing.T) {
	require.Equal(t, constant.FailureTransportException, classifyPublishError(plainError{}))
}

func TestClassifyPublishError_HonoursClassifier(t *testing.T) {
	require.Equal(t, constant.FailureValidation, classifyPublishError(classifiedError{constant.FailureValidation}))
}

type plainError struct{}

func (plainError) Error() string { return "boom" }

type classifiedError struct{ reason constant.FailureReason }

func (e classifiedError) Error() string                         { return "classified" }
func (e classifiedError) FailureReason() constant.FailureReason { return e.reason }

func TestBatchedCompletionStrategy_DrainLifecycle(t *testing.T) {
	s := NewBatchedCompletionStrategy(retry.Config{MaxRetries: 5, InitialBackoff: 0, MaxBackoff: 0, JitterFactor: 0})

	id := uuid.Must(uuid.NewV7())
	s.Report("stream-1", "perspective-a", id)

	// First drain: Pending -> Sent, returned once.
	out := s.Drain()
	require.Len(t, out, 1)
	require.Equal(t, id, out[0].LastEventID)

	// Acknowledge removes it from the pending set entirely.
	s.Acknowledge(map[checkpointKey]bool{{streamID: "stream-1", perspectiveName: "perspective-a"}: true})
	require.Empty(t, s.pending)
}

func TestInstantCompletionStrategy_FlushesImmediately(t *testing.T) {
	var flushed []coordinator.PerspectiveCompletion

	s := NewInstantCompletionStrategy(func(c coordinator.PerspectiveCompletion) { flushed = append(flushed, c) })

	id := uuid.Must(uuid.NewV7())
	s.Report("stream-1", "perspective-a", id)

	require.Len(t, flushed, 1)
	require.Nil(t, s.Drain())
}

package constant

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusFlags_Monotonic(t *testing.T) {
	s := Stored
	require.True(t, s.Claimable())

	s = s.With(Published)
	require.False(t, s.Claimable())
	require.True(t, s.Has(Stored))
	require.True(t, s.Has(Published))

	s = s.With(Processed)
	require.True(t, s.IsTerminal())
}

func TestStatusFlags_AssertValidStatusFlags(t *testing.T) {
	require.NotPanics(t, func() { AssertValidStatusFlags(Stored | Published) })
	require.Panics(t, func() { AssertValidStatusFlags(StatusFlags(1 << 7)) })
}

func TestStatusFlags_AssertValidStatusTransition(t *testing.T) {
	require.NotPanics(t, func() { AssertValidStatusTransition(Stored, Stored|Published) })
	require.Panics(t, func() { AssertValidStatusTransition(Stored|Published, Stored) })
}

func TestFailureReason_Retryable(t *testing.T) {
	require.True(t, FailureTransportException.Retryable())
	require.True(t, FailureTimeout.Retryable())
	require.False(t, FailureSerialization.Retryable())
	require.True(t, FailureSerialization.Terminal())
	require.False(t, FailureUnknown.Terminal())
}

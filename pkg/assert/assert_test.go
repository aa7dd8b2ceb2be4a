package assert

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestThat_Pass(t *testing.T) {
	require.NotPanics(t, func() {
		That(true, "should not panic")
	})
}

func TestThat_Panic(t *testing.T) {
	require.Panics(t, func() {
		That(false, "should panic")
	})
}

func TestThat_PanicMessage(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected panic")
		msg, ok := r.(string)
		require.True(t, ok)
		require.Contains(t, msg, "assertion failed:")
		require.Contains(t, msg, "test message")
		require.Contains(t, msg, "key1=value1")
		require.Contains(t, msg, "key2=42")
		require.Contains(t, msg, "stack trace:")
	}()
	That(false, "test message", "key1", "value1", "key2", 42)
}

func TestNotNil_Pass(t *testing.T) {
	require.NotPanics(t, func() { NotNil("hello", "string should not be nil") })
	require.NotPanics(t, func() { NotNil(42, "int should not be nil") })
	require.NotPanics(t, func() { NotNil(new(int), "pointer should not be nil") })
	require.NotPanics(t, func() { NotNil([]int{1, 2, 3}, "slice should not be nil") })
	require.NotPanics(t, func() { NotNil(map[string]int{"a": 1}, "map should not be nil") })
}

func TestNotNil_Panic(t *testing.T) {
	require.Panics(t, func() { NotNil(nil, "should panic for nil") })
}

func TestNotNil_TypedNil(t *testing.T) {
	var ptr *int
	var iface any = ptr

	require.Panics(t, func() {
		NotNil(iface, "should panic for typed nil")
	})
}

func TestNotEmpty(t *testing.T) {
	require.Panics(t, func() { NotEmpty("   ", "must not be blank") })
	require.NotPanics(t, func() { NotEmpty("instance-1", "must not be blank") })
}

func TestPositive(t *testing.T) {
	require.Panics(t, func() { Positive(0, "must be positive") })
	require.Panics(t, func() { Positive(-1, "must be positive") })
	require.NotPanics(t, func() { Positive(1, "must be positive") })
}

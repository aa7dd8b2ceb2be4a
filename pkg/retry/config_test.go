package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultWorkerConfig(t *testing.T) {
	c := DefaultWorkerConfig()
	require.NoError(t, c.Validate())
	require.Equal(t, DefaultMaxRetries, c.MaxRetries)
	require.Equal(t, DefaultInitialBackoff, c.InitialBackoff)
}

func TestDefaultPerspectiveConfig(t *testing.T) {
	c := DefaultPerspectiveConfig()
	require.NoError(t, c.Validate())
	require.Equal(t, PerspectiveInitialBackoff, c.InitialBackoff)
}

func TestConfig_WithChain(t *testing.T) {
	c := DefaultWorkerConfig().
		WithMaxRetries(3).
		WithInitialBackoff(2 * time.Second).
		WithMaxBackoff(time.Minute).
		WithJitterFactor(0.1)

	require.Equal(t, 3, c.MaxRetries)
	require.Equal(t, 2*time.Second, c.InitialBackoff)
	require.Equal(t, time.Minute, c.MaxBackoff)
	require.Equal(t, 0.1, c.JitterFactor)
	require.NoError(t, c.Validate())
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{"zero max retries", DefaultWorkerConfig().WithMaxRetries(0), "MaxRetries"},
		{"zero initial backoff", DefaultWorkerConfig().WithInitialBackoff(0), "InitialBackoff"},
		{"zero max backoff", DefaultWorkerConfig().WithMaxBackoff(0), "MaxBackoff"},
		{"max below initial", DefaultWorkerConfig().WithInitialBackoff(time.Hour), "MaxBackoff"},
		{"jitter out of range", DefaultWorkerConfig().WithJitterFactor(1.5), "JitterFactor"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestConfig_Backoff_ZeroAttemptReturnsInitial(t *testing.T) {
	c := DefaultWorkerConfig().WithJitterFactor(0)
	require.Equal(t, c.InitialBackoff, c.Backoff(0))
}

func TestConfig_Backoff_CapsAtMaxBackoff(t *testing.T) {
	c := Config{MaxRetries: 50, InitialBackoff: time.Second, MaxBackoff: 10 * time.Second, JitterFactor: 0}
	require.Equal(t, 10*time.Second, c.Backoff(20))
}

func TestConfig_Backoff_Exponential(t *testing.T) {
	c := Config{MaxRetries: 50, InitialBackoff: time.Second, MaxBackoff: time.Hour, JitterFactor: 0}
	require.Equal(t, 2*time.Second, c.Backoff(1))
	require.Equal(t, 4*time.Second, c.Backoff(2))
}

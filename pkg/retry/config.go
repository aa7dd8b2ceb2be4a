// Package retry implements an exponential-backoff-with-jitter schedule.
// Within the workers it paces the resend of perspective completions
// stuck in Sent; the publisher and consumer do not use it.
package retry

import (
	"math/rand"
	"time"

	"github.com/whizbang-io/whizbang/pkg/werrors"
)

const (
	DefaultMaxRetries      = 10
	DefaultInitialBackoff  = time.Second
	DefaultMaxBackoff      = 30 * time.Minute
	DefaultJitterFactor    = 0.25
	PerspectiveInitialBackoff = time.Minute
)

// Config controls how many times, and how long between, a retryable
// operation is re-attempted.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JitterFactor   float64
}

// DefaultWorkerConfig is a general-purpose schedule (1s initial, 30m
// cap). The publisher and consumer workers do not consult it: a
// lease-renewed row is retried on their next polling tick.
func DefaultWorkerConfig() Config {
	return Config{
		MaxRetries:     DefaultMaxRetries,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		JitterFactor:   DefaultJitterFactor,
	}
}

// DefaultPerspectiveConfig is the schedule used when a perspective
// completion is stuck in Sent and must revert to Pending.
func DefaultPerspectiveConfig() Config {
	return Config{
		MaxRetries:     DefaultMaxRetries,
		InitialBackoff: PerspectiveInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		JitterFactor:   DefaultJitterFactor,
	}
}

func (c Config) WithMaxRetries(n int) Config     { c.MaxRetries = n; return c }
func (c Config) WithInitialBackoff(d time.Duration) Config { c.InitialBackoff = d; return c }
func (c Config) WithMaxBackoff(d time.Duration) Config     { c.MaxBackoff = d; return c }
func (c Config) WithJitterFactor(f float64) Config         { c.JitterFactor = f; return c }

// Validate enforces the invariants Backoff relies on.
func (c Config) Validate() error {
	if c.MaxRetries < 1 {
		return werrors.ConfigValidationError{Field: "MaxRetries", Message: "must be >= 1"}
	}

	if c.InitialBackoff <= 0 {
		return werrors.ConfigValidationError{Field: "InitialBackoff", Message: "must be > 0"}
	}

	if c.MaxBackoff <= 0 {
		return werrors.ConfigValidationError{Field: "MaxBackoff", Message: "must be > 0"}
	}

	if c.MaxBackoff < c.InitialBackoff {
		return werrors.ConfigValidationError{Field: "MaxBackoff", Message: "must be >= InitialBackoff"}
	}

	if c.JitterFactor < 0 || c.JitterFactor > 1 {
		return werrors.ConfigValidationError{Field: "JitterFactor", Message: "must be in [0, 1]"}
	}

	return nil
}

// Backoff returns the delay before attempt number `attempt` (0-indexed),
// exponential in attempt and capped at MaxBackoff, perturbed by up to
// JitterFactor of the computed value.
func (c Config) Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return c.InitialBackoff
	}

	d := c.InitialBackoff
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= c.MaxBackoff {
			d = c.MaxBackoff
			break
		}
	}

	if c.JitterFactor <= 0 {
		return d
	}

	jitter := float64(d) * c.JitterFactor * (rand.Float64()*2 - 1)
	d += time.Duration(jitter)

	if d < 0 {
		d = 0
	}

	if d > c.MaxBackoff {
		d = c.MaxBackoff
	}

	return d
}

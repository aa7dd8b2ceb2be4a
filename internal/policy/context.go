// Package policy implements the routing/execution decision layer: an
// ordered list of predicate+configuration pairs evaluated first-match-
// wins against every outgoing message.
package policy

import (
	"context"
	"time"

	"github.com/whizbang-io/whizbang/internal/envelope"
)

// ServiceLocator resolves ambient collaborators a predicate might need
// (a feature-flag client, a tenant lookup) without the engine depending
// on any of their concrete types.
type ServiceLocator interface {
	Get(name string) (any, bool)
}

// Decision records one policy's evaluation outcome, matched or not, so
// the full trail can be inspected for debugging.
type Decision struct {
	PolicyName string
	Matched    bool
	Reason     string
}

// Context is the read-only view a predicate and the winning
// configuration builder evaluate against.
type Context struct {
	Ctx         context.Context
	Message     any
	MessageType string
	Envelope    *envelope.Envelope
	Environment string
	Now         time.Time
	Locator     ServiceLocator

	trail []Decision
}

// NewContext builds a policy context for one message. ctx carries the
// tracer/logger Evaluate opens its span from; pass context.Background()
// outside a request scope.
func NewContext(ctx context.Context, message any, messageType string, env *envelope.Envelope, environment string, locator ServiceLocator) *Context {
	return &Context{
		Ctx:         ctx,
		Message:     message,
		MessageType: messageType,
		Envelope:    env,
		Environment: environment,
		Now:         time.Now().UTC(),
		Locator:     locator,
	}
}

// record appends one policy's outcome to the decision trail. Called by
// the Engine, never by predicates themselves.
func (c *Context) record(name string, matched bool, reason string) {
	c.trail = append(c.trail, Decision{PolicyName: name, Matched: matched, Reason: reason})
}

// Trail returns every decision recorded during evaluation, in order.
func (c *Context) Trail() []Decision {
	return c.trail
}

// MatchesAggregate reports whether Message is an aggregate event for T.
func MatchesAggregate[T any](c *Context) bool {
	_, ok := c.Message.(T)
	return ok
}

// GetAggregateId extracts the aggregate identifier when Message exposes
// an AggregateID() string method; returns "" otherwise.
func (c *Context) GetAggregateId() string {
	type aggregateIdentifiable interface{ AggregateID() string }

	if a, ok := c.Message.(aggregateIdentifiable); ok {
		return a.AggregateID()
	}

	return ""
}

// HasTag probes the envelope's last hop metadata for a boolean-ish tag.
func (c *Context) HasTag(tag string) bool {
	return c.HasFlag(tag)
}

// HasFlag reports whether the envelope's last hop metadata carries key
// with any non-empty value.
func (c *Context) HasFlag(key string) bool {
	if c.Envelope == nil {
		return false
	}

	v, ok := c.Envelope.LastHop().Metadata[key]

	return ok && v != ""
}

// GetMetadata reads a metadata value from the envelope's last hop.
func (c *Context) GetMetadata(key string) (string, bool) {
	if c.Envelope == nil {
		return "", false
	}

	v, ok := c.Envelope.LastHop().Metadata[key]

	return v, ok
}

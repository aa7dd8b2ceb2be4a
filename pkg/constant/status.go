// Package constant holds the bitfield and enumeration types shared by
// the coordinator, the workers, and the transport adapters.
package constant

import (
	"fmt"

	"github.com/whizbang-io/whizbang/pkg/assert"
)

// StatusFlags is the outbox/inbox row status bitfield. Bits are
// only ever OR'd in — they never unset (invariant: completion monotonicity).
type StatusFlags uint8

const (
	Stored StatusFlags = 1 << iota
	Published
	Processed
	Failed
	DeadLettered
)

// Has reports whether all bits in mask are set.
func (s StatusFlags) Has(mask StatusFlags) bool {
	return s&mask == mask
}

// With returns s with mask bits additionally set. Status flags are
// monotonically non-decreasing: this is the only mutator in the package.
func (s StatusFlags) With(mask StatusFlags) StatusFlags {
	return s | mask
}

// IsTerminal reports whether no further claim/publish/process transition
// is possible for a row carrying these flags.
func (s StatusFlags) IsTerminal() bool {
	return s.Has(Failed) || s.Has(DeadLettered) || s.Has(Processed)
}

// Claimable reports whether a row with these flags may still be claimed
// for publishing.
func (s StatusFlags) Claimable() bool {
	return !s.Has(Published) && !s.Has(DeadLettered) && !s.Has(Failed)
}

func (s StatusFlags) String() string {
	var names []string

	for mask, name := range map[StatusFlags]string{
		Stored: "Stored", Published: "Published", Processed: "Processed",
		Failed: "Failed", DeadLettered: "DeadLettered",
	} {
		if s.Has(mask) {
			names = append(names, name)
		}
	}

	if len(names) == 0 {
		return "None"
	}

	out := names[0]
	for _, n := range names[1:] {
		out += "|" + n
	}

	return out
}

// AssertValidStatusFlags panics if s carries bits outside the known set —
// a guard against a corrupted row or a caller constructing flags by hand.
func AssertValidStatusFlags(s StatusFlags) {
	const known = Stored | Published | Processed | Failed | DeadLettered
	assert.That(s&^known == 0, fmt.Sprintf("unknown status flags bit set: %08b", s))
}

// AssertValidStatusTransition panics if adding `next` on top of `current`
// would unset a bit — the only illegal transition under a bitfield model.
func AssertValidStatusTransition(current, next StatusFlags) {
	assert.That(current&^next == 0, "invalid status transition: bit unset",
		"current", current, "next", next)
}

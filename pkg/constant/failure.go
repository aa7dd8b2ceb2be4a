package constant

// FailureReason classifies why an outbox/inbox entry did not complete,
// and drives whether the batch coordinator retries, re-leases, or
// dead-letters the row.
type FailureReason string

const (
	FailureNone               FailureReason = ""
	FailureUnknown            FailureReason = "unknown"
	FailureTransportException FailureReason = "transport_exception"
	FailureSerialization      FailureReason = "serialization"
	FailureValidation         FailureReason = "validation"
	FailureTimeout            FailureReason = "timeout"
	FailurePermanentReject    FailureReason = "permanent_reject"
	FailureConflict           FailureReason = "conflict"
)

func (f FailureReason) Error() string {
	return string(f)
}

// Retryable reports whether a row carrying this failure reason should be
// re-leased for another attempt rather than marked terminal.
func (f FailureReason) Retryable() bool {
	switch f {
	case FailureTransportException, FailureTimeout, FailureUnknown:
		return true
	default:
		return false
	}
}

// Terminal reports whether this failure reason, on its own, always ends
// the row's lifecycle regardless of attempts remaining.
func (f FailureReason) Terminal() bool {
	switch f {
	case FailureSerialization, FailureValidation, FailurePermanentReject:
		return true
	default:
		return false
	}
}

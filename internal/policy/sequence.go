package policy

import "sync"

// SequenceProvider generates a monotonic sequence number per stream,
// used by transports whose infrastructure mapping calls for an explicit
// sequence.
type SequenceProvider interface {
	Next(streamKey string) int64
}

// MonotonicSequenceProvider keeps one counter per stream in memory. It
// is process-local: the batch coordinator's own `version` column
// remains the source of truth for durable ordering.
type MonotonicSequenceProvider struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewMonotonicSequenceProvider() *MonotonicSequenceProvider {
	return &MonotonicSequenceProvider{counters: map[string]int64{}}
}

func (p *MonotonicSequenceProvider) Next(streamKey string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.counters[streamKey]++

	return p.counters[streamKey]
}

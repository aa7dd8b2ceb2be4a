package policy

import "hash/fnv"

// PartitionRouter maps a stream key to a partition number in [0, count).
type PartitionRouter interface {
	Route(streamKey string, count int) int
}

// HashPartitionRouter is the default: a stable hash of the stream key
// modulo the partition count. Preserves per-stream ordering so long as
// ExecutionStrategy is serial.
type HashPartitionRouter struct{}

func (HashPartitionRouter) Route(streamKey string, count int) int {
	if count <= 0 {
		return 0
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(streamKey))

	return int(h.Sum32()) % count
}

// RoundRobinPartitionRouter spreads streams across partitions in
// insertion order, trading per-stream ordering for even distribution.
type RoundRobinPartitionRouter struct {
	next int
}

func (r *RoundRobinPartitionRouter) Route(_ string, count int) int {
	if count <= 0 {
		return 0
	}

	p := r.next % count
	r.next++

	return p
}

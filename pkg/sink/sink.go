package sink

import (
	"sort"

	"github.com/litmusops/resilience-gate/pkg/math"
	"github.com/litmusops/resilience-gate/pkg/types"
)

// DefaultShardCapacity bounds the ring of one worker shard
const DefaultShardCapacity = 1 << 16

// Arena is the in-memory sample sink for one measurement window. Every load
// worker owns exactly one shard and is the only writer to it, so appends
// need no locking; reads happen only after all workers are joined
type Arena struct {
	shards []shard
}

type shard struct {
	samples []types.RequestSample
	start   int
	full    bool
}

// Writer is the single-owner append handle of one shard
type Writer struct {
	shard *shard
}

// NewArena builds an arena with one ring shard per worker. A non-positive
// capacity falls back to DefaultShardCapacity
func NewArena(workers, capacity int) *Arena {
	workers = math.Maximum(1, workers)
	if capacity <= 0 {
		capacity = DefaultShardCapacity
	}
	arena := &Arena{shards: make([]shard, workers)}
	for i := range arena.shards {
		arena.shards[i].samples = make([]types.RequestSample, 0, capacity)
	}
	return arena
}

// Writer hands out the append handle of the given worker's shard
func (a *Arena) Writer(worker int) *Writer {
	return &Writer{shard: &a.shards[worker%len(a.shards)]}
}

// Record appends one sample to the owning worker's shard, overwriting the
// oldest entry once the ring is full
func (w *Writer) Record(sample types.RequestSample) {
	s := w.shard
	if len(s.samples) < cap(s.samples) && !s.full {
		s.samples = append(s.samples, sample)
		if len(s.samples) == cap(s.samples) {
			s.full = true
		}
		return
	}
	s.samples[s.start] = sample
	s.start = (s.start + 1) % len(s.samples)
}

// Len returns the total number of retained samples across all shards
func (a *Arena) Len() int {
	total := 0
	for i := range a.shards {
		total += len(a.shards[i].samples)
	}
	return total
}

// Samples merges all shards into one timestamp-ordered slice. It must only
// be called after the run's workers have been joined
func (a *Arena) Samples() []types.RequestSample {
	merged := make([]types.RequestSample, 0, a.Len())
	for i := range a.shards {
		s := &a.shards[i]
		merged = append(merged, s.samples[s.start:]...)
		merged = append(merged, s.samples[:s.start]...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	return merged
}

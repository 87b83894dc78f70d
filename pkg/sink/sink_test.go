package sink

import (
	"sync"
	"testing"
	"time"

	"github.com/litmusops/resilience-gate/pkg/types"
)

func sampleAt(offset time.Duration, outcome types.Outcome) types.RequestSample {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return types.RequestSample{
		Timestamp:  base.Add(offset),
		EndpointID: "orders",
		LatencyMs:  12.5,
		Outcome:    outcome,
	}
}

func TestArenaRecordAndMerge(t *testing.T) {
	arena := NewArena(4, 0)

	var wg sync.WaitGroup
	perWorker := 250
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			writer := arena.Writer(w)
			for i := 0; i < perWorker; i++ {
				writer.Record(sampleAt(time.Duration(w*perWorker+i)*time.Millisecond, types.OutcomeSuccess))
			}
		}(w)
	}
	wg.Wait()

	if arena.Len() != 4*perWorker {
		t.Fatalf("expected %d samples, got %d", 4*perWorker, arena.Len())
	}

	samples := arena.Samples()
	if len(samples) != 4*perWorker {
		t.Fatalf("expected merged length %d, got %d", 4*perWorker, len(samples))
	}
	for i := 1; i < len(samples); i++ {
		if samples[i].Timestamp.Before(samples[i-1].Timestamp) {
			t.Fatalf("samples out of order at index %d", i)
		}
	}
}

func TestArenaRingOverwrite(t *testing.T) {
	arena := NewArena(1, 4)
	writer := arena.Writer(0)

	for i := 0; i < 6; i++ {
		writer.Record(sampleAt(time.Duration(i)*time.Second, types.OutcomeSuccess))
	}

	samples := arena.Samples()
	if len(samples) != 4 {
		t.Fatalf("expected ring to retain 4 samples, got %d", len(samples))
	}
	// oldest two must have been overwritten
	if got := samples[0].Timestamp.Second(); got != 2 {
		t.Errorf("expected oldest retained sample at t+2s, got t+%ds", got)
	}
	if got := samples[3].Timestamp.Second(); got != 5 {
		t.Errorf("expected newest retained sample at t+5s, got t+%ds", got)
	}
}

func TestArenaMinimumOneShard(t *testing.T) {
	arena := NewArena(0, 8)
	writer := arena.Writer(3)
	writer.Record(sampleAt(0, types.OutcomeError))

	if arena.Len() != 1 {
		t.Errorf("expected 1 sample, got %d", arena.Len())
	}
}

package events

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordKeepsAppendOrder(t *testing.T) {
	recorder := NewRecorder("gate-1")

	recorder.Record(ReasonStageTransition, "rollout moved from Pending to StageRunning", nil)
	recorder.Record(ReasonVerdict, "stage 0 verdict recorded", map[string]interface{}{"Passed": true})
	recorder.Record(ReasonAbort, "operator requested stop", nil)

	history := recorder.Events()
	require.Len(t, history, 3)
	assert.Equal(t, ReasonStageTransition, history[0].Reason)
	assert.Equal(t, ReasonVerdict, history[1].Reason)
	assert.Equal(t, ReasonAbort, history[2].Reason)
	assert.Equal(t, "gate-1", history[0].RunID)
	assert.Equal(t, true, history[1].Fields["Passed"])
	assert.False(t, history[0].Timestamp.IsZero())
}

func TestEventsReturnsACopy(t *testing.T) {
	recorder := NewRecorder("gate-1")
	recorder.Record(ReasonInjection, "injection run inj-1 finished with status completed", nil)

	history := recorder.Events()
	history[0].Message = "mutated"

	assert.Equal(t, "injection run inj-1 finished with status completed", recorder.Events()[0].Message)
}

func TestRecordConcurrentAppends(t *testing.T) {
	recorder := NewRecorder("gate-1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			recorder.Record(ReasonStageTransition, fmt.Sprintf("transition %d", i), nil)
		}(i)
	}
	wg.Wait()

	assert.Len(t, recorder.Events(), 20)
}

package events

import (
	"sync"
	"time"

	"github.com/litmusops/resilience-gate/pkg/log"
	"github.com/sirupsen/logrus"
)

// Reason classifies one audit event
type Reason string

const (
	ReasonStageTransition Reason = "StageTransition"
	ReasonVerdict         Reason = "VerdictRecorded"
	ReasonInjection       Reason = "InjectionUpdate"
	ReasonAbort           Reason = "AbortSignal"
)

// Event is one immutable audit record of the rollout history
type Event struct {
	Timestamp time.Time              `json:"timestamp"`
	RunID     string                 `json:"run_id"`
	Reason    Reason                 `json:"reason"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Recorder appends audit events for one gate run; every stage transition,
// verdict and injection status change lands here regardless of outcome
type Recorder struct {
	runID string

	mu     sync.Mutex
	events []Event
}

// NewRecorder builds a recorder scoped to one gate run
func NewRecorder(runID string) *Recorder {
	return &Recorder{runID: runID}
}

// Record appends one event and mirrors it onto the log
func (r *Recorder) Record(reason Reason, message string, fields map[string]interface{}) {
	event := Event{
		Timestamp: time.Now(),
		RunID:     r.runID,
		Reason:    reason,
		Message:   message,
		Fields:    fields,
	}

	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()

	logFields := logrus.Fields{"Reason": string(reason)}
	for key, value := range fields {
		logFields[key] = value
	}
	log.InfoWithValues("[Event]: "+message, logFields)
}

// Events returns a copy of the recorded history in append order
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

package rollout

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/litmusops/resilience-gate/pkg/cerrors"
	"github.com/litmusops/resilience-gate/pkg/events"
	"github.com/litmusops/resilience-gate/pkg/injector"
	"github.com/litmusops/resilience-gate/pkg/loadgen"
	"github.com/litmusops/resilience-gate/pkg/types"
)

type countingShifter struct {
	shifts  int32
	reverts int32
}

func (s *countingShifter) Shift(ctx context.Context, percent int) error {
	atomic.AddInt32(&s.shifts, 1)
	return nil
}

func (s *countingShifter) Revert(ctx context.Context) error {
	atomic.AddInt32(&s.reverts, 1)
	return nil
}

// flakyBackend flips the target into a degraded mode while the fault is active
type flakyBackend struct {
	degraded *int32
}

func (b *flakyBackend) Apply(ctx context.Context, target string, failureType types.FailureType, magnitude injector.Magnitude) error {
	atomic.StoreInt32(b.degraded, 1)
	return nil
}

func (b *flakyBackend) Revert(ctx context.Context, target string, failureType types.FailureType) error {
	atomic.StoreInt32(b.degraded, 0)
	return nil
}

func healthyServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func gateDetailsFor(url string) types.GateDetails {
	return types.GateDetails{
		RunID:         "gate-test",
		TargetName:    "checkout-svc",
		TargetBaseURL: url,
	}
}

func loadTemplate() loadgen.RunSpec {
	return loadgen.RunSpec{
		Shape:           loadgen.ShapeSustained,
		EndpointWeights: map[string]int{"/orders": 1},
		RequestTimeout:  time.Second,
		GracePeriod:     200 * time.Millisecond,
	}
}

func errorRateProfile() types.SLOProfile {
	return types.SLOProfile{
		Name: "staging",
		Targets: []types.SLOTarget{
			{MetricName: types.MetricErrorRatePercent, Comparator: types.ComparatorLTE, Threshold: 5},
		},
	}
}

func twoStagePlan() types.RolloutPlan {
	return types.RolloutPlan{
		Name: "canary",
		Stages: []types.RolloutStage{
			{StageIndex: 0, TrafficPercent: 10, Concurrency: 4, DurationSeconds: 1},
			{StageIndex: 1, TrafficPercent: 50, Concurrency: 4, DurationSeconds: 1},
		},
		Profile: errorRateProfile(),
	}
}

func TestRunPromotesHealthyCandidate(t *testing.T) {
	server := healthyServer()
	defer server.Close()

	shifter := &countingShifter{}
	recorder := events.NewRecorder("gate-test")
	controller := NewController(gateDetailsFor(server.URL), injector.New(injector.NewSimulatedBackend(), nil), shifter, recorder, nil, loadTemplate())

	state, err := controller.Run(context.Background(), twoStagePlan())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != StatePromoted {
		t.Fatalf("expected Promoted, got %s", state)
	}

	history := controller.History()
	if len(history) != 2 {
		t.Fatalf("expected 2 stage records, got %d", len(history))
	}
	for i, record := range history {
		if record.Stage.StageIndex != i {
			t.Errorf("stages visited out of order: record %d carries stage %d", i, record.Stage.StageIndex)
		}
		if !record.Verdict.Passed {
			t.Errorf("expected stage %d to pass, got violations %+v", i, record.Verdict.Violations)
		}
	}
	if atomic.LoadInt32(&shifter.shifts) != 2 {
		t.Errorf("expected 2 traffic shifts, got %d", shifter.shifts)
	}
	if atomic.LoadInt32(&shifter.reverts) != 0 {
		t.Errorf("expected no reverts on promotion, got %d", shifter.reverts)
	}
}

func TestRunRollsBackFailingCandidate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	shifter := &countingShifter{}
	controller := NewController(gateDetailsFor(server.URL), injector.New(injector.NewSimulatedBackend(), nil), shifter, nil, nil, loadTemplate())

	state, err := controller.Run(context.Background(), twoStagePlan())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != StateRolledBack {
		t.Fatalf("expected RolledBack, got %s", state)
	}

	history := controller.History()
	if len(history) != 1 {
		t.Fatalf("expected no further stages after rollback, got %d records", len(history))
	}
	if atomic.LoadInt32(&shifter.reverts) != 1 {
		t.Errorf("expected exactly one traffic reversion, got %d", shifter.reverts)
	}
}

func TestRunChaosStageRollsBackOnInducedFailure(t *testing.T) {
	var degraded int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&degraded) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	scenarios := map[string]types.ScenarioSpec{
		"packet-loss-heavy": {
			Name:            "packet-loss-heavy",
			FailureType:     types.PacketLoss,
			Intensity:       types.IntensityHeavy,
			DurationSeconds: 2,
		},
	}

	plan := types.RolloutPlan{
		Name: "chaos-canary",
		Stages: []types.RolloutStage{
			{StageIndex: 0, TrafficPercent: 25, Concurrency: 4, DurationSeconds: 2, Scenario: "packet-loss-heavy"},
			{StageIndex: 1, TrafficPercent: 100, Concurrency: 4, DurationSeconds: 1},
		},
		Profile: errorRateProfile(),
	}

	shifter := &countingShifter{}
	inj := injector.New(&flakyBackend{degraded: &degraded}, nil)
	controller := NewController(gateDetailsFor(server.URL), inj, shifter, nil, scenarios, loadTemplate())

	state, err := controller.Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != StateRolledBack {
		t.Fatalf("expected RolledBack under induced failure, got %s", state)
	}

	history := controller.History()
	if len(history) != 1 {
		t.Fatalf("expected a single stage record, got %d", len(history))
	}
	record := history[0]
	if len(record.InjectionRuns) != 1 {
		t.Fatalf("expected one injection run, got %d", len(record.InjectionRuns))
	}
	if record.InjectionRuns[0].Status != types.InjectionCompleted {
		t.Errorf("expected completed injection, got %s", record.InjectionRuns[0].Status)
	}
	if got := record.Verdict.MetricValues[types.MetricErrorRatePercent]; got <= 5 {
		t.Errorf("expected elevated error rate, got %v", got)
	}
	if atomic.LoadInt32(&degraded) != 0 {
		t.Error("expected the induced fault to be reverted")
	}
}

func TestRunAbortSignal(t *testing.T) {
	server := healthyServer()
	defer server.Close()

	plan := types.RolloutPlan{
		Name: "canary",
		Stages: []types.RolloutStage{
			{StageIndex: 0, TrafficPercent: 10, Concurrency: 2, DurationSeconds: 10},
		},
		Profile: errorRateProfile(),
	}

	shifter := &countingShifter{}
	controller := NewController(gateDetailsFor(server.URL), injector.New(injector.NewSimulatedBackend(), nil), shifter, nil, nil, loadTemplate())

	go func() {
		time.Sleep(300 * time.Millisecond)
		controller.Abort("operator requested stop")
	}()

	begin := time.Now()
	state, err := controller.Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != StateAborted {
		t.Fatalf("expected Aborted, got %s", state)
	}
	if atomic.LoadInt32(&shifter.reverts) != 1 {
		t.Errorf("abort must revert traffic exactly once, got %d", shifter.reverts)
	}
	if elapsed := time.Since(begin); elapsed > 5*time.Second {
		t.Errorf("abort must interrupt the stage mid-flight, took %s", elapsed)
	}
}

func TestRunRejectsInvalidPlans(t *testing.T) {
	controller := NewController(gateDetailsFor("http://localhost:1"), injector.New(injector.NewSimulatedBackend(), nil), nil, nil, nil, loadTemplate())

	tests := []struct {
		name string
		plan types.RolloutPlan
	}{
		{"no stages", types.RolloutPlan{Name: "p", Profile: errorRateProfile()}},
		{"no slo targets", types.RolloutPlan{Name: "p", Stages: []types.RolloutStage{{TrafficPercent: 10, Concurrency: 1, DurationSeconds: 1}}}},
		{
			"non-increasing traffic",
			types.RolloutPlan{
				Name: "p",
				Stages: []types.RolloutStage{
					{TrafficPercent: 50, Concurrency: 1, DurationSeconds: 1},
					{TrafficPercent: 25, Concurrency: 1, DurationSeconds: 1},
				},
				Profile: errorRateProfile(),
			},
		},
		{
			"unknown scenario",
			types.RolloutPlan{
				Name: "p",
				Stages: []types.RolloutStage{
					{TrafficPercent: 10, Concurrency: 1, DurationSeconds: 1, Scenario: "missing"},
				},
				Profile: errorRateProfile(),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := controller.Run(context.Background(), tt.plan)
			var cerr cerrors.Error
			if !errors.As(err, &cerr) || cerr.ErrorCode != cerrors.ErrorTypeConfiguration {
				t.Errorf("expected CONFIGURATION_ERROR, got %v", err)
			}
		})
	}
}

func TestStateTerminal(t *testing.T) {
	terminals := []State{StatePromoted, StateRolledBack, StateAborted}
	for _, s := range terminals {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []State{StatePending, StateStageRunning, StateStageEvaluating} {
		if s.Terminal() {
			t.Errorf("expected %s to be non-terminal", s)
		}
	}
}

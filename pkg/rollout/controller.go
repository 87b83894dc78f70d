package rollout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kyokomi/emoji"
	"github.com/litmusops/resilience-gate/pkg/cerrors"
	"github.com/litmusops/resilience-gate/pkg/events"
	"github.com/litmusops/resilience-gate/pkg/injector"
	"github.com/litmusops/resilience-gate/pkg/loadgen"
	"github.com/litmusops/resilience-gate/pkg/log"
	"github.com/litmusops/resilience-gate/pkg/types"
	"github.com/litmusops/resilience-gate/pkg/validator"
	"github.com/sirupsen/logrus"
)

// StageRecord is one immutable entry of the rollout history
type StageRecord struct {
	Stage         types.RolloutStage
	Verdict       types.Verdict
	InjectionRuns []types.InjectionRun
	State         State
}

// Controller walks a rollout plan stage by stage: load, optional overlapped
// fault injection, validation, then promote/hold/rollback. Orchestration is
// strictly sequential; only the per-stage load run is internally parallel
type Controller struct {
	gateDetails types.GateDetails
	injector    *injector.Injector
	shifter     TrafficShifter
	recorder    *events.Recorder
	// scenarios resolves the chaos-stage scenario names of the plan
	scenarios map[string]types.ScenarioSpec
	// loadTemplate carries shape/weights/timeouts, stages override
	// concurrency and duration
	loadTemplate loadgen.RunSpec

	mu         sync.Mutex
	state      State
	history    []StageRecord
	abortCh    chan struct{}
	abortOnce  sync.Once
	revertOnce sync.Once
}

// NewController wires the collaborators of one gate run
func NewController(gateDetails types.GateDetails, inj *injector.Injector, shifter TrafficShifter, recorder *events.Recorder, scenarios map[string]types.ScenarioSpec, loadTemplate loadgen.RunSpec) *Controller {
	if shifter == nil {
		shifter = NoopShifter{}
	}
	return &Controller{
		gateDetails:  gateDetails,
		injector:     inj,
		shifter:      shifter,
		recorder:     recorder,
		scenarios:    scenarios,
		loadTemplate: loadTemplate,
		state:        StatePending,
		abortCh:      make(chan struct{}),
	}
}

// State returns the controller's current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// History returns a copy of the per-stage audit trail
func (c *Controller) History() []StageRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]StageRecord, len(c.history))
	copy(out, c.history)
	return out
}

// Abort is the operator/CI abort signal; it moves any non-terminal state to
// Aborted and triggers the same traffic reversion as a rollback
func (c *Controller) Abort(reason string) {
	c.abortOnce.Do(func() {
		log.Warnf("[Rollout]: Abort signal received: %v", reason)
		if c.recorder != nil {
			c.recorder.Record(events.ReasonAbort, reason, nil)
		}
		close(c.abortCh)
	})
}

func (c *Controller) setState(next State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Terminal() {
		return
	}
	previous := c.state
	c.state = next
	if c.recorder != nil {
		c.recorder.Record(events.ReasonStageTransition,
			fmt.Sprintf("rollout moved from %s to %s", previous, next), nil)
	}
}

// Run executes the plan to a terminal state. The returned state is Promoted
// only when every stage's verdict passed
func (c *Controller) Run(ctx context.Context, plan types.RolloutPlan) (State, error) {
	if err := validatePlan(plan, c.scenarios); err != nil {
		return c.State(), err
	}

	// stage work observes both the parent context and the abort signal
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.abortCh:
			cancel()
		case <-runCtx.Done():
		}
	}()

	log.InfoWithValues("[Rollout]: The rollout plan is as follows", logrus.Fields{
		"Plan":    plan.Name,
		"Stages":  len(plan.Stages),
		"Profile": plan.Profile.Name,
		"Target":  c.gateDetails.TargetName,
	})

	for i := range plan.Stages {
		stage := plan.Stages[i]

		if c.aborted(ctx) {
			return c.finish(ctx, StateAborted), nil
		}

		c.setState(StateStageRunning)
		log.InfoWithValues("[Stage]: Executing the rollout stage", logrus.Fields{
			"Stage":          stage.StageIndex,
			"TrafficPercent": stage.TrafficPercent,
			"Concurrency":    stage.Concurrency,
			"Duration":       stage.DurationSeconds,
			"Scenario":       stage.Scenario,
		})

		if err := c.shifter.Shift(runCtx, stage.TrafficPercent); err != nil {
			c.record(stage, types.Verdict{}, nil, StateRolledBack)
			return c.finish(ctx, StateRolledBack), cerrors.PreserveError(err, fmt.Sprintf("unable to shift traffic, err: %v", err))
		}

		samples, runs, loadErr := c.runStage(runCtx, stage)

		if c.aborted(ctx) {
			c.record(stage, types.Verdict{}, runs, StateAborted)
			return c.finish(ctx, StateAborted), nil
		}

		c.setState(StateStageEvaluating)
		verdict := validator.Validate(samples, runs, plan.Profile, validator.Options{})
		stage.Verdict = &verdict

		// a failed injection must not be mistaken for a passing stage
		if failedRun := firstFailedInjection(runs); failedRun != nil {
			verdict.Passed = false
			verdict.Violations = append(verdict.Violations, types.Violation{
				MetricName: "injection_status",
				Reason:     fmt.Sprintf("fault application failed for scenario %s: %s", failedRun.Scenario.Name, failedRun.AbortReason),
			})
		}

		if c.recorder != nil {
			c.recorder.Record(events.ReasonVerdict,
				fmt.Sprintf("stage %d verdict recorded", stage.StageIndex),
				map[string]interface{}{"Passed": verdict.Passed, "WindowID": verdict.WindowID})
		}

		if loadErr != nil {
			c.record(stage, verdict, runs, StateRolledBack)
			log.Errorf("[Stage]: Stage %v failed, err: %v", stage.StageIndex, loadErr)
			return c.finish(ctx, StateRolledBack), loadErr
		}

		if !verdict.Passed {
			c.record(stage, verdict, runs, StateRolledBack)
			logViolations(stage.StageIndex, verdict)
			return c.finish(ctx, StateRolledBack), nil
		}

		c.record(stage, verdict, runs, StateStageRunning)
	}

	return c.finish(ctx, StatePromoted), nil
}

// runStage runs the load generator, overlapping the designated chaos
// scenario when the stage declares one
func (c *Controller) runStage(ctx context.Context, stage types.RolloutStage) ([]types.RequestSample, []types.InjectionRun, error) {
	spec := c.loadTemplate
	spec.Concurrency = stage.Concurrency
	spec.Duration = time.Duration(stage.DurationSeconds) * time.Second

	var runs []types.InjectionRun
	var injectionWG sync.WaitGroup
	var injectionRun *types.InjectionRun

	if stage.Scenario != "" {
		scenario := c.scenarios[stage.Scenario]
		injectionWG.Add(1)
		go func() {
			defer injectionWG.Done()
			run, err := c.injector.Execute(ctx, c.gateDetails, scenario)
			if err != nil && run == nil {
				run = &types.InjectionRun{
					Scenario:    scenario,
					Status:      types.InjectionFailed,
					AbortReason: err.Error(),
				}
			}
			injectionRun = run
		}()
	}

	samples, _, err := loadgen.Run(ctx, c.gateDetails, spec)
	injectionWG.Wait()

	if injectionRun != nil {
		runs = append(runs, *injectionRun)
		if c.recorder != nil {
			c.recorder.Record(events.ReasonInjection,
				fmt.Sprintf("injection run %s finished with status %s", injectionRun.RunID, injectionRun.Status),
				map[string]interface{}{"Status": string(injectionRun.Status), "Reason": injectionRun.AbortReason})
		}
	}
	return samples, runs, err
}

// record appends one stage entry to the immutable history
func (c *Controller) record(stage types.RolloutStage, verdict types.Verdict, runs []types.InjectionRun, state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, StageRecord{
		Stage:         stage,
		Verdict:       verdict,
		InjectionRuns: runs,
		State:         state,
	})
}

// finish moves to the terminal state; RolledBack and Aborted both revert the
// traffic shift exactly once so nothing is left partially shifted
func (c *Controller) finish(ctx context.Context, terminal State) State {
	c.setState(terminal)
	if terminal == StateRolledBack || terminal == StateAborted {
		c.revertOnce.Do(func() {
			revertCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := c.shifter.Revert(revertCtx); err != nil {
				log.Errorf("[Rollout]: Unable to revert the traffic shift, err: %v", err)
			}
		})
	}
	return c.State()
}

func (c *Controller) aborted(ctx context.Context) bool {
	select {
	case <-c.abortCh:
		return true
	default:
	}
	return ctx.Err() != nil
}

// LogSummary prints the end-of-run verdict table
func (c *Controller) LogSummary() {
	state := c.State()
	log.Infof("[Summary]: The rollout terminal state is %v", state)
	for _, record := range c.History() {
		marker := emoji.Sprint(" :thumbsup:")
		if !record.Verdict.Passed {
			marker = emoji.Sprint(" :thumbsdown:")
		}
		log.InfoWithValues("[Summary]: Stage result"+marker, logrus.Fields{
			"Stage":          record.Stage.StageIndex,
			"TrafficPercent": record.Stage.TrafficPercent,
			"Passed":         record.Verdict.Passed,
			"Violations":     len(record.Verdict.Violations),
		})
	}
}

func logViolations(stageIndex int, verdict types.Verdict) {
	for _, violation := range verdict.Violations {
		log.ErrorWithValues("[Stage]: SLO violation", map[string]interface{}{
			"Stage":     stageIndex,
			"Metric":    violation.MetricName,
			"Observed":  violation.Observed,
			"Threshold": violation.Threshold,
			"Reason":    violation.Reason,
		})
	}
	log.Errorf("[Stage]: Stage %v did not meet the SLO profile, rolling back", stageIndex)
}

// firstFailedInjection returns the first run whose fault could not be applied
func firstFailedInjection(runs []types.InjectionRun) *types.InjectionRun {
	for i := range runs {
		if runs[i].Status == types.InjectionFailed {
			return &runs[i]
		}
	}
	return nil
}

// validatePlan enforces the structural invariants of the plan before any
// stage executes
func validatePlan(plan types.RolloutPlan, scenarios map[string]types.ScenarioSpec) error {
	if len(plan.Stages) == 0 {
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeConfiguration,
			Target:    plan.Name,
			Reason:    "rollout plan has no stages",
		}
	}
	if len(plan.Profile.Targets) == 0 {
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeConfiguration,
			Target:    plan.Name,
			Reason:    "rollout plan has no SLO targets",
		}
	}
	previous := 0
	for i, stage := range plan.Stages {
		if stage.TrafficPercent <= previous || stage.TrafficPercent > 100 {
			return cerrors.Error{
				ErrorCode: cerrors.ErrorTypeConfiguration,
				Target:    plan.Name,
				Reason:    fmt.Sprintf("stage %d traffic percent %d must be strictly increasing and <= 100", i, stage.TrafficPercent),
			}
		}
		previous = stage.TrafficPercent
		if stage.Concurrency < 1 {
			return cerrors.Error{
				ErrorCode: cerrors.ErrorTypeConfiguration,
				Target:    plan.Name,
				Reason:    fmt.Sprintf("stage %d concurrency must be >= 1", i),
			}
		}
		if stage.DurationSeconds <= 0 {
			return cerrors.Error{
				ErrorCode: cerrors.ErrorTypeConfiguration,
				Target:    plan.Name,
				Reason:    fmt.Sprintf("stage %d duration must be positive", i),
			}
		}
		if stage.Scenario != "" {
			if _, ok := scenarios[stage.Scenario]; !ok {
				return cerrors.Error{
					ErrorCode: cerrors.ErrorTypeConfiguration,
					Target:    plan.Name,
					Reason:    fmt.Sprintf("stage %d references unknown scenario '%s'", i, stage.Scenario),
				}
			}
		}
	}
	return nil
}

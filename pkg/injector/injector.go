package injector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/litmusops/resilience-gate/pkg/cerrors"
	"github.com/litmusops/resilience-gate/pkg/log"
	"github.com/litmusops/resilience-gate/pkg/probe"
	"github.com/litmusops/resilience-gate/pkg/types"
	"github.com/litmusops/resilience-gate/pkg/utils/stringutils"
	"github.com/sirupsen/logrus"
)

// Injector executes failure scenarios against target environments.
// Scenarios against different targets run in parallel, scenarios against the
// same target are serialized, and a cooldown window must elapse between two
// scenarios on the same target
type Injector struct {
	backend        Backend
	guardrailProbe *probe.HealthProbe

	mu      sync.Mutex
	targets map[string]*targetState
}

type targetState struct {
	lock         sync.Mutex
	lastFinished time.Time
}

// New builds an injector around the given fault backend; the guardrail probe
// is optional and enables the abort-threshold safety check
func New(backend Backend, guardrailProbe *probe.HealthProbe) *Injector {
	return &Injector{
		backend:        backend,
		guardrailProbe: guardrailProbe,
		targets:        make(map[string]*targetState),
	}
}

func (inj *Injector) targetState(target string) *targetState {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	state, ok := inj.targets[target]
	if !ok {
		state = &targetState{}
		inj.targets[target] = state
	}
	return state
}

// Execute runs one scenario to a terminal status. A guardrail abort cleans up
// locally and is not an error; a fault that could not be applied returns the
// run with status failed plus an injection-failure error, because a failed
// injection must never be mistaken for the system withstanding the fault
func (inj *Injector) Execute(ctx context.Context, gateDetails types.GateDetails, scenario types.ScenarioSpec) (*types.InjectionRun, error) {
	magnitude, err := ResolveMagnitude(scenario)
	if err != nil {
		return nil, err
	}
	if scenario.DurationSeconds <= 0 {
		return nil, cerrors.Error{
			ErrorCode: cerrors.ErrorTypeConfiguration,
			Target:    scenario.Name,
			Reason:    "scenario duration must be positive",
		}
	}

	state := inj.targetState(gateDetails.TargetName)
	state.lock.Lock()
	defer state.lock.Unlock()

	if err := inj.waitForCooldown(ctx, state, gateDetails); err != nil {
		return nil, err
	}

	run := &types.InjectionRun{RunID: scenario.Name + "-" + stringutils.GetRunID()}
	types.SetRunAttributes(run, scenario, gateDetails)
	defer func() { state.lastFinished = time.Now() }()

	log.InfoWithValues("[Inject]: The scenario information is as follows", logrus.Fields{
		"Scenario":  scenario.Name,
		"Type":      string(scenario.FailureType),
		"Intensity": string(scenario.Intensity),
		"Duration":  scenario.DurationSeconds,
		"Target":    gateDetails.TargetName,
		"DryRun":    gateDetails.DryRun,
	})

	//Waiting for the ramp time before fault injection
	if scenario.RampTimeSeconds > 0 {
		log.Infof("[Ramp]: Waiting for the %vs ramp time before injecting the fault", scenario.RampTimeSeconds)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(scenario.RampTimeSeconds) * time.Second):
		}
	}

	var transitionMu sync.Mutex
	transition(&transitionMu, run, types.InjectionRunning, "")
	run.StartTime = time.Now()

	if !gateDetails.DryRun {
		if err := inj.backend.Apply(ctx, gateDetails.TargetName, scenario.FailureType, magnitude); err != nil {
			reason := fmt.Sprintf("unable to apply the fault, err: %v", err)
			transition(&transitionMu, run, types.InjectionFailed, reason)
			log.Errorf("[Inject]: %v", reason)
			return run, cerrors.Error{
				ErrorCode: cerrors.ErrorTypeInjectionFailure,
				Phase:     types.ChaosInject,
				Target:    gateDetails.TargetName,
				Reason:    reason,
			}
		}
	} else {
		log.Info("[Inject]: Dry-run mode, skipping the actual fault application")
	}

	chaosCtx, stopChaos := context.WithCancel(ctx)
	defer stopChaos()

	var abort <-chan string
	if inj.guardrailProbe != nil {
		threshold := time.Duration(gateDetails.AbortThreshold) * time.Second
		if threshold <= 0 {
			threshold = 30 * time.Second
		}
		abort = watchGuardrail(chaosCtx, *inj.guardrailProbe, threshold)
	}

	log.Infof("[Chaos]: Injecting %v fault for %vs", scenario.FailureType, scenario.DurationSeconds)

	var runErr error
	select {
	case <-time.After(time.Duration(scenario.DurationSeconds) * time.Second):
		transition(&transitionMu, run, types.InjectionCompleted, "")
	case reason, ok := <-abort:
		if ok {
			log.Errorf("[Guardrail]: %v", reason)
			transition(&transitionMu, run, types.InjectionAborted, reason)
		} else {
			transition(&transitionMu, run, types.InjectionAborted, "guardrail monitor stopped")
		}
	case <-ctx.Done():
		transition(&transitionMu, run, types.InjectionAborted, "abort signal received")
		runErr = ctx.Err()
	}
	stopChaos()

	// cleanup must run even on abort, with a context of its own
	if !gateDetails.DryRun {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		log.Info("[Cleanup]: Reverting the induced fault")
		if err := inj.backend.Revert(cleanupCtx, gateDetails.TargetName, scenario.FailureType); err != nil {
			reason := fmt.Sprintf("unable to revert the fault, err: %v", err)
			log.Errorf("[Cleanup]: %v", reason)
			if run.Status == types.InjectionCompleted {
				run.Status = types.InjectionFailed
				run.AbortReason = reason
			}
			if runErr == nil {
				runErr = cerrors.Error{
					ErrorCode: cerrors.ErrorTypeInjectionFailure,
					Phase:     types.ChaosInject,
					Target:    gateDetails.TargetName,
					Reason:    reason,
				}
			}
		}
	}

	log.InfoWithValues("[Chaos]: The injection run has reached a terminal status", logrus.Fields{
		"RunID":  run.RunID,
		"Status": string(run.Status),
		"Reason": run.AbortReason,
	})
	return run, runErr
}

// waitForCooldown blocks until the per-target cooldown window has elapsed
func (inj *Injector) waitForCooldown(ctx context.Context, state *targetState, gateDetails types.GateDetails) error {
	if gateDetails.CooldownSeconds <= 0 || state.lastFinished.IsZero() {
		return nil
	}
	cooldown := time.Duration(gateDetails.CooldownSeconds) * time.Second
	remaining := cooldown - time.Since(state.lastFinished)
	if remaining <= 0 {
		return nil
	}
	log.Infof("[Wait]: Waiting %v for the cooldown window on target %v", remaining.Round(time.Second), gateDetails.TargetName)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(remaining):
		return nil
	}
}

// transition moves the run to the given status under the lock; the first
// terminal transition wins and later attempts are no-ops
func transition(mu *sync.Mutex, run *types.InjectionRun, status types.InjectionStatus, reason string) bool {
	mu.Lock()
	defer mu.Unlock()
	if run.Terminal() {
		return false
	}
	run.Status = status
	if status == types.InjectionAborted || status == types.InjectionFailed {
		run.AbortReason = reason
	}
	if run.Terminal() {
		run.EndTime = time.Now()
	}
	return true
}

package experiment

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/litmusops/resilience-gate/pkg/cerrors"
	"github.com/litmusops/resilience-gate/pkg/environment"
	"github.com/litmusops/resilience-gate/pkg/events"
	"github.com/litmusops/resilience-gate/pkg/gateconfig"
	"github.com/litmusops/resilience-gate/pkg/injector"
	"github.com/litmusops/resilience-gate/pkg/loadgen"
	"github.com/litmusops/resilience-gate/pkg/log"
	"github.com/litmusops/resilience-gate/pkg/probe"
	"github.com/litmusops/resilience-gate/pkg/publisher"
	"github.com/litmusops/resilience-gate/pkg/rollout"
	"github.com/litmusops/resilience-gate/pkg/telemetry"
	"github.com/litmusops/resilience-gate/pkg/types"
	"github.com/litmusops/resilience-gate/pkg/utils/stringutils"
	"github.com/litmusops/resilience-gate/pkg/validator"
	"github.com/sirupsen/logrus"
)

// PushJobName is the push-gateway job the gate publishes under
const PushJobName = "resilience-gate"

// Options carries the CLI overrides for one gate invocation; anything left
// empty falls back to the environment and then to the config document
type Options struct {
	ConfigPath    string
	PlanName      string
	TargetName    string
	TargetBaseURL string
	Environment   string
	PushGateway   string
	OutPath       string
	DryRun        bool
	// Scenarios selects standalone runs by name; empty selects all
	Scenarios []string
	// Concurrency drives the standalone suite's load runs
	Concurrency int
}

// GateRun executes the full rollout gate and returns its terminal state.
// The caller owns the exit-code contract: only Promoted maps to success
func GateRun(ctx context.Context, opts Options) (rollout.State, error) {
	gateDetails, config, err := prepare(opts)
	if err != nil {
		return rollout.StatePending, err
	}

	planName := opts.PlanName
	if planName == "" && len(config.Plans) > 0 {
		planName = config.Plans[0].Name
	}
	plan, err := config.PlanFor(planName, gateDetails.Environment)
	if err != nil {
		return rollout.StatePending, err
	}

	log.InfoWithValues("[PreReq]: The gate run details are as follows", logrus.Fields{
		"Run ID":      gateDetails.RunID,
		"Target":      gateDetails.TargetName,
		"Environment": gateDetails.Environment,
		"Plan":        plan.Name,
		"Dry Run":     gateDetails.DryRun,
	})

	guardrail := buildGuardrailProbe(gateDetails)
	if guardrail != nil {
		log.Info("[Status]: Verify that the target is healthy (pre-run)")
		if err := guardrail.Trigger(ctx); err != nil {
			return rollout.StatePending, cerrors.Error{
				ErrorCode: cerrors.ErrorTypeTargetUnreachable,
				Phase:     types.PreStageCheck,
				Target:    gateDetails.TargetName,
				Reason:    fmt.Sprintf("pre-run health check failed, %s", err.Error()),
			}
		}
	}

	recorder := events.NewRecorder(gateDetails.RunID)
	pub := publisher.New(gateDetails)
	controller := rollout.NewController(gateDetails, buildInjector(gateDetails, guardrail), nil, recorder, config.ScenarioMap(), config.LoadSpec())

	stop := watchAbortSignals(func(sig os.Signal) {
		controller.Abort(fmt.Sprintf("received the %v signal", sig))
	})
	defer stop()

	ctx, span := telemetry.StartTracing(ctx, "GateRun")
	defer span.End()

	state, runErr := controller.Run(ctx, plan)

	for _, record := range controller.History() {
		pub.PublishStage(record.Stage, record.Verdict, record.InjectionRuns, plan.Profile)
	}
	controller.LogSummary()

	if guardrail != nil && state == rollout.StatePromoted {
		log.Info("[Status]: Verify that the target is healthy (post-run)")
		if err := guardrail.Trigger(ctx); err != nil {
			log.Warnf("[Status]: Post-run health check failed, err: %v", err)
		}
	}

	if err := deliver(ctx, pub, opts); err != nil {
		log.Errorf("[Publisher]: Unable to deliver the gate results, err: %v", err)
	}
	return state, runErr
}

// ScenarioRun executes the selected scenarios one after another outside any
// rollout plan, overlapping each with a load run against the target. It
// reports whether every verdict passed
func ScenarioRun(ctx context.Context, opts Options) (bool, error) {
	gateDetails, config, err := prepare(opts)
	if err != nil {
		return false, err
	}

	scenarios, err := selectScenarios(config, opts.Scenarios)
	if err != nil {
		return false, err
	}
	profile := config.ProfileFor(gateDetails.Environment)

	guardrail := buildGuardrailProbe(gateDetails)
	inj := buildInjector(gateDetails, guardrail)
	pub := publisher.New(gateDetails)

	spec := config.LoadSpec()
	spec.Concurrency = opts.Concurrency
	if spec.Concurrency < 1 {
		spec.Concurrency = 5
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := watchAbortSignals(func(sig os.Signal) {
		log.Warnf("[Suite]: Received the %v signal, aborting the scenario suite", sig)
		cancel()
	})
	defer stop()

	allPassed := true
	for _, scenario := range scenarios {
		if runCtx.Err() != nil {
			return false, runCtx.Err()
		}

		log.InfoWithValues("[Suite]: Executing the scenario", logrus.Fields{
			"Scenario":  scenario.Name,
			"Type":      scenario.FailureType,
			"Intensity": scenario.Intensity,
			"Duration":  scenario.DurationSeconds,
		})

		scenarioCtx, span := telemetry.StartTracing(runCtx, "ScenarioRun/"+scenario.Name)
		run, verdict, err := executeScenario(scenarioCtx, gateDetails, inj, spec, scenario, profile)
		span.End()
		if err != nil {
			return false, err
		}

		pub.PublishScenarioRun(run, verdict, profile)
		if !verdict.Passed {
			allPassed = false
		}
	}

	if err := deliver(ctx, pub, opts); err != nil {
		log.Errorf("[Publisher]: Unable to deliver the suite results, err: %v", err)
	}
	return allPassed, nil
}

// executeScenario overlaps one injection with a load run sized to the
// scenario's duration and scores the window against the profile
func executeScenario(ctx context.Context, gateDetails types.GateDetails, inj *injector.Injector, spec loadgen.RunSpec, scenario types.ScenarioSpec, profile types.SLOProfile) (types.InjectionRun, types.Verdict, error) {
	spec.Duration = time.Duration(scenario.DurationSeconds+scenario.RampTimeSeconds) * time.Second

	var wg sync.WaitGroup
	var run *types.InjectionRun
	var injErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		run, injErr = inj.Execute(ctx, gateDetails, scenario)
	}()

	samples, _, loadErr := loadgen.Run(ctx, gateDetails, spec)
	wg.Wait()

	if injErr != nil && run == nil {
		return types.InjectionRun{}, types.Verdict{}, injErr
	}
	if loadErr != nil && ctx.Err() == nil {
		log.Errorf("[Suite]: Load run failed for scenario %v, err: %v", scenario.Name, loadErr)
	}

	var runs []types.InjectionRun
	if run != nil {
		runs = append(runs, *run)
	}
	// standalone windows are not replayed, so each run gets a fresh id
	verdict := validator.Validate(samples, runs, profile, validator.Options{WindowID: stringutils.GetWindowID()})
	if run != nil && run.Status == types.InjectionFailed {
		verdict.Passed = false
		verdict.Violations = append(verdict.Violations, types.Violation{
			MetricName: "injection_status",
			Reason:     fmt.Sprintf("fault application failed for scenario %s: %s", scenario.Name, run.AbortReason),
		})
	}

	var out types.InjectionRun
	if run != nil {
		out = *run
	}
	return out, verdict, nil
}

// prepare merges environment tunables, CLI overrides and the config document
// into one explicit run context
func prepare(opts Options) (types.GateDetails, *gateconfig.Config, error) {
	gateDetails := types.GateDetails{}
	environment.GetENV(&gateDetails)

	if opts.TargetName != "" {
		gateDetails.TargetName = opts.TargetName
	}
	if opts.TargetBaseURL != "" {
		gateDetails.TargetBaseURL = opts.TargetBaseURL
	}
	if opts.Environment != "" {
		gateDetails.Environment = opts.Environment
	}
	if opts.DryRun {
		gateDetails.DryRun = true
	}

	config, err := gateconfig.Load(opts.ConfigPath)
	if err != nil {
		return gateDetails, nil, err
	}
	if gateDetails.TargetName == "" {
		gateDetails.TargetName = config.Target.Name
	}
	if gateDetails.TargetBaseURL == "" {
		gateDetails.TargetBaseURL = config.Target.BaseURL
	}
	if gateDetails.TargetBaseURL == "" {
		return gateDetails, nil, cerrors.Error{
			ErrorCode: cerrors.ErrorTypeConfiguration,
			Reason:    "target base url is not set via flag, env or config",
		}
	}
	return gateDetails, config, nil
}

// buildInjector wires the fault backend: shell hooks when the deployment
// layer provides them, the in-memory backend for dry runs and bare setups
func buildInjector(gateDetails types.GateDetails, guardrail *probe.HealthProbe) *injector.Injector {
	applyHook := environment.Getenv("FAULT_APPLY_HOOK", "")
	revertHook := environment.Getenv("FAULT_REVERT_HOOK", "")
	if gateDetails.DryRun || applyHook == "" || revertHook == "" {
		return injector.New(injector.NewSimulatedBackend(), guardrail)
	}

	applyCommands := map[types.FailureType]string{}
	revertCommands := map[types.FailureType]string{}
	for _, failureType := range []types.FailureType{
		types.CPUExhaustion, types.MemoryLeak, types.NetworkDelay, types.PacketLoss,
		types.ContainerCrash, types.DatabaseFailure, types.DiskStress,
	} {
		applyCommands[failureType] = applyHook
		revertCommands[failureType] = revertHook
	}
	return injector.New(&injector.CommandBackend{
		ApplyCommands:  applyCommands,
		RevertCommands: revertCommands,
	}, guardrail)
}

// buildGuardrailProbe builds the continuous health probe backing both the
// edge checks and the injector's abort guardrail; nil when not configured
func buildGuardrailProbe(gateDetails types.GateDetails) *probe.HealthProbe {
	url := environment.Getenv("GUARDRAIL_PROBE_URL", "")
	if url == "" {
		return nil
	}
	return &probe.HealthProbe{
		Name:         "guardrail",
		URL:          url,
		ResponseCode: "200",
		Criteria:     "==",
		RunProperties: probe.RunProperties{
			Retry:           3,
			Interval:        time.Duration(gateDetails.Delay) * time.Second,
			ResponseTimeout: 5 * time.Second,
			PollingInterval: time.Second,
		},
	}
}

func selectScenarios(config *gateconfig.Config, names []string) ([]types.ScenarioSpec, error) {
	catalogue := config.ScenarioMap()
	if len(names) == 0 {
		out := make([]types.ScenarioSpec, 0, len(config.Scenarios))
		for _, scenario := range config.Scenarios {
			out = append(out, catalogue[scenario.Name])
		}
		if len(out) == 0 {
			return nil, cerrors.Error{
				ErrorCode: cerrors.ErrorTypeConfiguration,
				Reason:    "the config document declares no scenarios",
			}
		}
		return out, nil
	}

	out := make([]types.ScenarioSpec, 0, len(names))
	for _, name := range names {
		scenario, ok := catalogue[name]
		if !ok {
			return nil, cerrors.Error{
				ErrorCode: cerrors.ErrorTypeConfiguration,
				Target:    name,
				Reason:    "scenario not found in the config document",
			}
		}
		out = append(out, scenario)
	}
	return out, nil
}

// watchAbortSignals invokes the handler on the first SIGINT/SIGTERM
func watchAbortSignals(handle func(os.Signal)) (stop func()) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-signals:
			handle(sig)
		case <-done:
		}
	}()
	return func() {
		signal.Stop(signals)
		close(done)
	}
}

func deliver(ctx context.Context, pub *publisher.Publisher, opts Options) error {
	if opts.PushGateway != "" {
		if err := pub.PushToGateway(ctx, opts.PushGateway, PushJobName); err != nil {
			return err
		}
	}
	if opts.OutPath != "" {
		if err := pub.WriteNDJSONFile(opts.OutPath); err != nil {
			return err
		}
	}
	return nil
}

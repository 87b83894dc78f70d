package injector

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"sync"

	"github.com/litmusops/resilience-gate/pkg/cerrors"
	"github.com/litmusops/resilience-gate/pkg/log"
	"github.com/litmusops/resilience-gate/pkg/telemetry"
	"github.com/litmusops/resilience-gate/pkg/types"
	"go.opentelemetry.io/otel/trace"
)

// Backend applies and reverses one fault primitive against the target
// environment. Real deployments back this with OS tooling or container
// runtime hooks; tests and dry-run setups use the simulated backend
type Backend interface {
	Apply(ctx context.Context, target string, failureType types.FailureType, magnitude Magnitude) error
	Revert(ctx context.Context, target string, failureType types.FailureType) error
}

// SimulatedBackend keeps the induced faults in memory only. It backs unit
// tests and environments where no infrastructure hook is wired
type SimulatedBackend struct {
	mu       sync.Mutex
	active   map[string]types.FailureType
	ApplyErr error
}

// NewSimulatedBackend returns a backend with no active faults
func NewSimulatedBackend() *SimulatedBackend {
	return &SimulatedBackend{active: make(map[string]types.FailureType)}
}

func (b *SimulatedBackend) Apply(ctx context.Context, target string, failureType types.FailureType, magnitude Magnitude) error {
	if b.ApplyErr != nil {
		return b.ApplyErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active[target] = failureType
	return nil
}

func (b *SimulatedBackend) Revert(ctx context.Context, target string, failureType types.FailureType) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.active, target)
	return nil
}

// ActiveFault reports the fault currently induced on the target, if any
func (b *SimulatedBackend) ActiveFault(target string) (types.FailureType, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	failureType, ok := b.active[target]
	return failureType, ok
}

// CommandBackend shells out to per-failure-type hook commands supplied by the
// deployment layer, passing the magnitude through the environment the same
// way the stress helpers pass their tunables
type CommandBackend struct {
	// ApplyCommands and RevertCommands map failure type -> shell command
	ApplyCommands  map[types.FailureType]string
	RevertCommands map[types.FailureType]string
}

func (b *CommandBackend) Apply(ctx context.Context, target string, failureType types.FailureType, magnitude Magnitude) error {
	command, ok := b.ApplyCommands[failureType]
	if !ok {
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeInjectionFailure,
			Target:    target,
			Reason:    fmt.Sprintf("no apply hook configured for failure type '%s'", failureType),
		}
	}
	return b.run(ctx, command, target, failureType, magnitude)
}

func (b *CommandBackend) Revert(ctx context.Context, target string, failureType types.FailureType) error {
	command, ok := b.RevertCommands[failureType]
	if !ok {
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeInjectionFailure,
			Target:    target,
			Reason:    fmt.Sprintf("no revert hook configured for failure type '%s'", failureType),
		}
	}
	return b.run(ctx, command, target, failureType, Magnitude{})
}

func (b *CommandBackend) run(ctx context.Context, command, target string, failureType types.FailureType, magnitude Magnitude) error {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Env = append(cmd.Environ(),
		"FAULT_TARGET="+target,
		"FAULT_TYPE="+string(failureType),
		"FAULT_DELAY_MS="+strconv.Itoa(magnitude.DelayMs),
		"FAULT_LOSS_PERCENT="+strconv.Itoa(magnitude.LossPercent),
		"FAULT_CORES="+strconv.Itoa(magnitude.Cores),
		"FAULT_MEMORY_MB="+strconv.Itoa(magnitude.MemoryMB),
		"FAULT_WORKERS="+strconv.Itoa(magnitude.Workers),
		"FAULT_FILL_PERCENT="+strconv.Itoa(magnitude.FillPercent),
		"FAULT_CRASH_SIGNAL="+magnitude.CrashSignal,
	)
	// hook commands join the injection span the same way the runner joins
	// the pipeline trace
	if trace.SpanContextFromContext(ctx).IsValid() {
		if carrier := telemetry.GetMarshalledSpanFromContext(ctx); carrier != "" {
			cmd.Env = append(cmd.Env, telemetry.TraceParent+"="+carrier)
		}
	}

	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeInjectionFailure,
			Target:    target,
			Reason:    fmt.Sprintf("hook command failed, err: %v; error output: %v", err, errOut.String()),
		}
	}
	if out.Len() > 0 {
		log.Infof("[Inject]: Hook output: %v", out.String())
	}
	return nil
}

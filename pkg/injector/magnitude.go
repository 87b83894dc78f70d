package injector

import (
	"fmt"
	"runtime"
	"strconv"

	"github.com/litmusops/resilience-gate/pkg/cerrors"
	"github.com/litmusops/resilience-gate/pkg/math"
	"github.com/litmusops/resilience-gate/pkg/types"
)

// Magnitude is the resolved strength of one scenario; which fields are
// meaningful depends on the failure type
type Magnitude struct {
	DelayMs     int
	LossPercent int
	Cores       int
	MemoryMB    int
	Workers     int
	FillPercent int
	CrashSignal string
}

// allButOneCores marks a core count resolved to NumCPU-1 at execution time
const allButOneCores = -1

// magnitudeTable is the fixed per-failure-type intensity mapping; scenario
// parameters may override individual fields
var magnitudeTable = map[types.FailureType]map[types.Intensity]Magnitude{
	types.CPUExhaustion: {
		types.IntensityLight:  {Cores: 1, Workers: 1},
		types.IntensityMedium: {Cores: 2, Workers: 2},
		types.IntensityHeavy:  {Cores: allButOneCores, Workers: 4},
	},
	types.MemoryLeak: {
		types.IntensityLight:  {MemoryMB: 256, Workers: 1},
		types.IntensityMedium: {MemoryMB: 1024, Workers: 1},
		types.IntensityHeavy:  {MemoryMB: 4096, Workers: 2},
	},
	types.NetworkDelay: {
		types.IntensityLight:  {DelayMs: 100},
		types.IntensityMedium: {DelayMs: 500},
		types.IntensityHeavy:  {DelayMs: 2000},
	},
	types.PacketLoss: {
		types.IntensityLight:  {LossPercent: 5},
		types.IntensityMedium: {LossPercent: 20},
		types.IntensityHeavy:  {LossPercent: 50},
	},
	types.ContainerCrash: {
		types.IntensityLight:  {CrashSignal: "SIGTERM"},
		types.IntensityMedium: {CrashSignal: "SIGKILL"},
		types.IntensityHeavy:  {CrashSignal: "SIGKILL", Workers: 2},
	},
	types.DatabaseFailure: {
		types.IntensityLight:  {DelayMs: 500},
		types.IntensityMedium: {DelayMs: 2000},
		types.IntensityHeavy:  {LossPercent: 100},
	},
	types.DiskStress: {
		types.IntensityLight:  {FillPercent: 40, Workers: 1},
		types.IntensityMedium: {FillPercent: 70, Workers: 2},
		types.IntensityHeavy:  {FillPercent: 90, Workers: 4},
	},
}

// ResolveMagnitude maps the scenario's intensity through the magnitude table
// and applies any parameter overrides
func ResolveMagnitude(scenario types.ScenarioSpec) (Magnitude, error) {
	intensities, ok := magnitudeTable[scenario.FailureType]
	if !ok {
		return Magnitude{}, cerrors.Error{
			ErrorCode: cerrors.ErrorTypeConfiguration,
			Target:    scenario.Name,
			Reason:    fmt.Sprintf("unknown failure type '%s'", scenario.FailureType),
		}
	}
	magnitude, ok := intensities[scenario.Intensity]
	if !ok {
		return Magnitude{}, cerrors.Error{
			ErrorCode: cerrors.ErrorTypeConfiguration,
			Target:    scenario.Name,
			Reason:    fmt.Sprintf("unknown intensity '%s'", scenario.Intensity),
		}
	}

	if magnitude.Cores == allButOneCores {
		magnitude.Cores = math.Maximum(1, runtime.NumCPU()-1)
	}

	for key, value := range scenario.Parameters {
		if err := overrideField(&magnitude, key, value); err != nil {
			return Magnitude{}, cerrors.Error{
				ErrorCode: cerrors.ErrorTypeConfiguration,
				Target:    scenario.Name,
				Reason:    err.Error(),
			}
		}
	}
	return magnitude, nil
}

func overrideField(magnitude *Magnitude, key, value string) error {
	if key == "crash_signal" {
		magnitude.CrashSignal = value
		return nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parameter '%s' must be an integer, got '%s'", key, value)
	}
	switch key {
	case "delay_ms":
		magnitude.DelayMs = parsed
	case "loss_percent":
		magnitude.LossPercent = parsed
	case "cores":
		magnitude.Cores = parsed
	case "memory_mb":
		magnitude.MemoryMB = parsed
	case "workers":
		magnitude.Workers = parsed
	case "fill_percent":
		magnitude.FillPercent = parsed
	default:
		return fmt.Errorf("parameter '%s' is not supported", key)
	}
	return nil
}

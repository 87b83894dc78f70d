package loadgen

import (
	"time"

	"github.com/litmusops/resilience-gate/pkg/math"
)

// allowedWorkers computes how many workers may issue requests at the given
// elapsed offset into the run, per the configured traffic shape
func (spec RunSpec) allowedWorkers(elapsed time.Duration) int {
	switch spec.Shape {
	case ShapeRampUp:
		floor := math.Maximum(1, spec.RampFloor)
		fraction := spec.RampFraction
		if fraction <= 0 || fraction > 1 {
			fraction = 1
		}
		rampWindow := time.Duration(float64(spec.Duration) * fraction)
		if elapsed >= rampWindow {
			return spec.Concurrency
		}
		grown := floor + int(float64(spec.Concurrency-floor)*float64(elapsed)/float64(rampWindow))
		return math.Minimum(spec.Concurrency, math.Maximum(floor, grown))
	case ShapeBurst:
		baseline := math.Maximum(1, spec.RampFloor)
		interval := spec.BurstInterval
		if interval <= 0 {
			interval = 10 * time.Second
		}
		spike := spec.BurstDuration
		if spike <= 0 || spike >= interval {
			spike = interval / 5
		}
		if elapsed%interval < spike {
			return spec.Concurrency
		}
		return math.Minimum(spec.Concurrency, baseline)
	default:
		return spec.Concurrency
	}
}

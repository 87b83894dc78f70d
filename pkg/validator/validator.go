package validator

import (
	"fmt"
	"time"

	"github.com/litmusops/resilience-gate/pkg/cerrors"
	"github.com/litmusops/resilience-gate/pkg/log"
	cmp "github.com/litmusops/resilience-gate/pkg/probe/comparator"
	"github.com/litmusops/resilience-gate/pkg/types"
	"github.com/sirupsen/logrus"
)

// Options tunes one validation pass
type Options struct {
	// WindowID stamps the verdict; derived from the sample set when empty so
	// that repeated validation of the same window stays identical
	WindowID string
	// BaselineSamples optionally replaces the default first-fifth baseline
	BaselineSamples []types.RequestSample
	// HealthyThreshold is the rolling error rate (percent) under which the
	// target counts as recovered; defaults to the profile's error-rate target
	HealthyThreshold float64
	// RollingWindow sizes the recovery-scan buckets, default 5s
	RollingWindow time.Duration
}

// Validate scores one measurement window against the SLO profile and emits
// the verdict. Zero samples fail closed with a dedicated violation: the
// validator never claims compliance on empty data
func Validate(samples []types.RequestSample, runs []types.InjectionRun, profile types.SLOProfile, opts Options) types.Verdict {
	verdict := types.Verdict{
		WindowID:     windowID(opts.WindowID, samples),
		MetricValues: map[string]float64{},
	}

	if len(samples) == 0 {
		verdict.Violations = append(verdict.Violations, types.Violation{
			MetricName: types.MetricAvailabilityPercent,
			Reason:     "insufficient data: zero samples in the measurement window",
		})
		verdict.Passed = false
		log.Error("[Validate]: No samples in the measurement window, failing closed")
		return verdict
	}

	errorRate := errorRatePercent(samples)
	verdict.MetricValues[types.MetricErrorRatePercent] = errorRate
	verdict.MetricValues[types.MetricAvailabilityPercent] = 100 - errorRate

	if degradation, ok := latencyDegradationMs(samples, opts.BaselineSamples, runs); ok {
		verdict.MetricValues[types.MetricLatencyDegradation] = degradation
	}

	healthyThreshold := opts.HealthyThreshold
	if healthyThreshold <= 0 {
		if target, ok := profile.Target(types.MetricErrorRatePercent); ok {
			healthyThreshold = target.Threshold
		} else {
			healthyThreshold = 5
		}
	}
	window := opts.RollingWindow
	if window <= 0 {
		window = 5 * time.Second
	}
	if mttr, recovery, ok := recoveryMetrics(samples, runs, window, healthyThreshold); ok {
		verdict.MetricValues[types.MetricMTTRSeconds] = mttr
		verdict.MetricValues[types.MetricRecoveryTimeSeconds] = recovery
	}

	for _, target := range profile.Targets {
		observed, computed := verdict.MetricValues[target.MetricName]
		if !computed {
			// fails closed per metric: a target we cannot score is a violation
			verdict.Violations = append(verdict.Violations, types.Violation{
				MetricName: target.MetricName,
				Threshold:  target.Threshold,
				Comparator: target.Comparator,
				Reason:     fmt.Sprintf("insufficient data to compute %s", target.MetricName),
			})
			continue
		}

		err := cmp.FirstValue(observed).
			SecondValue(target.Threshold).
			Criteria(string(target.Comparator)).
			MetricName(target.MetricName).
			CompareFloat(cerrors.ErrorTypeSLOViolation)
		if err != nil {
			verdict.Violations = append(verdict.Violations, types.Violation{
				MetricName: target.MetricName,
				Observed:   observed,
				Threshold:  target.Threshold,
				Comparator: target.Comparator,
				Reason:     err.Error(),
			})
		}
	}

	verdict.Passed = len(verdict.Violations) == 0

	log.InfoWithValues("[Validate]: The verdict for the measurement window is as follows", logrus.Fields{
		"WindowID":   verdict.WindowID,
		"Samples":    len(samples),
		"Passed":     verdict.Passed,
		"Violations": len(verdict.Violations),
	})
	return verdict
}

// windowID keeps the verdict id stable for a given immutable sample set
func windowID(explicit string, samples []types.RequestSample) string {
	if explicit != "" {
		return explicit
	}
	if len(samples) == 0 {
		return "window-empty"
	}
	first := samples[0].Timestamp.UnixNano()
	last := samples[len(samples)-1].Timestamp.UnixNano()
	return fmt.Sprintf("window-%x-%x-%d", first, last, len(samples))
}

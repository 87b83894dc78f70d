package validator

import (
	"time"

	"github.com/montanaflynn/stats"

	"github.com/litmusops/resilience-gate/pkg/math"
	"github.com/litmusops/resilience-gate/pkg/types"
)

// errorRatePercent computes the share of error and timeout samples
func errorRatePercent(samples []types.RequestSample) float64 {
	if len(samples) == 0 {
		return 0
	}
	failed := 0
	for _, sample := range samples {
		if sample.Outcome != types.OutcomeSuccess {
			failed++
		}
	}
	return float64(failed) / float64(len(samples)) * 100
}

// p95Latency computes the 95th percentile latency of the given samples
func p95Latency(samples []types.RequestSample) (float64, bool) {
	if len(samples) == 0 {
		return 0, false
	}
	latencies := make(stats.Float64Data, 0, len(samples))
	for _, sample := range samples {
		latencies = append(latencies, sample.LatencyMs)
	}
	p95, err := stats.Percentile(latencies, 95)
	if err != nil {
		return 0, false
	}
	return p95, true
}

// samplesWithin filters samples falling inside any of the injection windows
func samplesWithin(samples []types.RequestSample, runs []types.InjectionRun) []types.RequestSample {
	var inside []types.RequestSample
	for _, sample := range samples {
		for _, run := range runs {
			if run.StartTime.IsZero() || run.EndTime.IsZero() {
				continue
			}
			if !sample.Timestamp.Before(run.StartTime) && !sample.Timestamp.After(run.EndTime) {
				inside = append(inside, sample)
				break
			}
		}
	}
	return inside
}

// latencyDegradationMs computes P95 during the injection windows minus the
// baseline P95. The baseline defaults to the first fifth of the sample set
// when no separate baseline is supplied
func latencyDegradationMs(samples, baseline []types.RequestSample, runs []types.InjectionRun) (float64, bool) {
	if len(baseline) == 0 {
		cut := math.Adjustment(20, len(samples))
		if cut == 0 {
			return 0, false
		}
		baseline = samples[:cut]
	}
	baselineP95, ok := p95Latency(baseline)
	if !ok {
		return 0, false
	}
	injectedP95, ok := p95Latency(samplesWithin(samples, runs))
	if !ok {
		return 0, false
	}
	return injectedP95 - baselineP95, true
}

// healthyCrossing walks fixed-size rolling windows and returns the start of
// the first window at/after the given moment whose error rate is below the
// healthy threshold
func healthyCrossing(samples []types.RequestSample, after time.Time, window time.Duration, healthyThreshold float64) (time.Time, bool) {
	if len(samples) == 0 || window <= 0 {
		return time.Time{}, false
	}

	end := samples[len(samples)-1].Timestamp
	for start := after; !start.After(end); start = start.Add(window) {
		var bucket []types.RequestSample
		stop := start.Add(window)
		for _, sample := range samples {
			if !sample.Timestamp.Before(start) && sample.Timestamp.Before(stop) {
				bucket = append(bucket, sample)
			}
		}
		if len(bucket) == 0 {
			continue
		}
		if errorRatePercent(bucket) < healthyThreshold {
			return start, true
		}
	}
	return time.Time{}, false
}

// mttrSeconds measures from injection start to the first healthy window,
// recoverySeconds from injection end to that same crossing; both report the
// worst value across the supplied runs
func recoveryMetrics(samples []types.RequestSample, runs []types.InjectionRun, window time.Duration, healthyThreshold float64) (mttr float64, recovery float64, ok bool) {
	found := false
	for _, run := range runs {
		if run.StartTime.IsZero() || run.EndTime.IsZero() {
			continue
		}
		crossing, crossed := healthyCrossing(samples, run.StartTime, window, healthyThreshold)
		if !crossed {
			return 0, 0, false
		}
		found = true
		runMTTR := crossing.Sub(run.StartTime).Seconds()
		runRecovery := crossing.Sub(run.EndTime).Seconds()
		if runRecovery < 0 {
			runRecovery = 0
		}
		if runMTTR > mttr {
			mttr = runMTTR
		}
		if runRecovery > recovery {
			recovery = runRecovery
		}
	}
	return mttr, recovery, found
}

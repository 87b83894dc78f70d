package types

import (
	"time"
)

const (
	// PreStageCheck initial phase of a stage, health check before traffic shift
	PreStageCheck string = "PreStageCheck"
	// PostStageCheck pre-final phase of a stage, health check after load completes
	PostStageCheck string = "PostStageCheck"
	// ChaosInject this phase refers to the fault injection itself
	ChaosInject string = "ChaosInject"
	// LoadRun this phase refers to the synthetic traffic run
	LoadRun string = "LoadRun"
	// StageSummary final phase of a stage, the verdict gets recorded
	StageSummary string = "StageSummary"
)

// Outcome classifies one synthetic request
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
	OutcomeTimeout Outcome = "timeout"
)

// RequestSample holds the result of one synthetic request, immutable once recorded
type RequestSample struct {
	Timestamp  time.Time
	EndpointID string
	LatencyMs  float64
	Outcome    Outcome
}

// FailureType enumerates the supported fault primitives
type FailureType string

const (
	CPUExhaustion   FailureType = "cpu_exhaustion"
	MemoryLeak      FailureType = "memory_leak"
	NetworkDelay    FailureType = "network_delay"
	PacketLoss      FailureType = "packet_loss"
	ContainerCrash  FailureType = "container_crash"
	DatabaseFailure FailureType = "database_failure"
	DiskStress      FailureType = "disk_stress"
)

// Intensity scales a failure's magnitude through the per-type magnitude table
type Intensity string

const (
	IntensityLight  Intensity = "light"
	IntensityMedium Intensity = "medium"
	IntensityHeavy  Intensity = "heavy"
)

// ScenarioSpec is the declarative definition of one failure scenario,
// read-only during a run. Parameters override the magnitude table per type
// (e.g. delay_ms, loss_percent, cores, memory_mb, workers)
type ScenarioSpec struct {
	Name            string
	FailureType     FailureType
	Intensity       Intensity
	DurationSeconds int
	RampTimeSeconds int
	Parameters      map[string]string
}

// InjectionStatus is the lifecycle state of one injection run
type InjectionStatus string

const (
	InjectionPending   InjectionStatus = "pending"
	InjectionRunning   InjectionStatus = "running"
	InjectionCompleted InjectionStatus = "completed"
	InjectionAborted   InjectionStatus = "aborted"
	InjectionFailed    InjectionStatus = "failed"
)

// InjectionRun tracks a live/completed execution of one scenario.
// EndTime is set if and only if the status is terminal
type InjectionRun struct {
	RunID       string
	Scenario    ScenarioSpec
	Target      string
	StartTime   time.Time
	EndTime     time.Time
	Status      InjectionStatus
	AbortReason string
	DryRun      bool
}

// Terminal reports whether the run has reached a terminal status
func (r *InjectionRun) Terminal() bool {
	switch r.Status {
	case InjectionCompleted, InjectionAborted, InjectionFailed:
		return true
	}
	return false
}

// Metric names evaluated by the validator
const (
	MetricMTTRSeconds         = "mttr_seconds"
	MetricErrorRatePercent    = "error_rate_percent"
	MetricAvailabilityPercent = "availability_percent"
	MetricLatencyDegradation  = "latency_degradation_ms"
	MetricRecoveryTimeSeconds = "recovery_time_seconds"
)

// Comparator direction of an SLO target; both are inclusive
type Comparator string

const (
	ComparatorLTE Comparator = "<="
	ComparatorGTE Comparator = ">="
)

// SLOTarget is one measurable objective
type SLOTarget struct {
	MetricName string
	Comparator Comparator
	Threshold  float64
}

// SLOProfile is a named set of SLO targets, optionally overridden per environment
type SLOProfile struct {
	Name    string
	Targets []SLOTarget
}

// Target returns the target for the given metric name, if declared
func (p SLOProfile) Target(metricName string) (SLOTarget, bool) {
	for _, target := range p.Targets {
		if target.MetricName == metricName {
			return target, true
		}
	}
	return SLOTarget{}, false
}

// Violation records one SLO target that did not hold
type Violation struct {
	MetricName string
	Observed   float64
	Threshold  float64
	Comparator Comparator
	Reason     string
}

// Verdict is the validator output for one measurement window, immutable once produced.
// Passed is always the logical AND of zero violations
type Verdict struct {
	WindowID     string
	MetricValues map[string]float64
	Violations   []Violation
	Passed       bool
}

// RolloutStage is one step of a progressive rollout
type RolloutStage struct {
	StageIndex      int
	TrafficPercent  int
	Concurrency     int
	DurationSeconds int
	// Scenario marks a chaos stage: the named scenario overlaps the load run
	Scenario string
	Verdict  *Verdict
}

// RolloutPlan is the ordered stage sequence plus the profile governing all stages.
// Stages must carry strictly increasing traffic percentages
type RolloutPlan struct {
	Name    string
	Stages  []RolloutStage
	Profile SLOProfile
}

// GateDetails is the explicit run context handed into every component call,
// replacing process-wide globals
type GateDetails struct {
	RunID           string
	TargetName      string
	TargetBaseURL   string
	Environment     string
	Timeout         int
	Delay           int
	AbortThreshold  int
	CooldownSeconds int
	GraceSeconds    int
	DryRun          bool
}

// SetRunAttributes initialises the injection run bookkeeping for a scenario
func SetRunAttributes(run *InjectionRun, scenario ScenarioSpec, gateDetails GateDetails) {
	run.Scenario = scenario
	run.Target = gateDetails.TargetName
	run.Status = InjectionPending
	run.AbortReason = ""
	run.DryRun = gateDetails.DryRun
	if run.RunID == "" {
		run.RunID = scenario.Name
	}
}

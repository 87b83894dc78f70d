package gateconfig

import (
	"fmt"
	"os"
	"time"

	"github.com/litmusops/resilience-gate/pkg/cerrors"
	"github.com/litmusops/resilience-gate/pkg/loadgen"
	"github.com/litmusops/resilience-gate/pkg/types"
	"gopkg.in/yaml.v2"
)

// TargetConfig identifies the system under test
type TargetConfig struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`
}

// LoadConfig is the traffic template shared by every stage; stages override
// concurrency and duration
type LoadConfig struct {
	Shape                 string         `yaml:"shape"`
	Endpoints             map[string]int `yaml:"endpoints"`
	RequestTimeoutSeconds int            `yaml:"request_timeout_seconds"`
	GracePeriodSeconds    int            `yaml:"grace_period_seconds"`
	RequestsPerSecond     float64        `yaml:"requests_per_second"`
	// UnreachableAfter escalates to a target-unreachable failure when the
	// first N requests all fail to connect; negative disables the check
	UnreachableAfter int `yaml:"unreachable_after"`
	RampFloor        int `yaml:"ramp_floor"`
	BurstIntervalSeconds  int            `yaml:"burst_interval_seconds"`
	BurstDurationSeconds  int            `yaml:"burst_duration_seconds"`
}

// ScenarioConfig is the YAML form of one failure scenario
type ScenarioConfig struct {
	Name            string            `yaml:"name"`
	FailureType     string            `yaml:"failure_type"`
	Intensity       string            `yaml:"intensity"`
	DurationSeconds int               `yaml:"duration_seconds"`
	RampTimeSeconds int               `yaml:"ramp_time_seconds"`
	Parameters      map[string]string `yaml:"parameters"`
}

// SLOTargetConfig is the YAML form of one measurable objective
type SLOTargetConfig struct {
	MetricName string  `yaml:"metric_name"`
	Comparator string  `yaml:"comparator"`
	Threshold  float64 `yaml:"threshold"`
}

// ProfileConfig declares the base SLO targets plus per-environment
// overrides; an override replaces the base target of the same metric and
// adds targets the base does not declare
type ProfileConfig struct {
	Targets      []SLOTargetConfig            `yaml:"targets"`
	Environments map[string][]SLOTargetConfig `yaml:"environments"`
}

// StageConfig is the YAML form of one rollout stage
type StageConfig struct {
	TrafficPercent  int    `yaml:"traffic_percent"`
	Concurrency     int    `yaml:"concurrency"`
	DurationSeconds int    `yaml:"duration_seconds"`
	Scenario        string `yaml:"scenario"`
}

// PlanConfig is the YAML form of one rollout plan
type PlanConfig struct {
	Name   string        `yaml:"name"`
	Stages []StageConfig `yaml:"stages"`
}

// Config is the gate's declarative document: target, traffic template,
// scenario catalogue, SLO profile and rollout plans
type Config struct {
	Target    TargetConfig     `yaml:"target"`
	Load      LoadConfig       `yaml:"load"`
	Scenarios []ScenarioConfig `yaml:"scenarios"`
	Profile   ProfileConfig    `yaml:"profile"`
	Plans     []PlanConfig     `yaml:"plans"`
}

var validFailureTypes = map[string]bool{
	string(types.CPUExhaustion):   true,
	string(types.MemoryLeak):      true,
	string(types.NetworkDelay):    true,
	string(types.PacketLoss):      true,
	string(types.ContainerCrash):  true,
	string(types.DatabaseFailure): true,
	string(types.DiskStress):      true,
}

var validIntensities = map[string]bool{
	string(types.IntensityLight):  true,
	string(types.IntensityMedium): true,
	string(types.IntensityHeavy):  true,
}

var validMetrics = map[string]bool{
	types.MetricMTTRSeconds:         true,
	types.MetricErrorRatePercent:    true,
	types.MetricAvailabilityPercent: true,
	types.MetricLatencyDegradation:  true,
	types.MetricRecoveryTimeSeconds: true,
}

// Load reads and validates the config document at the given path; any
// violation is a ConfigurationError and no run should be attempted
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, cerrors.Error{
			ErrorCode: cerrors.ErrorTypeConfiguration,
			Target:    path,
			Reason:    fmt.Sprintf("unable to read the config file, %s", err.Error()),
		}
	}

	var config Config
	if err := yaml.UnmarshalStrict(raw, &config); err != nil {
		return nil, cerrors.Error{
			ErrorCode: cerrors.ErrorTypeConfiguration,
			Target:    path,
			Reason:    fmt.Sprintf("unable to parse the config document, %s", err.Error()),
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the structural invariants of the document
func (c *Config) Validate() error {
	seen := map[string]bool{}
	for _, scenario := range c.Scenarios {
		if scenario.Name == "" {
			return configErr("scenario", "scenario name must not be empty")
		}
		if seen[scenario.Name] {
			return configErr(scenario.Name, "duplicate scenario name")
		}
		seen[scenario.Name] = true
		if !validFailureTypes[scenario.FailureType] {
			return configErr(scenario.Name, fmt.Sprintf("unknown failure type '%s'", scenario.FailureType))
		}
		if !validIntensities[scenario.Intensity] {
			return configErr(scenario.Name, fmt.Sprintf("unknown intensity '%s'", scenario.Intensity))
		}
		if scenario.DurationSeconds <= 0 {
			return configErr(scenario.Name, "scenario duration must be positive")
		}
		if scenario.RampTimeSeconds < 0 {
			return configErr(scenario.Name, "ramp time must not be negative")
		}
	}

	if err := validateTargets("profile", c.Profile.Targets); err != nil {
		return err
	}
	for environment, targets := range c.Profile.Environments {
		if err := validateTargets("profile/"+environment, targets); err != nil {
			return err
		}
	}

	planNames := map[string]bool{}
	for _, plan := range c.Plans {
		if plan.Name == "" {
			return configErr("plan", "plan name must not be empty")
		}
		if planNames[plan.Name] {
			return configErr(plan.Name, "duplicate plan name")
		}
		planNames[plan.Name] = true
		for i, stage := range plan.Stages {
			if stage.Scenario != "" && !seen[stage.Scenario] {
				return configErr(plan.Name, fmt.Sprintf("stage %d references unknown scenario '%s'", i, stage.Scenario))
			}
		}
	}

	switch loadgen.TrafficShape(c.Load.Shape) {
	case loadgen.ShapeSustained, loadgen.ShapeRampUp, loadgen.ShapeBurst, "":
	default:
		return configErr("load", fmt.Sprintf("unknown traffic shape '%s'", c.Load.Shape))
	}
	return nil
}

func validateTargets(owner string, targets []SLOTargetConfig) error {
	for _, target := range targets {
		if !validMetrics[target.MetricName] {
			return configErr(owner, fmt.Sprintf("unknown metric '%s'", target.MetricName))
		}
		if target.Comparator != string(types.ComparatorLTE) && target.Comparator != string(types.ComparatorGTE) {
			return configErr(owner, fmt.Sprintf("comparator of '%s' must be '<=' or '>='", target.MetricName))
		}
	}
	return nil
}

func configErr(target, reason string) error {
	return cerrors.Error{
		ErrorCode: cerrors.ErrorTypeConfiguration,
		Target:    target,
		Reason:    reason,
	}
}

// ScenarioMap resolves the scenario catalogue by name
func (c *Config) ScenarioMap() map[string]types.ScenarioSpec {
	out := make(map[string]types.ScenarioSpec, len(c.Scenarios))
	for _, scenario := range c.Scenarios {
		out[scenario.Name] = types.ScenarioSpec{
			Name:            scenario.Name,
			FailureType:     types.FailureType(scenario.FailureType),
			Intensity:       types.Intensity(scenario.Intensity),
			DurationSeconds: scenario.DurationSeconds,
			RampTimeSeconds: scenario.RampTimeSeconds,
			Parameters:      scenario.Parameters,
		}
	}
	return out
}

// ProfileFor builds the effective SLO profile for an environment: the base
// targets with the environment's overrides applied on top
func (c *Config) ProfileFor(environment string) types.SLOProfile {
	profile := types.SLOProfile{Name: environment}
	if environment == "" {
		profile.Name = "default"
	}

	merged := map[string]types.SLOTarget{}
	var order []string
	add := func(target SLOTargetConfig) {
		if _, ok := merged[target.MetricName]; !ok {
			order = append(order, target.MetricName)
		}
		merged[target.MetricName] = types.SLOTarget{
			MetricName: target.MetricName,
			Comparator: types.Comparator(target.Comparator),
			Threshold:  target.Threshold,
		}
	}
	for _, target := range c.Profile.Targets {
		add(target)
	}
	for _, target := range c.Profile.Environments[environment] {
		add(target)
	}

	for _, name := range order {
		profile.Targets = append(profile.Targets, merged[name])
	}
	return profile
}

// PlanFor resolves one named rollout plan against the environment's profile
func (c *Config) PlanFor(name, environment string) (types.RolloutPlan, error) {
	for _, plan := range c.Plans {
		if plan.Name != name {
			continue
		}
		out := types.RolloutPlan{
			Name:    plan.Name,
			Profile: c.ProfileFor(environment),
		}
		for i, stage := range plan.Stages {
			out.Stages = append(out.Stages, types.RolloutStage{
				StageIndex:      i,
				TrafficPercent:  stage.TrafficPercent,
				Concurrency:     stage.Concurrency,
				DurationSeconds: stage.DurationSeconds,
				Scenario:        stage.Scenario,
			})
		}
		return out, nil
	}
	return types.RolloutPlan{}, configErr(name, "rollout plan not found in the config document")
}

// LoadSpec builds the load-generator template from the document; shape
// defaults to sustained
func (c *Config) LoadSpec() loadgen.RunSpec {
	shape := loadgen.TrafficShape(c.Load.Shape)
	if shape == "" {
		shape = loadgen.ShapeSustained
	}
	spec := loadgen.RunSpec{
		Shape:             shape,
		EndpointWeights:   c.Load.Endpoints,
		RequestTimeout:    time.Duration(c.Load.RequestTimeoutSeconds) * time.Second,
		GracePeriod:       time.Duration(c.Load.GracePeriodSeconds) * time.Second,
		RequestsPerSecond: c.Load.RequestsPerSecond,
		UnreachableAfter:  c.Load.UnreachableAfter,
		RampFloor:         c.Load.RampFloor,
		BurstInterval:     time.Duration(c.Load.BurstIntervalSeconds) * time.Second,
		BurstDuration:     time.Duration(c.Load.BurstDurationSeconds) * time.Second,
	}
	if spec.RequestTimeout == 0 {
		spec.RequestTimeout = 5 * time.Second
	}
	if spec.GracePeriod == 0 {
		spec.GracePeriod = 5 * time.Second
	}
	if spec.UnreachableAfter == 0 {
		spec.UnreachableAfter = 10
	}
	return spec
}

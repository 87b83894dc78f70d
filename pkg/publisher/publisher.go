package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/litmusops/resilience-gate/pkg/cerrors"
	"github.com/litmusops/resilience-gate/pkg/log"
	"github.com/litmusops/resilience-gate/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/prometheus/common/expfmt"
	"github.com/sirupsen/logrus"
)

// StandaloneStage marks records produced outside a rollout plan
const StandaloneStage = "standalone"

// MetricRecord pairs one observed metric value with the threshold it was
// judged against; the threshold is absent for undeclared metrics
type MetricRecord struct {
	Value      float64  `json:"value"`
	Threshold  *float64 `json:"threshold,omitempty"`
	Comparator string   `json:"comparator,omitempty"`
}

// ViolationRecord is the flat form of one SLO violation
type ViolationRecord struct {
	MetricName string  `json:"metric_name"`
	Observed   float64 `json:"observed"`
	Threshold  float64 `json:"threshold"`
	Reason     string  `json:"reason,omitempty"`
}

// Record is one flat exportable result, emitted per completed stage or per
// standalone injection run regardless of the outcome
type Record struct {
	Timestamp       time.Time               `json:"timestamp"`
	RunID           string                  `json:"run_id"`
	Target          string                  `json:"target"`
	Environment     string                  `json:"environment,omitempty"`
	Stage           string                  `json:"stage"`
	TrafficPercent  int                     `json:"traffic_percent,omitempty"`
	Scenario        string                  `json:"scenario,omitempty"`
	Intensity       string                  `json:"intensity,omitempty"`
	InjectionStatus string                  `json:"injection_status,omitempty"`
	WindowID        string                  `json:"window_id"`
	Passed          bool                    `json:"passed"`
	Metrics         map[string]MetricRecord `json:"metrics"`
	Violations      []ViolationRecord       `json:"violations,omitempty"`
}

// Publisher is the terminal sink of the gate: it translates verdicts and
// injection metadata into prometheus exposition and line-delimited records.
// Nothing downstream of the gate depends on it
type Publisher struct {
	gateDetails types.GateDetails
	registry    *prometheus.Registry

	metricValue     *prometheus.GaugeVec
	metricThreshold *prometheus.GaugeVec
	verdictPassed   *prometheus.GaugeVec
	injectionInfo   *prometheus.GaugeVec

	mu      sync.Mutex
	records []Record
}

// New builds a publisher with its own registry so repeated gate runs inside
// one process never collide on collector registration
func New(gateDetails types.GateDetails) *Publisher {
	p := &Publisher{
		gateDetails: gateDetails,
		registry:    prometheus.NewRegistry(),
		metricValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "resilience_gate_metric_value",
			Help: "Observed value of one validator metric for a stage window",
		}, []string{"run_id", "target", "stage", "metric"}),
		metricThreshold: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "resilience_gate_metric_threshold",
			Help: "SLO threshold the metric was judged against",
		}, []string{"run_id", "target", "stage", "metric"}),
		verdictPassed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "resilience_gate_verdict_passed",
			Help: "1 if the stage verdict passed, 0 otherwise",
		}, []string{"run_id", "target", "stage"}),
		injectionInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "resilience_gate_injection_run_info",
			Help: "Metadata of one fault injection run, value is always 1",
		}, []string{"run_id", "target", "stage", "scenario", "intensity", "status"}),
	}
	p.registry.MustRegister(p.metricValue, p.metricThreshold, p.verdictPassed, p.injectionInfo)
	return p
}

// PublishStage exports the result of one rollout stage
func (p *Publisher) PublishStage(stage types.RolloutStage, verdict types.Verdict, runs []types.InjectionRun, profile types.SLOProfile) {
	p.publish(strconv.Itoa(stage.StageIndex), stage.TrafficPercent, verdict, runs, profile)
}

// PublishScenarioRun exports a standalone injection run executed outside a
// rollout plan
func (p *Publisher) PublishScenarioRun(run types.InjectionRun, verdict types.Verdict, profile types.SLOProfile) {
	p.publish(StandaloneStage, 0, verdict, []types.InjectionRun{run}, profile)
}

func (p *Publisher) publish(stage string, trafficPercent int, verdict types.Verdict, runs []types.InjectionRun, profile types.SLOProfile) {
	record := Record{
		Timestamp:      time.Now(),
		RunID:          p.gateDetails.RunID,
		Target:         p.gateDetails.TargetName,
		Environment:    p.gateDetails.Environment,
		Stage:          stage,
		TrafficPercent: trafficPercent,
		WindowID:       verdict.WindowID,
		Passed:         verdict.Passed,
		Metrics:        map[string]MetricRecord{},
	}

	passed := 0.0
	if verdict.Passed {
		passed = 1.0
	}
	p.verdictPassed.WithLabelValues(record.RunID, record.Target, stage).Set(passed)

	for name, value := range verdict.MetricValues {
		p.metricValue.WithLabelValues(record.RunID, record.Target, stage, name).Set(value)
		metricRecord := MetricRecord{Value: value}
		if target, ok := profile.Target(name); ok {
			p.metricThreshold.WithLabelValues(record.RunID, record.Target, stage, name).Set(target.Threshold)
			threshold := target.Threshold
			metricRecord.Threshold = &threshold
			metricRecord.Comparator = string(target.Comparator)
		}
		record.Metrics[name] = metricRecord
	}

	for _, violation := range verdict.Violations {
		record.Violations = append(record.Violations, ViolationRecord{
			MetricName: violation.MetricName,
			Observed:   violation.Observed,
			Threshold:  violation.Threshold,
			Reason:     violation.Reason,
		})
	}

	for _, run := range runs {
		p.injectionInfo.WithLabelValues(record.RunID, record.Target, stage,
			run.Scenario.Name, string(run.Scenario.Intensity), string(run.Status)).Set(1)
		record.Scenario = run.Scenario.Name
		record.Intensity = string(run.Scenario.Intensity)
		record.InjectionStatus = string(run.Status)
	}

	p.mu.Lock()
	p.records = append(p.records, record)
	p.mu.Unlock()

	log.InfoWithValues("[Publisher]: Stage result recorded", logrus.Fields{
		"Stage":    stage,
		"Passed":   verdict.Passed,
		"WindowID": verdict.WindowID,
	})
}

// Records returns a copy of the accumulated records in publish order
func (p *Publisher) Records() []Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Record, len(p.records))
	copy(out, p.records)
	return out
}

// Exposition renders the registry in the prometheus text format
func (p *Publisher) Exposition() (string, error) {
	families, err := p.registry.Gather()
	if err != nil {
		return "", cerrors.Error{
			ErrorCode: cerrors.ErrorTypeGeneric,
			Reason:    fmt.Sprintf("unable to gather the metric families, %s", err.Error()),
		}
	}

	var buf bytes.Buffer
	encoder := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range families {
		if err := encoder.Encode(family); err != nil {
			return "", cerrors.Error{
				ErrorCode: cerrors.ErrorTypeGeneric,
				Reason:    fmt.Sprintf("unable to encode the metric family %s, %s", family.GetName(), err.Error()),
			}
		}
	}
	return buf.String(), nil
}

// PushToGateway delivers the current registry contents to a prometheus push
// gateway under the given job name
func (p *Publisher) PushToGateway(ctx context.Context, gatewayURL, job string) error {
	if gatewayURL == "" {
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeConfiguration,
			Reason:    "push gateway url is not set",
		}
	}

	pusher := push.New(gatewayURL, job).
		Gatherer(p.registry).
		Grouping("run_id", p.gateDetails.RunID).
		Format(expfmt.NewFormat(expfmt.TypeTextPlain))

	if err := pusher.PushContext(ctx); err != nil {
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeGeneric,
			Target:    gatewayURL,
			Reason:    fmt.Sprintf("unable to push the gate metrics, %s", err.Error()),
		}
	}
	log.Infof("[Publisher]: Pushed the gate metrics to %v under job %v", gatewayURL, job)
	return nil
}

// WriteNDJSON writes one JSON object per line for every accumulated record
func (p *Publisher) WriteNDJSON(w io.Writer) error {
	encoder := json.NewEncoder(w)
	for _, record := range p.Records() {
		if err := encoder.Encode(record); err != nil {
			return cerrors.Error{
				ErrorCode: cerrors.ErrorTypeGeneric,
				Reason:    fmt.Sprintf("unable to encode the stage record, %s", err.Error()),
			}
		}
	}
	return nil
}

// WriteNDJSONFile writes the record stream to the given path, appending when
// the file already exists
func (p *Publisher) WriteNDJSONFile(path string) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeGeneric,
			Target:    path,
			Reason:    fmt.Sprintf("unable to open the output file, %s", err.Error()),
		}
	}
	defer file.Close()
	return p.WriteNDJSON(file)
}

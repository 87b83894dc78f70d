package experiment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/litmusops/resilience-gate/pkg/cerrors"
	"github.com/litmusops/resilience-gate/pkg/publisher"
	"github.com/litmusops/resilience-gate/pkg/rollout"
)

const testDocument = `
target:
  name: checkout-svc
load:
  shape: sustained
  endpoints:
    /orders: 1
  request_timeout_seconds: 2
  grace_period_seconds: 1
scenarios:
  - name: packet-loss-light
    failure_type: packet_loss
    intensity: light
    duration_seconds: 1
profile:
  targets:
    - metric_name: error_rate_percent
      comparator: "<="
      threshold: 5
plans:
  - name: canary
    stages:
      - traffic_percent: 25
        concurrency: 4
        duration_seconds: 1
      - traffic_percent: 100
        concurrency: 4
        duration_seconds: 1
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gate.yaml")
	if err := os.WriteFile(path, []byte(testDocument), 0644); err != nil {
		t.Fatalf("unable to write the config fixture: %v", err)
	}
	return path
}

func TestGateRunPromotesHealthyTarget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	out := filepath.Join(t.TempDir(), "results.ndjson")
	state, err := GateRun(context.Background(), Options{
		ConfigPath:    writeConfig(t),
		PlanName:      "canary",
		TargetBaseURL: server.URL,
		DryRun:        true,
		OutPath:       out,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != rollout.StatePromoted {
		t.Fatalf("expected Promoted, got %s", state)
	}

	records, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("expected the result records to be written: %v", err)
	}
	if len(records) == 0 {
		t.Error("expected at least one result record line")
	}
}

func TestScenarioRunAgainstHealthyTarget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	out := filepath.Join(t.TempDir(), "suite.ndjson")
	passed, err := ScenarioRun(context.Background(), Options{
		ConfigPath:    writeConfig(t),
		TargetBaseURL: server.URL,
		DryRun:        true,
		Scenarios:     []string{"packet-loss-light"},
		Concurrency:   2,
		OutPath:       out,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !passed {
		t.Error("expected the suite to pass against a healthy target in dry-run mode")
	}

	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("expected the suite records to be written: %v", err)
	}
	var record publisher.Record
	if err := json.Unmarshal(bytes.SplitN(raw, []byte("\n"), 2)[0], &record); err != nil {
		t.Fatalf("record line is not valid json: %v", err)
	}
	if record.Scenario != "packet-loss-light" {
		t.Errorf("unexpected scenario in the record: %q", record.Scenario)
	}
	if _, err := uuid.Parse(record.WindowID); err != nil {
		t.Errorf("expected a uuid window id on standalone runs, got %q", record.WindowID)
	}
}

func TestScenarioRunUnknownScenario(t *testing.T) {
	_, err := ScenarioRun(context.Background(), Options{
		ConfigPath:    writeConfig(t),
		TargetBaseURL: "http://localhost:1",
		Scenarios:     []string{"missing"},
	})
	var cerr cerrors.Error
	if !errors.As(err, &cerr) || cerr.ErrorCode != cerrors.ErrorTypeConfiguration {
		t.Errorf("expected CONFIGURATION_ERROR, got %v", err)
	}
}

func TestPrepareRequiresTargetURL(t *testing.T) {
	t.Setenv("TARGET_BASE_URL", "")
	_, _, err := prepare(Options{ConfigPath: writeConfig(t)})
	var cerr cerrors.Error
	if !errors.As(err, &cerr) || cerr.ErrorCode != cerrors.ErrorTypeConfiguration {
		t.Errorf("expected CONFIGURATION_ERROR for a missing target url, got %v", err)
	}
}

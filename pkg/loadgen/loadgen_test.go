package loadgen

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/litmusops/resilience-gate/pkg/cerrors"
	"github.com/litmusops/resilience-gate/pkg/types"
)

func gateDetailsFor(url string) types.GateDetails {
	return types.GateDetails{
		RunID:         "test-run",
		TargetName:    "test-target",
		TargetBaseURL: url,
	}
}

func TestRunRecordsEverySample(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	spec := RunSpec{
		Concurrency:     10,
		Duration:        500 * time.Millisecond,
		Shape:           ShapeSustained,
		EndpointWeights: map[string]int{"/orders": 3, "/health": 1},
		RequestTimeout:  time.Second,
		GracePeriod:     time.Second,
	}

	samples, report, err := Run(context.Background(), gateDetailsFor(server.URL), spec)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if report.Issued == 0 {
		t.Fatal("expected requests to be issued")
	}
	if len(samples) != report.Issued {
		t.Fatalf("sample count %d does not match issued count %d", len(samples), report.Issued)
	}
	for _, sample := range samples {
		if sample.LatencyMs < 0 {
			t.Errorf("negative latency %v", sample.LatencyMs)
		}
		if sample.Outcome != types.OutcomeSuccess {
			t.Errorf("expected success outcome against healthy target, got %s", sample.Outcome)
		}
	}
}

func TestRunClassifiesServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	spec := RunSpec{
		Concurrency:     2,
		Duration:        300 * time.Millisecond,
		Shape:           ShapeSustained,
		EndpointWeights: map[string]int{"/orders": 1},
		RequestTimeout:  time.Second,
	}

	samples, _, err := Run(context.Background(), gateDetailsFor(server.URL), spec)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	for _, sample := range samples {
		if sample.Outcome != types.OutcomeError {
			t.Errorf("expected error outcome on HTTP 500, got %s", sample.Outcome)
		}
	}
}

func TestRunEscalatesUnreachableTarget(t *testing.T) {
	// grab a port that is guaranteed closed
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	spec := RunSpec{
		Concurrency:      4,
		Duration:         2 * time.Second,
		Shape:            ShapeSustained,
		EndpointWeights:  map[string]int{"/orders": 1},
		RequestTimeout:   200 * time.Millisecond,
		GracePeriod:      100 * time.Millisecond,
		UnreachableAfter: 5,
	}

	_, _, err := Run(context.Background(), gateDetailsFor(url), spec)
	if err == nil {
		t.Fatal("expected target-unreachable error, got nil")
	}
	var cerr cerrors.Error
	if !errors.As(err, &cerr) || cerr.ErrorCode != cerrors.ErrorTypeTargetUnreachable {
		t.Fatalf("expected TARGET_UNREACHABLE_ERROR, got %v", err)
	}
}

func TestRunSlowTargetDoesNotEscalate(t *testing.T) {
	// accepts every connection but answers slower than the request timeout
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	spec := RunSpec{
		Concurrency:      4,
		Duration:         500 * time.Millisecond,
		Shape:            ShapeSustained,
		EndpointWeights:  map[string]int{"/orders": 1},
		RequestTimeout:   50 * time.Millisecond,
		GracePeriod:      100 * time.Millisecond,
		UnreachableAfter: 3,
	}

	samples, _, err := Run(context.Background(), gateDetailsFor(server.URL), spec)
	if err != nil {
		t.Fatalf("a slow target must not escalate to unreachable, got %v", err)
	}
	if len(samples) == 0 {
		t.Fatal("expected timeout samples to be recorded")
	}
	for _, sample := range samples {
		if sample.Outcome != types.OutcomeTimeout {
			t.Errorf("expected timeout outcome against a slow target, got %s", sample.Outcome)
		}
	}
}

func TestIsConnectionFailure(t *testing.T) {
	dialErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	if !isConnectionFailure(dialErr) {
		t.Error("expected a failed dial to count as a connection failure")
	}
	readErr := &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset by peer")}
	if isConnectionFailure(readErr) {
		t.Error("a reset on an accepted connection is not a connection failure")
	}
	if isConnectionFailure(context.DeadlineExceeded) {
		t.Error("a timeout is not a connection failure")
	}
}

func TestRunValidation(t *testing.T) {
	tests := []struct {
		name string
		spec RunSpec
	}{
		{"zero concurrency", RunSpec{Concurrency: 0, Duration: time.Second, EndpointWeights: map[string]int{"/a": 1}}},
		{"no endpoints", RunSpec{Concurrency: 1, Duration: time.Second}},
		{"all-zero weights", RunSpec{Concurrency: 1, Duration: time.Second, EndpointWeights: map[string]int{"/a": 0, "/b": 0}}},
		{"negative weight", RunSpec{Concurrency: 1, Duration: time.Second, EndpointWeights: map[string]int{"/a": -2}}},
		{"zero duration", RunSpec{Concurrency: 1, EndpointWeights: map[string]int{"/a": 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Run(context.Background(), gateDetailsFor("http://localhost:1"), tt.spec)
			var cerr cerrors.Error
			if !errors.As(err, &cerr) || cerr.ErrorCode != cerrors.ErrorTypeConfiguration {
				t.Errorf("expected CONFIGURATION_ERROR, got %v", err)
			}
		})
	}
}

func TestRunObservesCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	spec := RunSpec{
		Concurrency:     4,
		Duration:        10 * time.Second,
		Shape:           ShapeSustained,
		EndpointWeights: map[string]int{"/orders": 1},
		RequestTimeout:  time.Second,
		GracePeriod:     100 * time.Millisecond,
	}

	begin := time.Now()
	_, _, err := Run(ctx, gateDetailsFor(server.URL), spec)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(begin); elapsed > 3*time.Second {
		t.Fatalf("cancellation took too long: %s", elapsed)
	}
}

func TestAllowedWorkersShapes(t *testing.T) {
	rampSpec := RunSpec{
		Concurrency:  10,
		Duration:     10 * time.Second,
		Shape:        ShapeRampUp,
		RampFloor:    2,
		RampFraction: 0.5,
	}
	if got := rampSpec.allowedWorkers(0); got != 2 {
		t.Errorf("ramp at t=0: expected floor 2, got %d", got)
	}
	if got := rampSpec.allowedWorkers(5 * time.Second); got != 10 {
		t.Errorf("ramp at end of window: expected 10, got %d", got)
	}
	mid := rampSpec.allowedWorkers(2500 * time.Millisecond)
	if mid <= 2 || mid >= 10 {
		t.Errorf("ramp midpoint: expected between floor and limit, got %d", mid)
	}

	burstSpec := RunSpec{
		Concurrency:   20,
		Duration:      time.Minute,
		Shape:         ShapeBurst,
		RampFloor:     5,
		BurstInterval: 10 * time.Second,
		BurstDuration: 2 * time.Second,
	}
	if got := burstSpec.allowedWorkers(time.Second); got != 20 {
		t.Errorf("inside spike: expected 20, got %d", got)
	}
	if got := burstSpec.allowedWorkers(5 * time.Second); got != 5 {
		t.Errorf("outside spike: expected baseline 5, got %d", got)
	}

	sustained := RunSpec{Concurrency: 7, Duration: time.Second, Shape: ShapeSustained}
	if got := sustained.allowedWorkers(500 * time.Millisecond); got != 7 {
		t.Errorf("sustained: expected 7, got %d", got)
	}
}

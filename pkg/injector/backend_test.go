package injector

import (
	"context"
	"testing"

	"github.com/litmusops/resilience-gate/pkg/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestCommandBackendPassesMagnitudeEnv(t *testing.T) {
	backend := &CommandBackend{
		ApplyCommands: map[types.FailureType]string{
			types.PacketLoss: `test "$FAULT_LOSS_PERCENT" = 50 && test "$FAULT_TARGET" = checkout-svc`,
		},
		RevertCommands: map[types.FailureType]string{
			types.PacketLoss: `test "$FAULT_TYPE" = packet_loss`,
		},
	}

	magnitude := Magnitude{LossPercent: 50}
	if err := backend.Apply(context.Background(), "checkout-svc", types.PacketLoss, magnitude); err != nil {
		t.Fatalf("expected the hook to see the magnitude env, got %v", err)
	}
	if err := backend.Revert(context.Background(), "checkout-svc", types.PacketLoss); err != nil {
		t.Fatalf("expected the revert hook to run, got %v", err)
	}
}

func TestCommandBackendRejectsMissingHook(t *testing.T) {
	backend := &CommandBackend{}
	if err := backend.Apply(context.Background(), "checkout-svc", types.DiskStress, Magnitude{}); err == nil {
		t.Error("expected an error for a failure type without an apply hook")
	}
}

func TestCommandBackendPassesTraceParent(t *testing.T) {
	previous := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(previous) })

	backend := &CommandBackend{
		ApplyCommands: map[types.FailureType]string{
			types.NetworkDelay: `test -n "$TRACE_PARENT"`,
		},
	}

	spanContext := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01},
		SpanID:     trace.SpanID{0x01},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanContext)

	if err := backend.Apply(ctx, "checkout-svc", types.NetworkDelay, Magnitude{}); err != nil {
		t.Errorf("expected the hook to inherit the span context, got %v", err)
	}
}

func TestCommandBackendOmitsTraceParentWithoutSpan(t *testing.T) {
	backend := &CommandBackend{
		ApplyCommands: map[types.FailureType]string{
			types.NetworkDelay: `test -z "$TRACE_PARENT"`,
		},
	}
	if err := backend.Apply(context.Background(), "checkout-svc", types.NetworkDelay, Magnitude{}); err != nil {
		t.Errorf("expected no trace parent without an active span, got %v", err)
	}
}

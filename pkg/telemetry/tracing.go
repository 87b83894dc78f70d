package telemetry

import (
	"context"
	"encoding/json"
	"os"

	"github.com/litmusops/resilience-gate/pkg/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	TracerName  = "litmusops.io/resilience-gate"
	TraceParent = "TRACE_PARENT"
)

// StartTracing opens one span under the gate tracer and returns the derived
// context alongside it; stages and injections nest through the context
func StartTracing(ctx context.Context, spanName string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, spanName)
}

// GetTraceParentContext rebuilds the CI pipeline's span context from the
// TRACE_PARENT env so gate spans attach to the calling pipeline trace
func GetTraceParentContext() context.Context {
	traceParent := os.Getenv(TraceParent)
	if traceParent == "" {
		return context.Background()
	}

	pro := otel.GetTextMapPropagator()
	carrier := make(map[string]string)
	if err := json.Unmarshal([]byte(traceParent), &carrier); err != nil {
		log.Errorf("unable to unmarshal the trace parent carrier, err: %v", err)
		return context.Background()
	}

	return pro.Extract(context.Background(), propagation.MapCarrier(carrier))
}

// GetMarshalledSpanFromContext Extract spanContext from the context and return it as json encoded string
func GetMarshalledSpanFromContext(ctx context.Context) string {
	carrier := make(map[string]string)
	pro := otel.GetTextMapPropagator()

	pro.Inject(ctx, propagation.MapCarrier(carrier))

	if len(carrier) == 0 {
		log.Error("spanContext not present in the context, unable to marshall")
		return ""
	}

	marshalled, err := json.Marshal(carrier)
	if err != nil {
		log.Error(err.Error())
		return ""
	}
	if len(marshalled) >= 1024 {
		log.Error("marshalled span context is too large, unable to marshall")
		return ""
	}
	return string(marshalled)
}

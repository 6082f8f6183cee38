package obs

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("docbrain")

// StartSpan opens a span for a pipeline stage. With no SDK/exporter
// registered, otel's global TracerProvider is a no-op implementation, so
// this costs a single interface call when tracing is not configured, while
// still giving every operator a hook to wire a real exporter later.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

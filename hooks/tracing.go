package hooks

import (
	"context"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingHook implements OpenTelemetry tracing
type TracingHook struct {
	tracer trace.Tracer
}

// NewTracingHook creates a new tracing hook
func NewTracingHook(tracer trace.Tracer) *TracingHook {
	return &TracingHook{tracer: tracer}
}

type spanCtxKey struct{}

var systems = map[string]string{
	"postgres": "postgresql",
	"sqlite":   "sqlite",
	"mysql":    "mysql",
}

func (h *TracingHook) BeforeCommand(ctx context.Context, event *CommandEvent) context.Context {
	if h.tracer == nil {
		return ctx
	}
	ctx, span := h.tracer.Start(ctx, "db."+event.Operation(),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	return context.WithValue(ctx, spanCtxKey{}, span)
}

func (h *TracingHook) AfterCommand(ctx context.Context, event *CommandEvent) { h.end(ctx, event) }

func (h *TracingHook) CommandError(ctx context.Context, event *CommandEvent) { h.end(ctx, event) }

// BeforeQuery is called before a bun query is executed
func (h *TracingHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return h.BeforeCommand(ctx, &CommandEvent{Query: event.Query})
}

// AfterQuery is called after a bun query is executed
func (h *TracingHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	h.end(ctx, &CommandEvent{Query: event.Query, Err: event.Err})
}

func (h *TracingHook) end(ctx context.Context, event *CommandEvent) {
	span, ok := ctx.Value(spanCtxKey{}).(trace.Span)
	if !ok {
		return
	}
	defer span.End()

	attrs := []attribute.KeyValue{
		attribute.String("db.statement", truncate(event.Query)),
		attribute.String("db.operation", event.Operation()),
	}
	if system, ok := systems[event.Dialect]; ok {
		attrs = append(attrs, attribute.String("db.system", system))
	}
	if event.Intercepted {
		attrs = append(attrs, attribute.Bool("ormkit.intercepted", true))
	}
	span.SetAttributes(attrs...)

	if event.Err != nil {
		span.RecordError(event.Err)
		span.SetStatus(codes.Error, event.Err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
}

var (
	_ Hook          = (*LoggerHook)(nil)
	_ Hook          = (*MetricsHook)(nil)
	_ Hook          = (*TracingHook)(nil)
	_ bun.QueryHook = (*LoggerHook)(nil)
	_ bun.QueryHook = (*MetricsHook)(nil)
	_ bun.QueryHook = (*TracingHook)(nil)
)

package hooks

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
)

// MetricsHook implements Prometheus metrics collection
type MetricsHook struct {
	commandDuration *prometheus.HistogramVec
	commandTotal    *prometheus.CounterVec
	commandErrors   *prometheus.CounterVec
	intercepted     *prometheus.CounterVec
}

// NewMetricsHook creates a new metrics hook and registers collectors.
// Collectors already registered by a previous hook are reused.
func NewMetricsHook(registry prometheus.Registerer) (*MetricsHook, error) {
	h := &MetricsHook{
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ormkit_command_duration_seconds",
				Help:    "Duration of database commands in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"dialect", "operation"},
		),
		commandTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ormkit_commands_total",
				Help: "Total number of database commands",
			},
			[]string{"dialect", "operation"},
		),
		commandErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ormkit_command_errors_total",
				Help: "Total number of failed database commands",
			},
			[]string{"dialect", "operation"},
		),
		intercepted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ormkit_commands_intercepted_total",
				Help: "Commands answered by a results filter",
			},
			[]string{"dialect", "operation"},
		),
	}

	h.commandDuration = register(registry, h.commandDuration)
	h.commandTotal = register(registry, h.commandTotal)
	h.commandErrors = register(registry, h.commandErrors)
	h.intercepted = register(registry, h.intercepted)
	if h.commandDuration == nil || h.commandTotal == nil || h.commandErrors == nil || h.intercepted == nil {
		return nil, errors.New("hooks: metrics collector registered with a different type")
	}
	return h, nil
}

func register[C prometheus.Collector](registry prometheus.Registerer, c C) C {
	if err := registry.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		var zero C
		return zero
	}
	return c
}

func (h *MetricsHook) BeforeCommand(ctx context.Context, _ *CommandEvent) context.Context {
	return ctx
}

func (h *MetricsHook) AfterCommand(_ context.Context, event *CommandEvent) { h.observe(event) }

func (h *MetricsHook) CommandError(_ context.Context, event *CommandEvent) { h.observe(event) }

// BeforeQuery is called before a bun query is executed
func (h *MetricsHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

// AfterQuery is called after a bun query is executed
func (h *MetricsHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	h.observe(&CommandEvent{
		Dialect:  "bun",
		Query:    event.Query,
		Duration: time.Since(event.StartTime),
		Err:      event.Err,
	})
}

func (h *MetricsHook) observe(event *CommandEvent) {
	labels := prometheus.Labels{"dialect": event.Dialect, "operation": event.Operation()}

	h.commandDuration.With(labels).Observe(event.Duration.Seconds())
	h.commandTotal.With(labels).Inc()
	if event.Err != nil {
		h.commandErrors.With(labels).Inc()
	}
	if event.Intercepted {
		h.intercepted.With(labels).Inc()
	}
}

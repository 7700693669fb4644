package hooks

import (
	"context"
	"log/slog"
	"time"

	"github.com/uptrace/bun"
)

// LoggerHook implements command logging
type LoggerHook struct {
	logger        *slog.Logger
	logAll        bool
	slowThreshold time.Duration
}

// NewLoggerHook creates a new logger hook
func NewLoggerHook(logger *slog.Logger, logAll bool, slowThreshold time.Duration) *LoggerHook {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggerHook{
		logger:        logger,
		logAll:        logAll,
		slowThreshold: slowThreshold,
	}
}

func (h *LoggerHook) BeforeCommand(ctx context.Context, _ *CommandEvent) context.Context {
	return ctx
}

func (h *LoggerHook) AfterCommand(ctx context.Context, event *CommandEvent) { h.log(ctx, event) }

func (h *LoggerHook) CommandError(ctx context.Context, event *CommandEvent) { h.log(ctx, event) }

// BeforeQuery is called before a bun query is executed
func (h *LoggerHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

// AfterQuery is called after a bun query is executed
func (h *LoggerHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	h.log(ctx, &CommandEvent{
		Query:     event.Query,
		StartTime: event.StartTime,
		Duration:  time.Since(event.StartTime),
		Err:       event.Err,
	})
}

func (h *LoggerHook) log(ctx context.Context, event *CommandEvent) {
	duration := event.Duration
	slow := h.slowThreshold > 0 && duration >= h.slowThreshold

	// Skip if not logging all and not slow
	if !h.logAll && !slow && event.Err == nil {
		return
	}

	query := truncate(event.Query)
	attrs := []slog.Attr{
		slog.Duration("duration", duration),
		slog.String("operation", event.Operation()),
	}
	if event.Dialect != "" {
		attrs = append(attrs, slog.String("dialect", event.Dialect))
	}
	if event.Intercepted {
		attrs = append(attrs, slog.Bool("intercepted", true))
	}
	if h.logAll || slow || event.Err != nil {
		attrs = append(attrs, slog.String("query", query))
	}

	switch {
	case event.Err != nil:
		attrs = append(attrs, slog.String("error", event.Err.Error()))
		h.logger.LogAttrs(ctx, slog.LevelError, "database command failed", attrs...)
	case slow:
		h.logger.LogAttrs(ctx, slog.LevelWarn, "slow database command", attrs...)
	default:
		h.logger.LogAttrs(ctx, slog.LevelDebug, "database command", attrs...)
	}
}

package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestOperationType(t *testing.T) {
	tests := map[string]string{
		"select 1":                      "select",
		"  WITH x AS (SELECT 1) SELECT": "select",
		"INSERT INTO t VALUES (1)":      "insert",
		"REPLACE INTO t VALUES (1)":     "insert",
		"update t set a = 1":            "update",
		"DELETE FROM t":                 "delete",
		"CREATE TABLE t (a int)":        "create",
		"SAVEPOINT sp1":                 "savepoint",
		"VACUUM":                        "other",
	}
	for query, want := range tests {
		assert.Equal(t, want, OperationType(query), query)
	}
}

func TestEventOperation(t *testing.T) {
	assert.Equal(t, "commit", (&CommandEvent{Kind: EventCommit, Query: "SELECT 1"}).Operation())
	assert.Equal(t, "rollback", (&CommandEvent{Kind: EventRollback}).Operation())
	assert.Equal(t, "select", (&CommandEvent{Query: "SELECT 1"}).Operation())
	assert.Equal(t, "command", EventCommand.String())
}

type ctxKey string

func TestChainOrder(t *testing.T) {
	var calls []string
	record := func(name string) Funcs {
		return Funcs{
			Before: func(ctx context.Context, _ *CommandEvent) context.Context {
				calls = append(calls, name+".before")
				return context.WithValue(ctx, ctxKey(name), true)
			},
			After: func(ctx context.Context, _ *CommandEvent) {
				assert.Equal(t, true, ctx.Value(ctxKey("a")))
				assert.Equal(t, true, ctx.Value(ctxKey("b")))
				calls = append(calls, name+".after")
			},
			Error: func(context.Context, *CommandEvent) {
				calls = append(calls, name+".error")
			},
		}
	}
	chain := Chain{record("a"), Funcs{}, record("b")}

	ev := &CommandEvent{Query: "SELECT 1"}
	ctx := chain.BeforeCommand(context.Background(), ev)
	chain.AfterCommand(ctx, ev)
	chain.CommandError(ctx, ev)

	assert.Equal(t, []string{"a.before", "b.before", "a.after", "b.after", "a.error", "b.error"}, calls)
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLoggerHook(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := context.Background()

	quiet := NewLoggerHook(logger, false, 100*time.Millisecond)
	quiet.AfterCommand(ctx, &CommandEvent{Query: "SELECT 1", Duration: time.Millisecond})
	assert.Empty(t, buf.String())

	quiet.AfterCommand(ctx, &CommandEvent{Query: "SELECT 2", Duration: time.Second, Dialect: "sqlite"})
	quiet.CommandError(ctx, &CommandEvent{Query: "SELECT 3", Err: errors.New("boom")})

	verbose := NewLoggerHook(logger, true, 0)
	verbose.AfterCommand(ctx, &CommandEvent{Kind: EventCommit, Intercepted: true})

	lines := logLines(t, &buf)
	require.Len(t, lines, 3)

	assert.Equal(t, "WARN", lines[0]["level"])
	assert.Equal(t, "slow database command", lines[0]["msg"])
	assert.Equal(t, "SELECT 2", lines[0]["query"])
	assert.Equal(t, "sqlite", lines[0]["dialect"])

	assert.Equal(t, "ERROR", lines[1]["level"])
	assert.Equal(t, "boom", lines[1]["error"])

	assert.Equal(t, "DEBUG", lines[2]["level"])
	assert.Equal(t, "commit", lines[2]["operation"])
	assert.Equal(t, true, lines[2]["intercepted"])
}

func TestLoggerHookTruncates(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := NewLoggerHook(logger, false, 0)
	h.CommandError(context.Background(), &CommandEvent{Query: "SELECT " + strings.Repeat("x", 600), Err: errors.New("e")})

	lines := logLines(t, &buf)
	require.Len(t, lines, 1)
	q := lines[0]["query"].(string)
	assert.Len(t, q, 503)
	assert.True(t, strings.HasSuffix(q, "..."))
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestMetricsHook(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, err := NewMetricsHook(reg)
	require.NoError(t, err)

	ctx := context.Background()
	h.AfterCommand(ctx, &CommandEvent{Dialect: "sqlite", Query: "SELECT 1", Duration: time.Millisecond})
	h.CommandError(ctx, &CommandEvent{Dialect: "sqlite", Query: "INSERT INTO t VALUES (1)", Err: errors.New("x")})
	h.AfterCommand(ctx, &CommandEvent{Dialect: "sqlite", Query: "SELECT 1", Intercepted: true})
	h.AfterQuery(ctx, &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()})

	assert.Equal(t, 4.0, counterValue(t, reg, "ormkit_commands_total"))
	assert.Equal(t, 1.0, counterValue(t, reg, "ormkit_command_errors_total"))
	assert.Equal(t, 1.0, counterValue(t, reg, "ormkit_commands_intercepted_total"))

	again, err := NewMetricsHook(reg)
	require.NoError(t, err)
	again.AfterCommand(ctx, &CommandEvent{Dialect: "sqlite", Query: "SELECT 1"})
	assert.Equal(t, 5.0, counterValue(t, reg, "ormkit_commands_total"))
}

func TestTracingHook(t *testing.T) {
	h := NewTracingHook(noop.NewTracerProvider().Tracer("test"))
	ev := &CommandEvent{Dialect: "postgres", Query: "SELECT 1"}

	ctx := h.BeforeCommand(context.Background(), ev)
	_, ok := ctx.Value(spanCtxKey{}).(trace.Span)
	assert.True(t, ok)
	h.AfterCommand(ctx, ev)

	bctx := h.BeforeQuery(context.Background(), &bun.QueryEvent{Query: "DELETE FROM t"})
	h.AfterQuery(bctx, &bun.QueryEvent{Query: "DELETE FROM t", Err: errors.New("x")})

	// without a tracer the context is returned untouched
	none := NewTracingHook(nil)
	plain := context.Background()
	assert.Equal(t, plain, none.BeforeCommand(plain, ev))
	none.CommandError(plain, ev)
}

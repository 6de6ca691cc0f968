package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// records decodes one JSON object per output line.
func records(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec), line)
		out = append(out, rec)
	}
	return out
}

func TestSlogLogger_JSONLevels(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug", true)
	ctx := context.Background()

	log.Debug(ctx, "monitor tick")
	log.Info(ctx, "unlock succeeded", "method", "pin")
	log.Warn(ctx, "mirror write failed", "attempt", 2)
	log.Error(ctx, "local state unreadable", "principal", "p-1")

	recs := records(t, &buf)
	require.Len(t, recs, 4)

	want := []struct{ level, msg string }{
		{"DEBUG", "monitor tick"},
		{"INFO", "unlock succeeded"},
		{"WARN", "mirror write failed"},
		{"ERROR", "local state unreadable"},
	}
	for i, w := range want {
		assert.Equal(t, w.level, recs[i]["level"])
		assert.Equal(t, w.msg, recs[i]["msg"])
	}
	assert.Equal(t, "pin", recs[1]["method"])
	assert.EqualValues(t, 2, recs[2]["attempt"])
	assert.Equal(t, "p-1", recs[3]["principal"])
}

func TestSlogLogger_WithIsScoped(t *testing.T) {
	var buf bytes.Buffer
	root := New(&buf, "info", true)
	ctx := context.Background()

	root.With("component", "lock", "principal", "p-1").Info(ctx, "locked", "reason", "idle")
	root.Info(ctx, "plain")

	recs := records(t, &buf)
	require.Len(t, recs, 2)
	assert.Equal(t, "lock", recs[0]["component"])
	assert.Equal(t, "p-1", recs[0]["principal"])
	assert.Equal(t, "idle", recs[0]["reason"])
	assert.NotContains(t, recs[1], "component")
}

func TestNew_TextHandlerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn", false)
	ctx := context.Background()

	log.Info(ctx, "attempt recorded")
	log.Warn(ctx, "lockout", "seconds", 30)

	out := buf.String()
	assert.NotContains(t, out, "attempt recorded")
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "msg=lockout")
	assert.Contains(t, out, "seconds=30")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" INFO ", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"trace", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "ParseLevel(%q)", tt.in)
	}
}

func TestDiscard(t *testing.T) {
	log := Discard()
	assert.NotPanics(t, func() {
		log.With("k", "v").Error(context.Background(), "dropped")
	})
}

package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erikjearl/SEPIA-Environments/game"
	"github.com/erikjearl/SEPIA-Environments/rules"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var m map[string]any
		require.NoError(t, dec.Decode(&m))
		out = append(out, m)
	}
	return out
}

func TestTraceHandler_PlannerValues(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewTraceHandler(&buf, nil))

	log.Info("step",
		"at", game.Position{X: 3, Y: 4},
		"action", rules.Move{Worker: 2, From: game.Position{}, To: game.Position{X: 1, Y: 1}},
		"error", errors.New("boom"),
		"n", 7,
	)

	assert.Equal(t, 1, strings.Count(buf.String(), "\n"), "one line per record")
	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	rec := lines[0]
	assert.Equal(t, "INFO", rec["level"])
	assert.Equal(t, "step", rec["msg"])
	assert.Equal(t, "(3,4)", rec["at"])
	assert.Equal(t, rules.Move{Worker: 2, To: game.Position{X: 1, Y: 1}}.String(), rec["action"])
	assert.Equal(t, "boom", rec["error"])
	assert.Equal(t, float64(7), rec["n"])
}

func TestTraceHandler_LevelsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewTraceHandler(&buf, &TraceOptions{Level: slog.LevelWarn}))

	log.Info("dropped")
	log.WithGroup("search").With("run", "r1").Warn("slow", slog.Group("budget", "max", 10))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	search, ok := lines[0]["search"].(map[string]any)
	require.True(t, ok, "%v", lines[0])
	assert.Equal(t, "r1", search["run"])
	assert.Equal(t, map[string]any{"max": float64(10)}, search["budget"])
}

func TestTraceHandler_Indent(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewTraceHandler(&buf, &TraceOptions{Indent: true}))
	log.Info("pretty", "k", "v")

	assert.Greater(t, strings.Count(buf.String(), "\n"), 1)
	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "v", lines[0]["k"])
}

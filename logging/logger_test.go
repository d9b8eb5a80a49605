package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/disbursement-engine/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestConsoleHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, config.LoggingConfig{Level: "info"}).With("system", "payroll")

	logger.Info("run finished", "paid", 3, slog.Group("totals", "net", "100.00"))

	line := buf.String()
	assert.Contains(t, line, "[INFO] [payroll] [")
	assert.Contains(t, line, "run finished paid=3 totals.net=100.00")
	assert.NotContains(t, line, "system=")
	assert.NotContains(t, line, "\033[", "no colors when not writing to a terminal")
}

func TestConsoleHandler_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, config.LoggingConfig{Level: "warn"})

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "[WARN]")
}

func TestConsoleHandler_WithGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, config.LoggingConfig{}).WithGroup("alloc").With("dest", "bank1")

	logger.Info("allocated", "amount", "10.00")

	assert.Contains(t, buf.String(), "alloc.dest=bank1 alloc.amount=10.00")
}

func TestNewLoggerTo_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, config.LoggingConfig{Format: "json"})

	logger.Info("allocated", "beneficiary_id", "emp-001")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "allocated", entry["msg"])
	assert.Equal(t, "emp-001", entry["beneficiary_id"])
}

func TestNewLoggerWithSystem(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	stdout := os.Stdout
	os.Stdout = w
	t.Cleanup(func() { os.Stdout = stdout })

	logger := NewLoggerWithSystem(config.LoggingConfig{Level: "info", Format: "json"}, "api")
	logger.Info("request served")
	require.NoError(t, w.Close())

	var entry map[string]any
	require.NoError(t, json.NewDecoder(r).Decode(&entry))
	assert.Equal(t, "api", entry["system"])
	assert.Equal(t, "request served", entry["msg"])
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() { Discard().Error("nothing") })
}

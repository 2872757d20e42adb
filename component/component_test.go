package component

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateString(t *testing.T) {
	cases := []struct {
		state State
		want  string
	}{
		{StateCreated, "created"},
		{StateInitialized, "initialized"},
		{StateStarted, "started"},
		{StateStopped, "stopped"},
		{StateFailed, "failed"},
		{State(99), "unknown"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.state.String())
	}
}

func TestGetLoggerFallsBackToDefault(t *testing.T) {
	deps := &Dependencies{}
	require.NotNil(t, deps.GetLogger())
}

func TestGetLoggerWithComponentAddsContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	deps := &Dependencies{Logger: logger}
	deps.GetLoggerWithComponent("consumer").Info("started")

	assert.Contains(t, buf.String(), `"component":"consumer"`)
}

func TestGetMetricsNeverNil(t *testing.T) {
	deps := &Dependencies{}
	m := deps.GetMetrics()
	require.NotNil(t, m)
	require.NotNil(t, m.EventsReceived)
}

func TestGetMetricsReturnsConfigured(t *testing.T) {
	deps := &Dependencies{}
	m := deps.GetMetrics()

	deps.Metrics = m
	assert.Same(t, m, deps.GetMetrics())
}

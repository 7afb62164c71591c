package telemetry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/large-farva/transition-engine/internal/events"
	"github.com/large-farva/transition-engine/internal/logging"
)

func TestKindUsesBusEventName(t *testing.T) {
	ev := NewBusEvent(events.TransitionErrorEvent{Kind: "timeout", Strategy: "simple"})
	assert.Equal(t, "transition-error", Kind(ev))
	assert.Equal(t, "heartbeat", Kind(NewHeartbeat("IDLE", "normal", time.Minute)))
	assert.Equal(t, "state", Kind(NewStateTransition("IDLE", "PREPARING", "n1")))
	assert.Equal(t, "", Kind(map[string]string{}))
}

func TestBusEventWireShape(t *testing.T) {
	b, err := json.Marshal(NewBusEvent(events.NavigationStartEvent{ToPath: "/blog"}))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "event", got["type"])
	assert.Equal(t, "core", got["component"])
	assert.Equal(t, "navigation-about-to-start", got["name"])
	assert.Equal(t, map[string]any{"to_path": "/blog"}, got["data"])
	_, err = time.Parse(time.RFC3339Nano, got["ts"].(string))
	assert.NoError(t, err)
}

func TestLogLineKeepsSourceTimestamp(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewLogLine(logging.Line{TS: ts, Level: "warn", Message: "slow", Component: "transitiond.perfmon"})
	assert.Equal(t, ts.Format(time.RFC3339Nano), l.TS)
	assert.Equal(t, "log", Kind(l))
	assert.Equal(t, "transitiond.perfmon", l.Component)
}

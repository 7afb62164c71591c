package perfmon

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/large-farva/transition-engine/internal/device"
	"github.com/large-farva/transition-engine/internal/events"
	"github.com/large-farva/transition-engine/internal/motion"
	"github.com/large-farva/transition-engine/internal/platform"
)

type fixedDevice device.Capabilities

func (f fixedDevice) Snapshot() device.Capabilities { return device.Capabilities(f) }

type harness struct {
	host     *platform.Manual
	bus      *events.Bus
	mon      *Monitor
	fallback []events.PerformanceFallbackEvent
}

func newHarness(t *testing.T, caps device.Capabilities) *harness {
	t.Helper()
	h := &harness{host: platform.NewManual(time.Time{}), bus: events.NewBus(zaptest.NewLogger(t))}
	h.mon = New(zaptest.NewLogger(t), h.host, h.bus, fixedDevice(caps), DefaultConfig())
	events.On(h.bus, events.PerformanceFallbackTriggered, func(e events.PerformanceFallbackEvent) {
		h.fallback = append(h.fallback, e)
	})
	t.Cleanup(h.mon.Destroy)
	return h
}

var capable = device.Capabilities{CPUCores: 8}

func TestMonitor_SmoothSession(t *testing.T) {
	h := newHarness(t, capable)

	h.mon.Start("slide-forward")
	assert.True(t, h.mon.Monitoring())
	h.host.Frames(60, 16*time.Millisecond)

	s, ok := h.mon.Stop()
	require.True(t, ok)
	assert.Equal(t, "slide-forward", s.Label)
	assert.Equal(t, 60, s.FrameCount)
	assert.Equal(t, 0, s.DroppedFrames)
	assert.Equal(t, 16*time.Millisecond, s.WorstFrame)
	assert.Equal(t, 960*time.Millisecond, s.Duration())
	assert.InDelta(t, 62.5, s.AverageFrameRate, 0.001)
	assert.Equal(t, 8, s.Device.CPUCores)

	assert.Empty(t, h.fallback)
	assert.False(t, h.mon.IsLowPerformance())
	assert.False(t, h.mon.Monitoring())
	assert.Equal(t, 0, h.host.PendingFrames())
	assert.InDelta(t, 62.5, h.mon.CurrentMetrics().FrameRate, 0.001)
}

func TestMonitor_StopWithoutStart(t *testing.T) {
	h := newHarness(t, capable)
	_, ok := h.mon.Stop()
	assert.False(t, ok)
	assert.Empty(t, h.mon.History())
}

func TestMonitor_DoubleStartDiscardsFirstSession(t *testing.T) {
	h := newHarness(t, capable)

	h.mon.Start("first")
	h.host.Frames(5, 50*time.Millisecond)
	secondStart := h.host.Now()
	h.mon.Start("second")
	h.host.Frames(3, 16*time.Millisecond)

	s, ok := h.mon.Stop()
	require.True(t, ok)
	assert.Equal(t, "second", s.Label)
	assert.Equal(t, secondStart, s.Start)
	assert.Equal(t, 3, s.FrameCount)
	assert.Equal(t, 0, s.DroppedFrames)
	assert.Equal(t, 16*time.Millisecond, s.WorstFrame)
	assert.Len(t, h.mon.History(), 1, "the discarded session is never recorded")
	assert.Equal(t, 0, h.host.PendingFrames())
}

func TestMonitor_JankTriggersFallbackAndCooldown(t *testing.T) {
	h := newHarness(t, capable)

	h.mon.Start("scale-up")
	h.host.Frames(10, 50*time.Millisecond)
	s, _ := h.mon.Stop()
	assert.Equal(t, 10, s.DroppedFrames)
	assert.InDelta(t, 20.0, s.AverageFrameRate, 0.001)

	require.Len(t, h.fallback, 1)
	ev := h.fallback[0]
	assert.Equal(t, "scale-up", ev.Label)
	assert.Equal(t, int64(500), ev.DurationMs)
	assert.InDelta(t, 50.0, ev.WorstFrameMs, 0.001)
	assert.Equal(t, motion.Reduced, ev.RecommendedIntensity)
	assert.Nil(t, ev.MemoryRatio)
	assert.True(t, h.mon.IsLowPerformance())

	// Still slow when the cooldown expires: the flag stays.
	h.host.Advance(5 * time.Second)
	assert.True(t, h.mon.IsLowPerformance())

	h.mon.Start("fade")
	h.host.Frames(30, 10*time.Millisecond)
	h.mon.Stop()
	h.host.Advance(5 * time.Second)
	assert.False(t, h.mon.IsLowPerformance())
	assert.Equal(t, 0, h.host.PendingTimers())
}

func TestMonitor_MemoryPressureTriggersFallback(t *testing.T) {
	h := newHarness(t, capable)
	h.mon.SetMemoryReader(MemoryFunc(func() (float64, bool) { return 0.9, true }))

	h.mon.Start("fade")
	h.host.Frames(10, 16*time.Millisecond)
	h.mon.Stop()

	require.Len(t, h.fallback, 1)
	require.NotNil(t, h.fallback[0].MemoryRatio)
	assert.InDelta(t, 0.9, *h.fallback[0].MemoryRatio, 0.0001)
}

func TestMonitor_NoFramesIsNotJank(t *testing.T) {
	h := newHarness(t, capable)
	h.mon.Start("minimal")
	h.host.Advance(100 * time.Millisecond)
	s, ok := h.mon.Stop()
	require.True(t, ok)
	assert.Equal(t, 0, s.FrameCount)
	assert.Empty(t, h.fallback)
}

func TestMonitor_HistoryIsBounded(t *testing.T) {
	h := newHarness(t, capable)
	for i := range 60 {
		h.mon.Start(fmt.Sprintf("s-%d", i))
		h.host.Frame(16 * time.Millisecond)
		h.mon.Stop()
	}
	hist := h.mon.History()
	require.Len(t, hist, 50)
	assert.Equal(t, "s-10", hist[0].Label)
	assert.Equal(t, "s-59", hist[49].Label)
}

func TestRecommend(t *testing.T) {
	known := func(fps float64, dropped int) Reading {
		return Reading{FrameRate: fps, DroppedFrames: dropped, Known: true}
	}
	tests := []struct {
		name    string
		reduced bool
		caps    device.Capabilities
		r       Reading
		want    motion.Intensity
	}{
		{"reduced motion dominates", true, device.Capabilities{CPUCores: 16}, known(60, 0), motion.Minimal},
		{"low power beats frame rate", false, device.Capabilities{CPUCores: 2, MemoryGB: device.Some(2.0)}, known(50, 0), motion.Reduced},
		{"low memory alone", false, device.Capabilities{CPUCores: 8, MemoryGB: device.Some(1.5)}, known(60, 0), motion.Reduced},
		{"low battery hint", false, device.Capabilities{CPUCores: 8, IsLowBattery: true}, known(60, 0), motion.Reduced},
		{"save data hint", false, device.Capabilities{CPUCores: 8, Connection: device.Some(device.Connection{Type: device.Conn4G, SaveData: true})}, known(60, 0), motion.Reduced},
		{"slow frames", false, device.Capabilities{CPUCores: 8}, known(25, 0), motion.Reduced},
		{"many drops", false, device.Capabilities{CPUCores: 8}, known(58, 6), motion.Reduced},
		{"middling frames", false, device.Capabilities{CPUCores: 8}, known(40, 0), motion.Normal},
		{"a few drops", false, device.Capabilities{CPUCores: 8}, known(58, 3), motion.Normal},
		{"fast and strong", false, device.Capabilities{CPUCores: 8, MemoryGB: device.Some(16.0)}, known(60, 0), motion.Enhanced},
		{"fast with unknown memory", false, device.Capabilities{CPUCores: 8}, known(55, 0), motion.Enhanced},
		{"fast but four cores", false, device.Capabilities{CPUCores: 4}, known(60, 0), motion.Normal},
		{"fast but modest memory", false, device.Capabilities{CPUCores: 8, MemoryGB: device.Some(4.0)}, known(60, 0), motion.Normal},
		{"no measurements", false, device.Capabilities{CPUCores: 8}, Reading{}, motion.Normal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Recommend(tt.reduced, tt.caps, tt.r))
		})
	}
}

func TestMonitor_RecommendIntensityFollowsReducedMotionSignal(t *testing.T) {
	h := newHarness(t, device.Capabilities{CPUCores: 2, MemoryGB: device.Some(2.0)})

	h.mon.Start("fade")
	h.host.Frames(20, 20*time.Millisecond)
	assert.InDelta(t, 50.0, h.mon.CurrentMetrics().FrameRate, 0.001)
	assert.Equal(t, motion.Reduced, h.mon.RecommendIntensity(nil))

	require.NoError(t, h.bus.Publish(events.ReducedMotionEvent{Reduced: true}))
	assert.Equal(t, motion.Minimal, h.mon.RecommendIntensity(nil))
}

func TestMonitor_ReducedMotionSourceOverridesSignal(t *testing.T) {
	h := newHarness(t, capable)
	respected := false
	h.mon.SetReducedMotionSource(func() bool { return respected })

	require.NoError(t, h.bus.Publish(events.ReducedMotionEvent{Reduced: true}))
	assert.Equal(t, motion.Normal, h.mon.RecommendIntensity(nil))

	respected = true
	assert.Equal(t, motion.Minimal, h.mon.RecommendIntensity(nil))
}

func TestMonitor_DestroyIsIdempotent(t *testing.T) {
	h := newHarness(t, capable)
	h.mon.Start("x")
	h.mon.Destroy()
	h.mon.Destroy()

	assert.Equal(t, 0, h.host.PendingFrames())
	assert.Equal(t, 0, h.bus.Listeners(events.ReducedMotionChange))
	h.mon.Start("after")
	assert.False(t, h.mon.Monitoring())
}

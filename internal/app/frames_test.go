package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFrameClockKeepsSpacing(t *testing.T) {
	var c frameClock
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var got []time.Time
	record := func(ts time.Time) { got = append(got, ts) }

	assert.Equal(t, 3, c.deliver(now, []float64{1000, 1016.5, 1050}, record))
	assert.Equal(t, []time.Time{
		now.Add(-50 * time.Millisecond),
		now.Add(-33500 * time.Microsecond),
		now,
	}, got)

	// Replayed and out-of-order timestamps are dropped.
	got = nil
	later := now.Add(100 * time.Millisecond)
	assert.Equal(t, 1, c.deliver(later, []float64{1016.5, 1050, 1066}, record))
	assert.Equal(t, []time.Time{now.Add(16 * time.Millisecond)}, got)

	assert.Zero(t, c.deliver(later, nil, record))
}

func deltas(ts []time.Time) []time.Duration {
	var out []time.Duration
	for i := 1; i < len(ts); i++ {
		out = append(out, ts[i].Sub(ts[i-1]))
	}
	return out
}

func TestFrameClockIgnoresArrivalJitter(t *testing.T) {
	var c frameClock
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var got []time.Time
	record := func(ts time.Time) { got = append(got, ts) }

	c.deliver(now, []float64{0, 16.5, 33}, record)
	// The second batch is 80ms slower to arrive than the page's own spacing.
	c.deliver(now.Add(49500*time.Microsecond+80*time.Millisecond), []float64{49.5, 66, 82.5}, record)

	step := 16500 * time.Microsecond
	assert.Equal(t, []time.Duration{step, step, step, step, step}, deltas(got))
}

func TestFrameClockNeverDeliversIntoTheFuture(t *testing.T) {
	var c frameClock
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var got []time.Time
	record := func(ts time.Time) { got = append(got, ts) }

	c.deliver(now, []float64{0, 16.5, 33}, record)
	// Arrives sooner than the first batch implied, so the offset moves back.
	arrived := now.Add(10 * time.Millisecond)
	c.deliver(arrived, []float64{49.5, 66}, record)
	assert.Equal(t, arrived, got[len(got)-1])
	assert.Equal(t, 16500*time.Microsecond, got[4].Sub(got[3]))

	got = nil
	c.deliver(arrived.Add(16500*time.Microsecond), []float64{82.5}, record)
	assert.Equal(t, []time.Time{arrived.Add(16500 * time.Microsecond)}, got)
}

func TestFrameClockFollowsPageRestart(t *testing.T) {
	var c frameClock
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var got []time.Time
	record := func(ts time.Time) { got = append(got, ts) }

	c.deliver(now, []float64{5000, 5016.5}, record)
	got = nil

	later := now.Add(2 * time.Second)
	assert.Equal(t, 2, c.deliver(later, []float64{10, 26.5}, record))
	assert.Equal(t, []time.Time{later.Add(-16500 * time.Microsecond), later}, got)

	// A stale replay inside the lag bound is still dropped.
	assert.Zero(t, c.deliver(later, []float64{10}, record))
}

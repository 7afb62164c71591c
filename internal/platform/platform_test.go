package platform

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestManual_TimersFireInDueOrder(t *testing.T) {
	m := NewManual(time.Time{})
	start := m.Now()
	var fired []string
	m.AfterFunc(300*time.Millisecond, func() { fired = append(fired, "c") })
	m.AfterFunc(100*time.Millisecond, func() {
		fired = append(fired, "a")
		m.AfterFunc(50*time.Millisecond, func() { fired = append(fired, "b") })
	})
	late := m.AfterFunc(time.Second, func() { fired = append(fired, "late") })

	m.Advance(400 * time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, fired)
	assert.Equal(t, start.Add(400*time.Millisecond), m.Now())
	assert.Equal(t, 1, m.PendingTimers())

	assert.True(t, late.Stop())
	assert.False(t, late.Stop())
	m.Advance(time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, fired)
}

func TestManual_Frames(t *testing.T) {
	m := NewManual(time.Time{})
	var stamps []time.Time
	var tick func(time.Time)
	tick = func(ts time.Time) {
		stamps = append(stamps, ts)
		m.RequestFrame(tick)
	}
	m.RequestFrame(tick)

	m.Frames(3, 16*time.Millisecond)
	require.Len(t, stamps, 3)
	assert.Equal(t, 16*time.Millisecond, stamps[1].Sub(stamps[0]))
	assert.Equal(t, 1, m.PendingFrames())

	cancelled := m.RequestFrame(func(time.Time) { t.Fatal("cancelled frame ran") })
	cancelled.Stop()
	m.Frame(16 * time.Millisecond)
}

func TestLoop_CallAndTimers(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := NewLoop(zaptest.NewLogger(t), LoopOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)

	counter := 0
	require.NoError(t, l.Call(ctx, func() { counter++ }))
	assert.Equal(t, 1, counter)

	fired := make(chan struct{})
	require.NoError(t, l.Call(ctx, func() {
		l.AfterFunc(10*time.Millisecond, func() { close(fired) })
	}))
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire on the loop")
	}

	var stopped Timer
	require.NoError(t, l.Call(ctx, func() {
		stopped = l.AfterFunc(5*time.Millisecond, func() { t.Error("stopped timer ran") })
		stopped.Stop()
	}))
	time.Sleep(20 * time.Millisecond)

	cancel()
	<-l.Done()
	assert.False(t, l.Do(func() {}))
	assert.ErrorIs(t, l.Call(context.Background(), func() {}), ErrLoopStopped)
}

func TestLoop_DeliverFrame(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := NewLoop(zaptest.NewLogger(t), LoopOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		<-l.Done()
	}()
	go l.Run(ctx)

	var got time.Time
	ts := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, l.Call(ctx, func() {
		l.RequestFrame(func(at time.Time) { got = at })
	}))
	require.NoError(t, l.Call(ctx, func() { l.DeliverFrame(ts) }))
	require.NoError(t, l.Call(ctx, func() {}))
	assert.Equal(t, ts, got)
}

func TestLoop_RecoversPanics(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := NewLoop(zaptest.NewLogger(t), LoopOptions{QueueSize: 1})
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)

	l.Do(func() { panic("bad task") })
	ran := false
	require.NoError(t, l.Call(ctx, func() { ran = true }))
	assert.True(t, ran)

	cancel()
	<-l.Done()
}

package demo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/large-farva/transition-engine/internal/events"
)

type recorder struct {
	published []events.Payload
	batches   [][]float64
}

func (r *recorder) Publish(_ context.Context, p events.Payload) error {
	r.published = append(r.published, p)
	return nil
}

func (r *recorder) Frames(_ context.Context, ts []float64) error {
	r.batches = append(r.batches, ts)
	return nil
}

func newRunner(t *testing.T) (*Runner, *recorder) {
	rec := &recorder{}
	r := New(rec, zaptest.NewLogger(t))
	r.Hold = 0
	r.Interval = 0
	return r, rec
}

func TestStepReportsOneNavigation(t *testing.T) {
	r, rec := newRunner(t)
	require.NoError(t, r.Step(context.Background()))

	require.Len(t, rec.published, 3)
	assert.Equal(t, events.NavigationStartEvent{ToPath: "/blog"}, rec.published[0])
	assert.Equal(t, events.NavigationSwappedEvent{NewPath: "/blog"}, rec.published[1])
	assert.Equal(t, events.NavigationLoadedEvent{}, rec.published[2])

	require.Len(t, rec.batches, 1)
	assert.Len(t, rec.batches[0], smoothFrames)
	for i := 1; i < len(rec.batches[0]); i++ {
		assert.Greater(t, rec.batches[0][i], rec.batches[0][i-1])
	}
}

func TestTourIncludesJankAndBack(t *testing.T) {
	r, rec := newRunner(t)
	for range tour {
		require.NoError(t, r.Step(context.Background()))
	}

	require.Len(t, rec.batches, len(tour))
	assert.Len(t, rec.batches[2], jankFrames)
	assert.InDelta(t, jankFrame, rec.batches[2][1]-rec.batches[2][0], 1.0)

	assert.Equal(t, events.BackForwardEvent{NewPath: "/blog/view-transitions-in-practice"}, rec.published[9])

	// The tour wraps around.
	require.NoError(t, r.Step(context.Background()))
	assert.Equal(t, events.NavigationStartEvent{ToPath: "/blog"}, rec.published[len(rec.published)-3])
}

func TestRunStopsOnCancel(t *testing.T) {
	r, rec := newRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	steps := 0
	r.Client = clientFunc{rec: rec, after: func() {
		steps++
		if steps == 6 {
			cancel()
		}
	}}
	assert.NoError(t, r.Run(ctx))
	assert.GreaterOrEqual(t, len(rec.published), 6)
}

type clientFunc struct {
	rec   *recorder
	after func()
}

func (c clientFunc) Publish(ctx context.Context, p events.Payload) error {
	defer c.after()
	return c.rec.Publish(ctx, p)
}

func (c clientFunc) Frames(ctx context.Context, ts []float64) error { return c.rec.Frames(ctx, ts) }

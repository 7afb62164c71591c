// Package demo plays the part of a page so the daemon, CLI, and event
// stream can be exercised end-to-end without a browser. The runner walks a
// fixed tour of the site, reporting frames the way the client shim would,
// and injects jank on one stop so the fallback path fires too.
package demo

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/large-farva/transition-engine/internal/events"
)

// Client is what the runner drives: the same calls a page shim makes.
type Client interface {
	Publish(ctx context.Context, p events.Payload) error
	Frames(ctx context.Context, timestampsMs []float64) error
}

type step struct {
	path string
	back bool // arrive through the browser's back button
	jank bool // report slow frames for this navigation
}

var tour = []step{
	{path: "/blog"},
	{path: "/blog/view-transitions-in-practice"},
	{path: "/tools/color", jank: true},
	{path: "/blog/view-transitions-in-practice", back: true},
	{path: "/about"},
	{path: "/contact"},
	{path: "/search"},
	{path: "/"},
}

const (
	smoothFrame  = 16.7
	jankFrame    = 70.0
	smoothFrames = 18
	jankFrames   = 8
)

// Runner walks the tour on a configurable interval.
type Runner struct {
	Client   Client
	Interval time.Duration // pause between navigations
	Hold     time.Duration // how long each transition is left running
	Log      *zap.Logger

	clockMs float64 // the simulated page's performance.now()
	stop    int
}

// New creates a demo runner with sensible defaults.
func New(client Client, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		Client:   client,
		Interval: 2 * time.Second,
		Hold:     300 * time.Millisecond,
		Log:      logger.Named("demo"),
	}
}

// Run navigates one stop immediately, then one per Interval, cycling the
// tour until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.Log.Info("demo mode active, touring the site", zap.Int("stops", len(tour)))
	for {
		if err := r.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.Log.Warn("demo step failed", zap.Error(err))
		}
		if !sleepOrCancel(ctx, r.Interval) {
			return nil
		}
	}
}

// Step performs the next navigation of the tour: announce it, report the
// frames of the running transition, then report the swap and load.
func (r *Runner) Step(ctx context.Context) error {
	s := tour[r.stop%len(tour)]
	r.stop++

	var start events.Payload = events.NavigationStartEvent{ToPath: s.path}
	if s.back {
		start = events.BackForwardEvent{NewPath: s.path}
	}
	if err := r.Client.Publish(ctx, start); err != nil {
		return err
	}

	if err := r.Client.Frames(ctx, r.frames(s.jank)); err != nil {
		return err
	}
	if !sleepOrCancel(ctx, r.Hold) {
		return ctx.Err()
	}

	if err := r.Client.Publish(ctx, events.NavigationSwappedEvent{NewPath: s.path}); err != nil {
		return err
	}
	r.Log.Debug("demo navigation", zap.String("path", s.path), zap.Bool("jank", s.jank))
	return r.Client.Publish(ctx, events.NavigationLoadedEvent{})
}

// frames advances the simulated clock and returns its frame timestamps,
// with a little jitter so the stream looks like a real page.
func (r *Runner) frames(jank bool) []float64 {
	n, spacing := smoothFrames, smoothFrame
	if jank {
		n, spacing = jankFrames, jankFrame
	}
	out := make([]float64, n)
	for i := range out {
		r.clockMs += spacing + (rand.Float64()-0.5)*1.0
		out[i] = r.clockMs
	}
	return out
}

func sleepOrCancel(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

package platform

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrLoopStopped is returned when work is submitted after the loop exited.
var ErrLoopStopped = errors.New("host loop stopped")

// LoopOptions configures a Loop.
type LoopOptions struct {
	// QueueSize bounds the pending work channel.
	QueueSize int
	// FrameRate, when > 0, drives frame callbacks from an internal ticker.
	// When 0, frames only arrive through DeliverFrame (client-reported).
	FrameRate int
}

// Loop is the production Host. A single goroutine owns all core state:
// HTTP handlers, timers and frame sources submit closures that run there
// one at a time, so the core components stay lock-free.
type Loop struct {
	log       *zap.Logger
	work      chan func()
	done      chan struct{}
	frameRate int

	// Only touched on the loop goroutine.
	frames []*loopTimer
}

type loopTimer struct {
	t       *time.Timer
	frameFn func(time.Time)
	pending bool
}

// Stop must be called from the loop goroutine, which is where every core
// component runs.
func (t *loopTimer) Stop() bool {
	if !t.pending {
		return false
	}
	t.pending = false
	if t.t != nil {
		t.t.Stop()
	}
	return true
}

// NewLoop allocates a loop. Call Run in a goroutine to start it.
func NewLoop(logger *zap.Logger, opts LoopOptions) *Loop {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		log:       logger.Named("loop"),
		work:      make(chan func(), opts.QueueSize),
		done:      make(chan struct{}),
		frameRate: opts.FrameRate,
	}
}

// Run processes submitted work, and ticker frames when configured, until
// ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)

	var tick <-chan time.Time
	if l.frameRate > 0 {
		t := time.NewTicker(time.Second / time.Duration(l.frameRate))
		defer t.Stop()
		tick = t.C
	}

	l.log.Debug("loop started", zap.Int("frame_rate", l.frameRate))
	for {
		select {
		case <-ctx.Done():
			l.log.Debug("loop stopped")
			return
		case fn := <-l.work:
			l.run(fn)
		case ts := <-tick:
			l.DeliverFrame(ts)
		}
	}
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("loop task panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	fn()
}

// Do queues fn to run on the loop goroutine. It reports false if the loop
// has already stopped.
func (l *Loop) Do(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.work <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Call runs fn on the loop goroutine and waits for it to finish.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Do(func() {
		defer close(finished)
		fn()
	}) {
		return ErrLoopStopped
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrLoopStopped
	}
}

func (l *Loop) Now() time.Time { return time.Now() }

func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	lt := &loopTimer{pending: true}
	lt.t = time.AfterFunc(d, func() {
		l.Do(func() {
			if !lt.pending {
				return
			}
			lt.pending = false
			fn()
		})
	})
	return lt
}

func (l *Loop) RequestFrame(fn func(time.Time)) Timer {
	lt := &loopTimer{frameFn: fn, pending: true}
	l.frames = append(l.frames, lt)
	return lt
}

// DeliverFrame runs every pending frame callback with ts. It must run on
// the loop goroutine; the HTTP frame ingress wraps it in Do.
func (l *Loop) DeliverFrame(ts time.Time) {
	pending := l.frames
	l.frames = nil
	for _, f := range pending {
		if !f.pending {
			continue
		}
		f.pending = false
		f.frameFn(ts)
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

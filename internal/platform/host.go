// Package platform is the adapter between the transition core and whatever
// hosts it. The core only ever asks the host for the time, for a callback
// after a delay, and for a callback on the next animation frame; everything
// else arrives as events on the bus.
package platform

import "time"

// Timer is a pending callback. Stop cancels it and reports whether it was
// still pending.
type Timer interface {
	Stop() bool
}

// Host is the scheduling surface every component is built on. All
// callbacks run on the host's single logical thread, so components never
// need locks around their own state.
type Host interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
	RequestFrame(fn func(ts time.Time)) Timer
}

// stoppedTimer is returned when a callback could not be scheduled.
type stoppedTimer struct{}

func (stoppedTimer) Stop() bool { return false }

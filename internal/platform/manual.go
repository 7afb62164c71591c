package platform

import "time"

// Manual is a deterministic Host. Time only moves when Advance or Frame is
// called, which makes every timer and frame callback reproducible in tests
// and in offline replays.
type Manual struct {
	now    time.Time
	seq    uint64
	timers []*manualTimer
	frames []*manualTimer
}

type manualTimer struct {
	due     time.Time
	seq     uint64
	fn      func()
	frameFn func(time.Time)
	pending bool
}

func (t *manualTimer) Stop() bool {
	if !t.pending {
		return false
	}
	t.pending = false
	return true
}

// NewManual creates a host whose clock starts at start. A zero start uses a
// fixed reference instant.
func NewManual(start time.Time) *Manual {
	if start.IsZero() {
		start = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	}
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time { return m.now }

func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	if d < 0 {
		d = 0
	}
	m.seq++
	t := &manualTimer{due: m.now.Add(d), seq: m.seq, fn: fn, pending: true}
	m.timers = append(m.timers, t)
	return t
}

func (m *Manual) RequestFrame(fn func(time.Time)) Timer {
	m.seq++
	t := &manualTimer{seq: m.seq, frameFn: fn, pending: true}
	m.frames = append(m.frames, t)
	return t
}

// Advance moves the clock forward by d, firing every timer that falls due
// in order of due time. Timers scheduled by callbacks fire too if they fall
// inside the window.
func (m *Manual) Advance(d time.Duration) {
	end := m.now.Add(d)
	for {
		next := m.nextDue(end)
		if next == nil {
			break
		}
		if next.due.After(m.now) {
			m.now = next.due
		}
		next.pending = false
		next.fn()
	}
	m.now = end
	m.compact()
}

func (m *Manual) nextDue(end time.Time) *manualTimer {
	var best *manualTimer
	for _, t := range m.timers {
		if !t.pending || t.due.After(end) {
			continue
		}
		if best == nil || t.due.Before(best.due) || (t.due.Equal(best.due) && t.seq < best.seq) {
			best = t
		}
	}
	return best
}

func (m *Manual) compact() {
	live := m.timers[:0]
	for _, t := range m.timers {
		if t.pending {
			live = append(live, t)
		}
	}
	clear(m.timers[len(live):])
	m.timers = live
}

// Frame advances the clock by delta and then runs every pending frame
// callback with the new time, as a display refresh would.
func (m *Manual) Frame(delta time.Duration) {
	m.Advance(delta)
	pending := m.frames
	m.frames = nil
	for _, f := range pending {
		if !f.pending {
			continue
		}
		f.pending = false
		f.frameFn(m.now)
	}
}

// Frames runs n frames spaced delta apart.
func (m *Manual) Frames(n int, delta time.Duration) {
	for range n {
		m.Frame(delta)
	}
}

// PendingTimers reports how many timers are still armed.
func (m *Manual) PendingTimers() int {
	n := 0
	for _, t := range m.timers {
		if t.pending {
			n++
		}
	}
	return n
}

// PendingFrames reports how many frame callbacks are waiting.
func (m *Manual) PendingFrames() int {
	n := 0
	for _, f := range m.frames {
		if f.pending {
			n++
		}
	}
	return n
}

package events

// Signal is a typed listener list for component-local change notifications
// that do not travel over the Bus. Like the Bus it is single-threaded.
type Signal[T any] struct {
	entries []*signalEntry[T]
}

type signalEntry[T any] struct {
	fn     func(T)
	active bool
}

// Add registers fn and returns a function that removes exactly this
// registration. The returned function is idempotent.
func (s *Signal[T]) Add(fn func(T)) (remove func()) {
	e := &signalEntry[T]{fn: fn, active: true}
	s.entries = append(s.entries, e)
	return func() {
		if !e.active {
			return
		}
		e.active = false
		for i, cur := range s.entries {
			if cur == e {
				s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
				return
			}
		}
	}
}

// Emit calls every listener registered at the time of the call, in order.
// Listeners removed during delivery are skipped.
func (s *Signal[T]) Emit(v T) {
	snapshot := append([]*signalEntry[T](nil), s.entries...)
	for _, e := range snapshot {
		if e.active {
			e.fn(v)
		}
	}
}

// Len is the number of attached listeners.
func (s *Signal[T]) Len() int { return len(s.entries) }

// Reset detaches every listener.
func (s *Signal[T]) Reset() {
	for _, e := range s.entries {
		e.active = false
	}
	s.entries = nil
}

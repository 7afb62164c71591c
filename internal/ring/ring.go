// Package ring provides a generic fixed-capacity circular buffer. Once the
// buffer is full every Push evicts the oldest entry, so the contents always
// hold the most recent items in insertion order.
//
// A Buffer is owned by exactly one component and is not safe for concurrent
// use; callers that share one across goroutines must guard it themselves.
package ring

// Buffer is a FIFO-evicting circular buffer.
type Buffer[T any] struct {
	entries  []T
	capacity int
	head     int // index where the next write goes once full
	total    int64
}

// New creates a buffer holding at most capacity entries. A capacity below
// one is treated as one.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{
		entries:  make([]T, 0, capacity),
		capacity: capacity,
	}
}

// Push appends v, evicting the oldest entry if the buffer is at capacity.
func (b *Buffer[T]) Push(v T) {
	if len(b.entries) < b.capacity {
		b.entries = append(b.entries, v)
	} else {
		b.entries[b.head] = v
	}
	b.head = (b.head + 1) % b.capacity
	b.total++
}

// All returns a copy of the contents, oldest first.
func (b *Buffer[T]) All() []T {
	out := make([]T, len(b.entries))
	if len(b.entries) < b.capacity {
		copy(out, b.entries)
		return out
	}
	n := copy(out, b.entries[b.head:])
	copy(out[n:], b.entries[:b.head])
	return out
}

// Last returns the most recently pushed entry.
func (b *Buffer[T]) Last() (T, bool) {
	var zero T
	if len(b.entries) == 0 {
		return zero, false
	}
	idx := (b.head - 1 + b.capacity) % b.capacity
	if len(b.entries) < b.capacity {
		idx = len(b.entries) - 1
	}
	return b.entries[idx], true
}

// Tail returns up to n of the most recent entries, oldest first.
func (b *Buffer[T]) Tail(n int) []T {
	all := b.All()
	if n >= len(all) || n < 0 {
		return all
	}
	return all[len(all)-n:]
}

// Len reports how many entries are stored.
func (b *Buffer[T]) Len() int { return len(b.entries) }

// Cap reports the maximum number of entries.
func (b *Buffer[T]) Cap() int { return b.capacity }

// Total reports how many entries have ever been pushed, evicted ones included.
func (b *Buffer[T]) Total() int64 { return b.total }

// Clear drops every entry. The lifetime total is kept.
func (b *Buffer[T]) Clear() {
	clear(b.entries)
	b.entries = b.entries[:0]
	b.head = 0
}

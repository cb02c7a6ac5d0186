// Package fifo implements the fixed-capacity queue used for per-endpoint
// packet buffering. Writes land in a provisional run that becomes visible to
// readers only after Commit; Discard rolls the run back untouched. This is
// what lets a packet with a failed CRC vanish without corrupting the byte
// stream already handed to the consumer.
package fifo

// Transactional is a fixed-capacity FIFO with a deferred-commit write side.
// The zero value is not usable; construct with New.
type Transactional[T any] struct {
	buf       []T
	head      int // index of the oldest committed element
	committed int // elements visible to Read
	pending   int // provisionally written, not yet committed
}

// New returns an empty FIFO holding at most capacity elements, counting both
// committed and pending writes.
func New[T any](capacity int) *Transactional[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Transactional[T]{buf: make([]T, capacity)}
}

// Write provisionally appends v. It reports false, leaving the FIFO
// unchanged, when no space remains for the write run.
func (f *Transactional[T]) Write(v T) bool {
	if f.committed+f.pending >= len(f.buf) {
		return false
	}
	f.buf[(f.head+f.committed+f.pending)%len(f.buf)] = v
	f.pending++
	return true
}

// Commit publishes every write since the last Commit or Discard, in order.
func (f *Transactional[T]) Commit() {
	f.committed += f.pending
	f.pending = 0
}

// Discard drops every write since the last Commit or Discard. Committed
// contents are untouched.
func (f *Transactional[T]) Discard() {
	f.pending = 0
}

// Read pops the oldest committed element. ok is false when nothing committed
// is available; pending writes are never readable.
func (f *Transactional[T]) Read() (v T, ok bool) {
	if f.committed == 0 {
		return v, false
	}
	v = f.buf[f.head]
	f.head = (f.head + 1) % len(f.buf)
	f.committed--
	return v, true
}

// Peek returns the oldest committed element without consuming it.
func (f *Transactional[T]) Peek() (v T, ok bool) {
	if f.committed == 0 {
		return v, false
	}
	return f.buf[f.head], true
}

// Len is the number of committed, readable elements.
func (f *Transactional[T]) Len() int { return f.committed }

// Empty reports whether no committed element is readable.
func (f *Transactional[T]) Empty() bool { return f.committed == 0 }

// SpaceAvailable is the room left for further writes, counting the pending
// run against capacity.
func (f *Transactional[T]) SpaceAvailable() int {
	return len(f.buf) - f.committed - f.pending
}

// Pending is the size of the current uncommitted write run.
func (f *Transactional[T]) Pending() int { return f.pending }

// Cap is the fixed capacity.
func (f *Transactional[T]) Cap() int { return len(f.buf) }

// Reset clears committed and pending contents alike.
func (f *Transactional[T]) Reset() {
	f.head = 0
	f.committed = 0
	f.pending = 0
}

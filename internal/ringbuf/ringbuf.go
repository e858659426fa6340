// Package ringbuf provides a generic fixed-capacity ring buffer.
//
// The buffer never grows past its configured capacity: pushing onto a full
// buffer evicts the oldest element in O(1). It is the backing store for the
// VAD energy/variance histories and for the capture session's overlap seeds,
// all of which must stay bounded under sustained input.
//
// A Ring is not safe for concurrent use; callers serialize access.
package ringbuf

// Ring is a fixed-capacity FIFO ring buffer of T.
type Ring[T any] struct {
	buf   []T
	head  int // index of the oldest element
	count int
}

// New creates a Ring with the given capacity. Panics if capacity is not
// positive, since a zero-capacity history is always a configuration bug.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("ringbuf: capacity must be positive")
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v, evicting the oldest element when the buffer is full.
func (r *Ring[T]) Push(v T) {
	tail := (r.head + r.count) % len(r.buf)
	r.buf[tail] = v
	if r.count < len(r.buf) {
		r.count++
	} else {
		r.head = (r.head + 1) % len(r.buf)
	}
}

// Len returns the number of elements currently stored.
func (r *Ring[T]) Len() int {
	return r.count
}

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// At returns the i-th element in FIFO order (0 = oldest).
// Panics if i is out of range.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.count {
		panic("ringbuf: index out of range")
	}
	return r.buf[(r.head+i)%len(r.buf)]
}

// Last returns up to n most recent elements in FIFO order. When fewer than n
// elements are stored, all of them are returned.
func (r *Ring[T]) Last(n int) []T {
	if n > r.count {
		n = r.count
	}
	out := make([]T, 0, n)
	for i := r.count - n; i < r.count; i++ {
		out = append(out, r.At(i))
	}
	return out
}

// Slice returns all elements in FIFO order as a fresh slice.
func (r *Ring[T]) Slice() []T {
	return r.Last(r.count)
}

// PopOldest removes and returns the oldest element. The second return value
// is false when the buffer is empty.
func (r *Ring[T]) PopOldest() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	v := r.buf[r.head]
	r.buf[r.head] = zero
	r.head = (r.head + 1) % len(r.buf)
	r.count--
	return v, true
}

// Reset discards all elements while keeping the allocated capacity.
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head = 0
	r.count = 0
}

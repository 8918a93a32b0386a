// Package ringbuf provides the bounded FIFO used for motion averaging and
// label voting. Pushing onto a full ring evicts the oldest entry.
package ringbuf

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// Ring is a fixed-capacity FIFO. The zero value is not usable; call New.
type Ring[T any] struct {
	buf   []T
	start int // index of the oldest element
	n     int
}

// New creates a ring holding at most capacity values.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		panic(fmt.Sprintf("ringbuf: capacity must be positive, got %d", capacity))
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v, evicting the oldest value when the ring is full.
func (r *Ring[T]) Push(v T) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = v
		r.n++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

// Len returns the number of values held.
func (r *Ring[T]) Len() int { return r.n }

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Values returns a copy of the contents, oldest first.
func (r *Ring[T]) Values() []T {
	out := make([]T, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Mean returns the arithmetic mean of the ring, or 0 when empty.
func Mean(r *Ring[float64]) float64 {
	if r.Len() == 0 {
		return 0
	}
	return stat.Mean(r.Values(), nil)
}

// Majority returns the most frequent value in the ring. Ties go to the
// tied value whose latest occurrence is newest. ok is false for an empty ring.
func Majority[T comparable](r *Ring[T]) (winner T, ok bool) {
	values := r.Values()
	if len(values) == 0 {
		return winner, false
	}

	counts := make(map[T]int, len(values))
	last := make(map[T]int, len(values))
	for i, v := range values {
		counts[v]++
		last[v] = i
	}

	best := -1
	for v, c := range counts {
		if c > best || (c == best && last[v] > last[winner]) {
			winner, best = v, c
		}
	}
	return winner, true
}

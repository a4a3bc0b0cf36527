// Package commands carries commands from the non-real-time side into the control loop without locks.
package commands

import (
	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// RingBuffer is a bounded single-producer single-consumer queue. Push is only called by the producer and
// Poll, DrainNewest and Flush only by the consumer.
type RingBuffer[T any] struct {
	buf  []T
	mask uint64
	// head is the next slot to read, tail the next slot to write. Both only grow.
	head atomic.Uint64
	tail atomic.Uint64
}

// NewRingBuffer returns a buffer holding capacity elements. capacity must be a power of two.
func NewRingBuffer[T any](capacity int) (*RingBuffer[T], error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, errors.Errorf("ring buffer capacity must be a positive power of two, got %d", capacity)
	}
	return &RingBuffer[T]{
		buf:  make([]T, capacity),
		mask: uint64(capacity - 1),
	}, nil
}

// Cap returns the capacity.
func (r *RingBuffer[T]) Cap() int {
	return len(r.buf)
}

// Len returns the number of queued elements.
func (r *RingBuffer[T]) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Push appends v. It returns false and drops v when the buffer is full.
func (r *RingBuffer[T]) Push(v T) bool {
	tail := r.tail.Load()
	if tail-r.head.Load() >= uint64(len(r.buf)) {
		return false
	}
	r.buf[tail&r.mask] = v
	r.tail.Store(tail + 1)
	return true
}

// Poll removes and returns the oldest element.
func (r *RingBuffer[T]) Poll() (T, bool) {
	var zero T
	head := r.head.Load()
	if head == r.tail.Load() {
		return zero, false
	}
	v := r.buf[head&r.mask]
	r.buf[head&r.mask] = zero
	r.head.Store(head + 1)
	return v, true
}

// DrainNewest empties the buffer and returns the newest element. Older elements are discarded.
func (r *RingBuffer[T]) DrainNewest() (T, bool) {
	var zero T
	head := r.head.Load()
	tail := r.tail.Load()
	if head == tail {
		return zero, false
	}
	v := r.buf[(tail-1)&r.mask]
	for i := head; i != tail; i++ {
		r.buf[i&r.mask] = zero
	}
	r.head.Store(tail)
	return v, true
}

// Flush discards every queued element and returns how many there were.
func (r *RingBuffer[T]) Flush() int {
	var zero T
	head := r.head.Load()
	tail := r.tail.Load()
	for i := head; i != tail; i++ {
		r.buf[i&r.mask] = zero
	}
	r.head.Store(tail)
	return int(tail - head)
}

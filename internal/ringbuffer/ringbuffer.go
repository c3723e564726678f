// Package ringbuffer implements the mutex-free, single-producer/single-
// consumer ring buffer sitting between the cooperative loop and the
// real-time audio callback. The render callback (internal/audioio) must
// never block or take a lock that a cooperative-loop goroutine might be
// holding during a stop-the-world pause, so head and tail are bare atomic
// indices and both ends are non-blocking.
package ringbuffer

import "sync/atomic"

// Ring is a bounded SPSC queue of T. Capacity is rounded up to the next
// power of two so the index-to-slot mapping is a mask, not a modulo.
type Ring[T any] struct {
	buf  []T
	mask uint64
	head atomic.Uint64 // next slot the consumer will read
	tail atomic.Uint64 // next slot the producer will write
}

// New returns a Ring that holds at most capacity elements. capacity must be
// positive; it is rounded up to the next power of two internally.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	size := 1
	for size < capacity {
		size <<= 1
	}
	return &Ring[T]{
		buf:  make([]T, size),
		mask: uint64(size - 1),
	}
}

// TryPush appends v if the ring is not full. It is safe to call from the
// single producer only. Returns false without blocking when full.
func (r *Ring[T]) TryPush(v T) bool {
	tail := r.tail.Load()
	head := r.head.Load()
	if tail-head >= uint64(len(r.buf)) {
		return false
	}
	r.buf[tail&r.mask] = v
	r.tail.Store(tail + 1)
	return true
}

// TryPop removes and returns the oldest element if the ring is not empty.
// Called from the real-time audio callback: it never blocks and never
// allocates. The head index advances by compare-and-swap because the
// producer may concurrently evict the same slot (PushEvicting); a lost race
// means the element was already evicted, so the pop retries on the next
// slot.
func (r *Ring[T]) TryPop() (T, bool) {
	for {
		head := r.head.Load()
		tail := r.tail.Load()
		if head == tail {
			var zero T
			return zero, false
		}
		v := r.buf[head&r.mask]
		if r.head.CompareAndSwap(head, head+1) {
			return v, true
		}
	}
}

// Peek returns the oldest element without removing it. Used by the render
// callback to inspect a frame's deadline before deciding whether to pop it.
func (r *Ring[T]) Peek() (T, bool) {
	head := r.head.Load()
	tail := r.tail.Load()
	if head == tail {
		var zero T
		return zero, false
	}
	return r.buf[head&r.mask], true
}

// Drop discards the oldest element, if any. Used both by the render
// callback (discarding an incomplete or late frame) and by the producer's
// drop-oldest policy on a full queue. It advances head without reading the
// slot, so either side may call it.
func (r *Ring[T]) Drop() bool {
	for {
		head := r.head.Load()
		if head == r.tail.Load() {
			return false
		}
		if r.head.CompareAndSwap(head, head+1) {
			return true
		}
	}
}

// Clear discards every queued element. Not part of the lock-free SPSC
// contract in the steady state (it moves the consumer's head index from the
// producer side), so callers must only use it when the producer side is
// quiescent, e.g. between streamer connections, before any new frame has
// been pushed.
func (r *Ring[T]) Clear() {
	r.head.Store(r.tail.Load())
}

// Len reports the current number of queued elements. Approximate under
// concurrent access from the other side, but exact from the caller's own
// side (the producer always sees a Len that only the consumer can shrink,
// and vice versa).
func (r *Ring[T]) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Cap reports the ring's fixed capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// PushEvicting pushes v, first evicting the oldest element if the ring is
// full. On a monotonically deadlined stream the oldest queued frame is the
// most likely to already be stale, so evicting it rather than blocking
// keeps the queue draining toward fresh, renderable frames.
func (r *Ring[T]) PushEvicting(v T) {
	for !r.TryPush(v) {
		r.Drop()
	}
}

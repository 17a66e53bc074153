// Package ring provides the bounded single-producer/single-consumer queue
// that connects the feed thread to the decision thread. It is the only
// structure shared between them: slot sequence numbers with acquire/release
// atomics replace any lock, and both Push and Pop return immediately.
package ring

import "sync/atomic"

// pad keeps the producer and consumer cursors on separate cache lines.
type pad [56]byte

type slot[T any] struct {
	seq atomic.Uint64
	val T
}

// Ring is a fixed-capacity SPSC queue. Exactly one goroutine may call Push
// and exactly one may call Pop; the cursors themselves are not atomic
// because each is owned by a single side. Capacity is a power of two so the
// slot index is a mask, not a modulo.
type Ring[T any] struct {
	_    pad
	head uint64 // consumer cursor
	_    pad
	tail uint64 // producer cursor
	_    pad
	mask uint64
	step uint64
	buf  []slot[T]

	dropped atomic.Uint64
}

// New returns a ring with the given capacity, which must be a power of two.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic("ring: capacity must be a positive power of two")
	}
	r := &Ring[T]{
		mask: uint64(capacity - 1),
		step: uint64(capacity),
		buf:  make([]slot[T], capacity),
	}
	for i := range r.buf {
		r.buf[i].seq.Store(uint64(i))
	}
	return r
}

// Push enqueues v if a slot is free. On a full ring it drops the value,
// counts the drop, and returns false; the producer never blocks.
func (r *Ring[T]) Push(v T) bool {
	t := r.tail
	s := &r.buf[t&r.mask]
	if s.seq.Load() != t {
		r.dropped.Add(1)
		return false
	}
	s.val = v
	s.seq.Store(t + 1)
	r.tail = t + 1
	return true
}

// Pop dequeues the oldest value if one is available. On an empty ring it
// returns immediately with ok false; the consumer never waits.
func (r *Ring[T]) Pop() (v T, ok bool) {
	h := r.head
	s := &r.buf[h&r.mask]
	if s.seq.Load() != h+1 {
		return v, false
	}
	v = s.val
	var zero T
	s.val = zero
	s.seq.Store(h + r.step)
	r.head = h + 1
	return v, true
}

// Dropped returns the total number of rejected pushes. Safe from any
// goroutine.
func (r *Ring[T]) Dropped() uint64 { return r.dropped.Load() }

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

package ringbuf

import (
	"sync/atomic"
)

// RingBuf is a fixed-capacity single-producer/single-consumer ring. One slot
// is kept empty to tell a full ring from an empty one, so a ring created with
// size n holds n-1 values.
type RingBuf[V any] struct {
	ring []V

	read, write atomic.Int32
}

func NewRingBuf[V any](sz int) *RingBuf[V] {
	if sz < 2 {
		sz = 2
	}

	return &RingBuf[V]{
		ring: make([]V, sz),
	}
}

func (r *RingBuf[V]) next(v int32) int32 {
	return (v + 1) % int32(len(r.ring))
}

func (r *RingBuf[V]) Pop() (V, bool) {
	rv := r.read.Load()
	wv := r.write.Load()

	if rv == wv {
		var v V
		return v, false
	}

	val := r.ring[rv]
	r.read.Store(r.next(rv))

	return val, true
}

// Push appends v, failing when the ring is full.
func (r *RingBuf[V]) Push(v V) bool {
	if r.FullP() {
		return false
	}

	wv := r.write.Load()

	r.ring[wv] = v
	r.write.Store(r.next(wv))

	return true
}

// Record appends v, discarding the oldest value when the ring is full. It
// reports whether a value was discarded.
func (r *RingBuf[V]) Record(v V) bool {
	dropped := false

	if r.FullP() {
		r.read.Store(r.next(r.read.Load()))
		dropped = true
	}

	wv := r.write.Load()
	r.ring[wv] = v
	r.write.Store(r.next(wv))

	return dropped
}

// Snapshot returns the readable values, oldest first, without consuming them.
func (r *RingBuf[V]) Snapshot() []V {
	rv := r.read.Load()
	wv := r.write.Load()

	out := make([]V, 0, r.Readable())
	for i := rv; i != wv; i = r.next(i) {
		out = append(out, r.ring[i])
	}

	return out
}

func (r *RingBuf[V]) EmptyP() bool {
	return r.read.Load() == r.write.Load()
}

func (r *RingBuf[V]) FullP() bool {
	return r.read.Load() == r.next(r.write.Load())
}

func (r *RingBuf[V]) Readable() int {
	rv := r.read.Load()
	wv := r.write.Load()

	if rv > wv {
		return int(wv + int32(len(r.ring)) - rv)
	}

	return int(wv - rv)
}

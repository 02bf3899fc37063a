// Package ring is a lock-free single-producer single-consumer ring of
// float32 audio samples.
package ring

import (
	"sync/atomic"
)

// Ring bridges one producer goroutine to one consumer goroutine. Head and
// Tail are monotonically increasing sample counters; the slot for counter n
// is n % capacity.
type Ring struct {
	buf  []float32
	size uint64
	head atomic.Uint64 // next write
	tail atomic.Uint64 // next read
}

// New returns a ring holding up to capacity samples. Capacity is at least one.
func New(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{
		buf:  make([]float32, capacity),
		size: uint64(capacity),
	}
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int { return int(r.size) }

// Len returns the number of samples waiting to be read.
func (r *Ring) Len() int {
	return int(r.head.Load() - r.tail.Load())
}

// Push appends v. It returns false without blocking when the ring is full.
// Only the producer may call Push.
func (r *Ring) Push(v float32) bool {
	head := r.head.Load()
	if head-r.tail.Load() >= r.size {
		return false
	}
	r.buf[head%r.size] = v
	r.head.Store(head + 1)
	return true
}

// PushAll pushes samples one at a time and returns how many were dropped
// because the ring was full.
func (r *Ring) PushAll(samples []float32) (dropped int) {
	for _, v := range samples {
		if !r.Push(v) {
			dropped++
		}
	}
	return dropped
}

// Pop removes the oldest sample. Only the consumer may call Pop.
func (r *Ring) Pop() (float32, bool) {
	tail := r.tail.Load()
	if tail == r.head.Load() {
		return 0, false
	}
	v := r.buf[tail%r.size]
	r.tail.Store(tail + 1)
	return v, true
}

// Next returns the oldest sample or silence when the ring is empty.
func (r *Ring) Next() float32 {
	v, _ := r.Pop()
	return v
}

// Fill copies up to len(dst) samples into dst, padding with silence, and
// returns how many real samples were read.
func (r *Ring) Fill(dst []float32) int {
	tail := r.tail.Load()
	avail := r.head.Load() - tail
	n := uint64(len(dst))
	if avail < n {
		n = avail
	}
	for i := uint64(0); i < n; i++ {
		dst[i] = r.buf[(tail+i)%r.size]
	}
	r.tail.Store(tail + n)
	for i := n; i < uint64(len(dst)); i++ {
		dst[i] = 0
	}
	return int(n)
}

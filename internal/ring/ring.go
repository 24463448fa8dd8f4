// Package ring implements a bounded single-producer/single-consumer
// queue used for the compositor's input and resize queues and the
// frame dumper's job queue described in §5.
//
// The original implementation's equivalent (util/queues.hpp) is an
// unimplemented skeleton gated behind a disabled
// GOGGLES_THREADING_ENABLED build flag (every method is a no-op
// returning false/zero). There is no real algorithm to port; this is
// an original implementation following Go's standard atomic-counter
// SPSC pattern (as used by rigtorp::SPSCQueue and similar lock-free
// ring buffers), sized to a power of two so the index mask is a
// single AND rather than a modulo.
package ring

import "sync/atomic"

// Queue is a bounded SPSC ring buffer. A Queue must not be copied
// after first use. Exactly one goroutine may call Push and exactly
// one (possibly different) goroutine may call Pop.
type Queue[T any] struct {
	mask  uint64
	slots []slot[T]
	head  atomic.Uint64 // next index to Pop
	tail  atomic.Uint64 // next index to Push
}

type slot[T any] struct {
	seq   atomic.Uint64
	value T
}

// New creates a Queue with capacity rounded up to the next power of
// two (minimum 2).
func New[T any](capacity int) *Queue[T] {
	n := nextPow2(capacity)
	q := &Queue[T]{
		mask:  uint64(n - 1),
		slots: make([]slot[T], n),
	}
	for i := range q.slots {
		q.slots[i].seq.Store(uint64(i))
	}
	return q
}

func nextPow2(n int) int {
	if n < 2 {
		return 2
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Push enqueues v. It returns false if the queue is full, in which
// case the caller is expected to count the drop (see
// capture/dump.Dumper.DroppedJobs for the concrete use of this
// signal).
func (q *Queue[T]) Push(v T) bool {
	pos := q.tail.Load()
	s := &q.slots[pos&q.mask]
	if s.seq.Load() != pos {
		return false // full
	}
	s.value = v
	s.seq.Store(pos + 1)
	q.tail.Store(pos + 1)
	return true
}

// Pop dequeues the oldest value. It returns false if the queue is
// empty.
func (q *Queue[T]) Pop() (T, bool) {
	var zero T
	pos := q.head.Load()
	s := &q.slots[pos&q.mask]
	if s.seq.Load() != pos+1 {
		return zero, false // empty
	}
	v := s.value
	s.value = zero
	s.seq.Store(pos + uint64(len(q.slots)))
	q.head.Store(pos + 1)
	return v, true
}

// Len returns a snapshot of the number of queued items. It is racy
// with respect to concurrent Push/Pop by design (SPSC queues only
// guarantee correctness of Push/Pop themselves) and is meant for
// metrics/diagnostics only.
func (q *Queue[T]) Len() int {
	tail := q.tail.Load()
	head := q.head.Load()
	if tail < head {
		return 0
	}
	return int(tail - head)
}

// Cap returns the queue's fixed capacity.
func (q *Queue[T]) Cap() int { return len(q.slots) }

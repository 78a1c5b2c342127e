// Package queue provides the unbounded FIFO job queue the worker pool
// drains. Pop blocks until a job arrives or the queue is closed.
package queue

import "sync"

// Queue is an unbounded FIFO. The zero value is not usable; use New.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	closed bool
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	q := &Queue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends an item and returns its 1-based queue position at the
// time of enqueue. Pushing to a closed queue returns 0 and drops the
// item.
func (q *Queue[T]) Push(item T) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0
	}
	q.items = append(q.items, item)
	q.cond.Signal()
	return len(q.items)
}

// Pop blocks until an item is available and removes it in FIFO order.
// The second return is false once the queue is closed and drained.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}

	if len(q.items) == 0 {
		var zero T
		return zero, false
	}

	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close wakes all blocked Pop calls. Remaining items are still handed
// out before Pop starts returning false.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

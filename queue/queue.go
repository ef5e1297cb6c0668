// Package queue holds pending deliveries in arrival order.
package queue

import (
	"sync/atomic"
)

// Queue is a FIFO of pending values. Push and Pop swap the backing slice
// atomically, callers that interleave them from several goroutines must
// serialise access themselves.
type Queue[T any] struct {
	values atomic.Pointer[[]T]
}

func (q *Queue[T]) load() []T {
	if values := q.values.Load(); values != nil {
		return *values
	}
	return nil
}

func (q *Queue[T]) Len() int {
	return len(q.load())
}

// Pop removes the oldest value. ok is false when the queue is empty.
func (q *Queue[T]) Pop() (value T, ok bool) {
	values := q.load()
	if len(values) == 0 {
		return value, false
	}
	value = values[0]
	var zero T
	values[0] = zero
	values = values[1:]
	q.values.Store(&values)
	return value, true
}

func (q *Queue[T]) Push(value T) {
	values := append(q.load(), value)
	q.values.Store(&values)
}

// Clear drops every pending value.
func (q *Queue[T]) Clear() {
	q.values.Store(nil)
}

func New[T any](maybeCapacity ...int) *Queue[T] {
	var values []T
	if len(maybeCapacity) > 0 {
		values = make([]T, 0, maybeCapacity[0])
	}
	q := &Queue[T]{}
	q.values.Store(&values)
	return q
}

package stream

import (
	"context"
	"slices"
	"sync"

	"github.com/stateforward/go-rxhsm/queue"
)

// Subject is a hot source. Emit hands a value to every live subscriber in
// subscription order. Emits that arrive while a delivery is running are
// queued and delivered, in order, by the goroutine already delivering.
type Subject[T any] struct {
	mutex      sync.Mutex
	observers  []*observer[T]
	pending    queue.Queue[T]
	delivering bool
	closed     bool
}

type observer[T any] struct {
	subscription
	fn func(T)
}

func NewSubject[T any]() *Subject[T] {
	return &Subject[T]{}
}

func (subject *Subject[T]) Subscribe(fn func(T)) Subscription {
	observer := &observer[T]{fn: fn}
	subject.mutex.Lock()
	defer subject.mutex.Unlock()
	if subject.closed {
		observer.cancelled.Store(true)
		return observer
	}
	observer.onCancel = func() {
		subject.remove(observer)
	}
	subject.observers = append(subject.observers, observer)
	return observer
}

func (subject *Subject[T]) remove(target *observer[T]) {
	subject.mutex.Lock()
	defer subject.mutex.Unlock()
	subject.observers = slices.DeleteFunc(subject.observers, func(candidate *observer[T]) bool {
		return candidate == target
	})
}

func (subject *Subject[T]) Emit(value T) {
	subject.mutex.Lock()
	if subject.closed {
		subject.mutex.Unlock()
		return
	}
	subject.pending.Push(value)
	if subject.delivering {
		subject.mutex.Unlock()
		return
	}
	subject.delivering = true
	subject.mutex.Unlock()
	drain(&subject.mutex, &subject.pending, &subject.delivering, func(value T) {
		subject.mutex.Lock()
		observers := slices.Clone(subject.observers)
		subject.mutex.Unlock()
		for _, observer := range observers {
			if !observer.Cancelled() {
				observer.fn(value)
			}
		}
	})
}

// Observers returns the number of live subscriptions.
func (subject *Subject[T]) Observers() int {
	subject.mutex.Lock()
	defer subject.mutex.Unlock()
	return len(subject.observers)
}

// Close cancels every subscription. Later emits are dropped and later
// subscriptions are returned already cancelled.
func (subject *Subject[T]) Close() {
	subject.mutex.Lock()
	if subject.closed {
		subject.mutex.Unlock()
		return
	}
	subject.closed = true
	observers := subject.observers
	subject.observers = nil
	subject.pending.Clear()
	subject.mutex.Unlock()
	for _, observer := range observers {
		observer.cancelled.Store(true)
	}
}

// FromChannel emits every value received on channel until it is closed or
// ctx is done, then closes the returned subject.
func FromChannel[T any](ctx context.Context, channel <-chan T) *Subject[T] {
	subject := NewSubject[T]()
	go func() {
		defer subject.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case value, ok := <-channel:
				if !ok {
					return
				}
				subject.Emit(value)
			}
		}
	}()
	return subject
}

// Package stream is the minimal push-based event stream the state machine
// subscribes to: sources, cancellable subscriptions and the map, filter and
// merge combinators.
//
// A subscriber sees every value emitted after it subscribed, exactly once
// and in emission order, until its subscription is cancelled. Nothing is
// buffered for late subscribers and nothing is replayed.
package stream

import (
	"sync"
	"sync/atomic"

	"github.com/stateforward/go-rxhsm/queue"
)

type Subscription interface {
	Cancel()
	Cancelled() bool
}

type Source[T any] interface {
	Subscribe(observer func(T)) Subscription
}

type subscription struct {
	cancelled atomic.Bool
	onCancel  func()
}

func (subscription *subscription) Cancel() {
	if subscription.cancelled.CompareAndSwap(false, true) && subscription.onCancel != nil {
		subscription.onCancel()
	}
}

func (subscription *subscription) Cancelled() bool {
	return subscription.cancelled.Load()
}

/******* Map *******/

type mapped[T, U any] struct {
	source    Source[T]
	transform func(T) U
}

// Map returns a source emitting transform(v) for every v emitted by source.
func Map[T, U any](source Source[T], transform func(T) U) Source[U] {
	return &mapped[T, U]{source: source, transform: transform}
}

func (mapped *mapped[T, U]) Subscribe(observer func(U)) Subscription {
	return mapped.source.Subscribe(func(value T) {
		observer(mapped.transform(value))
	})
}

/******* Filter *******/

type filtered[T any] struct {
	source    Source[T]
	predicate func(T) bool
}

// Filter returns a source emitting only the values of source that satisfy predicate.
func Filter[T any](source Source[T], predicate func(T) bool) Source[T] {
	return &filtered[T]{source: source, predicate: predicate}
}

func (filtered *filtered[T]) Subscribe(observer func(T)) Subscription {
	return filtered.source.Subscribe(func(value T) {
		if filtered.predicate(value) {
			observer(value)
		}
	})
}

/******* Merge *******/

type merged[T any] struct {
	sources []Source[T]
}

// Merge returns a source emitting the values of every input. Deliveries to a
// merged subscriber are serialised: a value arriving while the subscriber is
// running, from another goroutine or from inside the subscriber itself, is
// queued and delivered once the running call returns.
func Merge[T any](sources ...Source[T]) Source[T] {
	return &merged[T]{sources: append([]Source[T]{}, sources...)}
}

func (merged *merged[T]) Subscribe(observer func(T)) Subscription {
	subscription := &mergedSubscription[T]{observer: observer}
	subscription.onCancel = subscription.release
	for _, source := range merged.sources {
		inner := source.Subscribe(subscription.deliver)
		subscription.mutex.Lock()
		if subscription.Cancelled() {
			subscription.mutex.Unlock()
			inner.Cancel()
			break
		}
		subscription.inner = append(subscription.inner, inner)
		subscription.mutex.Unlock()
	}
	return subscription
}

type mergedSubscription[T any] struct {
	subscription
	observer   func(T)
	mutex      sync.Mutex
	inner      []Subscription
	pending    queue.Queue[T]
	delivering bool
}

func (merged *mergedSubscription[T]) release() {
	merged.mutex.Lock()
	inner := merged.inner
	merged.inner = nil
	merged.pending.Clear()
	merged.mutex.Unlock()
	for _, subscription := range inner {
		subscription.Cancel()
	}
}

func (merged *mergedSubscription[T]) deliver(value T) {
	merged.mutex.Lock()
	if merged.Cancelled() {
		merged.mutex.Unlock()
		return
	}
	merged.pending.Push(value)
	if merged.delivering {
		merged.mutex.Unlock()
		return
	}
	merged.delivering = true
	merged.mutex.Unlock()
	drain(&merged.mutex, &merged.pending, &merged.delivering, func(value T) {
		if !merged.Cancelled() {
			merged.observer(value)
		}
	})
}

// drain delivers pending values until the queue is empty. It is entered with
// *delivering set and the mutex released; the mutex is released while emit runs.
func drain[T any](mutex *sync.Mutex, pending *queue.Queue[T], delivering *bool, emit func(T)) {
	defer func() {
		if r := recover(); r != nil {
			mutex.Lock()
			*delivering = false
			pending.Clear()
			mutex.Unlock()
			panic(r)
		}
	}()
	for {
		mutex.Lock()
		value, ok := pending.Pop()
		if !ok {
			*delivering = false
			mutex.Unlock()
			return
		}
		mutex.Unlock()
		emit(value)
	}
}

/******* Composite *******/

// Composite groups subscriptions so they can be cancelled together.
type Composite struct {
	mutex         sync.Mutex
	subscriptions []Subscription
}

func (composite *Composite) Add(subscription Subscription) {
	composite.mutex.Lock()
	defer composite.mutex.Unlock()
	composite.subscriptions = append(composite.subscriptions, subscription)
}

// Clear cancels every subscription and empties the composite.
func (composite *Composite) Clear() {
	composite.mutex.Lock()
	subscriptions := composite.subscriptions
	composite.subscriptions = nil
	composite.mutex.Unlock()
	for _, subscription := range subscriptions {
		subscription.Cancel()
	}
}

func (composite *Composite) Len() int {
	composite.mutex.Lock()
	defer composite.mutex.Unlock()
	return len(composite.subscriptions)
}

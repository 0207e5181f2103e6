package statebus

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// Stream is a lazy, restartable sequence of values. Nothing is observed until
// Subscribe is called, and every Subscribe starts an independent run.
type Stream[T any] struct {
	attach func(next func(T), done func()) (detach func())
}

func newStream[T any](attach func(next func(T), done func()) func()) *Stream[T] {
	return &Stream[T]{attach: attach}
}

// Subscription is a live attachment to a Stream.
type Subscription struct {
	stopped atomic.Bool
	once    sync.Once
	done    chan struct{}

	mu     sync.Mutex
	detach func()
}

func newSubscription() *Subscription {
	return &Subscription{done: make(chan struct{})}
}

// Done is closed when the stream completes or the subscription is cancelled.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Unsubscribe stops delivery. No value reaches the handler after it returns,
// unless Unsubscribe is called from inside that handler's own delivery.
func (s *Subscription) Unsubscribe() {
	if s.stopped.Swap(true) {
		return
	}
	s.mu.Lock()
	detach := s.detach
	s.detach = nil
	s.mu.Unlock()
	if detach != nil {
		detach()
	}
	s.finish()
}

func (s *Subscription) finish() {
	s.once.Do(func() { close(s.done) })
}

// Subscribe starts observing the stream. fn runs on the goroutine that drains
// the owning container's notifications, one value at a time.
func (s *Stream[T]) Subscribe(fn func(T)) *Subscription {
	sub := newSubscription()
	detach := s.attach(
		func(v T) {
			if !sub.stopped.Load() {
				fn(v)
			}
		},
		func() {
			sub.stopped.Store(true)
			sub.finish()
		},
	)

	sub.mu.Lock()
	if sub.stopped.Load() {
		sub.mu.Unlock()
		detach()
		return sub
	}
	sub.detach = detach
	sub.mu.Unlock()
	return sub
}

// Map transforms every value of s.
func Map[T, U any](s *Stream[T], fn func(T) U) *Stream[U] {
	return newStream(func(next func(U), done func()) func() {
		return s.attach(func(v T) { next(fn(v)) }, done)
	})
}

// Filter passes through the values of s for which keep returns true.
func Filter[T any](s *Stream[T], keep func(T) bool) *Stream[T] {
	return newStream(func(next func(T), done func()) func() {
		return s.attach(func(v T) {
			if keep(v) {
				next(v)
			}
		}, done)
	})
}

// Distinct drops values deeply equal to the one delivered just before them.
func Distinct[T any](s *Stream[T]) *Stream[T] {
	return newStream(func(next func(T), done func()) func() {
		var (
			last any
			seen bool
		)
		return s.attach(func(v T) {
			if seen && reflect.DeepEqual(last, v) {
				return
			}
			last, seen = v, true
			next(v)
		}, done)
	})
}

package statebus

import (
	"fmt"
	"sync"
)

// PanicHandler is called when a subscriber or collaborator panics.
type PanicHandler func(source string, panicValue any)

// hub serializes every notification a container emits. Commits push work
// while holding the container lock; whoever calls flush after releasing its
// locks drains the queue. Only one goroutine drains at a time, so deliveries
// run in push order and never concurrently with each other. A subscriber that
// re-enters the container from inside a delivery only enqueues; the active
// drainer picks the new work up before it returns.
type hub struct {
	mu       sync.Mutex
	queue    []func()
	draining bool
	onPanic  PanicHandler
}

func newHub(onPanic PanicHandler) *hub {
	return &hub{onPanic: onPanic}
}

func (h *hub) push(fns ...func()) {
	h.mu.Lock()
	h.queue = append(h.queue, fns...)
	h.mu.Unlock()
}

func (h *hub) flush() {
	h.mu.Lock()
	if h.draining {
		h.mu.Unlock()
		return
	}
	h.draining = true
	h.mu.Unlock()

	for {
		h.mu.Lock()
		if len(h.queue) == 0 {
			h.draining = false
			h.queue = nil
			h.mu.Unlock()
			return
		}
		fn := h.queue[0]
		h.queue[0] = nil
		h.queue = h.queue[1:]
		h.mu.Unlock()

		h.call("subscriber", fn)
	}
}

func (h *hub) call(source string, fn func()) {
	defer func() {
		if r := recover(); r != nil && h.onPanic != nil {
			h.onPanic(source, r)
		}
	}()
	fn()
}

type subscriber[T any] struct {
	id   uint64
	next func(T)
	done func()
}

// subject is the last-value channel behind the container value and the action
// stream. Its fields are touched only from hub deliveries.
type subject[T any] struct {
	hub       *hub
	delivered T
	subs      []*subscriber[T]
	nextID    uint64
	closed    bool
}

func newSubject[T any](h *hub, initial T) *subject[T] {
	return &subject[T]{hub: h, delivered: initial}
}

// publish must be called with the owning container lock held so that pushes
// happen in commit order.
func (s *subject[T]) publish(v T) {
	s.hub.push(func() {
		s.delivered = v
		subs := make([]*subscriber[T], len(s.subs))
		copy(subs, s.subs)
		for _, sub := range subs {
			s.hub.call(fmt.Sprintf("subscriber %d", sub.id), func() { sub.next(v) })
		}
	})
}

func (s *subject[T]) close() {
	s.hub.push(func() {
		s.closed = true
		subs := s.subs
		s.subs = nil
		for _, sub := range subs {
			sub.done()
		}
	})
}

// stream exposes the subject as a lazy Stream. With replay the subscriber
// first receives the last delivered value.
func (s *subject[T]) stream(replay bool) *Stream[T] {
	return newStream(func(next func(T), done func()) func() {
		var id uint64
		s.hub.push(func() {
			if s.closed {
				done()
				return
			}
			s.nextID++
			id = s.nextID
			s.subs = append(s.subs, &subscriber[T]{id: id, next: next, done: done})
			if replay {
				next(s.delivered)
			}
		})
		s.hub.flush()

		return func() {
			s.hub.push(func() {
				for i, sub := range s.subs {
					if sub.id == id {
						s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
						break
					}
				}
			})
			s.hub.flush()
		}
	})
}

package statebus

import (
	"context"
	"errors"
)

// SourceKind tells deferred values and streams apart. It is fixed when the
// Source is built and prefixes the binding's action verbs.
type SourceKind int

const (
	// KindDeferred resolves exactly once.
	KindDeferred SourceKind = iota + 1
	// KindStream emits zero or more values and then ends.
	KindStream
)

func (k SourceKind) String() string {
	switch k {
	case KindDeferred:
		return "DEFERRED"
	case KindStream:
		return "STREAM"
	default:
		return "UNKNOWN"
	}
}

// Source is an asynchronous producer that can be bound to a path. Build one
// with Deferred, Resolved, StreamFunc, FromChan or FromStream.
//
// Sources must honour ctx: a binding cancels it on Stop, and a source that
// ignores it keeps its goroutine alive although its values are dropped.
type Source interface {
	Kind() SourceKind
	run(ctx context.Context, emit func(any)) error
}

var errNilSource = errors.New("statebus: nil source function")

type deferredSource struct {
	fn func(ctx context.Context) (any, error)
}

// Deferred wraps a function that produces a single value.
func Deferred(fn func(ctx context.Context) (any, error)) Source {
	return &deferredSource{fn: fn}
}

// Resolved is a Deferred that yields v immediately.
func Resolved(v any) Source {
	return Deferred(func(context.Context) (any, error) { return v, nil })
}

func (d *deferredSource) Kind() SourceKind { return KindDeferred }

func (d *deferredSource) run(ctx context.Context, emit func(any)) error {
	if d.fn == nil {
		return errNilSource
	}
	v, err := d.fn(ctx)
	if err != nil {
		return err
	}
	emit(v)
	return nil
}

type streamSource struct {
	fn func(ctx context.Context, emit func(any)) error
}

// StreamFunc wraps a producer that calls emit for every value and returns
// when the stream ends.
func StreamFunc(fn func(ctx context.Context, emit func(any)) error) Source {
	return &streamSource{fn: fn}
}

func (s *streamSource) Kind() SourceKind { return KindStream }

func (s *streamSource) run(ctx context.Context, emit func(any)) error {
	if s.fn == nil {
		return errNilSource
	}
	return s.fn(ctx, emit)
}

// FromChan streams every value received from ch; the stream ends when ch is
// closed.
func FromChan[T any](ch <-chan T) Source {
	return StreamFunc(func(ctx context.Context, emit func(any)) error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case v, ok := <-ch:
				if !ok {
					return nil
				}
				emit(v)
			}
		}
	})
}

// FromStream relays a Stream, typically another container's GetStream. It
// ends when that stream completes.
func FromStream[T any](s *Stream[T]) Source {
	return StreamFunc(func(ctx context.Context, emit func(any)) error {
		sub := s.Subscribe(func(v T) { emit(v) })
		select {
		case <-sub.Done():
			return nil
		case <-ctx.Done():
			sub.Unsubscribe()
			return ctx.Err()
		}
	})
}

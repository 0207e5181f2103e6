package statebus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jilio/statebus/internal/dotpath"
)

// BindingStatus is the lifecycle state of a Binding.
type BindingStatus int

const (
	StatusIdle BindingStatus = iota
	StatusRunning
	StatusCancelled
	StatusCompleted
)

func (s BindingStatus) String() string {
	switch s {
	case StatusIdle:
		return "Idle"
	case StatusRunning:
		return "Running"
	case StatusCancelled:
		return "Cancelled"
	case StatusCompleted:
		return "Completed"
	default:
		return fmt.Sprintf("BindingStatus(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s BindingStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Binding feeds the values of one Source into one path.
//
// Every value is committed with SetAt under <KIND>_SET. The binding emits
// <KIND>_START before the first value, and afterwards exactly one of
// <KIND>_CANCEL (Stop, rebind, Close or parent context cancellation),
// STREAM_COMPLETE (stream ended) or <KIND>_ERROR (source failed). A deferred
// source that resolves completes silently.
type Binding struct {
	root   *Container
	path   string
	source Source
	kind   SourceKind

	mu      sync.Mutex
	status  BindingStatus
	err     error
	cancel  context.CancelFunc
	done    chan struct{}
	obsCtx  context.Context
	started time.Time
}

// BindAsync binds src to path. A binding already registered for path is
// stopped first, so its CANCEL action precedes the new START.
func (c *Container) BindAsync(ctx context.Context, path string, src Source) (*Binding, error) {
	if src == nil {
		return nil, errors.New("statebus: nil source")
	}
	if _, err := dotpath.Split(path); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	defer c.hub.flush()
	c.bindMu.Lock()
	defer c.bindMu.Unlock()

	if c.isClosed() {
		return nil, ErrClosed
	}
	if old, ok := c.bindings[path]; ok {
		old.halt()
	}
	b := &Binding{
		root:   c,
		path:   path,
		source: src,
		kind:   src.Kind(),
		done:   make(chan struct{}),
		obsCtx: context.Background(),
	}
	c.bindings[path] = b
	b.start(ctx)
	return b, nil
}

// Binding returns the binding most recently registered for path. Terminal
// bindings stay registered until the path is rebound.
func (c *Container) Binding(path string) (*Binding, bool) {
	c.bindMu.Lock()
	defer c.bindMu.Unlock()
	b, ok := c.bindings[path]
	return b, ok
}

// Path returns the bound path.
func (b *Binding) Path() string { return b.path }

// Kind returns the source kind.
func (b *Binding) Kind() SourceKind { return b.kind }

// Status returns the current lifecycle state.
func (b *Binding) Status() BindingStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Err returns the error the source finished with, if any.
func (b *Binding) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Done is closed once the binding reaches a terminal status.
func (b *Binding) Done() <-chan struct{} {
	return b.done
}

// Stop detaches the binding from its source. Once Stop returns no further
// value is committed. Calling Stop again is a no-op.
func (b *Binding) Stop() {
	defer b.root.hub.flush()
	b.halt()
}

func (b *Binding) verb(v string) string {
	return PathVerb(b.kind.String()+"_"+v, b.path)
}

func (b *Binding) start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status != StatusIdle {
		cancel()
		return
	}
	b.cancel = cancel

	// A panicking middleware must not leave the binding Idle with an open
	// Done channel.
	running := false
	defer func() {
		if !running {
			cancel()
			b.status = StatusCancelled
			close(b.done)
		}
	}()

	if err := b.root.signal(b.verb(VerbStart)); err != nil {
		b.root.diag.Warn("binding start signal failed", "path", b.path, "error", err)
	}
	running = true
	b.status = StatusRunning
	b.started = time.Now()
	b.obsCtx = b.root.obs.OnBindingStart(context.Background(), b.path, b.kind)

	go b.consume(ctx)
}

func (b *Binding) consume(ctx context.Context) {
	defer b.root.hub.flush()
	// The closing signal runs the middleware on this goroutine.
	defer func() {
		if r := recover(); r != nil {
			b.root.handlePanic("binding "+b.path, r)
		}
	}()

	err := b.runSource(ctx)
	b.finish(ctx, err)
}

func (b *Binding) runSource(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("statebus: source for %q panicked: %v", b.path, r)
		}
	}()
	return b.source.run(ctx, b.emit)
}

func (b *Binding) emit(v any) {
	defer b.root.hub.flush()
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status != StatusRunning {
		return
	}
	if err := b.root.setAt(b.path, v, b.kind.String()+"_"+VerbSet); err != nil {
		b.root.diag.Warn("binding value rejected", "path", b.path, "error", err)
	}
}

func (b *Binding) finish(ctx context.Context, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status != StatusRunning {
		return
	}
	// Our own cancel only runs after the status left Running, so a done
	// context here means the caller's context was cancelled.
	if ctx.Err() != nil {
		b.terminate(StatusCancelled, VerbCancel)
		return
	}

	b.err = err
	switch {
	case err != nil:
		b.terminate(StatusCompleted, VerbError)
	case b.kind == KindStream:
		b.terminate(StatusCompleted, VerbComplete)
	default:
		b.terminate(StatusCompleted, "")
	}
}

// halt moves a live binding to Cancelled without delivering notifications.
func (b *Binding) halt() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status.Terminal() {
		return
	}
	b.terminate(StatusCancelled, VerbCancel)
}

// terminate must be called with b.mu held.
// The source is detached and Done closed even when the signal panics.
func (b *Binding) terminate(status BindingStatus, verb string) {
	b.status = status
	if b.cancel != nil {
		b.cancel()
	}
	defer func() {
		b.root.obs.OnBindingComplete(b.obsCtx, status, time.Since(b.started), b.err)
		close(b.done)
	}()

	if verb != "" {
		if err := b.root.signal(b.verb(verb)); err != nil {
			b.root.diag.Warn("binding signal failed", "path", b.path, "verb", verb, "error", err)
		}
	}
}

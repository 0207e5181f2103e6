package statebus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jilio/statebus/internal/dotpath"
)

// Container holds one immutable snapshot of application state and publishes
// every change together with the Action that caused it.
//
// Values returned by Value, Get and streams are shared snapshots: treat them as
// read-only. Every mutation builds a new snapshot and leaves earlier ones
// untouched.
type Container struct {
	name string
	cfg  *config
	obs  Observability
	diag *slog.Logger

	mu           sync.Mutex
	opts         Options
	value        map[string]any
	defaultValue map[string]any
	closed       bool

	hub     *hub
	values  *subject[map[string]any]
	actions *ActionStream

	bindMu   sync.Mutex
	bindings map[string]*Binding
}

// New creates a container holding defaultValue and commits it under INIT.
// defaultValue is deep-copied; Reset restores that copy.
func New(defaultValue map[string]any, opts ...Option) *Container {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Name == "" {
		cfg.Name = cfg.nameGen()
	}
	if cfg.Middleware == nil {
		cfg.Middleware = Identity
	}

	c := &Container{
		name:     cfg.Name,
		cfg:      cfg,
		obs:      cfg.observability,
		diag:     cfg.diagnostics.With("store", cfg.Name),
		opts:     cfg.Options,
		bindings: make(map[string]*Binding),
	}
	if c.obs == nil {
		c.obs = noopObservability{}
	}
	c.hub = newHub(c.handlePanic)
	c.values = newSubject[map[string]any](c.hub, nil)
	c.actions = newActionStream(c.hub)

	def, _ := dotpath.Clone(defaultValue).(map[string]any)
	if def == nil {
		def = map[string]any{}
	}
	c.defaultValue = def

	c.mu.Lock()
	if err := c.commitLocked(dotpath.Clone(def).(map[string]any), c.action(VerbInit, nil)); err != nil {
		// The value must never be unset, so fall back to the raw default.
		c.diag.Error("init commit rejected, storing default as is", "error", err)
		c.value = dotpath.Clone(def).(map[string]any)
		c.values.publish(c.value)
	}
	c.mu.Unlock()
	c.hub.flush()

	return c
}

// Name returns the container name used in action types.
func (c *Container) Name() string {
	return c.name
}

// Actions returns the container's action stream.
func (c *Container) Actions() *ActionStream {
	return c.actions
}

func (c *Container) action(verb string, payload any) Action {
	return Action{Type: ActionType(c.name, verb), Payload: payload}
}

// apply builds the next value from the current one and commits it under verb.
// It does not deliver notifications; callers flush once their own locks are
// released.
func (c *Container) apply(verb string, payload any, build func(cur map[string]any) (map[string]any, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	next, err := build(c.value)
	if err != nil {
		return err
	}
	return c.commitLocked(next, c.action(verb, payload))
}

// mutate is apply followed by delivery.
func (c *Container) mutate(verb string, payload any, build func(cur map[string]any) (map[string]any, error)) error {
	defer c.hub.flush()
	return c.apply(verb, payload, build)
}

// commitLocked runs the middleware and, when it accepts, stores the result and
// queues the action, the collaborator calls and the value broadcast in that
// order. A rejected commit changes nothing.
func (c *Container) commitLocked(candidate map[string]any, action Action) error {
	ctx := c.obs.OnCommitStart(context.Background(), action.Type)
	start := time.Now()

	prev := c.value
	opts := c.opts
	next, err := opts.Middleware(prev, candidate, action, opts)
	if err != nil {
		err = &MiddlewareError{Action: action.Type, Err: err}
		c.obs.OnCommitComplete(ctx, time.Since(start), err)
		return err
	}
	if next == nil {
		next = map[string]any{}
	}

	c.value = next
	c.actions.push(action)
	c.hub.push(func() { c.notify(prev, next, action, opts) })
	c.values.publish(next)

	c.obs.OnCommitComplete(ctx, time.Since(start), nil)
	return nil
}

// notify runs the logger and devtools collaborators in isolation.
func (c *Container) notify(prev, next map[string]any, action Action, opts Options) {
	if opts.Logger != nil {
		c.hub.call("logger", func() { opts.Logger(prev, next, action, opts) })
	}
	if opts.DevTools != nil {
		c.hub.call("devtools", func() {
			if err := opts.DevTools.Send(action, next); err != nil {
				c.reportError(fmt.Errorf("devtools: send %q: %w", action.Type, err))
			}
		})
	}
}

func (c *Container) handlePanic(source string, r any) {
	c.diag.Error("recovered panic", "source", source, "panic", r)
	if c.cfg.panicHandler != nil {
		c.cfg.panicHandler(source, r)
	}
}

func (c *Container) reportError(err error) {
	c.diag.Warn("collaborator failed", "error", err)
	if c.cfg.errorHandler != nil {
		c.cfg.errorHandler(err)
	}
}

// UseMiddleware replaces the active middleware. There is a single slot: the
// last call wins and nothing is chained. nil restores Identity.
func (c *Container) UseMiddleware(mw Middleware) {
	if mw == nil {
		mw = Identity
	}
	c.mu.Lock()
	c.opts.Middleware = mw
	c.mu.Unlock()
}

// Close stops every running binding and completes all streams. Mutations
// afterwards return ErrClosed; reads keep returning the last value.
func (c *Container) Close() error {
	defer c.hub.flush()
	c.bindMu.Lock()
	defer c.bindMu.Unlock()

	for _, b := range c.bindings {
		b.halt()
	}

	c.mu.Lock()
	if !c.closed {
		c.closed = true
		c.actions.events.close()
		c.values.close()
	}
	c.mu.Unlock()
	return nil
}

func (c *Container) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

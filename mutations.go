package statebus

import (
	"github.com/jilio/statebus/internal/dotpath"
)

// MutateOption configures a path mutation.
type MutateOption func(*mutateConfig)

type mutateConfig struct {
	name string
}

// WithActionName replaces the default verb (SET or UPDATE) of SetAt and
// UpdateAt. The path is still appended: WithActionName("LOAD") on "a.b"
// yields "[name] LOAD@a.b".
func WithActionName(name string) MutateOption {
	return func(c *mutateConfig) {
		c.name = name
	}
}

func resolveVerb(def string, opts []MutateOption) string {
	cfg := mutateConfig{name: def}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.name == "" {
		return def
	}
	return cfg.name
}

// CustomAction is a named state transition for Dispatch.
type CustomAction struct {
	Type    string
	Payload any
	// Handler computes the next value. It runs under the container lock, must
	// not modify state in place and must not call the container.
	Handler func(state map[string]any, payload any) map[string]any
}

// Set replaces the whole value. data is copied, so later changes to it by the
// caller do not reach the container.
func (c *Container) Set(data map[string]any) error {
	data, _ = dotpath.Clone(data).(map[string]any)
	return c.mutate(VerbSet, data, func(map[string]any) (map[string]any, error) {
		return data, nil
	})
}

// SetAt writes data at path, keeping every other key.
func (c *Container) SetAt(path string, data any, opts ...MutateOption) error {
	defer c.hub.flush()
	return c.setAt(path, data, resolveVerb(VerbSet, opts))
}

func (c *Container) setAt(path string, data any, verb string) error {
	if _, err := dotpath.Split(path); err != nil {
		return err
	}
	data = dotpath.Clone(data)
	return c.apply(PathVerb(verb, path), data, func(cur map[string]any) (map[string]any, error) {
		return c.write(cur, path, data)
	})
}

func (c *Container) write(cur map[string]any, path string, data any) (map[string]any, error) {
	next, clobbered, err := dotpath.Set(cur, path, data)
	if err != nil {
		return nil, err
	}
	for _, p := range clobbered {
		c.diag.Warn("overwrote non-mapping value on write path", "path", path, "at", p)
	}
	return next, nil
}

// Update shallow-merges data into the top-level value.
func (c *Container) Update(data map[string]any) error {
	data, _ = dotpath.Clone(data).(map[string]any)
	return c.mutate(VerbUpdate, data, func(cur map[string]any) (map[string]any, error) {
		return dotpath.Merge(cur, data), nil
	})
}

// UpdateAt merges data into the mapping at path. When either the existing
// value or data is not a mapping, data replaces the existing value.
func (c *Container) UpdateAt(path string, data any, opts ...MutateOption) error {
	if _, err := dotpath.Split(path); err != nil {
		return err
	}
	data = dotpath.Clone(data)
	verb := PathVerb(resolveVerb(VerbUpdate, opts), path)
	return c.mutate(verb, data, func(cur map[string]any) (map[string]any, error) {
		next := data
		if existing, ok := dotpath.Get(cur, path); ok {
			em, emOK := existing.(map[string]any)
			dm, dmOK := data.(map[string]any)
			if emOK && dmOK {
				next = dotpath.Merge(em, dm)
			}
		}
		return c.write(cur, path, next)
	})
}

// Remove deletes the key at path, keeping its siblings.
func (c *Container) Remove(path string) error {
	if _, err := dotpath.Split(path); err != nil {
		return err
	}
	return c.mutate(PathVerb(VerbRemove, path), nil, func(cur map[string]any) (map[string]any, error) {
		next, _, err := dotpath.Delete(cur, path)
		return next, err
	})
}

// Reset restores the value given to New.
func (c *Container) Reset() error {
	return c.mutate(VerbReset, nil, func(map[string]any) (map[string]any, error) {
		return dotpath.Clone(c.defaultValue).(map[string]any), nil
	})
}

// Clear replaces the value with an empty mapping.
func (c *Container) Clear() error {
	return c.mutate(VerbClear, nil, func(map[string]any) (map[string]any, error) {
		return map[string]any{}, nil
	})
}

// Dispatch commits the result of act.Handler under act.Type.
func (c *Container) Dispatch(act CustomAction) error {
	if act.Handler == nil {
		return ErrDispatchHandlerMissing
	}
	return c.mutate(act.Type, act.Payload, func(cur map[string]any) (map[string]any, error) {
		return act.Handler(cur, act.Payload), nil
	})
}

// Signal re-commits the current value so that an action named name is
// emitted without changing state.
func (c *Container) Signal(name string) error {
	defer c.hub.flush()
	return c.signal(name)
}

func (c *Container) signal(name string) error {
	return c.apply(name, nil, func(cur map[string]any) (map[string]any, error) {
		return cur, nil
	})
}

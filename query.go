package statebus

import (
	"reflect"
	"sort"

	"github.com/jilio/statebus/internal/dotpath"
)

// Projector derives a value from the whole state.
type Projector func(state map[string]any) any

// Value returns the current value.
func (c *Container) Value() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Get returns the value at a dot path, or nil when the path is absent.
// An empty path returns the whole value.
func (c *Container) Get(path string) any {
	v, _ := dotpath.Get(c.Value(), path)
	return v
}

// GetFunc applies fn to the current value.
func (c *Container) GetFunc(fn Projector) any {
	return fn(c.Value())
}

// GetAs returns the value at path converted to T.
func GetAs[T any](c *Container, path string) (T, bool) {
	v, ok := c.Get(path).(T)
	return v, ok
}

// Has reports whether path resolves in the current value. A key holding nil
// is present.
func (c *Container) Has(path string) bool {
	return dotpath.Has(c.Value(), path)
}

// GetStream emits the value at path now and after every commit that changes
// it. It completes only when the container is closed.
func (c *Container) GetStream(path string) *Stream[any] {
	return c.GetStreamFunc(func(state map[string]any) any {
		v, _ := dotpath.Get(state, path)
		return v
	})
}

// GetStreamFunc is GetStream with a projector instead of a path.
func (c *Container) GetStreamFunc(fn Projector) *Stream[any] {
	return Distinct(Map(c.values.stream(true), func(state map[string]any) any {
		return fn(state)
	}))
}

// Rules maps a field name to the predicate its value must satisfy.
type Rules map[string]func(any) bool

// Eq builds a predicate matching values deeply equal to want.
func Eq(want any) func(any) bool {
	return func(v any) bool {
		return reflect.DeepEqual(v, want)
	}
}

// Where returns the elements of the collection at path that satisfy every
// rule. The collection may be a list or a mapping; mapping values are visited
// in key order. An element missing a ruled field does not match.
func (c *Container) Where(path string, rules Rules) []any {
	return where(c.Get(path), rules)
}

// WhereStream is the streaming form of Where.
func (c *Container) WhereStream(path string, rules Rules) *Stream[[]any] {
	return Distinct(Map(c.GetStream(path), func(v any) []any {
		return where(v, rules)
	}))
}

func where(collection any, rules Rules) []any {
	var items []any
	switch col := collection.(type) {
	case []any:
		items = col
	case map[string]any:
		keys := make([]string, 0, len(col))
		for k := range col {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			items = append(items, col[k])
		}
	}

	out := make([]any, 0, len(items))
	for _, item := range items {
		if conforms(item, rules) {
			out = append(out, item)
		}
	}
	return out
}

func conforms(item any, rules Rules) bool {
	m, ok := item.(map[string]any)
	if !ok {
		return len(rules) == 0
	}
	for field, pred := range rules {
		v, ok := m[field]
		if !ok || !pred(v) {
			return false
		}
	}
	return true
}

package statebus

import "context"

// Slice is a handle scoped to one path of a container. It has no state of
// its own; every call goes through the container.
type Slice struct {
	root *Container
	path string
}

// At returns a Slice for path.
func (c *Container) At(path string) *Slice {
	return &Slice{root: c, path: path}
}

// Path returns the slice's path.
func (s *Slice) Path() string { return s.path }

// Value returns the value at the slice's path.
func (s *Slice) Value() any { return s.root.Get(s.path) }

// Stream emits the slice's value on every change.
func (s *Slice) Stream() *Stream[any] { return s.root.GetStream(s.path) }

// Exists reports whether the path resolves.
func (s *Slice) Exists() bool { return s.root.Has(s.path) }

// Set writes data at the slice's path.
func (s *Slice) Set(data any, opts ...MutateOption) error {
	return s.root.SetAt(s.path, data, opts...)
}

// Update merges data into the slice's value.
func (s *Slice) Update(data any, opts ...MutateOption) error {
	return s.root.UpdateAt(s.path, data, opts...)
}

// Remove deletes the slice's key.
func (s *Slice) Remove() error {
	return s.root.Remove(s.path)
}

// BindAsync binds src to the slice's path.
func (s *Slice) BindAsync(ctx context.Context, src Source) (*Binding, error) {
	return s.root.BindAsync(ctx, s.path, src)
}

// At returns a Slice for a path below this one.
func (s *Slice) At(sub string) *Slice {
	if s.path == "" {
		return s.root.At(sub)
	}
	return s.root.At(s.path + "." + sub)
}

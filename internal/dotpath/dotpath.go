// Package dotpath reads and rewrites nested map[string]any trees addressed by
// dot-separated paths such as "user.address.city".
//
// Writes are copy-on-write: every map or slice on the path to the target is
// cloned and the clone is returned, while sibling subtrees are shared with the
// input. Inputs are never modified.
package dotpath

import (
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidPath is returned for an empty path or a path with an empty segment.
var ErrInvalidPath = errors.New("dotpath: invalid path")

// Split breaks a path into segments.
func Split(path string) ([]string, error) {
	if path == "" {
		return nil, ErrInvalidPath
	}
	segs := strings.Split(path, ".")
	for _, s := range segs {
		if s == "" {
			return nil, ErrInvalidPath
		}
	}
	return segs, nil
}

// Get returns the value at path and whether it was reachable.
// An empty path addresses the root.
func Get(root map[string]any, path string) (any, bool) {
	if path == "" {
		return root, root != nil
	}
	segs, err := Split(path)
	if err != nil {
		return nil, false
	}
	var cur any = root
	for _, seg := range segs {
		next, ok := child(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Has reports whether every segment of path resolves. A key explicitly set to
// nil is present.
func Has(root map[string]any, path string) bool {
	if path == "" {
		return false
	}
	_, ok := Get(root, path)
	return ok
}

func child(node any, seg string) (any, bool) {
	switch n := node.(type) {
	case map[string]any:
		v, ok := n[seg]
		return v, ok
	case []any:
		i, ok := index(seg, len(n))
		if !ok {
			return nil, false
		}
		return n[i], true
	}
	return nil, false
}

func index(seg string, length int) (int, bool) {
	i, err := strconv.Atoi(seg)
	if err != nil || i < 0 || i >= length {
		return 0, false
	}
	return i, true
}

// Set returns a copy of root with value stored at path. Missing intermediate
// mappings are created. When a non-container value sits in the way it is
// replaced by a new mapping and the offending prefixes are returned in
// clobbered.
func Set(root map[string]any, path string, value any) (out map[string]any, clobbered []string, err error) {
	segs, err := Split(path)
	if err != nil {
		return nil, nil, err
	}
	res := set(root, segs, 0, value, &clobbered)
	return res.(map[string]any), clobbered, nil
}

func set(node any, segs []string, depth int, value any, clobbered *[]string) any {
	seg := segs[depth]
	last := depth == len(segs)-1

	if list, ok := node.([]any); ok {
		if i, ok := index(seg, len(list)); ok {
			cp := make([]any, len(list))
			copy(cp, list)
			if last {
				cp[i] = value
			} else {
				cp[i] = set(cp[i], segs, depth+1, value, clobbered)
			}
			return cp
		}
	}

	m, ok := node.(map[string]any)
	if !ok {
		if node != nil && depth > 0 {
			*clobbered = append(*clobbered, strings.Join(segs[:depth], "."))
		}
		m = nil
	}
	cp := shallow(m)
	if last {
		cp[seg] = value
	} else {
		cp[seg] = set(cp[seg], segs, depth+1, value, clobbered)
	}
	return cp
}

// Delete returns a copy of root without the key at path. If the path does not
// resolve, root is returned unchanged and removed is false.
func Delete(root map[string]any, path string) (out map[string]any, removed bool, err error) {
	segs, err := Split(path)
	if err != nil {
		return nil, false, err
	}
	res, removed := del(root, segs, 0)
	if !removed {
		return root, false, nil
	}
	return res.(map[string]any), true, nil
}

func del(node any, segs []string, depth int) (any, bool) {
	seg := segs[depth]
	last := depth == len(segs)-1

	switch n := node.(type) {
	case map[string]any:
		v, ok := n[seg]
		if !ok {
			return node, false
		}
		cp := shallow(n)
		if last {
			delete(cp, seg)
			return cp, true
		}
		sub, removed := del(v, segs, depth+1)
		if !removed {
			return node, false
		}
		cp[seg] = sub
		return cp, true
	case []any:
		i, ok := index(seg, len(n))
		if !ok {
			return node, false
		}
		if last {
			cp := make([]any, 0, len(n)-1)
			cp = append(cp, n[:i]...)
			return append(cp, n[i+1:]...), true
		}
		sub, removed := del(n[i], segs, depth+1)
		if !removed {
			return node, false
		}
		cp := make([]any, len(n))
		copy(cp, n)
		cp[i] = sub
		return cp, true
	}
	return node, false
}

func shallow(m map[string]any) map[string]any {
	cp := make(map[string]any, len(m)+1)
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// Merge returns a new mapping holding base's keys overlaid with patch's.
func Merge(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// Clone deep-copies maps and slices; other values are shared.
func Clone(v any) any {
	switch n := v.(type) {
	case map[string]any:
		if n == nil {
			return n
		}
		cp := make(map[string]any, len(n))
		for k, val := range n {
			cp[k] = Clone(val)
		}
		return cp
	case []any:
		if n == nil {
			return n
		}
		cp := make([]any, len(n))
		for i, val := range n {
			cp[i] = Clone(val)
		}
		return cp
	}
	return v
}

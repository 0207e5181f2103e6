package statebus

import (
	"sync"
	"time"
)

// DevTools receives every committed action with the value it produced.
// Errors and panics are reported through the container's handlers and never
// affect the committed state.
type DevTools interface {
	Send(action Action, state map[string]any) error
}

// DevToolsFunc adapts a function to DevTools.
type DevToolsFunc func(action Action, state map[string]any) error

// Send implements DevTools
func (f DevToolsFunc) Send(action Action, state map[string]any) error {
	return f(action, state)
}

// Entry is one recorded commit.
type Entry struct {
	Position  int64          `json:"position"`
	Action    Action         `json:"action"`
	State     map[string]any `json:"state"`
	Timestamp time.Time      `json:"timestamp"`
}

// MemoryDevTools is an in-memory DevTools sink that keeps the full action
// history, useful for tests and time-travel inspection.
type MemoryDevTools struct {
	entries []*Entry
	mu      sync.RWMutex
}

// NewMemoryDevTools creates an empty recorder.
func NewMemoryDevTools() *MemoryDevTools {
	return &MemoryDevTools{entries: make([]*Entry, 0)}
}

// Send implements DevTools
func (m *MemoryDevTools) Send(action Action, state map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append(m.entries, &Entry{
		Position:  int64(len(m.entries)) + 1,
		Action:    action,
		State:     state,
		Timestamp: time.Now(),
	})
	return nil
}

// Load returns entries with from <= position <= to; to of -1 means no upper bound.
func (m *MemoryDevTools) Load(from, to int64) []*Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Entry
	for _, e := range m.entries {
		if e.Position >= from && (to == -1 || e.Position <= to) {
			result = append(result, e)
		}
	}
	return result
}

// Types returns the recorded action types in commit order.
func (m *MemoryDevTools) Types() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	types := make([]string, len(m.entries))
	for i, e := range m.entries {
		types[i] = e.Action.Type
	}
	return types
}

// Position returns the position of the latest entry, 0 when empty.
func (m *MemoryDevTools) Position() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.entries))
}

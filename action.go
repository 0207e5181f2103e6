package statebus

import (
	"fmt"
	"sync"
)

// Verbs used in action types. Binding verbs are prefixed with the source
// kind, e.g. STREAM_START or DEFERRED_SET.
const (
	VerbInit     = "INIT"
	VerbSet      = "SET"
	VerbUpdate   = "UPDATE"
	VerbRemove   = "REMOVE"
	VerbReset    = "RESET"
	VerbClear    = "CLEAR"
	VerbStart    = "START"
	VerbCancel   = "CANCEL"
	VerbComplete = "COMPLETE"
	VerbError    = "ERROR"
)

// Action describes a committed change.
type Action struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

func (a Action) String() string {
	return a.Type
}

// ActionType formats the type of an action emitted by the named container.
func ActionType(name, verb string) string {
	return fmt.Sprintf("[%s] %s", name, verb)
}

// PathVerb appends a path to a verb: "SET" + "a.b" -> "SET@a.b".
func PathVerb(verb, path string) string {
	return verb + "@" + path
}

// ActionStream holds the most recent action and broadcasts each new one.
type ActionStream struct {
	mu     sync.RWMutex
	last   Action
	events *subject[Action]
}

func newActionStream(h *hub) *ActionStream {
	return &ActionStream{events: newSubject(h, Action{})}
}

// Value returns the latest action, or the zero Action before INIT.
func (a *ActionStream) Value() Action {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last
}

// Stream replays the latest action and then every following one.
func (a *ActionStream) Stream() *Stream[Action] {
	return a.events.stream(true)
}

// OfType yields future actions whose type equals actionType exactly.
func (a *ActionStream) OfType(actionType string) *Stream[Action] {
	return Filter(a.events.stream(false), func(act Action) bool {
		return act.Type == actionType
	})
}

// push records act as latest; callers hold the container lock.
func (a *ActionStream) push(act Action) {
	a.mu.Lock()
	a.last = act
	a.mu.Unlock()
	a.events.publish(act)
}

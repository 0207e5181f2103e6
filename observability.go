package statebus

import (
	"context"
	"time"
)

// Observability receives instrumentation callbacks from a container.
// Implementations must be safe for concurrent use; commit hooks run under the
// container lock and should return quickly.
type Observability interface {
	// OnCommitStart is called before the middleware runs.
	OnCommitStart(ctx context.Context, actionType string) context.Context
	// OnCommitComplete is called once the commit was stored or rejected.
	OnCommitComplete(ctx context.Context, duration time.Duration, err error)
	// OnBindingStart is called when a binding enters Running.
	OnBindingStart(ctx context.Context, path string, kind SourceKind) context.Context
	// OnBindingComplete is called when a binding reaches a terminal status.
	OnBindingComplete(ctx context.Context, status BindingStatus, duration time.Duration, err error)
}

type noopObservability struct{}

func (noopObservability) OnCommitStart(ctx context.Context, _ string) context.Context { return ctx }

func (noopObservability) OnCommitComplete(context.Context, time.Duration, error) {}

func (noopObservability) OnBindingStart(ctx context.Context, _ string, _ SourceKind) context.Context {
	return ctx
}

func (noopObservability) OnBindingComplete(context.Context, BindingStatus, time.Duration, error) {}

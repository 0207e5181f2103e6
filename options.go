package statebus

import (
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Middleware resolves the value that a commit will store. It runs once per
// mutation, before the value is replaced; a returned error aborts the commit.
// Middleware runs under the container lock and must not call the container.
//
// The slot holds exactly one function. Installing a new one replaces the old;
// there is no chaining.
type Middleware func(prev, next map[string]any, action Action, opts Options) (map[string]any, error)

// Identity is the default middleware: it commits the candidate unchanged.
func Identity(_, next map[string]any, _ Action, _ Options) (map[string]any, error) {
	return next, nil
}

// Options is the resolved configuration of a container. Middleware and Logger
// receive a copy on every commit.
type Options struct {
	Name       string
	Middleware Middleware
	Logger     Logger
	DevTools   DevTools
}

// Option configures a Container.
type Option func(*config)

type config struct {
	Options
	nameGen       func() string
	diagnostics   *slog.Logger
	observability Observability
	panicHandler  PanicHandler
	errorHandler  func(error)
}

func defaultConfig() *config {
	return &config{
		Options:     Options{Logger: ConsoleLogger(nil)},
		nameGen:     RandomName,
		diagnostics: slog.New(slog.DiscardHandler),
	}
}

// WithName sets the container name used in every action type.
func WithName(name string) Option {
	return func(c *config) {
		c.Name = name
	}
}

// WithNameGenerator replaces the generator used when no name is given.
// It is called at most once, during New.
func WithNameGenerator(gen func() string) Option {
	return func(c *config) {
		if gen != nil {
			c.nameGen = gen
		}
	}
}

// WithMiddleware installs the initial middleware.
func WithMiddleware(mw Middleware) Option {
	return func(c *config) {
		c.Middleware = mw
	}
}

// WithLogger replaces the logger called after every successful commit.
// Containers log through ConsoleLogger(nil) by default; a nil logger disables
// logging.
func WithLogger(logger Logger) Option {
	return func(c *config) {
		c.Logger = logger
	}
}

// WithDevTools installs a devtools sink. A nil sink disables it.
func WithDevTools(dt DevTools) Option {
	return func(c *config) {
		c.DevTools = dt
	}
}

// WithDiagnostics sets the logger used for internal warnings such as a scalar
// being overwritten mid-path or a failing collaborator.
func WithDiagnostics(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.diagnostics = logger
		}
	}
}

// WithObservability enables commit and binding instrumentation.
func WithObservability(obs Observability) Option {
	return func(c *config) {
		c.observability = obs
	}
}

// WithPanicHandler sets a function to be called when a subscriber, logger or
// devtools sink panics.
func WithPanicHandler(handler PanicHandler) Option {
	return func(c *config) {
		c.panicHandler = handler
	}
}

// WithErrorHandler receives errors returned by the devtools sink.
func WithErrorHandler(handler func(error)) Option {
	return func(c *config) {
		c.errorHandler = handler
	}
}

// RandomName returns a short token such as "sob-4F1".
func RandomName() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "sob-" + strings.ToUpper(id[:3])
}

package statebus

import (
	"context"
	"log/slog"
)

// Logger observes every successful commit. Panics are recovered and never
// reach the caller of the mutation.
type Logger func(prev, next map[string]any, action Action, opts Options)

// ConsoleLogger logs each commit as a structured record. A nil logger uses
// slog.Default.
func ConsoleLogger(logger *slog.Logger) Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return func(prev, next map[string]any, action Action, opts Options) {
		logger.LogAttrs(context.Background(), slog.LevelInfo, action.Type,
			slog.String("store", opts.Name),
			slog.Any("prev", prev),
			slog.Any("next", next),
		)
	}
}

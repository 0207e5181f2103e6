package statebus

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	envconfig "github.com/jilio/statebus/internal/config"
)

// Config is the environment-driven part of a container's setup.
type Config struct {
	Name      string `env:"STATEBUS_NAME"`
	Logger    bool   `env:"STATEBUS_LOGGER" envDefault:"true"`
	LogLevel  string `env:"STATEBUS_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"STATEBUS_LOG_FORMAT" envDefault:"text"`
}

// LoadConfig reads Config from STATEBUS_* environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.ParseEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("statebus: %w", err)
	}
	return cfg, nil
}

// Options turns the config into container options. Logs go to w, or stderr
// when w is nil; the same handler backs the commit logger and diagnostics.
func (c Config) Options(w io.Writer) ([]Option, error) {
	if w == nil {
		w = os.Stderr
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return nil, fmt.Errorf("statebus: log level %q: %w", c.LogLevel, err)
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch c.LogFormat {
	case "", "text":
		handler = slog.NewTextHandler(w, handlerOpts)
	case "json":
		handler = slog.NewJSONHandler(w, handlerOpts)
	default:
		return nil, fmt.Errorf("statebus: unknown log format %q", c.LogFormat)
	}
	logger := slog.New(handler)

	opts := []Option{WithDiagnostics(logger)}
	if c.Name != "" {
		opts = append(opts, WithName(c.Name))
	}
	if c.Logger {
		opts = append(opts, WithLogger(ConsoleLogger(logger)))
	} else {
		opts = append(opts, WithLogger(nil))
	}
	return opts, nil
}

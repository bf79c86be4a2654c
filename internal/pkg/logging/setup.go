package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Options controls the process-wide logger. Zero value means info-level text
// output on stdout.
type Options struct {
	Level  string // debug | info | warn | error
	Format string // text | json
}

// Setup builds a slog.Logger from opts, tags it with the service name and
// installs it as the process default.
func Setup(opts Options, serviceName string) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: parseLevel(opts.Level)}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, handlerOpts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, handlerOpts)
	}

	logger := slog.New(handler).With("service", serviceName)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package logging

import (
	"log/slog"
	"os"
)

// Logger is the application-wide structured logger instance.
var Logger *slog.Logger

// InitLogger initializes the global logger with the specified level and format.
// level: "debug", "info", "warn", "error" (defaults to "info")
// format: "json" or "text" (defaults to "text")
func InitLogger(level, format string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// WithStreamer returns a logger with streamer_id field.
func WithStreamer(streamerID string) *slog.Logger {
	return slog.Default().With("streamer_id", streamerID)
}

// WithBroadcaster returns a logger with broadcaster_user_id field.
func WithBroadcaster(broadcasterUserID string) *slog.Logger {
	return slog.Default().With("broadcaster_user_id", broadcasterUserID)
}

// WithJob returns a logger with job_id field.
func WithJob(jobID string) *slog.Logger {
	return slog.Default().With("job_id", jobID)
}

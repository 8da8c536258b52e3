package logger

import (
	"log/slog"
	"os"

	"museum-discovery/internal/config"
)

var Logger *slog.Logger

// InitLogger initializes structured logging. Records are JSON except in gin
// debug mode, where they are text and carry source locations.
func InitLogger(cfg *config.Config) {
	level := slog.LevelInfo
	if cfg.GinMode == "debug" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.GinMode == "debug",
	}

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.GinMode == "debug" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	Logger = slog.New(handler).With("service", cfg.ServiceName)

	Logger.Debug("Structured logging initialized", "level", level.String())
}

// With returns a logger carrying args on every record. Before InitLogger it
// discards everything.
func With(args ...any) *slog.Logger {
	if Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return Logger.With(args...)
}

// Helper functions for common log operations
func Info(msg string, args ...any) {
	if Logger != nil {
		Logger.Info(msg, args...)
	}
}

func Error(msg string, args ...any) {
	if Logger != nil {
		Logger.Error(msg, args...)
	}
}

func Debug(msg string, args ...any) {
	if Logger != nil {
		Logger.Debug(msg, args...)
	}
}

func Warn(msg string, args ...any) {
	if Logger != nil {
		Logger.Warn(msg, args...)
	}
}

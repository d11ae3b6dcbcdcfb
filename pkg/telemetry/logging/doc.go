// Package logging provides structured logging for the throttle tools.
//
// # Overview
//
// The logging package wraps Go's standard log/slog package to provide:
//   - Structured logging with JSON, text, and console formats
//   - Context-aware logging with request IDs and limiter names
//   - Configurable log levels (debug, info, warn, error)
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	})
//
//	logger.Info("limiter reloaded",
//	    "limiter", "api",
//	    "permits", 20,
//	)
//
//	ctx = logging.WithRequestID(ctx, "req-123")
//	logger.WithContext(ctx).Info("call started") // includes request_id
//
// Limiters take a *slog.Logger; pass logger.Slog() to share the handler.
//
// # Formats
//
// The console format is the text format without timestamps, intended for
// interactive terminals.
package logging

// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// BookingIDKey is the context key for the booking a turn belongs to
	BookingIDKey contextKey = "booking_id"
	// ReviewerKey is the context key for the reviewer acting on a task
	ReviewerKey contextKey = "reviewer"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	return NewWithWriter(env, os.Stdout)
}

// NewWithWriter creates a logger that writes to w.
func NewWithWriter(env string, w io.Writer) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") || strings.EqualFold(env, "test") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// WithContext returns a logger with context values extracted.
// Supports request_id, booking_id and reviewer from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = newLogger.WithRequestID(requestID)
	}

	if bookingID, ok := ctx.Value(BookingIDKey).(string); ok && bookingID != "" {
		newLogger = newLogger.WithBookingID(bookingID)
	}

	if reviewer, ok := ctx.Value(ReviewerKey).(string); ok && reviewer != "" {
		newLogger = &Logger{
			Logger: newLogger.With(slog.String("reviewer", reviewer)),
		}
	}

	return newLogger
}

// WithRequestID returns a logger with request ID
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("request_id", requestID)),
	}
}

// WithBookingID returns a logger scoped to one booking
func (l *Logger) WithBookingID(bookingID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("booking_id", bookingID)),
	}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// HTTPError logs an HTTP error
func (l *Logger) HTTPError(method, path string, status int, err error, clientIP string) {
	l.Error("http_error",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.String("error", err.Error()),
		slog.String("client_ip", clientIP),
	)
}

// RoutingDecision logs a step transition made by the engine.
func (l *Logger) RoutingDecision(bookingID string, from, to int, source, reason string) {
	l.Info("routing_decision",
		slog.String("booking_id", bookingID),
		slog.Int("from_step", from),
		slog.Int("to_step", to),
		slog.String("source", source),
		slog.String("reason", reason),
	)
}

// TurnCompleted logs the outcome of one inbound message.
func (l *Logger) TurnCompleted(bookingID string, step int, outcome string, pendingApproval bool, iterations int) {
	l.Info("turn_completed",
		slog.String("booking_id", bookingID),
		slog.Int("step", step),
		slog.String("outcome", outcome),
		slog.Bool("pending_approval", pendingApproval),
		slog.Int("iterations", iterations),
	)
}

// ReviewDecision logs an approve/reject on a review task
func (l *Logger) ReviewDecision(taskID, bookingID, decision string, ok bool, reason string) {
	if ok {
		l.Info("review_decision",
			slog.String("task_id", taskID),
			slog.String("booking_id", bookingID),
			slog.String("decision", decision),
		)
		return
	}
	l.Warn("review_decision",
		slog.String("task_id", taskID),
		slog.String("booking_id", bookingID),
		slog.String("decision", decision),
		slog.String("reason", reason),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}

package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LogUpstreamRequest logs a completed upstream API call
func LogUpstreamRequest(l Logger, endpoint string, statusCode int, duration time.Duration) {
	fields := map[string]interface{}{
		"endpoint":    endpoint,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}

	switch {
	case statusCode >= 500 || statusCode == 0:
		l.WarnWithFields("upstream request failed", fields)
	case statusCode >= 400:
		l.WarnWithFields("upstream request rejected", fields)
	default:
		l.DebugWithFields("upstream request completed", fields)
	}
}

// LogRateLimit logs a rate limit back-off
func LogRateLimit(l Logger, endpoint string, wait time.Duration) {
	l.WithFields(map[string]interface{}{
		"endpoint": endpoint,
		"wait_ms":  wait.Milliseconds(),
		"action":   "rate_limited",
	}).Warn("rate limit reached, backing off")
}

// LogWindowDone logs the per-window result
func LogWindowDone(l Logger, source, date string, posts, comments, malformed int) {
	l.InfoWithFields("window written", map[string]interface{}{
		"source":    source,
		"date":      date,
		"posts":     posts,
		"comments":  comments,
		"malformed": malformed,
	})
}

// NewNopLogger creates a logger that discards everything
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}

func (n *nopLogger) GetZerolog() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}

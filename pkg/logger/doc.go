// Package logger provides the structured logging interface used across subarchive.
//
// It wraps zerolog behind a small Logger interface so components can be handed a
// TestLogger in tests. Console output goes to stderr so stdout stays free for the
// run summary; an optional file receives the same events.
//
//	logger.Initialize(&cfg.Logging)
//	log := logger.GetLogger().WithField("source", "golang")
//	log.InfoWithFields("window written", map[string]interface{}{
//	    "date":  "2025-01-02",
//	    "posts": 42,
//	})
package logger

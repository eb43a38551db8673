// Package retry re-runs upstream calls that fail transiently.
//
// Attempts are bounded; once they run out the last error is wrapped as a fatal
// error so a permanently failing upstream aborts the run instead of stalling it.
// ErrorTypeBackoff derives its schedules from the limiter interval and backs off
// harder after a 429.
//
//	page, err := retry.DoWithResult(ctx, func(ctx context.Context) (*reddit.Page, error) {
//		return client.FetchPage(ctx, subreddit, cursor)
//	}, &retry.Config{
//		MaxAttempts: 4,
//		Backoff:     retry.NewErrorTypeBackoff(interval, time.Minute),
//		Logger:      log,
//	})
package retry

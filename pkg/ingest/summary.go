package ingest

import (
	"time"

	"subarchive/pkg/comments"
	"subarchive/pkg/snapshot"
	"subarchive/pkg/window"
)

// WindowResult describes one processed day window
type WindowResult struct {
	Source string
	Window window.DayWindow
	Date   string
	// Posts matched into the window and written
	Posts int
	// Comments flattened across those posts
	Comments int
	// Malformed counts skipped listing items, skipped posts and unreadable comment nodes
	Malformed int
	// Duplicates counts posts seen again on a later page
	Duplicates   int
	CommentStats comments.Stats
	// Truncated is set when upstream stopped returning history before the window start
	Truncated bool
	// Skipped is set when a resumed run found the window already written
	Skipped  bool
	Snapshot snapshot.Result
	Duration time.Duration
}

// Summary aggregates a run
type Summary struct {
	RunID   string
	Source  string
	Start   time.Time
	End     time.Time
	Resumed bool
	// Windows newest first
	Windows          []WindowResult
	Posts            int
	Comments         int
	Malformed        int
	Duplicates       int
	TruncatedWindows int
	SkippedWindows   int
	StartedAt        time.Time
	FinishedAt       time.Time
	// Err is the error that aborted the run, if any
	Err error
}

// Days is the number of windows the run accounted for
func (s *Summary) Days() int {
	return len(s.Windows)
}

// Elapsed is the wall time of the run
func (s *Summary) Elapsed() time.Duration {
	if s.FinishedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

func (s *Summary) add(res WindowResult) {
	s.Windows = append(s.Windows, res)
	if res.Skipped {
		s.SkippedWindows++
		return
	}
	s.Posts += res.Posts
	s.Comments += res.Comments
	s.Malformed += res.Malformed
	s.Duplicates += res.Duplicates + res.CommentStats.Duplicates
	if res.Truncated {
		s.TruncatedWindows++
	}
}

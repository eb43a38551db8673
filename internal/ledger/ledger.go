// Package ledger keeps a SQLite manifest of collection runs and the day
// snapshots they wrote.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"subarchive/pkg/ingest"
)

// Run statuses
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Entry is one written snapshot
type Entry struct {
	Source     string
	Day        string
	Path       string
	Posts      int
	Comments   int
	Malformed  int
	Duplicates int
	Truncated  bool
	Bytes      int64
	SHA256     string
	RunID      string
	WrittenAt  time.Time
}

// Run is one collection run
type Run struct {
	ID         string
	Source     string
	Start      time.Time
	End        time.Time
	Resumed    bool
	Status     string
	Error      string
	Posts      int
	Comments   int
	Malformed  int
	Truncated  int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Filter narrows List. Zero values match everything; Since and Until are inclusive day strings.
type Filter struct {
	Source string
	Since  string
	Until  string
}

// Ledger wraps *sql.DB over modernc.org/sqlite
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the ledger at path and migrates it
func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	l := &Ledger{db: db, now: time.Now}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return l, nil
}

func (l *Ledger) Close() error { return l.db.Close() }

func (l *Ledger) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
            id TEXT PRIMARY KEY,
            source TEXT NOT NULL,
            range_start INTEGER NOT NULL,
            range_end INTEGER NOT NULL,
            resumed INTEGER NOT NULL DEFAULT 0,
            status TEXT NOT NULL,
            error TEXT NOT NULL DEFAULT '',
            posts INTEGER NOT NULL DEFAULT 0,
            comments INTEGER NOT NULL DEFAULT 0,
            malformed INTEGER NOT NULL DEFAULT 0,
            truncated INTEGER NOT NULL DEFAULT 0,
            started_at INTEGER NOT NULL,
            finished_at INTEGER
        );`,
		`CREATE TABLE IF NOT EXISTS snapshots (
            source TEXT NOT NULL,
            day TEXT NOT NULL,
            path TEXT NOT NULL,
            posts INTEGER NOT NULL,
            comments INTEGER NOT NULL,
            malformed INTEGER NOT NULL,
            duplicates INTEGER NOT NULL,
            truncated INTEGER NOT NULL,
            bytes INTEGER NOT NULL,
            sha256 TEXT NOT NULL,
            run_id TEXT NOT NULL,
            written_at INTEGER NOT NULL,
            UNIQUE(source, day)
        );`,
	}
	for _, q := range stmts {
		if _, err := l.db.Exec(q); err != nil {
			return fmt.Errorf("exec migrate: %w", err)
		}
	}
	return nil
}

// StartRun inserts a running run. A resumed run reuses its id and is reset to running.
func (l *Ledger) StartRun(ctx context.Context, run ingest.RunInfo) error {
	_, err := l.db.ExecContext(ctx, `INSERT INTO runs(id, source, range_start, range_end, resumed, status, started_at)
        VALUES(?,?,?,?,?,?,?)
        ON CONFLICT(id) DO UPDATE SET resumed=excluded.resumed, status=excluded.status, error='', finished_at=NULL`,
		run.ID, run.Source, run.Start.Unix(), run.End.Unix(), boolInt(run.Resumed), StatusRunning, run.StartedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// RecordWindow upserts the snapshot of one written window
func (l *Ledger) RecordWindow(ctx context.Context, runID string, res ingest.WindowResult) error {
	if res.Skipped {
		return nil
	}
	source := res.Source
	_, err := l.db.ExecContext(ctx, `INSERT INTO snapshots(source, day, path, posts, comments, malformed, duplicates, truncated, bytes, sha256, run_id, written_at)
        VALUES(?,?,?,?,?,?,?,?,?,?,?,?)
        ON CONFLICT(source, day) DO UPDATE SET path=excluded.path, posts=excluded.posts, comments=excluded.comments,
            malformed=excluded.malformed, duplicates=excluded.duplicates, truncated=excluded.truncated,
            bytes=excluded.bytes, sha256=excluded.sha256, run_id=excluded.run_id, written_at=excluded.written_at`,
		source, res.Date, res.Snapshot.Path, res.Posts, res.Comments, res.Malformed,
		res.Duplicates+res.CommentStats.Duplicates, boolInt(res.Truncated), res.Snapshot.Bytes, res.Snapshot.SHA256,
		runID, l.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert snapshot %s/%s: %w", source, res.Date, err)
	}
	return nil
}

// FinishRun stores the outcome and totals of a run
func (l *Ledger) FinishRun(ctx context.Context, summary *ingest.Summary) error {
	status, msg := StatusSucceeded, ""
	if summary.Err != nil {
		status, msg = StatusFailed, summary.Err.Error()
	}
	res, err := l.db.ExecContext(ctx, `UPDATE runs SET status=?, error=?, posts=?, comments=?, malformed=?, truncated=?, finished_at=?
        WHERE id=?`,
		status, msg, summary.Posts, summary.Comments, summary.Malformed, summary.TruncatedWindows,
		summary.FinishedAt.UnixMilli(), summary.RunID)
	if err != nil {
		return fmt.Errorf("update run %s: %w", summary.RunID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update run %s: no such run", summary.RunID)
	}
	return nil
}

// List returns snapshots newest day first
func (l *Ledger) List(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	if f.Source != "" {
		where = append(where, "source = ?")
		args = append(args, f.Source)
	}
	if f.Since != "" {
		where = append(where, "day >= ?")
		args = append(args, f.Since)
	}
	if f.Until != "" {
		where = append(where, "day <= ?")
		args = append(args, f.Until)
	}
	q := `SELECT source, day, path, posts, comments, malformed, duplicates, truncated, bytes, sha256, run_id, written_at FROM snapshots`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY day DESC, source"

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			truncated int
			written   int64
		)
		if err := rows.Scan(&e.Source, &e.Day, &e.Path, &e.Posts, &e.Comments, &e.Malformed, &e.Duplicates,
			&truncated, &e.Bytes, &e.SHA256, &e.RunID, &written); err != nil {
			return nil, fmt.Errorf("scan snapshots: %w", err)
		}
		e.Truncated = truncated != 0
		e.WrittenAt = time.UnixMilli(written).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

// Runs returns the most recent runs, newest first. limit <= 0 returns all.
func (l *Ledger) Runs(ctx context.Context, limit int) ([]Run, error) {
	q := `SELECT id, source, range_start, range_end, resumed, status, error, posts, comments, malformed, truncated, started_at, finished_at
        FROM runs ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r                   Run
			start, end, started int64
			resumed             int
			finished            sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.Source, &start, &end, &resumed, &r.Status, &r.Error,
			&r.Posts, &r.Comments, &r.Malformed, &r.Truncated, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan runs: %w", err)
		}
		r.Start = time.Unix(start, 0).UTC()
		r.End = time.Unix(end, 0).UTC()
		r.Resumed = resumed != 0
		r.StartedAt = time.UnixMilli(started).UTC()
		if finished.Valid {
			r.FinishedAt = time.UnixMilli(finished.Int64).UTC()
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package ingest

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"subarchive/internal/writepool"
	"subarchive/pkg/checkpoint"
	"subarchive/pkg/comments"
	errs "subarchive/pkg/errors"
	"subarchive/pkg/logger"
	"subarchive/pkg/metrics"
	"subarchive/pkg/models"
	"subarchive/pkg/reddit"
	"subarchive/pkg/retry"
	"subarchive/pkg/snapshot"
	"subarchive/pkg/window"
)

const defaultMaxAttempts = 4

// Source is the upstream the engine collects from. *reddit.Client implements it.
type Source interface {
	FetchPage(ctx context.Context, subreddit string, cursor reddit.Cursor) (*reddit.Page, error)
	FetchComments(ctx context.Context, subreddit, postID string) (*reddit.Thread, error)
	Resolver(subreddit string) comments.Resolver
}

// SnapshotWriter publishes a window. *snapshot.Writer implements it.
type SnapshotWriter interface {
	Write(source string, win window.DayWindow, posts []models.Post) (snapshot.Result, error)
}

// RunInfo identifies a run for a Recorder
type RunInfo struct {
	ID        string
	Source    string
	Start     time.Time
	End       time.Time
	Resumed   bool
	StartedAt time.Time
}

// Recorder keeps a durable record of runs and written snapshots
type Recorder interface {
	StartRun(ctx context.Context, run RunInfo) error
	RecordWindow(ctx context.Context, runID string, res WindowResult) error
	FinishRun(ctx context.Context, summary *Summary) error
}

// Reporter presents progress to the user
type Reporter interface {
	WindowDone(res WindowResult)
	RunDone(summary *Summary)
}

// Options configures an Engine
type Options struct {
	Source        Source
	Writer        SnapshotWriter
	CommentPolicy comments.Policy
	// MaxResolves caps placeholder fetches per post under PolicyResolveAll; 0 means no cap
	MaxResolves int
	// Checkpoints enables mid-window resume when set
	Checkpoints *checkpoint.Manager
	Recorder    Recorder
	Reporter    Reporter
	Metrics     *metrics.Collector
	Logger      logger.Logger
	// MaxAttempts bounds tries per page and per comment tree, including the first
	MaxAttempts int
	Backoff     retry.BackoffStrategy
	// WriteWorkers > 0 writes snapshots in the background while the next window is fetched
	WriteWorkers int
}

// Params selects what a run collects
type Params struct {
	Source string
	Start  time.Time
	End    time.Time
	// Resume continues from an existing checkpoint
	Resume bool
	// ForceRestart discards an existing checkpoint
	ForceRestart bool
}

// Engine collects day windows sequentially from one upstream
type Engine struct {
	opts   Options
	logger logger.Logger

	mu    sync.Mutex
	state State
}

// New creates an engine
func New(opts Options) (*Engine, error) {
	if opts.Source == nil {
		return nil, errs.Configuration("ingest: source is required")
	}
	if opts.Writer == nil {
		return nil, errs.Configuration("ingest: snapshot writer is required")
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.Backoff == nil {
		opts.Backoff = retry.DefaultExponentialBackoff()
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}
	return &Engine{opts: opts, logger: opts.Logger, state: StateIdle}, nil
}

// State returns the current pipeline state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) transition(next State) {
	e.mu.Lock()
	prev := e.state
	e.state = next
	e.mu.Unlock()

	fields := map[string]interface{}{
		"from": prev.String(),
		"to":   next.String(),
	}
	if !prev.CanTransition(next) {
		e.logger.WarnWithFields("illegal state transition", fields)
		return
	}
	e.logger.DebugWithFields("state transition", fields)
}

// reset returns the engine to Idle at the start of a run or after an abort
func (e *Engine) reset() {
	e.mu.Lock()
	e.state = StateIdle
	e.mu.Unlock()
}

// run is the mutable state shared by the fetch loop and the write consumer
type run struct {
	source    string
	flattener *comments.Flattener

	mu      sync.Mutex
	summary *Summary
	cp      *checkpoint.Checkpoint
	pending map[string]WindowResult
	err     error
}

func (r *run) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
	}
}

func (r *run) firstErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Run collects every window of [p.Start, p.End), newest first.
// On failure the returned summary covers the windows finished before the error.
func (e *Engine) Run(ctx context.Context, p Params) (*Summary, error) {
	if p.Source == "" {
		return nil, errs.Configuration("source is required")
	}
	walker, err := window.NewWalker(p.Start, p.End)
	if err != nil {
		return nil, err
	}
	flattener, err := e.flattener(p.Source)
	if err != nil {
		return nil, err
	}

	r := &run{
		source:    p.Source,
		flattener: flattener,
		summary: &Summary{
			RunID:     uuid.NewString(),
			Source:    p.Source,
			Start:     p.Start.UTC(),
			End:       p.End.UTC(),
			StartedAt: time.Now().UTC(),
		},
		pending: make(map[string]WindowResult),
	}
	if err := e.openCheckpoint(p, r); err != nil {
		return nil, err
	}

	log := e.logger.WithField("source", p.Source)
	log.InfoWithFields("starting collection", map[string]interface{}{
		"run_id":  r.summary.RunID,
		"start":   r.summary.Start.Format(time.RFC3339),
		"end":     r.summary.End.Format(time.RFC3339),
		"windows": walker.Count(),
		"resumed": r.summary.Resumed,
		"policy":  e.opts.CommentPolicy.String(),
	})
	if e.opts.Recorder != nil {
		info := RunInfo{
			ID:        r.summary.RunID,
			Source:    p.Source,
			Start:     r.summary.Start,
			End:       r.summary.End,
			Resumed:   r.summary.Resumed,
			StartedAt: r.summary.StartedAt,
		}
		if err := e.opts.Recorder.StartRun(ctx, info); err != nil {
			log.WithError(err).Warn("failed to record run start")
		}
	}

	e.reset()
	runErr := e.walk(ctx, walker, r)
	return e.finish(ctx, r, runErr)
}

func (e *Engine) walk(ctx context.Context, walker *window.Walker, r *run) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		pool     *writepool.WorkerPool
		consumed chan struct{}
	)
	if e.opts.WriteWorkers > 0 {
		pool = writepool.NewWorkerPool(e.opts.WriteWorkers, e.opts.Writer, e.logger)
		pool.Start()
		consumed = make(chan struct{})
		go func() {
			defer close(consumed)
			for wr := range pool.Results() {
				r.mu.Lock()
				res := r.pending[wr.Job.Window.Date()]
				delete(r.pending, wr.Job.Window.Date())
				r.mu.Unlock()

				if wr.Error != nil {
					r.fail(fmt.Errorf("failed to write window %s: %w", wr.Job.Window.Date(), wr.Error))
					cancel()
					continue
				}
				res.Snapshot = wr.Snapshot
				res.Duration += wr.Duration
				e.finishWindow(ctx, r, res)
			}
		}()
	}

	var loopErr error
	for win := range walker.All() {
		if err := runCtx.Err(); err != nil {
			loopErr = err
			break
		}
		e.transition(StateWindowSelected)

		if r.completed(win.Date()) {
			e.logger.InfoWithFields("window already written, skipping", map[string]interface{}{
				"source": r.source,
				"date":   win.Date(),
			})
			res := WindowResult{Source: r.source, Window: win, Date: win.Date(), Skipped: true}
			r.mu.Lock()
			r.summary.add(res)
			r.mu.Unlock()
			if e.opts.Reporter != nil {
				e.opts.Reporter.WindowDone(res)
			}
			continue
		}

		started := time.Now()
		res, posts, err := e.collectWindow(runCtx, r, win)
		if err != nil {
			loopErr = err
			break
		}
		res.Duration = time.Since(started)

		e.transition(StateWriting)
		if pool != nil {
			r.mu.Lock()
			r.pending[res.Date] = res
			r.mu.Unlock()
			job := writepool.WriteJob{Source: r.source, Window: win, Posts: posts}
			if err := pool.Submit(runCtx, job); err != nil {
				loopErr = err
				break
			}
			continue
		}

		snap, err := e.opts.Writer.Write(r.source, win, posts)
		if err != nil {
			loopErr = fmt.Errorf("failed to write window %s: %w", win.Date(), err)
			break
		}
		res.Snapshot = snap
		res.Duration = time.Since(started)
		e.finishWindow(ctx, r, res)
	}

	if pool != nil {
		pool.Stop()
		<-consumed
	}

	if err := r.firstErr(); err != nil {
		return err
	}
	return loopErr
}

// collectWindow paginates, filters and attaches comments for one window
func (e *Engine) collectWindow(ctx context.Context, r *run, win window.DayWindow) (WindowResult, []models.Post, error) {
	res := WindowResult{Source: r.source, Window: win, Date: win.Date()}
	log := e.logger.WithFields(map[string]interface{}{
		"source": r.source,
		"date":   res.Date,
	})

	var (
		posts          []models.Post
		cursor         reddit.Cursor
		paginationDone bool
		fetched        int
	)
	if saved := r.savedWindow(win); saved != nil {
		posts = slices.Clone(saved.Posts)
		cursor = reddit.NewCursor(saved.Cursor)
		paginationDone = saved.PaginationDone
		fetched = min(saved.CommentsFetched, len(posts))
		res.Malformed = saved.Malformed
		res.Duplicates = saved.Duplicates
		res.Truncated = saved.Truncated
		log.InfoWithFields("resuming window", map[string]interface{}{
			"posts":            len(posts),
			"cursor":           saved.Cursor,
			"pagination_done":  paginationDone,
			"comments_fetched": fetched,
		})
	} else {
		e.checkpointDo(r, func(m *checkpoint.Manager, cp *checkpoint.Checkpoint) error {
			return m.BeginWindow(cp, win.Start, win.End)
		})
	}

	if !paginationDone {
		e.transition(StatePaginating)
		var err error
		posts, err = e.paginate(ctx, r, win, cursor, posts, &res, log)
		if err != nil {
			return res, nil, err
		}
	}

	e.transition(StateFiltering)
	log.DebugWithFields("window posts final", map[string]interface{}{
		"posts":      len(posts),
		"duplicates": res.Duplicates,
		"truncated":  res.Truncated,
	})

	e.transition(StateFetchingComments)
	posts, err := e.attachComments(ctx, r, posts, fetched, &res, log)
	if err != nil {
		return res, nil, err
	}

	if posts == nil {
		posts = []models.Post{}
	}
	res.Posts = len(posts)
	for _, post := range posts {
		res.Comments += len(post.Comments)
	}
	return res, posts, nil
}

// paginate walks the listing from cursor until a page reaches past the window start
// or upstream runs out. Posts outside the window are dropped.
func (e *Engine) paginate(ctx context.Context, r *run, win window.DayWindow, cursor reddit.Cursor,
	posts []models.Post, res *WindowResult, log logger.Logger) ([]models.Post, error) {

	seen := make(map[string]struct{}, len(posts))
	for _, post := range posts {
		seen[post.ID] = struct{}{}
	}

	for pageNum := 1; ; pageNum++ {
		page, err := retry.DoWithResult(ctx, func(ctx context.Context) (*reddit.Page, error) {
			return e.opts.Source.FetchPage(ctx, r.source, cursor)
		}, e.retryConfig("page", pageRetryable))
		if err != nil {
			return posts, fmt.Errorf("failed to fetch page %d of window %s: %w", pageNum, win.Date(), err)
		}

		for _, bad := range page.Malformed {
			log.WarnWithFields("skipping malformed post", map[string]interface{}{
				"id":     bad.ID,
				"reason": bad.Reason,
			})
		}
		res.Malformed += len(page.Malformed)

		var oldest time.Time
		matched := 0
		for _, post := range page.Posts {
			created := post.CreatedAt.Time
			if oldest.IsZero() || created.Before(oldest) {
				oldest = created
			}
			if !win.Contains(created) {
				continue
			}
			if _, dup := seen[post.ID]; dup {
				res.Duplicates++
				continue
			}
			seen[post.ID] = struct{}{}
			posts = append(posts, post)
			matched++
		}

		reachedStart := !oldest.IsZero() && oldest.Before(win.Start)
		exhausted := page.Items == 0 || !page.HasMore
		if page.HasMore && page.Next.Token() == cursor.Token() {
			log.WarnWithFields("listing cursor did not advance", map[string]interface{}{
				"cursor": cursor.Token(),
			})
			exhausted = true
		}
		done := reachedStart || exhausted
		if done && !reachedStart {
			res.Truncated = true
		}
		cursor = page.Next

		log.DebugWithFields("page processed", map[string]interface{}{
			"page":      pageNum,
			"items":     page.Items,
			"matched":   matched,
			"malformed": len(page.Malformed),
			"next":      cursor.Token(),
			"done":      done,
		})

		snapshotPosts := slices.Clone(posts)
		e.checkpointDo(r, func(m *checkpoint.Manager, cp *checkpoint.Checkpoint) error {
			if cp.Current != nil {
				cp.Current.Malformed = res.Malformed
				cp.Current.Duplicates = res.Duplicates
				cp.Current.Truncated = res.Truncated
			}
			return m.UpdatePage(cp, cursor.Token(), snapshotPosts, done)
		})

		if done {
			break
		}
	}

	if res.Truncated {
		log.WarnWithFields("upstream history ended before window start", map[string]interface{}{
			"window_start": win.Start.Format(time.RFC3339),
			"posts":        len(posts),
		})
	}
	return posts, nil
}

// attachComments fetches and flattens comments for posts[from:].
// A post whose comment tree is unreadable or gone is dropped and counted as malformed.
func (e *Engine) attachComments(ctx context.Context, r *run, posts []models.Post, from int,
	res *WindowResult, log logger.Logger) ([]models.Post, error) {

	for i := from; i < len(posts); {
		postID := posts[i].ID
		thread, err := retry.DoWithResult(ctx, func(ctx context.Context) (*reddit.Thread, error) {
			return e.opts.Source.FetchComments(ctx, r.source, postID)
		}, e.retryConfig("comments", retry.DefaultRetryIf))

		if err != nil {
			if !errs.Is(err, errs.ErrorTypeMalformed) && !errs.Is(err, errs.ErrorTypeNotFound) {
				return posts, fmt.Errorf("failed to fetch comments for post %s: %w", postID, err)
			}
			log.WithError(err).WarnWithFields("skipping post with unreadable comments", map[string]interface{}{
				"post_id": postID,
			})
			res.Malformed++
			posts = slices.Delete(posts, i, i+1)
		} else {
			flat, stats, err := r.flattener.Flatten(ctx, postID, thread.Forest)
			if err != nil {
				return posts, fmt.Errorf("failed to flatten comments for post %s: %w", postID, err)
			}
			posts[i].Comments = flat
			res.Malformed += thread.Malformed
			res.CommentStats.Add(stats)
			i++
		}

		snapshotPosts := slices.Clone(posts)
		done := i
		e.checkpointDo(r, func(m *checkpoint.Manager, cp *checkpoint.Checkpoint) error {
			if cp.Current != nil {
				cp.Current.Malformed = res.Malformed
			}
			return m.RecordComments(cp, snapshotPosts, done)
		})
	}
	return posts, nil
}

// flattener binds the comment policy to this run's resolver. Placeholder
// fetches are retried like comment trees; exhaustion aborts the run.
func (e *Engine) flattener(source string) (*comments.Flattener, error) {
	if e.opts.CommentPolicy != comments.PolicyResolveAll {
		return comments.NewFlattener(e.opts.CommentPolicy, nil, e.opts.MaxResolves), nil
	}
	inner := e.opts.Source.Resolver(source)
	if inner == nil {
		return nil, errs.Configuration("ingest: resolve-all comment policy needs a placeholder resolver")
	}
	return comments.NewFlattener(comments.PolicyResolveAll, retryingResolver{
		inner: inner,
		cfg:   e.retryConfig("resolve", retry.DefaultRetryIf),
	}, e.opts.MaxResolves), nil
}

type retryingResolver struct {
	inner comments.Resolver
	cfg   *retry.Config
}

func (r retryingResolver) ResolveMore(ctx context.Context, postID string, p comments.Placeholder) ([]comments.Node, error) {
	return retry.DoWithResult(ctx, func(ctx context.Context) ([]comments.Node, error) {
		return r.inner.ResolveMore(ctx, postID, p)
	}, r.cfg)
}

// finishWindow books a written window everywhere it is tracked
func (e *Engine) finishWindow(ctx context.Context, r *run, res WindowResult) {
	e.opts.Metrics.AddMalformed(res.Malformed)
	e.opts.Metrics.AddDuplicates(res.Duplicates + res.CommentStats.Duplicates)
	e.opts.Metrics.AddPlaceholders(res.CommentStats.Resolved, res.CommentStats.Unresolved)
	e.opts.Metrics.WindowWritten(res.Posts, res.Comments, res.Snapshot.Bytes, res.Truncated)

	e.checkpointDo(r, func(m *checkpoint.Manager, cp *checkpoint.Checkpoint) error {
		return m.CompleteWindow(cp, res.Window.Start, res.Date)
	})

	if e.opts.Recorder != nil {
		if err := e.opts.Recorder.RecordWindow(ctx, r.summary.RunID, res); err != nil {
			e.logger.WithError(err).WarnWithFields("failed to record snapshot", map[string]interface{}{
				"date": res.Date,
			})
		}
	}

	logger.LogWindowDone(e.logger, r.source, res.Date, res.Posts, res.Comments, res.Malformed)

	r.mu.Lock()
	r.summary.add(res)
	r.mu.Unlock()

	if e.opts.Reporter != nil {
		e.opts.Reporter.WindowDone(res)
	}
}

func (e *Engine) finish(ctx context.Context, r *run, runErr error) (*Summary, error) {
	summary := r.summary
	summary.FinishedAt = time.Now().UTC()
	summary.Err = runErr
	slices.SortStableFunc(summary.Windows, func(a, b WindowResult) int {
		return b.Window.Start.Compare(a.Window.Start)
	})

	fields := map[string]interface{}{
		"run_id":    summary.RunID,
		"days":      summary.Days(),
		"posts":     summary.Posts,
		"comments":  summary.Comments,
		"malformed": summary.Malformed,
		"truncated": summary.TruncatedWindows,
		"elapsed":   summary.Elapsed().String(),
	}

	if runErr != nil {
		e.reset()
		e.logger.WithError(runErr).ErrorWithFields("collection aborted", fields)
	} else {
		e.transition(StateDone)
		if e.opts.Checkpoints != nil {
			if err := e.opts.Checkpoints.Delete(); err != nil {
				e.logger.WithError(err).Warn("failed to delete checkpoint")
			}
		}
		e.opts.Metrics.RunSucceeded(summary.FinishedAt)
		e.logger.InfoWithFields("collection finished", fields)
	}

	if e.opts.Recorder != nil {
		if err := e.opts.Recorder.FinishRun(context.WithoutCancel(ctx), summary); err != nil {
			e.logger.WithError(err).Warn("failed to record run result")
		}
	}
	if e.opts.Reporter != nil {
		e.opts.Reporter.RunDone(summary)
	}
	return summary, runErr
}

// openCheckpoint loads, validates or creates the run's checkpoint
func (e *Engine) openCheckpoint(p Params, r *run) error {
	m := e.opts.Checkpoints
	if m == nil {
		return nil
	}

	if p.ForceRestart {
		if err := m.Delete(); err != nil {
			e.logger.WithError(err).Warn("failed to delete existing checkpoint")
		}
	}

	existing, err := m.Load()
	if err != nil {
		return fmt.Errorf("failed to load checkpoint (use --force-restart to discard it): %w", err)
	}

	if existing != nil {
		if !p.Resume {
			return errs.Configuration(fmt.Sprintf(
				"checkpoint exists for %s (%d windows done): use --resume to continue or --force-restart to start fresh",
				existing.Source, len(existing.Completed)))
		}
		if !existing.Matches(p.Source, p.Start.UTC(), p.End.UTC()) {
			return errs.Configuration("checkpoint was created for a different source or range: use --force-restart to discard it")
		}
		r.cp = existing
		r.summary.RunID = existing.RunID
		r.summary.Resumed = true
		return nil
	}

	cp, err := m.Create(r.summary.RunID, p.Source, p.Start, p.End)
	if err != nil {
		e.logger.WithError(err).Warn("failed to create checkpoint, continuing without resume support")
		return nil
	}
	r.cp = cp
	return nil
}

func (r *run) completed(date string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cp != nil && r.cp.IsCompleted(date)
}

// savedWindow returns the checkpointed progress for win, if any
func (r *run) savedWindow(win window.DayWindow) *checkpoint.Window {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cp == nil || r.cp.Current == nil || !r.cp.Current.Start.Equal(win.Start) {
		return nil
	}
	saved := *r.cp.Current
	return &saved
}

// checkpointDo applies fn under the run lock. Checkpoint failures are logged, not fatal.
func (e *Engine) checkpointDo(r *run, fn func(m *checkpoint.Manager, cp *checkpoint.Checkpoint) error) {
	if e.opts.Checkpoints == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cp == nil {
		return
	}
	if err := fn(e.opts.Checkpoints, r.cp); err != nil {
		e.logger.WithError(err).Warn("failed to update checkpoint")
	}
}

func (e *Engine) retryConfig(kind string, retryIf func(error) bool) *retry.Config {
	return &retry.Config{
		MaxAttempts: e.opts.MaxAttempts,
		Backoff:     e.opts.Backoff,
		RetryIf:     retryIf,
		Logger:      e.logger.WithField("operation", kind),
		OnRetry: func(attempt int, err error, delay time.Duration) {
			e.opts.Metrics.IncRetry(kind)
		},
	}
}

// pageRetryable also retries undecodable listing pages, which are usually cut-off bodies
func pageRetryable(err error) bool {
	return retry.DefaultRetryIf(err) || errs.Is(err, errs.ErrorTypeMalformed)
}

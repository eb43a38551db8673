package ingest

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"subarchive/pkg/checkpoint"
	"subarchive/pkg/comments"
	errs "subarchive/pkg/errors"
	"subarchive/pkg/logger"
	"subarchive/pkg/models"
	"subarchive/pkg/reddit"
	"subarchive/pkg/retry"
	"subarchive/pkg/snapshot"
	"subarchive/pkg/window"
)

// fakeSource serves a fixed newest-first listing in pages of pageSize.
// Cursor tokens are offsets into the listing.
type fakeSource struct {
	mu sync.Mutex

	listing   []models.Post
	pageSize  int
	malformed map[int][]reddit.MalformedItem
	// pageErrs are returned, in order, before pages are served
	pageErrs []error
	forests  map[string][]comments.Node
	treeErrs map[string]error
	// noResolver makes Resolver return nil
	noResolver bool
	resolved map[string][]comments.Node
	// resolveErrs are returned, in order, before a placeholder resolves
	resolveErrs  map[string][]error
	resolveCalls map[string]int

	cursors      []string
	commentCalls []string
}

func newFakeSource(pageSize int, listing ...models.Post) *fakeSource {
	return &fakeSource{
		listing:   listing,
		pageSize:  pageSize,
		malformed: make(map[int][]reddit.MalformedItem),
		forests:   make(map[string][]comments.Node),
		treeErrs:  make(map[string]error),
		resolved:  make(map[string][]comments.Node),

		resolveErrs:  make(map[string][]error),
		resolveCalls: make(map[string]int),
	}
}

func (f *fakeSource) FetchPage(ctx context.Context, subreddit string, cursor reddit.Cursor) (*reddit.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cursors = append(f.cursors, cursor.Token())
	if len(f.pageErrs) > 0 {
		err := f.pageErrs[0]
		f.pageErrs = f.pageErrs[1:]
		return nil, err
	}

	offset := 0
	if tok := cursor.Token(); tok != "" {
		offset, _ = strconv.Atoi(tok)
	}
	end := min(offset+f.pageSize, len(f.listing))
	if offset > end {
		offset = end
	}

	page := &reddit.Page{
		Posts:     append([]models.Post(nil), f.listing[offset:end]...),
		Malformed: f.malformed[offset],
	}
	page.Items = len(page.Posts) + len(page.Malformed)
	page.HasMore = end < len(f.listing)
	if page.HasMore {
		page.Next = reddit.NewCursor(strconv.Itoa(end))
	}
	return page, nil
}

func (f *fakeSource) FetchComments(ctx context.Context, subreddit, postID string) (*reddit.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.commentCalls = append(f.commentCalls, postID)
	if err, ok := f.treeErrs[postID]; ok {
		return nil, err
	}
	return &reddit.Thread{Forest: f.forests[postID]}, nil
}

func (f *fakeSource) Resolver(subreddit string) comments.Resolver {
	if f.noResolver {
		return nil
	}
	return fakeResolver{src: f}
}

func (f *fakeSource) pageCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cursors)
}

type fakeResolver struct {
	src *fakeSource
}

func (r fakeResolver) ResolveMore(ctx context.Context, postID string, p comments.Placeholder) ([]comments.Node, error) {
	r.src.mu.Lock()
	defer r.src.mu.Unlock()
	r.src.resolveCalls[p.ID]++
	if pending := r.src.resolveErrs[p.ID]; len(pending) > 0 {
		r.src.resolveErrs[p.ID] = pending[1:]
		return nil, pending[0]
	}
	nodes, ok := r.src.resolved[p.ID]
	if !ok {
		return nil, errs.New(errs.ErrorTypeNotFound, "no such placeholder")
	}
	return nodes, nil
}

// recordingWriter wraps a real snapshot writer, remembers call order and can fail one date
type recordingWriter struct {
	inner  *snapshot.Writer
	failOn string

	mu    sync.Mutex
	dates []string
}

func (w *recordingWriter) Write(source string, win window.DayWindow, posts []models.Post) (snapshot.Result, error) {
	w.mu.Lock()
	w.dates = append(w.dates, win.Date())
	w.mu.Unlock()
	if win.Date() == w.failOn {
		return snapshot.Result{}, errs.New(errs.ErrorTypeSerialization, "disk full")
	}
	return w.inner.Write(source, win, posts)
}

func (w *recordingWriter) written() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.dates...)
}

type fakeRecorder struct {
	mu       sync.Mutex
	runs     []RunInfo
	windows  []WindowResult
	finished []*Summary
}

func (r *fakeRecorder) StartRun(ctx context.Context, run RunInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

func (r *fakeRecorder) RecordWindow(ctx context.Context, runID string, res WindowResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.windows = append(r.windows, res)
	return nil
}

func (r *fakeRecorder) FinishRun(ctx context.Context, summary *Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, summary)
	return nil
}

type fakeReporter struct {
	mu      sync.Mutex
	windows []string
	done    int
}

func (r *fakeReporter) WindowDone(res WindowResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.windows = append(r.windows, res.Date)
}

func (r *fakeReporter) RunDone(summary *Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done++
}

type harness struct {
	src    *fakeSource
	writer *recordingWriter
	log    *logger.TestLogger
	dir    string
	engine *Engine
}

func newHarness(t *testing.T, src *fakeSource, configure ...func(*Options)) *harness {
	t.Helper()
	dir := t.TempDir()
	inner, err := snapshot.NewWriter(dir)
	require.NoError(t, err)

	h := &harness{src: src, writer: &recordingWriter{inner: inner}, log: logger.NewTestLogger(), dir: dir}
	opts := Options{
		Source:      src,
		Writer:      h.writer,
		Logger:      h.log,
		MaxAttempts: 3,
		Backoff:     &retry.ConstantBackoff{Delay: 0},
	}
	for _, fn := range configure {
		fn(&opts)
	}
	h.engine, err = New(opts)
	require.NoError(t, err)
	return h
}

func newCheckpoints(t *testing.T) *checkpoint.Manager {
	t.Helper()
	m, err := checkpoint.NewManager(t.TempDir(), "golang")
	require.NoError(t, err)
	return m.WithLogger(logger.NewNopLogger())
}

func ts(t *testing.T, value string) models.Timestamp {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return models.At(parsed)
}

func post(t *testing.T, id, created string) models.Post {
	return models.Post{
		ID:          id,
		Title:       "title " + id,
		Author:      models.StringPtr("author_" + id),
		CreatedAt:   ts(t, created),
		NumComments: 0,
	}
}

func comment(id string, replies ...comments.Node) comments.Node {
	return comments.Node{
		Comment: &models.Comment{
			ID:        id,
			Body:      "body " + id,
			Author:    models.StringPtr("u_" + id),
			CreatedAt: models.NewTimestamp(1735819200),
		},
		Replies: replies,
	}
}

func more(id, parent string, children ...string) comments.Node {
	return comments.Node{More: &comments.Placeholder{ID: id, ParentID: parent, Children: children, Count: len(children)}}
}

func day(t *testing.T, date string) time.Time {
	t.Helper()
	parsed, err := time.Parse(window.DayLayout, date)
	require.NoError(t, err)
	return parsed.UTC()
}

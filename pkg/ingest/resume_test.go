package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "subarchive/pkg/errors"
	"subarchive/pkg/models"
)

func TestResumeMidWindowFromCursor(t *testing.T) {
	m := newCheckpoints(t)
	src := twoDayListing(t)
	h := newHarness(t, src, func(o *Options) { o.Checkpoints = m })

	start, end := day(t, "2025-01-01"), day(t, "2025-01-03")
	cp, err := m.Create("run-old", "golang", start, end)
	require.NoError(t, err)
	require.NoError(t, m.BeginWindow(cp, day(t, "2025-01-02"), end))
	require.NoError(t, m.UpdatePage(cp, "2", src.listing[:2], false))

	summary, err := h.engine.Run(context.Background(), Params{Source: "golang", Start: start, End: end, Resume: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"2", "", "2"}, src.cursors)
	assert.Equal(t, []string{"p3", "p2"}, ids(readDay(t, h, "2025-01-02")))
	assert.Equal(t, []string{"p1"}, ids(readDay(t, h, "2025-01-01")))
	assert.Equal(t, "run-old", summary.RunID)
	assert.True(t, summary.Resumed)
	assert.False(t, m.Exists())
}

func TestResumeSkipsWrittenWindows(t *testing.T) {
	m := newCheckpoints(t)
	src := twoDayListing(t)
	h := newHarness(t, src, func(o *Options) { o.Checkpoints = m })

	start, end := day(t, "2025-01-01"), day(t, "2025-01-03")
	cp, err := m.Create("run-old", "golang", start, end)
	require.NoError(t, err)
	require.NoError(t, m.CompleteWindow(cp, day(t, "2025-01-02"), "2025-01-02"))

	summary, err := h.engine.Run(context.Background(), Params{Source: "golang", Start: start, End: end, Resume: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"2025-01-01"}, h.writer.written())
	assert.Equal(t, 1, summary.SkippedWindows)
	assert.Equal(t, 2, summary.Days())
	assert.Equal(t, 1, summary.Posts)
	assert.False(t, h.log.HasMessage("illegal state transition"))
}

func TestResumeContinuesCommentFetching(t *testing.T) {
	m := newCheckpoints(t)
	src := twoDayListing(t)
	h := newHarness(t, src, func(o *Options) { o.Checkpoints = m })

	start, end := day(t, "2025-01-01"), day(t, "2025-01-03")
	cp, err := m.Create("run-old", "golang", start, end)
	require.NoError(t, err)
	require.NoError(t, m.BeginWindow(cp, day(t, "2025-01-02"), end))

	posts := append([]models.Post(nil), src.listing[:2]...)
	posts[0].Comments = []models.Comment{{ID: "kept", Body: "from the first run", CreatedAt: models.NewTimestamp(1735819200)}}
	require.NoError(t, m.UpdatePage(cp, "", posts, true))
	require.NoError(t, m.RecordComments(cp, posts, 1))

	_, err = h.engine.Run(context.Background(), Params{Source: "golang", Start: start, End: end, Resume: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"p2", "p1"}, src.commentCalls)
	assert.Equal(t, []string{"", "2"}, src.cursors)
	newest := readDay(t, h, "2025-01-02")
	require.Len(t, newest, 2)
	assert.Equal(t, []string{"kept"}, commentIDs(newest[0].Comments))
	assert.False(t, h.log.HasMessage("illegal state transition"))
}

func TestInterruptedRunResumes(t *testing.T) {
	m := newCheckpoints(t)
	src := twoDayListing(t)
	src.treeErrs["p1"] = errs.Transient(503, "down")
	h := newHarness(t, src, func(o *Options) { o.Checkpoints = m })
	params := Params{Source: "golang", Start: day(t, "2025-01-01"), End: day(t, "2025-01-03")}

	_, err := h.engine.Run(context.Background(), params)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeFatal))
	require.True(t, m.Exists())

	saved, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-01-02"}, saved.Completed)
	require.NotNil(t, saved.Current)
	assert.True(t, saved.Current.PaginationDone)
	assert.Equal(t, []string{"p1"}, ids(saved.Current.Posts))

	delete(src.treeErrs, "p1")
	src.cursors = nil
	src.commentCalls = nil

	params.Resume = true
	summary, err := h.engine.Run(context.Background(), params)
	require.NoError(t, err)

	assert.Empty(t, src.cursors)
	assert.Equal(t, []string{"p1"}, src.commentCalls)
	assert.Equal(t, []string{"p1"}, ids(readDay(t, h, "2025-01-01")))
	assert.Equal(t, 1, summary.SkippedWindows)
	assert.False(t, m.Exists())
}

func TestExistingCheckpointNeedsDecision(t *testing.T) {
	m := newCheckpoints(t)
	src := twoDayListing(t)
	h := newHarness(t, src, func(o *Options) { o.Checkpoints = m })

	start, end := day(t, "2025-01-01"), day(t, "2025-01-03")
	_, err := m.Create("run-old", "golang", start, end)
	require.NoError(t, err)

	_, err = h.engine.Run(context.Background(), Params{Source: "golang", Start: start, End: end})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeConfiguration))
	assert.Zero(t, src.pageCalls())

	summary, err := h.engine.Run(context.Background(), Params{Source: "golang", Start: start, End: end, ForceRestart: true})
	require.NoError(t, err)
	assert.NotEqual(t, "run-old", summary.RunID)
	assert.False(t, summary.Resumed)
}

func TestResumeRejectsDifferentRange(t *testing.T) {
	m := newCheckpoints(t)
	h := newHarness(t, twoDayListing(t), func(o *Options) { o.Checkpoints = m })

	_, err := m.Create("run-old", "golang", day(t, "2025-01-01"), day(t, "2025-01-03"))
	require.NoError(t, err)

	_, err = h.engine.Run(context.Background(), Params{
		Source: "golang", Start: day(t, "2025-01-02"), End: day(t, "2025-01-03"), Resume: true,
	})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeConfiguration))
}

package ui

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"subarchive/pkg/comments"
	"subarchive/pkg/ingest"
	"subarchive/pkg/snapshot"
)

func TestReporterWindowDone(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, 2)

	r.WindowDone(ingest.WindowResult{
		Date:         "2025-01-02",
		Posts:        3,
		Comments:     12,
		Malformed:    1,
		Duplicates:   2,
		CommentStats: comments.Stats{Duplicates: 1, Unresolved: 4},
		Snapshot:     snapshot.Result{Bytes: 2048},
		Duration:     1500 * time.Millisecond,
	})

	out := buf.String()
	assert.Contains(t, out, "2025-01-02")
	assert.Contains(t, out, "posts 3")
	assert.Contains(t, out, "comments 12")
	assert.Contains(t, out, "malformed 1")
	assert.Contains(t, out, "duplicates 3")
	assert.Contains(t, out, "2.0 KiB")
	assert.Contains(t, out, "unresolved 4")
	assert.Contains(t, out, "1/2")
	assert.NotContains(t, out, "truncated")
}

func TestReporterMarksTruncatedAndSkipped(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, 2)

	r.WindowDone(ingest.WindowResult{Date: "2025-01-02", Truncated: true})
	r.WindowDone(ingest.WindowResult{Date: "2025-01-01", Skipped: true})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "truncated")
	assert.Contains(t, lines[1], "already written, skipped")
	assert.Contains(t, lines[1], "2/2")
}

func TestReporterRunDone(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, 2)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	r.RunDone(&ingest.Summary{
		RunID:            "run-1",
		Source:           "golang",
		Start:            start,
		End:              start.Add(48 * time.Hour),
		Windows:          make([]ingest.WindowResult, 2),
		Posts:            7,
		Comments:         40,
		TruncatedWindows: 1,
		StartedAt:        start,
		FinishedAt:       start.Add(time.Minute),
	})

	out := buf.String()
	assert.Contains(t, out, "Finished fetching data for 2 day(s)")
	assert.Contains(t, out, "r/golang")
	assert.Contains(t, out, "40")
	assert.Contains(t, out, "1m0s")
	assert.Contains(t, out, "Truncated")
	assert.NotContains(t, out, "Skipped")
}

func TestReporterRunDoneWithError(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, 3)

	r.RunDone(&ingest.Summary{
		RunID:     "run-2",
		Source:    "golang",
		Windows:   make([]ingest.WindowResult, 1),
		StartedAt: time.Now(),
		Err:       errors.New("upstream unavailable"),
	})

	assert.Contains(t, buf.String(), "Run run-2 aborted after 1 day(s): upstream unavailable")
}

func TestReporterConcurrentWindows(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, 20)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.WindowDone(ingest.WindowResult{Date: "2025-01-01", Snapshot: snapshot.Result{Bytes: 10}})
		}()
	}
	wg.Wait()

	assert.Len(t, strings.Split(strings.TrimSpace(buf.String()), "\n"), 20)
	assert.Contains(t, buf.String(), "20/20")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.0 KiB", FormatBytes(1024))
	assert.Equal(t, "1.5 MiB", FormatBytes(1536*1024))
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.Info("Source", "golang")
	p.Error("collect failed", errors.New("boom"))
	p.Success("done")

	out := buf.String()
	assert.Contains(t, out, "Source")
	assert.Contains(t, out, "golang")
	assert.Contains(t, out, "collect failed: boom")
	assert.Contains(t, out, "done")
}

type recordingSender struct {
	titles []string
	err    error
}

func (s *recordingSender) Send(title, message string) error {
	s.titles = append(s.titles, title)
	return s.err
}

func TestNotifier(t *testing.T) {
	sender := &recordingSender{err: errors.New("no display")}
	n := NewNotifierWithSender(sender)

	n.Notify("subarchive", "run finished")
	assert.Equal(t, []string{"subarchive"}, sender.titles)

	var nilNotifier *Notifier
	nilNotifier.Notify("subarchive", "ignored")
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	out := Table(&buf, []string{"DAY", "POSTS"}, [][]string{{"2025-01-02", "3"}, {"2025-01-01", "0"}})

	assert.Contains(t, out, "DAY")
	assert.Contains(t, out, "2025-01-02")
	assert.Contains(t, out, "2025-01-01")
}

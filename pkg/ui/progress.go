package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"subarchive/pkg/ingest"
)

const (
	barFull  = "█"
	barEmpty = "░"
	barWidth = 20
)

// Reporter prints one line per finished day window and a run summary.
// It is safe for use by concurrent snapshot writers.
type Reporter struct {
	mu     sync.Mutex
	out    io.Writer
	styles Styles
	total  int
	done   int
	bytes  int64
}

// NewReporter creates a Reporter for a run spanning total windows
func NewReporter(w io.Writer, total int) *Reporter {
	return &Reporter{out: w, styles: NewStyles(w), total: total}
}

// WindowDone prints the outcome of one window
func (r *Reporter) WindowDone(res ingest.WindowResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.done++
	r.bytes += res.Snapshot.Bytes
	s := r.styles

	prefix := fmt.Sprintf("%s %s", r.bar(), s.Label.Render(res.Date))
	if res.Skipped {
		fmt.Fprintf(r.out, "%s %s\n", prefix, s.Dim.Render("already written, skipped"))
		return
	}

	line := fmt.Sprintf("%s posts %s  comments %s  malformed %s  duplicates %s  %s  %s",
		prefix,
		s.Value.Render(fmt.Sprint(res.Posts)),
		s.Value.Render(fmt.Sprint(res.Comments)),
		r.count(res.Malformed),
		s.Value.Render(fmt.Sprint(res.Duplicates+res.CommentStats.Duplicates)),
		s.Dim.Render(FormatBytes(res.Snapshot.Bytes)),
		s.Dim.Render(res.Duration.Round(time.Millisecond).String()),
	)
	if res.CommentStats.Unresolved > 0 {
		line += s.Dim.Render(fmt.Sprintf("  unresolved %d", res.CommentStats.Unresolved))
	}
	if res.Truncated {
		line += "  " + s.Warning.Render("truncated: upstream history ended")
	}
	fmt.Fprintln(r.out, line)
}

// RunDone prints the aggregate summary of a run
func (r *Reporter) RunDone(summary *ingest.Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.styles

	fmt.Fprintln(r.out)
	if summary.Err != nil {
		fmt.Fprintln(r.out, s.Error.Render(fmt.Sprintf("Run %s aborted after %d day(s): %v", summary.RunID, summary.Days(), summary.Err)))
	} else {
		fmt.Fprintln(r.out, s.Success.Render(fmt.Sprintf("Finished fetching data for %d day(s)", summary.Days())))
	}

	rows := [][2]string{
		{"Source", "r/" + summary.Source},
		{"Range", fmt.Sprintf("%s .. %s", summary.Start.UTC().Format(time.RFC3339), summary.End.UTC().Format(time.RFC3339))},
		{"Posts", fmt.Sprint(summary.Posts)},
		{"Comments", fmt.Sprint(summary.Comments)},
		{"Malformed", fmt.Sprint(summary.Malformed)},
		{"Duplicates", fmt.Sprint(summary.Duplicates)},
		{"Written", FormatBytes(r.bytes)},
		{"Elapsed", summary.Elapsed().Round(time.Second).String()},
	}
	if summary.TruncatedWindows > 0 {
		rows = append(rows, [2]string{"Truncated", fmt.Sprintf("%d day(s)", summary.TruncatedWindows)})
	}
	if summary.SkippedWindows > 0 {
		rows = append(rows, [2]string{"Skipped", fmt.Sprintf("%d day(s)", summary.SkippedWindows)})
	}
	if summary.Resumed {
		rows = append(rows, [2]string{"Resumed", "yes"})
	}

	for _, row := range rows {
		fmt.Fprintf(r.out, "  %-11s %s\n", s.Label.Render(row[0]), s.Value.Render(row[1]))
	}
}

func (r *Reporter) bar() string {
	filled := 0
	if r.total > 0 {
		filled = min(r.done*barWidth/r.total, barWidth)
	}
	return fmt.Sprintf("[%s%s] %*d/%d",
		r.styles.Bar.Render(strings.Repeat(barFull, filled)),
		r.styles.BarEmpty.Render(strings.Repeat(barEmpty, barWidth-filled)),
		len(fmt.Sprint(r.total)), r.done, r.total)
}

func (r *Reporter) count(n int) string {
	if n > 0 {
		return r.styles.Warning.Render(fmt.Sprint(n))
	}
	return r.styles.Value.Render(fmt.Sprint(n))
}

// FormatBytes renders a byte count using binary units
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

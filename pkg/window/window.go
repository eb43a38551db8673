// Package window walks a time range backward one UTC calendar day at a time.
package window

import (
	"iter"
	"time"

	errs "subarchive/pkg/errors"
)

// Day is the width of a whole window
const Day = 24 * time.Hour

// DayLayout formats a window's calendar date
const DayLayout = "2006-01-02"

// DayWindow is the half-open interval [Start, End)
type DayWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window
func (w DayWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Date is the calendar date of Start, used to key snapshots
func (w DayWindow) Date() string {
	return w.Start.UTC().Format(DayLayout)
}

// Duration is End - Start
func (w DayWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

func (w DayWindow) String() string {
	return "[" + w.Start.UTC().Format(time.RFC3339) + ", " + w.End.UTC().Format(time.RFC3339) + ")"
}

// Walker yields windows from the newest day down to rangeStart.
// Boundaries sit on UTC midnights; the newest window ends at rangeEnd and the
// oldest starts at rangeStart, so both may be partial days.
type Walker struct {
	rangeStart time.Time
	rangeEnd   time.Time
	current    time.Time
}

// NewWalker validates the range and returns a walker positioned at rangeEnd
func NewWalker(rangeStart, rangeEnd time.Time) (*Walker, error) {
	if rangeStart.IsZero() || rangeEnd.IsZero() {
		return nil, errs.Configuration("range bounds must be set")
	}
	if !rangeStart.Before(rangeEnd) {
		return nil, errs.Configuration("range start " + rangeStart.UTC().Format(time.RFC3339) +
			" must be before end " + rangeEnd.UTC().Format(time.RFC3339))
	}
	w := &Walker{rangeStart: rangeStart.UTC(), rangeEnd: rangeEnd.UTC()}
	w.Reset()
	return w, nil
}

// Next returns the next older window, or false once the range is exhausted
func (w *Walker) Next() (DayWindow, bool) {
	if !w.current.After(w.rangeStart) {
		return DayWindow{}, false
	}
	end := w.current
	start := end.Truncate(Day)
	if start.Equal(end) {
		start = end.Add(-Day)
	}
	if start.Before(w.rangeStart) {
		start = w.rangeStart
	}
	w.current = start
	return DayWindow{Start: start, End: end}, true
}

// Reset rewinds the walker to rangeEnd
func (w *Walker) Reset() {
	w.current = w.rangeEnd
}

// All returns a restartable sequence over the whole range; it does not disturb Next
func (w *Walker) All() iter.Seq[DayWindow] {
	return func(yield func(DayWindow) bool) {
		inner := &Walker{rangeStart: w.rangeStart, rangeEnd: w.rangeEnd}
		inner.Reset()
		for {
			win, ok := inner.Next()
			if !ok || !yield(win) {
				return
			}
		}
	}
}

// Collect materializes every window, newest first
func (w *Walker) Collect() []DayWindow {
	var out []DayWindow
	for win := range w.All() {
		out = append(out, win)
	}
	return out
}

// Count returns the number of windows in the range
func (w *Walker) Count() int {
	n := 0
	for range w.All() {
		n++
	}
	return n
}

package models

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Post is one submission as persisted in a day snapshot.
// Field names are consumed by downstream jobs and must not change.
type Post struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Body        string    `json:"selftext"`
	Author      *string   `json:"author"`
	CreatedAt   Timestamp `json:"created_utc"`
	Score       int       `json:"upvotes"`
	NumComments int       `json:"num_comments"`
	Flair       *string   `json:"flair"`
	Comments    []Comment `json:"comments"`
}

// Comment is a flattened comment embedded in its Post
type Comment struct {
	ID        string    `json:"id"`
	Body      string    `json:"body"`
	Author    *string   `json:"author"`
	CreatedAt Timestamp `json:"created_utc"`
	Score     int       `json:"upvotes"`
}

// Timestamp is a UTC instant encoded as fractional unix seconds
type Timestamp struct {
	time.Time
}

// NewTimestamp converts unix seconds into a Timestamp
func NewTimestamp(seconds float64) Timestamp {
	whole, frac := math.Modf(seconds)
	return Timestamp{time.Unix(int64(whole), int64(math.Round(frac*1e9))).UTC()}
}

// At wraps t as a UTC Timestamp
func At(t time.Time) Timestamp {
	return Timestamp{t.UTC()}
}

// Seconds returns the instant as fractional unix seconds
func (t Timestamp) Seconds() float64 {
	return float64(t.UnixNano()) / 1e9
}

// MarshalJSON writes the instant as a float, always with a fractional part (1735689600.0)
func (t Timestamp) MarshalJSON() ([]byte, error) {
	s := strconv.FormatFloat(t.Seconds(), 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return []byte(s), nil
}

// UnmarshalJSON accepts integer or fractional unix seconds
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	seconds, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid unix timestamp %q: %w", data, err)
	}
	*t = NewTimestamp(seconds)
	return nil
}

// StringPtr returns nil for empty strings, otherwise a pointer to s
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

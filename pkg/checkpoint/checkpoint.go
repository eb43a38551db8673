package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"subarchive/pkg/logger"
	"subarchive/pkg/models"
)

// Version of the checkpoint file layout
const Version = 1

// Window is the progress inside the window currently being collected
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	// Cursor is the listing token to request next
	Cursor string `json:"cursor"`
	// PaginationDone is set once the stop rule fired for this window
	PaginationDone bool `json:"pagination_done"`
	// Posts matched so far, newest first
	Posts []models.Post `json:"posts"`
	// CommentsFetched counts leading Posts whose comments are already attached
	CommentsFetched int `json:"comments_fetched"`
	// Counters carried over so a resumed window reports the same totals
	Malformed  int  `json:"malformed"`
	Duplicates int  `json:"duplicates"`
	Truncated  bool `json:"truncated"`
}

// Checkpoint represents the state of an ingestion run
type Checkpoint struct {
	RunID      string    `json:"run_id"`
	Source     string    `json:"source"`
	RangeStart time.Time `json:"range_start"`
	RangeEnd   time.Time `json:"range_end"`
	// Completed holds the dates of windows whose snapshots are written
	Completed []string  `json:"completed"`
	Current   *Window   `json:"current,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

// Matches reports whether the checkpoint belongs to the same source and range
func (c *Checkpoint) Matches(source string, start, end time.Time) bool {
	return c.Source == source && c.RangeStart.Equal(start) && c.RangeEnd.Equal(end)
}

// IsCompleted checks if the window for date has already been written
func (c *Checkpoint) IsCompleted(date string) bool {
	return slices.Contains(c.Completed, date)
}

var errNoWindow = errors.New("no window in progress")

// Manager owns one source's checkpoint file
type Manager struct {
	checkpointPath string
	logger         logger.Logger
}

// NewManager creates a manager for one source's checkpoint under dir
func NewManager(dir, source string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}

	return &Manager{
		checkpointPath: filepath.Join(dir, fmt.Sprintf("%s.checkpoint.json", source)),
		logger:         logger.GetLogger(),
	}, nil
}

// WithLogger replaces the manager's logger
func (m *Manager) WithLogger(l logger.Logger) *Manager {
	m.logger = l
	return m
}

// Path returns the checkpoint file location
func (m *Manager) Path() string {
	return m.checkpointPath
}

// Create creates and saves a new checkpoint
func (m *Manager) Create(runID, source string, start, end time.Time) (*Checkpoint, error) {
	now := time.Now().UTC()
	cp := &Checkpoint{
		RunID:      runID,
		Source:     source,
		RangeStart: start.UTC(),
		RangeEnd:   end.UTC(),
		Completed:  []string{},
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    Version,
	}

	if err := m.Save(cp); err != nil {
		return nil, fmt.Errorf("failed to save initial checkpoint: %w", err)
	}
	m.logger.InfoWithFields("checkpoint created", map[string]interface{}{
		"source": source,
		"run_id": runID,
		"path":   m.checkpointPath,
	})
	return cp, nil
}

// Load reads the checkpoint file. A missing file yields nil, nil.
func (m *Manager) Load() (*Checkpoint, error) {
	data, err := os.ReadFile(m.checkpointPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	cp := new(Checkpoint)
	if err := json.Unmarshal(data, cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if cp.Version != Version {
		return nil, fmt.Errorf("unsupported checkpoint version %d", cp.Version)
	}

	m.logger.InfoWithFields("checkpoint loaded", cp.logFields())
	return cp, nil
}

func (c *Checkpoint) logFields() map[string]interface{} {
	fields := map[string]interface{}{
		"source":    c.Source,
		"run_id":    c.RunID,
		"completed": len(c.Completed),
	}
	if w := c.Current; w != nil {
		fields["window_start"] = w.Start
		fields["cursor"] = w.Cursor
		fields["posts"] = len(w.Posts)
		fields["comments_fetched"] = w.CommentsFetched
	}
	return fields
}

// Save replaces the checkpoint file via a temp file in the same directory,
// so readers only ever see a complete document.
func (m *Manager) Save(cp *Checkpoint) error {
	cp.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := replaceFile(m.checkpointPath, data); err != nil {
		return err
	}
	m.logger.DebugWithFields("checkpoint saved", cp.logFields())
	return nil
}

func replaceFile(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync checkpoint: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close checkpoint: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}
	return nil
}

// Delete removes the checkpoint file; a missing file is not an error.
func (m *Manager) Delete() error {
	if err := os.Remove(m.checkpointPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	m.logger.Debug("checkpoint deleted")
	return nil
}

func (m *Manager) Exists() bool {
	_, err := os.Stat(m.checkpointPath)
	return err == nil
}

// BeginWindow starts tracking a fresh window
func (m *Manager) BeginWindow(checkpoint *Checkpoint, start, end time.Time) error {
	checkpoint.Current = &Window{Start: start.UTC(), End: end.UTC(), Posts: []models.Post{}}
	return m.Save(checkpoint)
}

// UpdatePage records the matched posts and the cursor after a page
func (m *Manager) UpdatePage(checkpoint *Checkpoint, cursor string, posts []models.Post, done bool) error {
	if checkpoint.Current == nil {
		return errNoWindow
	}
	checkpoint.Current.Cursor = cursor
	checkpoint.Current.Posts = posts
	checkpoint.Current.PaginationDone = done
	return m.Save(checkpoint)
}

// RecordComments records that the first n posts have their comments attached
func (m *Manager) RecordComments(checkpoint *Checkpoint, posts []models.Post, n int) error {
	if checkpoint.Current == nil {
		return errNoWindow
	}
	checkpoint.Current.Posts = posts
	checkpoint.Current.CommentsFetched = n
	return m.Save(checkpoint)
}

// CompleteWindow marks the window starting at start as written.
// The in-progress state is cleared only if it still belongs to that window.
func (m *Manager) CompleteWindow(checkpoint *Checkpoint, start time.Time, date string) error {
	if !checkpoint.IsCompleted(date) {
		checkpoint.Completed = append(checkpoint.Completed, date)
	}
	if checkpoint.Current != nil && checkpoint.Current.Start.Equal(start) {
		checkpoint.Current = nil
	}
	return m.Save(checkpoint)
}

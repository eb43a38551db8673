// Package snapshot publishes one JSON file per (source, day).
//
// Files are written to a temporary name in the target directory, synced, and
// renamed into place, so the canonical path only ever holds a complete snapshot.
// A rerun replaces the file; nothing is merged.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	errs "subarchive/pkg/errors"
	"subarchive/pkg/models"
	"subarchive/pkg/window"
)

// Result describes a published snapshot
type Result struct {
	Path   string
	Posts  int
	Bytes  int64
	SHA256 string
}

// Writer writes day snapshots under a directory
type Writer struct {
	dir     string
	marshal func(v any) ([]byte, error)
}

// NewWriter creates the output directory if needed
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeSerialization, err, "failed to create output directory")
	}
	return &Writer{dir: dir, marshal: json.Marshal}, nil
}

// Dir returns the output directory
func (w *Writer) Dir() string {
	return w.dir
}

// FileName is the canonical snapshot name for a source and window
func FileName(source string, win window.DayWindow) string {
	return fmt.Sprintf("%s_posts_with_comments_%s.json", source, win.Date())
}

// Path is the canonical snapshot path for a source and window
func (w *Writer) Path(source string, win window.DayWindow) string {
	return filepath.Join(w.dir, FileName(source, win))
}

// Write serializes posts and atomically publishes them at Path(source, win)
func (w *Writer) Write(source string, win window.DayWindow, posts []models.Post) (Result, error) {
	posts = normalize(posts)
	seen := make(map[string]struct{}, len(posts))
	for _, p := range posts {
		if _, dup := seen[p.ID]; dup {
			return Result{}, errs.New(errs.ErrorTypeSerialization, "duplicate post id "+p.ID+" in snapshot "+win.Date())
		}
		seen[p.ID] = struct{}{}
	}

	data, err := w.marshal(posts)
	if err != nil {
		return Result{}, errs.Wrap(errs.ErrorTypeSerialization, err, "failed to encode snapshot")
	}

	path := w.Path(source, win)
	if err := writeAtomic(path, data); err != nil {
		return Result{}, errs.Wrap(errs.ErrorTypeSerialization, err, "failed to publish "+filepath.Base(path))
	}

	sum := sha256.Sum256(data)
	return Result{
		Path:   path,
		Posts:  len(posts),
		Bytes:  int64(len(data)),
		SHA256: hex.EncodeToString(sum[:]),
	}, nil
}

// normalize makes every nil slice encode as [] without touching the caller's posts
func normalize(posts []models.Post) []models.Post {
	if posts == nil {
		return []models.Post{}
	}
	var out []models.Post
	for i, p := range posts {
		if p.Comments != nil {
			continue
		}
		if out == nil {
			out = make([]models.Post, len(posts))
			copy(out, posts)
		}
		out[i].Comments = []models.Comment{}
	}
	if out == nil {
		return posts
	}
	return out
}

// writeAtomic writes data to a temp file next to path, syncs it and renames it over path
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temporary file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return nil
}

// Read loads a snapshot file
func Read(path string) ([]models.Post, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var posts []models.Post
	if err := json.Unmarshal(data, &posts); err != nil {
		return nil, errs.Malformed(err, "failed to decode snapshot "+filepath.Base(path))
	}
	return posts, nil
}

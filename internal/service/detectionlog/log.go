// Package detectionlog keeps the ordered record of written detection clips
// and persists it as a single JSON document that is replaced atomically.
package detectionlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"sharkcam/internal/model"
)

// Log is the in-memory detection log backed by a JSON file.
type Log struct {
	path    string
	entries []model.Detection
	dirty   bool
	mu      sync.Mutex

	// persist writes the encoded log to path; replaced in tests.
	persist func(path string, data []byte) error
}

// Open loads the log stored at path. A missing file yields an empty log;
// a malformed one is an error.
func Open(path string) (*Log, error) {
	l := &Log{path: path, persist: writeFileAtomic}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return l, nil
		}
		return nil, fmt.Errorf("read detection log: %w", err)
	}

	if err := json.Unmarshal(data, &l.entries); err != nil {
		return nil, fmt.Errorf("decode detection log %s: %w", path, err)
	}
	return l, nil
}

// Append adds an entry and persists the whole log. If persisting fails the
// entry stays in memory and the write is retried by the next Append or Flush.
func (l *Log) Append(entry model.Detection) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, entry)
	l.dirty = true
	return l.flushLocked()
}

// Flush persists the log if an earlier write failed.
func (l *Log) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.dirty {
		return nil
	}
	return l.flushLocked()
}

// Entries returns a copy of the entries in insertion order.
func (l *Log) Entries() []model.Detection {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]model.Detection, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Dirty reports whether the in-memory log is ahead of the file.
func (l *Log) Dirty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dirty
}

// Path returns the backing file path.
func (l *Log) Path() string {
	return l.path
}

func (l *Log) flushLocked() error {
	entries := l.entries
	if entries == nil {
		entries = []model.Detection{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode detection log: %w", err)
	}

	if err := l.persist(l.path, data); err != nil {
		return fmt.Errorf("persist detection log: %w", err)
	}
	l.dirty = false
	return nil
}

// writeFileAtomic writes data to a temporary file next to path, syncs it
// and renames it over path, so readers see either the old or the new file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename: %w", err)
	}

	// Make the rename itself durable; not every platform supports syncing a directory.
	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
	return nil
}

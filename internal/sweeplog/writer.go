// Package sweeplog reads and writes the collection log: UTF-8 text, one
// JSON-encoded MetricRecord per line, append-only. The log is the only
// artifact crossing the collection/analysis boundary, so collection and
// analysis may run as separate processes at separate times.
package sweeplog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sweeplabs/latsweep/pkg/types"
)

// Writer appends records to a collection log. The file is opened in
// append mode and never truncated, so a prior partial run's records
// survive and collection is resumable. Every append is synced so a crash
// loses at most the in-flight record.
type Writer struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	written int64
}

// OpenWriter opens (or creates) the log at path for appending.
func OpenWriter(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("ensure output dir %q: %w", dir, err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log %q: %w", path, err)
	}
	return &Writer{file: file, path: path}, nil
}

// Append writes one record as a single line and syncs it to disk.
func (w *Writer) Append(rec types.MetricRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write log %q: %w", w.path, err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync log %q: %w", w.path, err)
	}
	w.written++
	return nil
}

// Path returns the location of the log file.
func (w *Writer) Path() string {
	return w.path
}

// Written returns how many records this writer has appended.
func (w *Writer) Written() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

package transcript

import (
	"fmt"
	"os"
	"path/filepath"
)

// LiveWriter appends timestamped transcript lines to the live artifact file.
// The file is the durable system of record during a session: it is opened
// fresh at start, only ever appended to, and flushed after every line so
// external readers always see complete lines.
type LiveWriter struct {
	path string
	file *os.File
}

// NewLiveWriter creates a writer for the given path. Call Start before writing.
func NewLiveWriter(path string) *LiveWriter {
	return &LiveWriter{path: path}
}

// Start opens the file, truncating any previous session's content.
func (w *LiveWriter) Start() error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("failed to create transcript directory: %w", err)
	}
	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("failed to open live transcript: %w", err)
	}
	w.file = f
	return nil
}

// WriteEntry appends one formatted line and syncs it to disk.
// Format: "[HH:MM:SS] Speaker N: text" or "[HH:MM:SS] text" when undiarized.
func (w *LiveWriter) WriteEntry(e Entry) error {
	if w.file == nil {
		return fmt.Errorf("live writer not started")
	}

	if _, err := w.file.WriteString(FormatLine(e) + "\n"); err != nil {
		return fmt.Errorf("failed to append transcript line: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync transcript: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (w *LiveWriter) Close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// Path returns the live transcript file path.
func (w *LiveWriter) Path() string {
	return w.path
}

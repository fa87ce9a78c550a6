package transcript

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/plusone-ai/plusone/internal/observability"
)

// ErrOutOfOrder reports an entry whose start time precedes the last appended
// entry's. Such entries are a protocol anomaly from the transcription
// service; callers drop them rather than corrupt the sequence.
var ErrOutOfOrder = errors.New("transcript entry out of order")

// Store is the authoritative append-only record of finalized entries for the
// active session. It has exactly one writer (the ingest loop); every append
// lands in memory and in the live transcript file before the caller is told
// it succeeded.
type Store struct {
	mu          sync.RWMutex
	entries     []Entry
	lastStartMS int64
	newLines    int
	writer      *LiveWriter
	logger      zerolog.Logger
}

// NewStore creates a store backed by the given live writer. The writer may be
// nil in tests; entries are then kept in memory only.
func NewStore(writer *LiveWriter, logger zerolog.Logger) *Store {
	return &Store{
		writer:      writer,
		lastStartMS: -1,
		logger:      logger,
	}
}

// Append validates ordering, records the entry in memory, and synchronously
// appends it to the live transcript artifact. A live-file write failure is
// returned as-is: it is session-fatal and the entry is not kept, so memory
// and disk never diverge.
func (s *Store) Append(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.StartMS < s.lastStartMS {
		s.logger.Warn().
			Int64("start_ms", e.StartMS).
			Int64("last_start_ms", s.lastStartMS).
			Str("text", e.Text).
			Msg("Dropping out-of-order transcript entry")
		observability.RecordEntryDropped("out_of_order")
		return fmt.Errorf("%w: start_ms %d < %d", ErrOutOfOrder, e.StartMS, s.lastStartMS)
	}

	if s.writer != nil {
		if err := s.writer.WriteEntry(e); err != nil {
			return err
		}
	}

	s.entries = append(s.entries, e)
	s.lastStartMS = e.StartMS
	s.newLines++
	observability.RecordEntryAppended()
	return nil
}

// Snapshot returns a copy of the trailing window entries (all of them when
// window <= 0 or exceeds the count). The monitor reads these; the copy keeps
// it off the writer's back.
func (s *Store) Snapshot(window int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if window > 0 && len(s.entries) > window {
		start = len(s.entries) - window
	}
	out := make([]Entry, len(s.entries)-start)
	copy(out, s.entries[start:])
	return out
}

// Len returns the number of appended entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// NewLines returns the number of entries appended since the last ResetNewLines.
func (s *Store) NewLines() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.newLines
}

// ResetNewLines zeroes the new-line counter. The monitor calls this when an
// analysis cycle begins, not when it completes.
func (s *Store) ResetNewLines() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.newLines = 0
}

// FullText joins all entry text, most recent last. Used to build analysis
// prompts.
func (s *Store) FullText() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	text := ""
	for i, e := range s.entries {
		if i > 0 {
			text += " "
		}
		text += e.Text
	}
	return text
}

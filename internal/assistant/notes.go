package assistant

import (
	"regexp"
	"strings"
	"sync"

	"github.com/plusone-ai/plusone/internal/transcript"
)

// Intent classification for chat messages.
const (
	IntentNote     = "note"
	IntentQuestion = "question"
)

var notePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^make a note\b`),
	regexp.MustCompile(`(?i)^note[:\s]`),
	regexp.MustCompile(`(?i)^capture\b`),
	regexp.MustCompile(`(?i)^remind\b`),
	regexp.MustCompile(`(?i)^remember\b`),
	regexp.MustCompile(`(?i)^action item[:\s]`),
	regexp.MustCompile(`(?i)^todo[:\s]`),
}

// DetectIntent classifies a chat message as a note to capture or a
// question to answer.
func DetectIntent(message string) string {
	trimmed := strings.TrimSpace(message)
	for _, p := range notePatterns {
		if p.MatchString(trimmed) {
			return IntentNote
		}
	}
	return IntentQuestion
}

// noteContextWindowMS is how far back a note's transcript context reaches.
const noteContextWindowMS = 180_000

// Note is one captured action item with the transcript that surrounded it.
type Note struct {
	Message     string             `json:"message"`
	TimestampMS int64              `json:"timestamp_ms"`
	Context     []transcript.Entry `json:"context"`
}

// NoteManager collects action notes during a session. Notes live in memory
// and are cleared when a new session starts.
type NoteManager struct {
	mu    sync.Mutex
	notes []Note
}

func NewNoteManager() *NoteManager {
	return &NoteManager{}
}

// Capture stores a note together with the last few minutes of transcript.
func (n *NoteManager) Capture(message string, entries []transcript.Entry, timestampMS int64) Note {
	var context []transcript.Entry
	for _, e := range entries {
		if e.StartMS >= timestampMS-noteContextWindowMS {
			context = append(context, e)
		}
	}

	note := Note{Message: message, TimestampMS: timestampMS, Context: context}
	n.mu.Lock()
	n.notes = append(n.notes, note)
	n.mu.Unlock()
	return note
}

// Notes returns a copy of all captured notes.
func (n *NoteManager) Notes() []Note {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Note, len(n.notes))
	copy(out, n.notes)
	return out
}

// Clear drops all notes. Called when a new session starts.
func (n *NoteManager) Clear() {
	n.mu.Lock()
	n.notes = nil
	n.mu.Unlock()
}

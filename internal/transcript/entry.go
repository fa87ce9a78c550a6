package transcript

import (
	"fmt"
	"strings"
)

// Entry is one finalized transcript line. Entries are immutable after append
// and owned by the Store for the life of a session.
type Entry struct {
	StartMS int64  `json:"start_ms"`
	EndMS   int64  `json:"end_ms"`
	Speaker *int   `json:"speaker,omitempty"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

// SpeakerLabel returns "Speaker N" or an empty string when diarization is off.
func (e Entry) SpeakerLabel() string {
	if e.Speaker == nil {
		return ""
	}
	return fmt.Sprintf("Speaker %d", *e.Speaker)
}

// FormatLine renders one entry the way it appears in the live transcript
// file, without a trailing newline.
func FormatLine(e Entry) string {
	if label := e.SpeakerLabel(); label != "" {
		return fmt.Sprintf("[%s] %s: %s", FormatElapsed(e.StartMS), label, e.Text)
	}
	return fmt.Sprintf("[%s] %s", FormatElapsed(e.StartMS), e.Text)
}

// FormatLines renders entries as live-transcript text, one line each.
func FormatLines(entries []Entry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(FormatLine(e))
		b.WriteByte('\n')
	}
	return b.String()
}

// FormatElapsed renders milliseconds since session start as HH:MM:SS.
func FormatElapsed(ms int64) string {
	total := ms / 1000
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

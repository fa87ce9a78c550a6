package reasoning

import (
	"errors"
	"time"
)

// ErrAnalysisFailed reports a reasoning-service call that could not produce
// usable suggestions. The caller abandons the cycle; it is never retried in
// place.
var ErrAnalysisFailed = errors.New("analysis failed")

// ErrAnswerFailed reports a conversational answer that could not be
// produced. The question is dropped; the asker can repeat it.
var ErrAnswerFailed = errors.New("answer failed")

// Category classifies a suggestion for presentation.
type Category string

const (
	CategoryRelated  Category = "related"
	CategoryContext  Category = "context"
	CategoryConflict Category = "conflict"
	CategoryQuestion Category = "question"
	CategoryIdea     Category = "idea"
	CategoryTask     Category = "task"
	CategoryEdit     Category = "edit"
)

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryRelated, CategoryContext, CategoryConflict,
		CategoryQuestion, CategoryIdea, CategoryTask, CategoryEdit:
		return true
	}
	return false
}

// HighPriority reports whether the suggestion is worth speaking aloud into
// the call when voice output is enabled.
func (c Category) HighPriority() bool {
	return c == CategoryConflict || c == CategoryRelated
}

// Suggestion is one observation surfaced by the monitor. Suggestions are an
// observational side channel only; they are never persisted to the
// transcript.
type Suggestion struct {
	Category  Category  `json:"category"`
	Summary   string    `json:"summary"`
	Detail    string    `json:"detail,omitempty"`
	Source    string    `json:"source,omitempty"`
	EmittedAt time.Time `json:"emitted_at"`
}

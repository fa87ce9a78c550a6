package reasoning

import (
	"testing"
	"time"
)

func TestParseSuggestionsNone(t *testing.T) {
	now := time.Now()
	for _, text := range []string{"", "NONE", "none", "  NONE  \n"} {
		if got := ParseSuggestions(text, now); len(got) != 0 {
			t.Errorf("ParseSuggestions(%q) = %d suggestions, want 0", text, len(got))
		}
	}
}

func TestParseSuggestionsSingle(t *testing.T) {
	text := `CONFLICT: This contradicts the auth decision from March
The team decided on OAuth-only; the current discussion proposes API keys.
Source: decisions/2026-03-auth.md`

	got := ParseSuggestions(text, time.Now())
	if len(got) != 1 {
		t.Fatalf("got %d suggestions, want 1", len(got))
	}
	s := got[0]
	if s.Category != CategoryConflict {
		t.Errorf("category = %q, want %q", s.Category, CategoryConflict)
	}
	if s.Summary != "This contradicts the auth decision from March" {
		t.Errorf("summary = %q", s.Summary)
	}
	if s.Detail != "The team decided on OAuth-only; the current discussion proposes API keys." {
		t.Errorf("detail = %q", s.Detail)
	}
	if s.Source != "decisions/2026-03-auth.md" {
		t.Errorf("source = %q", s.Source)
	}
}

func TestParseSuggestionsMultipleBlocks(t *testing.T) {
	text := `RELATED: Past design doc covers this flow
Source: specs/onboarding.md

some preamble that is not a suggestion

TASK: Follow up on the billing migration

IDEA: Cache the lookup table`

	got := ParseSuggestions(text, time.Now())
	if len(got) != 3 {
		t.Fatalf("got %d suggestions, want 3", len(got))
	}
	wantCats := []Category{CategoryRelated, CategoryTask, CategoryIdea}
	for i, want := range wantCats {
		if got[i].Category != want {
			t.Errorf("suggestion %d category = %q, want %q", i, got[i].Category, want)
		}
	}
	if got[1].Detail != "" || got[1].Source != "" {
		t.Errorf("bare suggestion should have empty detail and source, got %+v", got[1])
	}
}

func TestParseSuggestionsStampsEmittedAt(t *testing.T) {
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	got := ParseSuggestions("QUESTION: Who owns the rollout?", now)
	if len(got) != 1 {
		t.Fatalf("got %d suggestions, want 1", len(got))
	}
	if !got[0].EmittedAt.Equal(now) {
		t.Errorf("emitted_at = %v, want %v", got[0].EmittedAt, now)
	}
}

func TestCategoryValid(t *testing.T) {
	if !CategoryEdit.Valid() {
		t.Error("edit should be valid")
	}
	if Category("banana").Valid() {
		t.Error("unknown category should be invalid")
	}
}

func TestCategoryHighPriority(t *testing.T) {
	tests := []struct {
		cat  Category
		want bool
	}{
		{CategoryConflict, true},
		{CategoryRelated, true},
		{CategoryContext, false},
		{CategoryTask, false},
	}
	for _, tt := range tests {
		if got := tt.cat.HighPriority(); got != tt.want {
			t.Errorf("%s.HighPriority() = %v, want %v", tt.cat, got, tt.want)
		}
	}
}

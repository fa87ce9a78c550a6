package transcript

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func entry(startMS, endMS int64, speaker int, text string) Entry {
	return Entry{StartMS: startMS, EndMS: endMS, Speaker: &speaker, Text: text, IsFinal: true}
}

func TestStoreAppendOrdering(t *testing.T) {
	s := NewStore(nil, zerolog.Nop())

	if err := s.Append(entry(1000, 2000, 0, "first")); err != nil {
		t.Fatal(err)
	}
	// Equal start times are allowed; only regressions are rejected.
	if err := s.Append(entry(1000, 2500, 1, "same start")); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(entry(500, 900, 0, "stale")); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("out-of-order append error = %v, want ErrOutOfOrder", err)
	}
	if err := s.Append(entry(3000, 4000, 0, "third")); err != nil {
		t.Fatal(err)
	}

	if s.Len() != 3 {
		t.Errorf("len = %d, want 3 (stale entry dropped)", s.Len())
	}
	for _, e := range s.Snapshot(0) {
		if e.Text == "stale" {
			t.Error("dropped entry present in snapshot")
		}
	}
}

func TestStoreSnapshotWindow(t *testing.T) {
	s := NewStore(nil, zerolog.Nop())
	for i := int64(0); i < 10; i++ {
		if err := s.Append(entry(i*1000, i*1000+500, 0, "line")); err != nil {
			t.Fatal(err)
		}
	}

	if got := len(s.Snapshot(3)); got != 3 {
		t.Errorf("window snapshot = %d entries, want 3", got)
	}
	if got := s.Snapshot(3)[0].StartMS; got != 7000 {
		t.Errorf("window starts at %d, want 7000 (trailing entries)", got)
	}
	if got := len(s.Snapshot(0)); got != 10 {
		t.Errorf("full snapshot = %d entries, want 10", got)
	}
	if got := len(s.Snapshot(100)); got != 10 {
		t.Errorf("oversized window = %d entries, want 10", got)
	}

	// Snapshots are copies; mutating one never touches the store.
	snap := s.Snapshot(0)
	snap[0].Text = "mutated"
	if s.Snapshot(0)[0].Text == "mutated" {
		t.Error("snapshot mutation leaked into the store")
	}
}

func TestStoreNewLinesCounter(t *testing.T) {
	s := NewStore(nil, zerolog.Nop())

	for i := int64(0); i < 4; i++ {
		if err := s.Append(entry(i*1000, i*1000+500, 0, "line")); err != nil {
			t.Fatal(err)
		}
	}
	if s.NewLines() != 4 {
		t.Errorf("new lines = %d, want 4", s.NewLines())
	}

	s.ResetNewLines()
	if s.NewLines() != 0 {
		t.Errorf("new lines after reset = %d, want 0", s.NewLines())
	}

	// A rejected append does not count.
	s.Append(entry(0, 100, 0, "stale"))
	if s.NewLines() != 0 {
		t.Errorf("new lines after rejected append = %d, want 0", s.NewLines())
	}

	if err := s.Append(entry(9000, 9500, 0, "more")); err != nil {
		t.Fatal(err)
	}
	if s.NewLines() != 1 {
		t.Errorf("new lines = %d, want 1", s.NewLines())
	}
}

func TestStoreWritesLiveFilePerAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.txt")
	w := NewLiveWriter(path)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	s := NewStore(w, zerolog.Nop())
	if err := s.Append(entry(1000, 2400, 0, "hello team")); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(Entry{StartMS: 65_000, EndMS: 66_000, Text: "no speaker", IsFinal: true}); err != nil {
		t.Fatal(err)
	}

	// Lines are on disk immediately, without waiting for Close.
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "[00:00:01] Speaker 0: hello team\n[00:01:05] no speaker\n"
	if string(content) != want {
		t.Errorf("live file = %q, want %q", content, want)
	}
}

func TestStoreAppendFailsWhenWriterClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.txt")
	w := NewLiveWriter(path)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	s := NewStore(w, zerolog.Nop())

	if err := s.Append(entry(1000, 2000, 0, "ok")); err != nil {
		t.Fatal(err)
	}
	w.Close()

	err := s.Append(entry(3000, 4000, 0, "after close"))
	if err == nil {
		t.Fatal("append after writer close should fail")
	}
	// A failed write keeps memory and disk consistent: no entry.
	if s.Len() != 1 {
		t.Errorf("len = %d, want 1 (failed append not recorded)", s.Len())
	}
}

func TestLiveWriterTruncatesPreviousSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.txt")
	if err := os.WriteFile(path, []byte("old session\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := NewLiveWriter(path)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(content) != 0 {
		t.Errorf("live file should start empty, got %q", content)
	}
}

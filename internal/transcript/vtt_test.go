package transcript

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFormatVTT(t *testing.T) {
	speaker := 1
	entries := []Entry{
		{StartMS: 0, EndMS: 1500, Speaker: &speaker, Text: "hello"},
		{StartMS: 61_250, EndMS: 62_000, Text: "no speaker tag"},
	}

	got := FormatVTT(entries)
	want := "WEBVTT\n\n" +
		"1\n00:00:00.000 --> 00:00:01.500\n<v Speaker 1>hello\n\n" +
		"2\n00:01:01.250 --> 00:01:02.000\nno speaker tag\n\n"
	if got != want {
		t.Errorf("FormatVTT =\n%q\nwant\n%q", got, want)
	}

	// Deterministic: same input, identical bytes.
	if again := FormatVTT(entries); again != got {
		t.Error("FormatVTT is not deterministic")
	}
}

func TestFormatVTTEmpty(t *testing.T) {
	if got := FormatVTT(nil); got != "WEBVTT\n\n" {
		t.Errorf("empty document = %q", got)
	}
}

func TestWriteVTT(t *testing.T) {
	dir := t.TempDir()
	speaker := 0
	entries := []Entry{{StartMS: 1000, EndMS: 2400, Speaker: &speaker, Text: "hello team"}}
	now := time.Date(2026, 8, 30, 14, 5, 0, 0, time.UTC)

	path, err := WriteVTT(entries, "weekly sync", dir, now)
	if err != nil {
		t.Fatal(err)
	}

	want := filepath.Join(dir, "2026-08", "2026-08-30_14-05_weekly-sync.vtt")
	if path != want {
		t.Errorf("path = %q, want %q", path, want)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "<v Speaker 0>hello team") {
		t.Errorf("caption content = %q", content)
	}

	// No temp files left behind.
	files, err := os.ReadDir(filepath.Join(dir, "2026-08"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Errorf("directory has %d files, want 1", len(files))
	}
}

func TestWriteVTTIdempotent(t *testing.T) {
	dir := t.TempDir()
	entries := []Entry{{StartMS: 0, EndMS: 500, Text: "once"}}
	now := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)

	first, err := WriteVTT(entries, "topic", dir, now)
	if err != nil {
		t.Fatal(err)
	}
	second, err := WriteVTT(entries, "topic", dir, now)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("paths differ: %q vs %q", first, second)
	}

	a, _ := os.ReadFile(first)
	b, _ := os.ReadFile(second)
	if string(a) != string(b) {
		t.Error("rewrite changed caption content")
	}
}

func TestWriteVTTFailsOnBadDir(t *testing.T) {
	blocked := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocked, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := WriteVTT([]Entry{{Text: "x"}}, "t", blocked, time.Now()); err == nil {
		t.Error("expected error when output dir is a regular file")
	}
}

func TestMsToVTTTime(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "00:00:00.000"},
		{1500, "00:00:01.500"},
		{3_725_042, "01:02:05.042"},
	}
	for _, tt := range tests {
		if got := msToVTTTime(tt.ms); got != tt.want {
			t.Errorf("msToVTTTime(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func TestSlugTopic(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"weekly-sync", "weekly-sync"},
		{"Weekly Sync!", "weekly-sync"},
		{"Q3 / roadmap  review", "q3-roadmap-review"},
		{"---", "meeting"},
		{"", "meeting"},
	}
	for _, tt := range tests {
		if got := slugTopic(tt.topic); got != tt.want {
			t.Errorf("slugTopic(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
}

func TestWriteVTTEmptyTopicFallsBack(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 8, 30, 14, 5, 0, 0, time.UTC)
	path, err := WriteVTT([]Entry{{StartMS: 0, EndMS: 1000, Text: "hi"}}, "", dir, now)
	if err != nil {
		t.Fatalf("WriteVTT: %v", err)
	}
	if filepath.Base(path) != "2026-08-30_14-05_meeting.vtt" {
		t.Errorf("caption file = %q, want the meeting fallback name", filepath.Base(path))
	}
}

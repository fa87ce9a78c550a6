package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FormatVTT renders entries as a WebVTT document. Output is deterministic:
// the same entry sequence always produces byte-identical text.
func FormatVTT(entries []Entry) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for i, e := range entries {
		b.WriteString(fmt.Sprintf("%d\n", i+1))
		b.WriteString(fmt.Sprintf("%s --> %s\n", msToVTTTime(e.StartMS), msToVTTTime(e.EndMS)))
		if label := e.SpeakerLabel(); label != "" {
			b.WriteString(fmt.Sprintf("<v %s>%s\n", label, e.Text))
		} else {
			b.WriteString(e.Text + "\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// WriteVTT renders entries and writes the caption document once, atomically
// (temp file + rename), under outputDir/YYYY-MM/. Returns the final path.
func WriteVTT(entries []Entry, topic, outputDir string, now time.Time) (string, error) {
	monthDir := filepath.Join(outputDir, now.Format("2006-01"))
	if err := os.MkdirAll(monthDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create caption directory: %w", err)
	}

	filename := fmt.Sprintf("%s_%s.vtt", now.Format("2006-01-02_15-04"), slugTopic(topic))
	finalPath := filepath.Join(monthDir, filename)

	tmp, err := os.CreateTemp(monthDir, ".vtt-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp caption file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(FormatVTT(entries)); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write caption file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close caption file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to finalize caption file: %w", err)
	}

	return finalPath, nil
}

// slugTopic makes a topic safe for a filename: lowercased, runs of
// non-alphanumerics collapsed to single hyphens. Empty topics become
// "meeting".
func slugTopic(topic string) string {
	var b strings.Builder
	hyphen := false
	for _, r := range strings.ToLower(topic) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			hyphen = false
		default:
			if b.Len() > 0 && !hyphen {
				b.WriteByte('-')
				hyphen = true
			}
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return "meeting"
	}
	return slug
}

// msToVTTTime converts milliseconds to the WebVTT timestamp HH:MM:SS.mmm.
func msToVTTTime(ms int64) string {
	total := ms / 1000
	millis := ms % 1000
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, millis)
}

package reasoning

import (
	"regexp"
	"strings"
	"time"
)

var (
	blockSplit = regexp.MustCompile(`\n\s*\n`)
	headerRe   = regexp.MustCompile(`^(RELATED|CONTEXT|CONFLICT|QUESTION|IDEA|TASK|EDIT):\s*(.+)`)
)

// ParseSuggestions extracts suggestions from a raw model response. The model
// is instructed to emit blank-line separated blocks, each starting with
// "CATEGORY: summary" and optionally ending with a "Source:" line. Blocks
// that do not match are skipped; a bare "NONE" yields no suggestions.
func ParseSuggestions(text string, now time.Time) []Suggestion {
	text = strings.TrimSpace(text)
	if text == "" || strings.EqualFold(text, "NONE") {
		return nil
	}

	var suggestions []Suggestion
	for _, block := range blockSplit.Split(text, -1) {
		block = strings.TrimSpace(block)
		if block == "" || strings.EqualFold(block, "NONE") {
			continue
		}

		lines := strings.Split(block, "\n")
		match := headerRe.FindStringSubmatch(lines[0])
		if match == nil {
			continue
		}

		s := Suggestion{
			Category:  Category(strings.ToLower(match[1])),
			Summary:   strings.TrimSpace(match[2]),
			EmittedAt: now,
		}

		var detail []string
		for _, line := range lines[1:] {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "Source:") {
				s.Source = strings.TrimSpace(strings.TrimPrefix(trimmed, "Source:"))
			} else if trimmed != "" {
				detail = append(detail, trimmed)
			}
		}
		s.Detail = strings.Join(detail, "\n")

		suggestions = append(suggestions, s)
	}
	return suggestions
}

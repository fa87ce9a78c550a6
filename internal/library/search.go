package library

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

const (
	maxSearchResults = 10
	searchTimeout    = 10 * time.Second
)

// SearchResult is one file hit from a library search.
type SearchResult struct {
	File    string `json:"file"`
	Snippet string `json:"snippet"`
}

// Search greps the library for the query using ripgrep. Returns at most
// maxSearchResults files, each with a short snippet of matching lines.
// A missing rg binary or a failed run yields no results rather than an
// error; search is best effort.
func (l *Library) Search(ctx context.Context, query string) []SearchResult {
	rg, err := exec.LookPath("rg")
	if err != nil {
		l.logger.Debug().Msg("ripgrep not found, library search disabled")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, rg,
		"--ignore-case",
		"--max-count", "3",
		"--context", "2",
		"--type", "md",
		"--no-heading",
		"--with-filename",
		"--line-number",
		"--color", "never",
		"--max-filesize", "100K",
		query,
		l.root,
	)

	out, err := cmd.Output()
	if err != nil {
		// Exit code 1 means no matches.
		if exitErr, ok := err.(*exec.ExitError); !ok || exitErr.ExitCode() != 1 {
			l.logger.Warn().Err(err).Str("query", query).Msg("Library search failed")
		}
		return nil
	}

	return parseRipgrepOutput(string(out), maxSearchResults)
}

// parseRipgrepOutput groups "file:line:content" output by file into
// snippet results.
func parseRipgrepOutput(output string, maxResults int) []SearchResult {
	output = strings.TrimSpace(output)
	if output == "" {
		return nil
	}

	type fileHits struct {
		file  string
		lines []string
	}
	var order []*fileHits
	byFile := make(map[string]*fileHits)

	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == "--" {
			continue
		}
		parts := strings.SplitN(line, ":", 3)
		if len(parts) < 3 {
			continue
		}
		file := parts[0]
		content := strings.TrimSpace(parts[2])
		if content == "" {
			continue
		}
		hits, ok := byFile[file]
		if !ok {
			hits = &fileHits{file: file}
			byFile[file] = hits
			order = append(order, hits)
		}
		duplicate := false
		for _, existing := range hits.lines {
			if existing == content {
				duplicate = true
				break
			}
		}
		if !duplicate {
			hits.lines = append(hits.lines, content)
		}
	}

	var results []SearchResult
	for _, hits := range order {
		lines := hits.lines
		if len(lines) > 6 {
			lines = lines[:6]
		}
		snippet := strings.Join(lines, "\n")
		if strings.TrimSpace(snippet) == "" {
			continue
		}
		results = append(results, SearchResult{File: hits.file, Snippet: snippet})
		if len(results) >= maxResults {
			break
		}
	}
	return results
}

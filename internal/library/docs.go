package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// maxToolDocBytes caps a document served through a tool call.
	maxToolDocBytes = 8000
	// maxEntryPointBytes caps the pre-loaded root entry-point doc.
	maxEntryPointBytes = 6000
)

// The methods below back the assistant's tool calls. They return plain
// text, with failures rendered as messages the model can act on.

// ReadDoc returns the content of one document, by path relative to the
// library root.
func (l *Library) ReadDoc(relPath string) string {
	full, ok := l.resolve(relPath)
	if !ok {
		return fmt.Sprintf("Invalid path: %s", relPath)
	}

	info, err := os.Stat(full)
	if err != nil {
		return fmt.Sprintf("File not found: %s", relPath)
	}
	if info.IsDir() {
		return fmt.Sprintf("%s is a directory, not a file. List it instead.", relPath)
	}

	content, err := os.ReadFile(full)
	if err != nil {
		return fmt.Sprintf("Error reading %s: %v", relPath, err)
	}
	text := string(content)
	if len(text) > maxToolDocBytes {
		text = text[:maxToolDocBytes] + fmt.Sprintf("\n\n... [truncated, file is %d bytes total]", len(content))
	}
	return text
}

// ListDocs lists one directory of the library, directories suffixed with
// a slash. An empty path lists the root.
func (l *Library) ListDocs(relPath string) string {
	full, ok := l.resolve(relPath)
	if !ok {
		return fmt.Sprintf("Invalid path: %s", relPath)
	}

	entries, err := os.ReadDir(full)
	if err != nil {
		return fmt.Sprintf("Directory not found: %s", relPath)
	}

	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return "(empty directory)"
	}
	sort.Strings(names)
	return strings.Join(names, "\n")
}

// SearchDocs searches the library and renders the hits as text.
func (l *Library) SearchDocs(ctx context.Context, query string) string {
	results := l.Search(ctx, query)
	if len(results) == 0 {
		return fmt.Sprintf("No matches found for %q", query)
	}

	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "--- %s ---\n%s", r.File, r.Snippet)
	}
	return b.String()
}

// EntryPointContext returns the root entry-point doc, pre-loaded into the
// assistant's system prompt so common questions need no tool calls.
func (l *Library) EntryPointContext() string {
	content, err := os.ReadFile(filepath.Join(l.root, entryPointFile))
	if err != nil {
		return fmt.Sprintf("(no %s in the library root)", entryPointFile)
	}
	text := string(content)
	if len(text) > maxEntryPointBytes {
		text = text[:maxEntryPointBytes] + "\n... [truncated]"
	}
	return text
}

// resolve joins relPath under the root and rejects paths that escape it.
func (l *Library) resolve(relPath string) (string, bool) {
	full := filepath.Join(l.root, filepath.Clean("/"+relPath))
	if full != l.root && !strings.HasPrefix(full, l.root+string(filepath.Separator)) {
		return "", false
	}
	return full, true
}

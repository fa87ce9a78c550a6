package library

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const (
	// entryPointFile is the doc loaded from each project directory.
	entryPointFile = "AGENT.md"
	// maxProjectDocBytes caps per-project docs to keep prompts manageable.
	maxProjectDocBytes = 3000
)

// Library loads knowledge-base context for analysis prompts. Core docs
// (top-level markdown plus agenda and pulse files) are always included;
// project entry points are pulled in only when the transcript mentions
// the project.
type Library struct {
	root   string
	logger zerolog.Logger

	mu        sync.RWMutex
	coreCache string
	coreValid bool

	watcher *watcher
}

// New creates a Library rooted at path. Returns an error if the root does
// not exist or is not a directory.
func New(path string, logger zerolog.Logger) (*Library, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("library root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("library root %s is not a directory", path)
	}
	return &Library{root: path, logger: logger}, nil
}

// Root returns the library root path.
func (l *Library) Root() string {
	return l.root
}

// BuildContext assembles the full context string for an analysis prompt:
// cached core docs plus entry points of projects the transcript mentions.
func (l *Library) BuildContext(transcript string) string {
	core := l.coreContext()
	projects := l.detectProjects(transcript)
	projectCtx := l.projectContext(projects)

	var parts []string
	if core != "" {
		parts = append(parts, core)
	}
	if projectCtx != "" {
		parts = append(parts, projectCtx)
	}
	return strings.Join(parts, "\n\n")
}

// coreContext returns the cached core docs, loading them on first use or
// after the watcher invalidated the cache.
func (l *Library) coreContext() string {
	l.mu.RLock()
	if l.coreValid {
		cached := l.coreCache
		l.mu.RUnlock()
		return cached
	}
	l.mu.RUnlock()

	loaded := l.loadCore()

	l.mu.Lock()
	l.coreCache = loaded
	l.coreValid = true
	l.mu.Unlock()
	return loaded
}

// invalidate drops the core cache; the next BuildContext reloads from disk.
func (l *Library) invalidate() {
	l.mu.Lock()
	l.coreValid = false
	l.mu.Unlock()
}

// loadCore reads core docs: markdown at the library root plus everything
// under agendas/ and pulse/. Missing files and directories are skipped.
func (l *Library) loadCore() string {
	var paths []string

	rootEntries, err := os.ReadDir(l.root)
	if err != nil {
		l.logger.Warn().Err(err).Msg("Failed to read library root")
		return ""
	}
	for _, e := range rootEntries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			paths = append(paths, e.Name())
		}
	}
	for _, dir := range []string{"agendas", "pulse"} {
		entries, err := os.ReadDir(filepath.Join(l.root, dir))
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
				paths = append(paths, filepath.Join(dir, e.Name()))
			}
		}
	}
	sort.Strings(paths)

	var sections []string
	for _, rel := range paths {
		content, err := os.ReadFile(filepath.Join(l.root, rel))
		if err != nil {
			continue
		}
		sections = append(sections, fmt.Sprintf("--- %s ---\n%s", rel, string(content)))
	}
	return strings.Join(sections, "\n\n")
}

// detectProjects returns the library's project directories whose names are
// mentioned in the transcript. A project directory is any first-level
// directory containing an entry-point doc; its name matches both hyphenated
// and space-separated forms.
func (l *Library) detectProjects(transcript string) []string {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return nil
	}

	lower := strings.ToLower(transcript)
	var found []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if _, err := os.Stat(filepath.Join(l.root, name, entryPointFile)); err != nil {
			continue
		}
		terms := []string{strings.ToLower(name)}
		if spaced := strings.ReplaceAll(strings.ToLower(name), "-", " "); spaced != terms[0] {
			terms = append(terms, spaced)
		}
		for _, term := range terms {
			if strings.Contains(lower, term) {
				found = append(found, name)
				break
			}
		}
	}
	return found
}

// projectContext loads the entry-point doc of each named project, truncated
// to keep the prompt bounded.
func (l *Library) projectContext(names []string) string {
	var sections []string
	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(l.root, name, entryPointFile))
		if err != nil {
			continue
		}
		text := string(content)
		if len(text) > maxProjectDocBytes {
			text = text[:maxProjectDocBytes] + "\n... [truncated]"
		}
		sections = append(sections, fmt.Sprintf("--- %s/%s ---\n%s", name, entryPointFile, text))
	}
	return strings.Join(sections, "\n\n")
}

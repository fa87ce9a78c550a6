package library

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

type watcher struct {
	fs   *fsnotify.Watcher
	done chan struct{}
}

// Watch starts invalidating the core-doc cache when library files change.
// Edits made during a live session are picked up by the next analysis
// cycle. Safe to call once; Close stops the watcher.
func (l *Library) Watch() error {
	if l.watcher != nil {
		return nil
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	for _, dir := range []string{l.root, filepath.Join(l.root, "agendas"), filepath.Join(l.root, "pulse")} {
		if err := fs.Add(dir); err != nil {
			l.logger.Debug().Err(err).Str("dir", dir).Msg("Not watching library dir")
		}
	}

	w := &watcher{fs: fs, done: make(chan struct{})}
	l.watcher = w

	go func() {
		for {
			select {
			case ev, ok := <-fs.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					l.logger.Debug().Str("file", ev.Name).Msg("Library changed, reloading context")
					l.invalidate()
				}
			case err, ok := <-fs.Errors:
				if !ok {
					return
				}
				l.logger.Warn().Err(err).Msg("Library watcher error")
			case <-w.done:
				return
			}
		}
	}()
	return nil
}

// Close stops the file watcher if one is running.
func (l *Library) Close() error {
	if l.watcher == nil {
		return nil
	}
	close(l.watcher.done)
	err := l.watcher.fs.Close()
	l.watcher = nil
	return err
}

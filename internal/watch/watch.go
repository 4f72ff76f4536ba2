// Package watch turns edits to Markdown posts on disk into syndication
// triggers.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last event for a file
// before its handler runs.
const DefaultDebounce = 500 * time.Millisecond

// Handler is called with the slash-separated path of a changed post,
// relative to the content root. Calls are serialised.
type Handler func(ctx context.Context, path string)

// Watch watches dir (and its subdirectories) under root until ctx is
// cancelled. Created or written .md files are debounced per path, then
// passed to h. Removals and renames are ignored: a post that is gone has
// nothing left to syndicate.
func Watch(ctx context.Context, root, dir string, debounce time.Duration, logger *slog.Logger, h Handler) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, dir); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("dir", dir))

	timers := map[string]*time.Timer{}
	fired := make(chan string, 64)
	schedule := func(rel string) {
		if t, ok := timers[rel]; ok {
			t.Reset(debounce)
			return
		}
		timers[rel] = time.AfterFunc(debounce, func() {
			select {
			case fired <- rel:
			case <-ctx.Done():
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			for _, t := range timers {
				t.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case rel := <-fired:
			delete(timers, rel)
			logger.Debug("watcher: changed", slog.String("path", rel))
			h(ctx, rel)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
						continue
					}
					logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					for _, rel := range markdownUnder(root, ev.Name) {
						schedule(rel)
					}
					continue
				}
			}

			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !strings.HasSuffix(ev.Name, ".md") {
				continue
			}
			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil {
				continue
			}
			schedule(filepath.ToSlash(rel))

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// markdownUnder lists the .md files below dir as root-relative paths.
func markdownUnder(root, dir string) []string {
	var out []string
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(p, ".md") {
			return nil
		}
		if rel, relErr := filepath.Rel(root, p); relErr == nil {
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	return out
}

// addDirsRecursive adds dir and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(p)
		}
		return nil
	})
}

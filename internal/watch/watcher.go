package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Trigger starts a reconciliation.
type Trigger func(ctx context.Context, reason string) error

// CorpusWatcher triggers reconciliation after the corpus has been quiet for
// the debounce period following a relevant change.
type CorpusWatcher struct {
	root     string
	supports func(path string) bool
	debounce time.Duration
	trigger  Trigger
	logger   *slog.Logger
}

func New(root string, supports func(string) bool, debounce time.Duration, trigger Trigger, logger *slog.Logger) *CorpusWatcher {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &CorpusWatcher{
		root:     root,
		supports: supports,
		debounce: debounce,
		trigger:  trigger,
		logger:   logger.With("root", root),
	}
}

// Run blocks until ctx is cancelled.
func (w *CorpusWatcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fs watcher failed: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.root); err != nil {
		return err
	}
	w.logger.Info("watching corpus", "debounce", w.debounce.String())

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := 0

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) && isDir(ev.Name) && !hidden(ev.Name) {
				if err := w.addTree(fw, ev.Name); err != nil {
					w.logger.Warn("watch new directory failed", "path", ev.Name, "error", err)
				}
				pending++
				timer.Reset(w.debounce)
				continue
			}
			if !w.relevant(ev) {
				continue
			}
			w.logger.Debug("corpus changed", "path", ev.Name, "op", ev.Op.String())
			pending++
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("fs watcher error", "error", err)
		case <-timer.C:
			reason := fmt.Sprintf("watch: %d change(s)", pending)
			pending = 0
			if err := w.trigger(ctx, reason); err != nil {
				w.logger.Error("triggered ingest failed", "error", err)
			}
		}
	}
}

// relevant ignores chmod-only events, removals (the index cannot forget
// documents), hidden files and unsupported extensions.
func (w *CorpusWatcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return false
	}
	if hidden(ev.Name) || isDir(ev.Name) {
		return false
	}
	return w.supports(ev.Name)
}

func (w *CorpusWatcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walk %s failed: %w", path, err)
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && hidden(path) {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watch %s failed: %w", path, err)
		}
		return nil
	})
}

func hidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

package fssync

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"auraforce/backend/internal/logging"
)

// Watcher observes the bundle root and re-verifies workflows whose bundle
// directory changed. Events are debounced so a burst of writes triggers one
// verification pass per touched bundle.
type Watcher struct {
	service  *Service
	root     string
	debounce time.Duration
	logger   *logging.Logger
	watcher  *fsnotify.Watcher
}

// NewWatcher creates a watcher over the bundle root directory.
func NewWatcher(service *Service, root string, logger *logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		service:  service,
		root:     root,
		debounce: 500 * time.Millisecond,
		logger:   logger,
		watcher:  fsw,
	}, nil
}

// Run watches until ctx is cancelled. Bundle directories that appear after
// startup are added to the watch set as their create events arrive.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return err
	}
	if err := w.watcher.Add(w.root); err != nil {
		return err
	}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := w.watcher.Add(filepath.Join(w.root, e.Name())); err != nil {
				w.logger.Warn("watch add failed", "dir", e.Name(), "error", err)
			}
		}
	}
	defer w.watcher.Close()

	dirty := make(map[string]struct{})
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.watcher.Add(event.Name); err != nil {
						w.logger.Warn("watch add failed", "dir", event.Name, "error", err)
					}
				}
			}
			slug := w.bundleSlug(event.Name)
			if slug == "" {
				continue
			}
			dirty[slug] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		case <-fire:
			w.reverify(ctx, dirty)
			dirty = make(map[string]struct{})
			fire = nil
			timer = nil
		}
	}
}

// bundleSlug maps an event path to the top-level bundle directory it belongs
// to, or "" for paths outside the root.
func (w *Watcher) bundleSlug(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	parts := strings.SplitN(filepath.ToSlash(rel), "/", 2)
	return parts[0]
}

func (w *Watcher) reverify(ctx context.Context, dirty map[string]struct{}) {
	workflows, err := w.service.store.ListAllWorkflows(ctx)
	if err != nil {
		w.logger.Warn("sync watcher listing failed", "error", err)
		return
	}
	for _, wf := range workflows {
		slug := filepath.Base(filepath.Dir(wf.CCPath))
		if _, ok := dirty[slug]; !ok {
			continue
		}
		report, err := w.service.Verify(ctx, wf.ID)
		if err != nil {
			w.logger.Warn("watcher verify failed", "workflow_id", wf.ID, "error", err)
			continue
		}
		w.logger.Debug("watcher verified bundle", "workflow_id", wf.ID, "status", report.Status)
	}
}

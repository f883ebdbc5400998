package definitions

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"speculum/internal/logging"
)

// DefaultDebounce is how long the watcher waits for more changes before
// refreshing.
const DefaultDebounce = 500 * time.Millisecond

// Watcher refreshes a Repository when YAML files below its root change.
type Watcher struct {
	repo     *Repository
	debounce time.Duration
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	// OnRefresh, when set, observes the result of every triggered refresh.
	OnRefresh func(error)

	mu      sync.Mutex
	pending bool
	started bool
	done    chan struct{}
}

// NewWatcher creates a watcher for repo. A debounce of zero uses DefaultDebounce.
func NewWatcher(repo *Repository, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		repo:     repo,
		debounce: debounce,
		logger:   logging.NewComponentLogger(logger, "definitions-watcher"),
		watcher:  fsw,
		done:     make(chan struct{}),
	}, nil
}

// Start adds watches for every directory below the repository root and begins
// processing events until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	root := w.repo.Dir()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	if err := w.addRecursive(root); err != nil {
		return err
	}
	w.mu.Lock()
	w.started = true
	w.mu.Unlock()
	go w.loop(ctx)
	w.logger.Info("definition watcher started",
		logging.String("dir", root),
		logging.Duration("debounce", w.debounce),
	)
	return nil
}

// Stop closes the underlying fsnotify watcher and waits for the loop to exit.
func (w *Watcher) Stop() error {
	err := w.watcher.Close()
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if started {
		<-w.done
	}
	return err
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if base := d.Name(); strings.HasPrefix(base, ".") && path != root {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", logging.String("path", path), logging.Error(err))
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("definition watcher error", logging.Error(err))
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", logging.String("path", event.Name), logging.Error(err))
			}
			w.markPending()
			return
		}
	}
	switch strings.ToLower(filepath.Ext(event.Name)) {
	case ".yaml", ".yml":
	default:
		return
	}
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return
	}
	w.logger.Debug("definition change detected",
		logging.String("path", event.Name),
		logging.String("op", event.Op.String()),
	)
	w.markPending()
}

func (w *Watcher) markPending() {
	w.mu.Lock()
	w.pending = true
	w.mu.Unlock()
}

func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	if !w.pending {
		w.mu.Unlock()
		return
	}
	w.pending = false
	w.mu.Unlock()

	err := w.repo.Refresh(ctx)
	if err != nil {
		logging.WarnWithContext(w.logger, "definition refresh after change failed", "definitions_refresh_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "previous definitions remain active"),
		)
	}
	if w.OnRefresh != nil {
		w.OnRefresh(err)
	}
}

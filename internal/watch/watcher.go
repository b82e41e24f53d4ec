// Package watch reports changes to the files a set of compiled entries was
// built from.
//
// Only the directories holding tracked files are watched. An event is kept
// when it touches a tracked file, or when a Slang module appears in a watched
// directory, since a new module can change which file an import climbs to.
// Events within the debounce window are coalesced into one callback.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jormeli/slangload/pkg/imports"
)

// DefaultDebounce is the quiet period used when Config.Debounce is unset.
const DefaultDebounce = 200 * time.Millisecond

// ErrAlreadyRunning is returned by a second call to Run.
var ErrAlreadyRunning = errors.New("watch: Run called more than once")

// Config holds the parameters for a Watcher.
type Config struct {
	// Debounce is the quiet period after the last event before OnChange fires.
	Debounce time.Duration

	// OnChange receives the deduplicated, sorted absolute paths that changed.
	OnChange func(ctx context.Context, changed []string) error

	Logger *slog.Logger
}

// Watcher monitors tracked files. Run must be called exactly once.
type Watcher struct {
	cfg      Config
	fsw      *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger
	started  atomic.Bool

	mu    sync.Mutex
	files map[string]struct{}
	dirs  map[string]struct{}
}

// New creates a Watcher with no tracked files.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		debounce: debounce,
		logger:   logger,
		files:    make(map[string]struct{}),
		dirs:     make(map[string]struct{}),
	}, nil
}

// SetFiles replaces the tracked set and re-registers the watched
// directories. Directories no longer holding a tracked file are dropped.
func (w *Watcher) SetFiles(files []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	nextFiles := make(map[string]struct{}, len(files))
	nextDirs := make(map[string]struct{})

	for _, file := range files {
		abs, err := filepath.Abs(file)
		if err != nil {
			return fmt.Errorf("watch: resolve %q: %w", file, err)
		}

		nextFiles[abs] = struct{}{}
		nextDirs[filepath.Dir(abs)] = struct{}{}
	}

	for dir := range nextDirs {
		if _, ok := w.dirs[dir]; ok {
			continue
		}

		addErr := w.fsw.Add(dir)
		if addErr != nil {
			return fmt.Errorf("watch: add directory %q: %w", dir, addErr)
		}
	}

	for dir := range w.dirs {
		if _, ok := nextDirs[dir]; ok {
			continue
		}

		removeErr := w.fsw.Remove(dir)
		if removeErr != nil && !errors.Is(removeErr, fsnotify.ErrNonExistentWatch) {
			w.logger.Warn("watch: remove directory", "dir", dir, "error", removeErr)
		}
	}

	w.files = nextFiles
	w.dirs = nextDirs

	return nil
}

// Files returns the tracked files, sorted.
func (w *Watcher) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return slices.Sorted(maps.Keys(w.files))
}

func (w *Watcher) relevant(evt fsnotify.Event) bool {
	if evt.Op == fsnotify.Chmod {
		return false
	}

	w.mu.Lock()
	_, tracked := w.files[filepath.Clean(evt.Name)]
	w.mu.Unlock()

	if tracked {
		return true
	}

	return (evt.Has(fsnotify.Create) || evt.Has(fsnotify.Rename)) &&
		strings.EqualFold(filepath.Ext(evt.Name), imports.SourceExt)
}

// Run blocks until ctx is cancelled, dispatching debounced callbacks. It
// returns nil on cancellation and an error when the watcher breaks. If a
// callback is still running when the next one is due, the next one is
// rescheduled rather than run concurrently.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
		running atomic.Bool
		wg      sync.WaitGroup
	)

	var fire func()
	fire = func() {
		defer wg.Done()

		if ctx.Err() != nil {
			return
		}

		if !running.CompareAndSwap(false, true) {
			w.logger.Debug("watch: previous rebuild still running, rescheduling")

			mu.Lock()
			wg.Add(1)
			timer = time.AfterFunc(w.debounce, fire)
			mu.Unlock()

			return
		}
		defer running.Store(false)

		mu.Lock()
		changed := slices.Sorted(maps.Keys(pending))
		clear(pending)
		mu.Unlock()

		if len(changed) == 0 || w.cfg.OnChange == nil {
			return
		}

		cbErr := w.cfg.OnChange(ctx, changed)
		if cbErr != nil {
			w.logger.Error("watch: rebuild failed", "error", cbErr)
		}
	}

	defer func() {
		mu.Lock()
		if timer != nil && timer.Stop() {
			wg.Done()
		}
		mu.Unlock()

		wg.Wait()

		closeErr := w.fsw.Close()
		if closeErr != nil {
			w.logger.Warn("watch: close fsnotify", "error", closeErr)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: fsnotify event channel closed unexpectedly")
			}

			if !w.relevant(evt) {
				continue
			}

			w.logger.Debug("watch: change", "path", evt.Name, "op", evt.Op.String())

			mu.Lock()
			pending[filepath.Clean(evt.Name)] = struct{}{}

			if timer == nil || !timer.Stop() {
				wg.Add(1)
			}

			timer = time.AfterFunc(w.debounce, fire)
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: fsnotify error channel closed unexpectedly")
			}

			if isFatalFsnotifyError(err) {
				return fmt.Errorf("watch: fatal fsnotify error: %w", err)
			}

			w.logger.Warn("watch: fsnotify error", "error", err)
		}
	}
}

// Close releases the watcher without running it. Run closes it on return.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	if err != nil {
		return fmt.Errorf("watch: close fsnotify: %w", err)
	}

	return nil
}

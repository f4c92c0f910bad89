// Package watch triggers rebuilds when source files change. Bursts of file
// events, as produced by editors saving or tools rewriting many files, are
// collapsed into a single rebuild.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce is the quiet period before a rebuild starts.
const DefaultDebounce = 150 * time.Millisecond

type Config struct {
	// Paths are files or directories to watch. Directories are watched
	// recursively, including directories created later.
	Paths []string
	// Ignore lists directories whose events are dropped, typically the
	// output root.
	Ignore []string
	// Debounce is the quiet period before onChange is called.
	Debounce time.Duration
	// SkipHidden drops events for dot files and dot directories.
	SkipHidden bool
}

func DefaultConfig() Config {
	return Config{
		Debounce:   DefaultDebounce,
		SkipHidden: true,
	}
}

// OnChange is called with the sorted, de-duplicated paths changed since the
// previous call. Calls never overlap.
type OnChange func(ctx context.Context, changed []string) error

type Watcher struct {
	config  Config
	ignore  []string
	watcher *fsnotify.Watcher
}

func New(cfg Config) (*Watcher, error) {
	if len(cfg.Paths) == 0 {
		return nil, errors.New("nothing to watch")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	ignore := make([]string, 0, len(cfg.Ignore))
	for _, p := range cfg.Ignore {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		ignore = append(ignore, abs)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{config: cfg, ignore: ignore, watcher: watcher}, nil
}

// Watch blocks until ctx is done, calling onChange after every burst of
// changes. Errors returned by onChange are logged and watching continues.
func (w *Watcher) Watch(ctx context.Context, onChange OnChange) error {
	defer w.watcher.Close()

	for _, p := range w.config.Paths {
		if err := w.add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
	}

	debounce := NewDebouncer(w.config.Debounce, func(changed []string) {
		if err := onChange(ctx, changed); err != nil {
			log.Error().Err(err).Strs("changed", changed).Msg("Rebuild failed")
		}
	})
	defer debounce.Stop()

	log.Info().
		Strs("paths", w.config.Paths).
		Int64("debounce_ms", w.config.Debounce.Milliseconds()).
		Msg("Watching for changes")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if !w.shouldProcess(event) {
				continue
			}

			log.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("File event detected")

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.add(event.Name); err != nil {
						log.Warn().Err(err).Str("path", event.Name).Msg("Failed to watch new directory")
					}
				}
			}

			debounce.Trigger(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			log.Error().Err(err).Msg("File watcher error")
		}
	}
}

func (w *Watcher) add(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return w.watcher.Add(root)
	}

	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && (w.ignored(p) || w.hidden(p)) {
			return filepath.SkipDir
		}

		log.Debug().Str("path", p).Msg("Watching directory")
		return w.watcher.Add(p)
	})
}

func (w *Watcher) shouldProcess(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	return !w.ignored(event.Name) && !w.hidden(event.Name)
}

func (w *Watcher) hidden(p string) bool {
	return w.config.SkipHidden && strings.HasPrefix(filepath.Base(p), ".")
}

func (w *Watcher) ignored(p string) bool {
	abs, err := filepath.Abs(p)
	if err != nil {
		return false
	}
	for _, dir := range w.ignore {
		if abs == dir || strings.HasPrefix(abs, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Debouncer collects triggered paths and hands them to fn once no trigger
// arrived for the interval. fn runs on one goroutine at a time.
type Debouncer struct {
	interval time.Duration
	fn       func([]string)

	mu      sync.Mutex
	timer   *time.Timer
	pending map[string]struct{}
	stopped bool

	run sync.Mutex
}

func NewDebouncer(interval time.Duration, fn func([]string)) *Debouncer {
	return &Debouncer{
		interval: interval,
		fn:       fn,
		pending:  make(map[string]struct{}),
	}
}

// Trigger records p and restarts the quiet period.
func (d *Debouncer) Trigger(p string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.pending[p] = struct{}{}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, d.fire)
}

func (d *Debouncer) fire() {
	d.run.Lock()
	defer d.run.Unlock()

	d.mu.Lock()
	if d.stopped || len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	changed := make([]string, 0, len(d.pending))
	for p := range d.pending {
		changed = append(changed, p)
	}
	d.pending = make(map[string]struct{})
	d.mu.Unlock()

	sort.Strings(changed)
	d.fn(changed)
}

// Stop cancels any pending call and waits for a running one to finish.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
	d.mu.Unlock()

	d.run.Lock()
	d.run.Unlock() //nolint:staticcheck
}

package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
	"go.uber.org/zap"
)

// fileWatcher implements FileWatcher using fsnotify, recursively watching
// every directory under the configured roots and coalescing per-path
// change kinds across a debounce window.
type fileWatcher struct {
	log *zap.Logger

	watcher      *fsnotify.Watcher
	roots        []string
	include      []glob.Glob
	exclude      []glob.Glob
	debounceTime time.Duration
	callback     func(Event)

	ctx    context.Context
	cancel context.CancelFunc

	pausedMu sync.RWMutex
	paused   bool

	accumMu sync.Mutex
	accum   map[string]Kind

	timerMu sync.Mutex
	timer   *time.Timer

	stopOnce sync.Once
	doneCh   chan struct{}

	maxDirectories int
	maxDepth       int
	countMu        sync.Mutex
	watchedDirs    int
}

// New creates a file watcher rooted at dirs, applying the given include and
// exclude glob sets. Exclude always wins when a path matches both, and is
// enforced here — at the watcher's own ingress — not only on initial scan.
func New(log *zap.Logger, dirs []string, includePatterns, excludePatterns []string) (FileWatcher, error) {
	if log == nil {
		log = zap.NewNop()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	include, err := compileGlobs(includePatterns)
	if err != nil {
		w.Close()
		return nil, err
	}
	exclude, err := compileGlobs(excludePatterns)
	if err != nil {
		w.Close()
		return nil, err
	}

	fw := &fileWatcher{
		log:            log,
		watcher:        w,
		roots:          dirs,
		include:        include,
		exclude:        exclude,
		debounceTime:   500 * time.Millisecond,
		accum:          make(map[string]Kind),
		doneCh:         make(chan struct{}),
		maxDirectories: 1000,
		maxDepth:       10,
	}

	for _, dir := range dirs {
		if err := fw.addDirRecursive(dir, 0); err != nil {
			w.Close()
			return nil, err
		}
	}

	return fw, nil
}

// WithDebounce overrides the default 500ms debounce window. Must be called
// before Start.
func WithDebounce(fw FileWatcher, d time.Duration) {
	if w, ok := fw.(*fileWatcher); ok {
		w.debounceTime = d
	}
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid glob %q: %w", p, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// excluded reports whether path should never be surfaced as an event,
// regardless of the event's source (initial scan, live watch callback, or
// manual reindex) — enforcing spec.md §4.3's exclusion-totality invariant
// at the single point every path flows through.
func (fw *fileWatcher) excluded(path string) bool {
	for _, g := range fw.exclude {
		if g.Match(path) {
			return true
		}
	}
	if len(fw.include) == 0 {
		return false
	}
	for _, g := range fw.include {
		if g.Match(path) {
			return false
		}
	}
	return true
}

func (fw *fileWatcher) Start(ctx context.Context, callback func(Event)) error {
	if callback == nil {
		return fmt.Errorf("callback must not be nil")
	}
	fw.callback = callback
	fw.ctx, fw.cancel = context.WithCancel(ctx)
	go fw.run()
	return nil
}

func (fw *fileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		if fw.cancel != nil {
			fw.cancel()
			<-fw.doneCh
		} else {
			close(fw.doneCh)
		}
		err = fw.watcher.Close()
	})
	return err
}

func (fw *fileWatcher) Pause() {
	fw.pausedMu.Lock()
	fw.paused = true
	fw.pausedMu.Unlock()
}

func (fw *fileWatcher) Resume() {
	fw.pausedMu.Lock()
	wasPaused := fw.paused
	fw.paused = false
	fw.pausedMu.Unlock()
	if wasPaused {
		fw.flush()
	}
}

func (fw *fileWatcher) run() {
	defer close(fw.doneCh)

	debounceCh := make(chan struct{}, 1)

	for {
		select {
		case <-fw.ctx.Done():
			fw.stopTimer()
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsEvent(event, debounceCh)

		case <-debounceCh:
			fw.flush()

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.log.Warn("file watcher backend error, emitting rescan", zap.Error(err))
			for _, root := range fw.roots {
				fw.record(root, Rescan)
			}
			fw.resetTimer(debounceCh)
		}
	}
}

func (fw *fileWatcher) handleFsEvent(event fsnotify.Event, debounceCh chan struct{}) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !fw.excluded(event.Name) {
				if err := fw.addDirRecursive(event.Name, 0); err != nil {
					fw.log.Warn("failed to watch new directory", zap.String("path", event.Name), zap.Error(err))
				}
			}
			return
		}
	}

	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	if fw.excluded(event.Name) {
		return
	}

	kind := Modified
	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		kind = Deleted
	case event.Op&fsnotify.Create != 0:
		kind = Created
	}

	fw.record(event.Name, kind)
	fw.resetTimer(debounceCh)
}

// record coalesces kind into the per-path accumulator; a Deleted event
// always wins over any earlier event for the same path within the window.
func (fw *fileWatcher) record(path string, kind Kind) {
	fw.accumMu.Lock()
	defer fw.accumMu.Unlock()
	if existing, ok := fw.accum[path]; ok && existing == Deleted {
		return
	}
	fw.accum[path] = kind
}

func (fw *fileWatcher) resetTimer(debounceCh chan struct{}) {
	fw.timerMu.Lock()
	defer fw.timerMu.Unlock()
	if fw.timer != nil {
		if !fw.timer.Stop() {
			select {
			case <-fw.timer.C:
			default:
			}
		}
	}
	fw.timer = time.AfterFunc(fw.debounceTime, func() {
		select {
		case debounceCh <- struct{}{}:
		default:
		}
	})
}

func (fw *fileWatcher) stopTimer() {
	fw.timerMu.Lock()
	defer fw.timerMu.Unlock()
	if fw.timer != nil {
		fw.timer.Stop()
		fw.timer = nil
	}
}

func (fw *fileWatcher) flush() {
	fw.pausedMu.RLock()
	paused := fw.paused
	fw.pausedMu.RUnlock()
	if paused {
		return
	}

	fw.accumMu.Lock()
	if len(fw.accum) == 0 {
		fw.accumMu.Unlock()
		return
	}
	pending := fw.accum
	fw.accum = make(map[string]Kind)
	fw.accumMu.Unlock()

	for path, kind := range pending {
		fw.callback(Event{Path: path, Kind: kind})
	}
}

// addDirRecursive adds rootPath and every non-excluded subdirectory to the
// fsnotify watch set, bounded by maxDepth and maxDirectories.
func (fw *fileWatcher) addDirRecursive(rootPath string, depth int) error {
	if depth > fw.maxDepth {
		return fmt.Errorf("max depth %d exceeded at %s", fw.maxDepth, rootPath)
	}
	if fw.excluded(rootPath) {
		return nil
	}

	fw.countMu.Lock()
	if fw.watchedDirs >= fw.maxDirectories {
		count := fw.watchedDirs
		fw.countMu.Unlock()
		return fmt.Errorf("directory limit reached: %d already watched (max %d)", count, fw.maxDirectories)
	}
	fw.countMu.Unlock()

	entries, err := os.ReadDir(rootPath)
	if err != nil {
		return err
	}

	fw.countMu.Lock()
	fw.watchedDirs++
	current := fw.watchedDirs
	fw.countMu.Unlock()

	if err := fw.watcher.Add(rootPath); err != nil {
		fw.countMu.Lock()
		fw.watchedDirs--
		fw.countMu.Unlock()
		return fmt.Errorf("failed to watch %s: %w", rootPath, err)
	}

	if current >= fw.maxDirectories*9/10 {
		fw.log.Warn("approaching watched directory limit", zap.Int("count", current), zap.Int("max", fw.maxDirectories))
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sub := filepath.Join(rootPath, entry.Name())
		if err := fw.addDirRecursive(sub, depth+1); err != nil {
			fw.log.Warn("skipping subdirectory", zap.String("path", sub), zap.Error(err))
		}
	}

	return nil
}

package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// ExternalChangeKind classifies a change observed outside of any tool call.
type ExternalChangeKind string

const (
	ExternalChangeCreate ExternalChangeKind = "create"
	ExternalChangeUpdate ExternalChangeKind = "update"
	ExternalChangeDelete ExternalChangeKind = "delete"
)

// ExternalChange describes one filesystem change the watcher observed that
// did not originate from a tool call on this run's workspace wrapper.
type ExternalChange struct {
	Path string
	Kind ExternalChangeKind
}

// ExternalWatcher monitors a live workspace root for changes made outside
// the agent's own tool calls (e.g. a human editing files concurrently) and
// reports each as an ExternalChange. Callers typically forward these into
// the run's Event Bus as file_change events with Preview=false.
//
// Rapid successive events on the same path are debounced: a change is only
// reported once the path has been stable for the configured threshold.
type ExternalWatcher struct {
	watcher   *fsnotify.Watcher
	root      string
	stability time.Duration
	onChange  func(ExternalChange)

	done           chan struct{}
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer
	stopOnce       sync.Once
}

// WatchExternalChanges starts watching root and invokes onChange for each
// debounced change. The returned watcher must be Stop()ed by the caller.
func WatchExternalChanges(root string, onChange func(ExternalChange)) (*ExternalWatcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("onChange callback is required")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &ExternalWatcher{
		watcher:        fsw,
		root:           root,
		stability:      150 * time.Millisecond,
		onChange:       onChange,
		done:           make(chan struct{}),
		debounceTimers: make(map[string]*time.Timer),
	}

	if err := w.addDirectoryRecursive(root); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch workspace: %w", err)
	}
	go w.eventLoop()

	log.Info().Str("path", root).Msg("workspace: external watcher started")
	return w, nil
}

// Stop stops the watcher and cancels pending debounce timers.
func (w *ExternalWatcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.debounceMu.Lock()
	for _, timer := range w.debounceTimers {
		timer.Stop()
	}
	clear(w.debounceTimers)
	w.debounceMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	log.Info().Str("path", w.root).Msg("workspace: external watcher stopped")
	return nil
}

func (w *ExternalWatcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.shouldIgnore(event.Name) {
				continue
			}
			w.debounce(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("workspace: watcher error")

		case <-w.done:
			return
		}
	}
}

// debounce defers reporting until the path has been quiet for the stability
// threshold, collapsing editor write bursts into one change.
func (w *ExternalWatcher) debounce(event fsnotify.Event) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if timer, exists := w.debounceTimers[event.Name]; exists {
		timer.Stop()
	}

	eventCopy := event
	w.debounceTimers[event.Name] = time.AfterFunc(w.stability, func() {
		w.debounceMu.Lock()
		delete(w.debounceTimers, eventCopy.Name)
		w.debounceMu.Unlock()

		select {
		case <-w.done:
		default:
			w.report(eventCopy)
		}
	})
}

func (w *ExternalWatcher) report(event fsnotify.Event) {
	rel := event.Name
	if r, err := filepath.Rel(w.root, event.Name); err == nil {
		rel = filepath.ToSlash(r)
	}

	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		w.onChange(ExternalChange{Path: rel, Kind: ExternalChangeCreate})
		// New directories need to join the watch set.
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.addDirectoryRecursive(event.Name)
		}
	case event.Op&fsnotify.Write == fsnotify.Write:
		w.onChange(ExternalChange{Path: rel, Kind: ExternalChangeUpdate})
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		w.onChange(ExternalChange{Path: rel, Kind: ExternalChangeDelete})
	case event.Op&fsnotify.Rename == fsnotify.Rename:
		// A rename surfaces as a delete here; the new name triggers a create.
		w.onChange(ExternalChange{Path: rel, Kind: ExternalChangeDelete})
	}
}

func (w *ExternalWatcher) addDirectoryRecursive(path string) error {
	return filepath.Walk(path, func(walkPath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if w.shouldIgnore(walkPath) {
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			if err := w.watcher.Add(walkPath); err != nil {
				log.Warn().Err(err).Str("path", walkPath).Msg("workspace: failed to watch path")
			}
		}
		return nil
	})
}

func (w *ExternalWatcher) shouldIgnore(path string) bool {
	for _, part := range strings.Split(filepath.Clean(path), string(filepath.Separator)) {
		if len(part) > 0 && part[0] == '.' {
			return true
		}
	}
	return strings.Contains(path, "node_modules")
}

// Package watcher monitors a discovery root for image changes and reports
// them via callbacks.
package watcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"photo-discovery/internal/classify"
	"photo-discovery/internal/logging"
	"photo-discovery/internal/metrics"
)

// EventType represents the type of file system event
type EventType int

// File system event types.
const (
	EventCreate EventType = iota
	EventWrite
	EventRemove
	EventRename
)

func (t EventType) String() string {
	switch t {
	case EventCreate:
		return "create"
	case EventWrite:
		return "write"
	case EventRemove:
		return "remove"
	case EventRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Event represents a file system change event
type Event struct {
	Type  EventType
	Path  string
	IsDir bool
}

// Callback is a function called when file changes occur
type Callback func(Event)

// Options controls which changes are reported.
type Options struct {
	Recursive  bool
	SkipHidden bool
}

// Watcher monitors one root directory. Only directories and supported image
// files produce events.
type Watcher struct {
	root    string
	opts    Options
	watcher *fsnotify.Watcher

	mu        sync.RWMutex
	callbacks []Callback
	watched   map[string]struct{}

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a new file system watcher for root.
func New(root string, opts Options) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		root:    filepath.Clean(root),
		opts:    opts,
		watcher: w,
		watched: make(map[string]struct{}),
		done:    make(chan struct{}),
	}, nil
}

// OnChange registers a callback for file change events
func (w *Watcher) OnChange(cb Callback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Start begins watching the root, and its subdirectories when recursive.
// It fails only if the root itself cannot be watched.
func (w *Watcher) Start() error {
	if err := w.add(w.root); err != nil {
		return err
	}

	if w.opts.Recursive {
		err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				logging.Warn("Watcher: cannot walk %s: %v", path, err)
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.IsDir() || path == w.root {
				return nil
			}
			if w.opts.SkipHidden && classify.IsHidden(d.Name()) {
				return filepath.SkipDir
			}
			if err := w.add(path); err != nil {
				logging.Warn("Watcher: cannot watch %s: %v", path, err)
			}
			return nil
		})
		if err != nil {
			logging.Warn("Watcher: failed to walk %s: %v", w.root, err)
		}
	}

	logging.Info("Watching %s for changes (%d directories)", w.root, w.Watched())
	go w.eventLoop()
	return nil
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		metrics.WatchedDirectories.Set(0)
	})
	return err
}

// Watched returns the number of directories being watched.
func (w *Watcher) Watched() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.watched)
}

func (w *Watcher) add(dir string) error {
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	w.mu.Lock()
	w.watched[dir] = struct{}{}
	n := len(w.watched)
	w.mu.Unlock()
	metrics.WatchedDirectories.Set(float64(n))
	return nil
}

// forget drops a removed directory and reports whether it was watched.
func (w *Watcher) forget(dir string) bool {
	w.mu.Lock()
	_, ok := w.watched[dir]
	delete(w.watched, dir)
	n := len(w.watched)
	w.mu.Unlock()
	if ok {
		metrics.WatchedDirectories.Set(float64(n))
	}
	return ok
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			metrics.WatcherErrors.Inc()
			logging.Warn("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if w.opts.SkipHidden && classify.IsHidden(name) {
		return
	}

	var e Event
	switch {
	case event.Op.Has(fsnotify.Create):
		e = Event{Type: EventCreate, Path: event.Name, IsDir: isDir(event.Name)}
		// If a new directory is created, watch it
		if e.IsDir && w.opts.Recursive {
			if err := w.add(event.Name); err != nil {
				logging.Warn("Watcher: cannot watch %s: %v", event.Name, err)
			}
		}
	case event.Op.Has(fsnotify.Write):
		e = Event{Type: EventWrite, Path: event.Name}
	case event.Op.Has(fsnotify.Remove):
		e = Event{Type: EventRemove, Path: event.Name, IsDir: w.forget(event.Name)}
	case event.Op.Has(fsnotify.Rename):
		e = Event{Type: EventRename, Path: event.Name, IsDir: w.forget(event.Name)}
	default:
		return
	}

	if !e.IsDir && !classify.IsSupportedImage(e.Path) {
		return
	}

	metrics.WatcherEventsTotal.WithLabelValues(e.Type.String()).Inc()
	logging.Debug("Watcher: %s %s", e.Type, e.Path)

	w.mu.RLock()
	callbacks := make([]Callback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	for _, cb := range callbacks {
		cb(e)
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// Package stopfile lets an operator stop a running migration between
// transactions by creating a file.
//
// The watcher observes the directory holding the stop file, so the
// file may be created (or moved into place) at any time after Start.
// A stop file that already exists at Start counts as a request.
package stopfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports whether a stop file has appeared.
type Watcher struct {
	path string

	watcher *fsnotify.Watcher
	stopped chan struct{}
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup

	mu        sync.Mutex
	running   bool
	requested bool
}

// New creates a watcher for the stop file at path. It must be started
// with Start before it reports anything.
func New(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid stop file path %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		path:    abs,
		watcher: watcher,
		stopped: make(chan struct{}),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Path returns the absolute stop file path.
func (w *Watcher) Path() string {
	return w.path
}

// Start begins watching. The stop file's directory must exist.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w.running = true
	w.wg.Add(1)
	go w.processEvents()

	// Checked after Add so a file created in between is not missed
	if _, err := os.Stat(w.path); err == nil {
		w.requestLocked()
	}
	return nil
}

// Stop ends watching and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	w.wg.Wait()
	close(w.errors)
	return nil
}

// Requested reports whether the stop file has appeared.
func (w *Watcher) Requested() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.requested
}

// Stopped is closed once a stop is requested.
func (w *Watcher) Stopped() <-chan struct{} {
	return w.stopped
}

// Errors emits watcher errors. It is closed by Stop.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Remove deletes the stop file so the next run is not stopped at once.
func (w *Watcher) Remove() error {
	if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (w *Watcher) requestLocked() {
	if w.requested {
		return
	}
	w.requested = true
	close(w.stopped)
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.matches(event) {
				continue
			}
			w.mu.Lock()
			w.requestLocked()
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			case <-w.done:
				return
			default:
				// Nobody is draining errors; drop it
			}
		}
	}
}

// matches reports whether event created or wrote the stop file.
func (w *Watcher) matches(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return abs == w.path
}

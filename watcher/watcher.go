// Package watcher triggers re-scans when a host tree or its source changes.
//
// A Watcher coalesces change notifications from up to three sources into one
// callback per batch:
//
//  1. A signal channel, typically dom.Document.Changes, fed by structural
//     tree mutations.
//  2. File system watching (fsnotify) of source files.
//  3. Periodic polling with a change check, for trees mutated without
//     notification.
//
// Basic usage:
//
//	w, err := watcher.New().
//	    WithSignal(doc.Changes()).
//	    WithDebounceInterval(10 * time.Millisecond).
//	    Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
//	if err := w.Watch(func() { engine.Scan() }); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// The Watcher is safe for concurrent use. The callback runs on the watcher's
// own goroutine, one invocation at a time.
package watcher

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes change sources and invokes a callback per batch.
type Watcher struct {
	config    watcherConfig
	fsWatcher *fsnotify.Watcher
	stopChan  chan struct{}
	doneChan  chan struct{}
	mu        sync.Mutex
	running   bool
}

// watcherConfig holds internal configuration for the watcher.
type watcherConfig struct {
	signal           <-chan struct{}
	files            []string
	pollInterval     time.Duration
	changed          func() bool
	debounceInterval time.Duration
}

// defaultDebounceInterval coalesces bursts of mutations into one batch.
const defaultDebounceInterval = 10 * time.Millisecond

// New creates a new watcher Builder.
func New() *Builder {
	return &Builder{
		config: watcherConfig{
			debounceInterval: defaultDebounceInterval,
		},
	}
}

// Watch starts watching and calls onChange once per batch of changes.
// It returns once the sources are registered.
func (w *Watcher) Watch(onChange func()) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return &WatcherError{Message: "watcher is already running"}
	}
	if onChange == nil {
		return &WatcherError{Message: "callback must not be nil"}
	}

	var fsChan <-chan fsnotify.Event
	if len(w.config.files) > 0 {
		fsWatcher, err := fsnotify.NewWatcher()
		if err != nil {
			return &WatcherError{Message: "failed to create file watcher", Err: err}
		}
		for _, path := range w.config.files {
			if err := fsWatcher.Add(path); err != nil {
				_ = fsWatcher.Close()
				return &WatcherError{Message: "failed to watch " + path, Err: err}
			}
		}
		w.fsWatcher = fsWatcher
		fsChan = fsWatcher.Events
	}

	w.running = true
	w.stopChan = make(chan struct{})
	w.doneChan = make(chan struct{})

	go w.watchLoop(onChange, fsChan)

	return nil
}

// Running reports whether the watcher is active.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.running
}

// Stop gracefully stops the watcher and waits for an in-progress callback.
// Stop is idempotent.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopChan)
	<-w.doneChan // Wait for watchLoop to finish

	if w.fsWatcher != nil {
		_ = w.fsWatcher.Close()
		w.fsWatcher = nil
	}
}

// watchLoop is the main loop that coalesces change notifications.
func (w *Watcher) watchLoop(onChange func(), fsChan <-chan fsnotify.Event) {
	defer close(w.doneChan)

	signal := w.config.signal

	var pollChan <-chan time.Time
	if w.config.pollInterval > 0 {
		pollTicker := time.NewTicker(w.config.pollInterval)
		defer pollTicker.Stop()
		pollChan = pollTicker.C
	}

	// Debounce timer to coalesce a batch of notifications
	var debounceTimer *time.Timer
	var debounceChan <-chan time.Time

	trigger := func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		debounceTimer = time.NewTimer(w.config.debounceInterval)
		debounceChan = debounceTimer.C
	}
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-w.stopChan:
			return

		case _, ok := <-signal:
			if !ok {
				signal = nil
				continue
			}
			trigger()

		case event, ok := <-fsChan:
			if !ok {
				fsChan = nil
				continue
			}
			// Only react to write and create events
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				trigger()
			}

		case <-pollChan:
			if w.config.changed == nil || w.config.changed() {
				trigger()
			}

		case <-debounceChan:
			debounceChan = nil
			onChange()
		}
	}
}

// WatcherError represents a watcher-specific error.
type WatcherError struct {
	Message string
	Err     error
}

func (e *WatcherError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *WatcherError) Unwrap() error {
	return e.Err
}

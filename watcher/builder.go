package watcher

import (
	"os"
	"time"
)

// Builder provides a fluent API for constructing a Watcher.
type Builder struct {
	config watcherConfig
	err    error
}

// WithSignal sets a channel whose receives announce a structural change.
// A closed channel is ignored from then on.
func (b *Builder) WithSignal(signal <-chan struct{}) *Builder {
	b.config.signal = signal
	return b
}

// WithFiles adds files to monitor using fsnotify.
// Build fails if any of them does not exist.
func (b *Builder) WithFiles(paths ...string) *Builder {
	if b.err != nil {
		return b
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			b.err = err
			return b
		}
		b.config.files = append(b.config.files, path)
	}

	return b
}

// WithPollInterval enables periodic polling.
// Without a change check every tick counts as a change.
//
// Default is 0 (no polling).
func (b *Builder) WithPollInterval(interval time.Duration) *Builder {
	b.config.pollInterval = interval
	return b
}

// WithChangeCheck sets the function consulted on each poll tick.
// It runs on the watcher goroutine and must be safe to call from it.
func (b *Builder) WithChangeCheck(changed func() bool) *Builder {
	b.config.changed = changed
	return b
}

// WithDebounceInterval sets the debounce interval.
// Notifications arriving within the interval are coalesced into one callback.
//
// Default is 10 milliseconds.
func (b *Builder) WithDebounceInterval(interval time.Duration) *Builder {
	if interval > 0 {
		b.config.debounceInterval = interval
	}
	return b
}

// Build creates the Watcher with the configured options.
func (b *Builder) Build() (*Watcher, error) {
	if b.err != nil {
		return nil, b.err
	}

	if b.config.signal == nil && len(b.config.files) == 0 && b.config.pollInterval <= 0 {
		return nil, &WatcherError{Message: "no change source configured"}
	}

	return &Watcher{config: b.config}, nil
}

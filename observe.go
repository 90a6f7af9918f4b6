package spritefill

import (
	"github.com/arloliu/spritefill/internal/dom"
	"github.com/arloliu/spritefill/watcher"
)

// observe starts a watcher re-scanning on structural document changes.
// Must be called without the engine turn held.
func (p *Polyfill) observe() error {
	if !p.settings.watch {
		return nil
	}

	b := watcher.New().
		WithSignal(p.doc.Changes()).
		WithDebounceInterval(p.settings.debounce)
	if p.settings.poll > 0 {
		p.mu.Lock()
		p.fingerprint = dom.Fingerprint(p.scope())
		p.mu.Unlock()

		b.WithPollInterval(p.settings.poll).WithChangeCheck(p.treeChanged)
	}

	w, err := b.Build()
	if err != nil {
		return err
	}
	if err := w.Watch(p.rescan); err != nil {
		return err
	}

	// Stop or a concurrent Start may have won while the watcher was set up.
	p.mu.Lock()
	stale := !p.running || p.watcher != nil
	if !stale {
		p.watcher = w
	}
	p.mu.Unlock()

	if stale {
		w.Stop()
	}

	return nil
}

// detachWatcher hands the watcher to the caller for stopping outside the
// engine turn; Watcher.Stop waits for a callback that may need the turn.
func (p *Polyfill) detachWatcher() *watcher.Watcher {
	w := p.watcher
	p.watcher = nil

	return w
}

// treeChanged is the polling change check: it compares the scope's
// structural fingerprint with the one seen last.
func (p *Polyfill) treeChanged() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	fp := dom.Fingerprint(p.scope())
	if fp == p.fingerprint {
		return false
	}
	p.fingerprint = fp

	return true
}

// rescan is the watcher callback.
func (p *Polyfill) rescan() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running || p.destroyed {
		return
	}

	p.logger.Debug("document changed, rescanning")
	p.scan()
}

// Package spritefill inlines external SVG sprite references.
//
// A consumer such as <use href="icons.svg#star"> cannot be rendered by some
// user agents. spritefill fetches each referenced document once, inlines it
// hidden into the host tree and rewrites the consumer to the local fragment
// (href="#star"). Destroy reverses every rewrite and removes the inlined
// documents.
//
// Basic usage:
//
//	doc, err := spritefill.ParseDocument(r)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	p, err := spritefill.Attach(doc)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close()
//
//	if err := p.Settle(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(doc.String())
//
// For more control, use the Builder pattern:
//
//	p, err := spritefill.New(doc).
//	    WithTarget("svg use.icon").
//	    WithAlways(true).
//	    WithBaseURL("https://example.com/").
//	    WithListener(func(ev *spritefill.Event) {
//	        if ev.Name == spritefill.EventLoad {
//	            log.Println("loading", ev.Detail.Fields()["address"])
//	        }
//	    }).
//	    Build()
//
// Every step (load, insert, apply, revoke, remove, error) is announced as a
// cancelable event bubbling from the affected node; a listener vetoes the
// step with PreventDefault.
package spritefill

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"sync"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/arloliu/spritefill/internal/cache"
	"github.com/arloliu/spritefill/internal/event"
	"github.com/arloliu/spritefill/watcher"
	"golang.org/x/net/html"
)

// Polyfill resolves external fragment references in one document.
//
// All tree and cache mutations happen on the engine turn, a single lock
// shared by scans, fetch completions and frame drains. Methods are safe for
// concurrent use; listeners run on the turn and must not call back in.
type Polyfill struct {
	doc      *Document
	settings settings
	matcher  cascadia.Matcher
	context  cascadia.Matcher
	rootSel  cascadia.Matcher
	agents   []*regexp.Regexp
	base     *url.URL
	resolver Resolver
	sched    Scheduler
	logger   *slog.Logger
	gateway  *event.Gateway

	mu          sync.Mutex
	cache       *cache.Cache
	applying    map[*html.Node]struct{}
	detected    bool
	required    bool
	docBase     *url.URL
	docOrigin   string
	running     bool
	destroyed   bool
	fetchCtx    context.Context
	cancelFetch context.CancelFunc
	watcher     *watcher.Watcher
	fingerprint uint64
	frameStop   chan struct{}
	frameDone   chan struct{}

	idleMu   sync.Mutex
	inflight int
	idle     chan struct{}
}

// Start detects whether resolution is required, scans the context subtree,
// begins observing the document and starts the frame loop.
// Start may be called again after Stop.
func (p *Polyfill) Start() error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return ErrDestroyed
	}
	if p.running {
		p.mu.Unlock()
		return ErrRunning
	}

	p.running = true
	p.detect()
	p.scan()
	p.startFrames()
	p.mu.Unlock()

	if err := p.observe(); err != nil {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()

		return err
	}

	return nil
}

// Stop ceases observation. Applied consumers and inlined resources stay,
// and in-flight fetches still complete.
func (p *Polyfill) Stop() {
	p.mu.Lock()
	p.running = false
	w := p.detachWatcher()
	p.mu.Unlock()

	if w != nil {
		w.Stop()
	}
}

// Destroy revokes every applied consumer, removes every inlined resource,
// cancels in-flight fetches and stops observation. The restoring mutations
// are queued like any other and run on the next frame.
// A destroyed Polyfill cannot be restarted.
func (p *Polyfill) Destroy() {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}

	p.destroyed = true
	p.running = false
	if p.cancelFetch != nil {
		p.cancelFetch()
	}

	for _, c := range p.cache.Consumers() {
		p.revoke(c)
	}
	for _, res := range p.cache.Resources() {
		if res.State != cache.Loaded {
			p.cache.RemoveResource(res.Address)
			continue
		}
		p.remove(res)
	}

	w := p.detachWatcher()
	p.mu.Unlock()

	if w != nil {
		w.Stop()
	}
}

// Close stops observation and the frame loop. It does not revoke anything;
// pending mutations can still be drained with Flush or Settle.
func (p *Polyfill) Close() error {
	p.Stop()

	p.mu.Lock()
	stop, done := p.frameStop, p.frameDone
	p.frameStop, p.frameDone = nil, nil
	p.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}

	return nil
}

// Scan runs one discovery pass over the context subtree.
func (p *Polyfill) Scan() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destroyed {
		return ErrDestroyed
	}
	p.detect()
	p.scan()

	return nil
}

// Flush runs the mutations queued before the call and returns how many ran.
func (p *Polyfill) Flush() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.sched.Drain()
}

// Settle waits for every in-flight fetch and drains queued mutations until
// none remain.
func (p *Polyfill) Settle(ctx context.Context) error {
	for {
		select {
		case <-p.idleChan():
		case <-ctx.Done():
			return ctx.Err()
		}

		// pending first: a fetch ending after Flush leaves its insert queued.
		if p.pending() == 0 && p.Flush() == 0 {
			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Update runs fn on the engine turn. Host code mutating the document while
// the Polyfill is running must do so through Update; structural changes made
// with the Document methods are picked up by the watcher.
func (p *Polyfill) Update(fn func(doc *Document)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fn(p.doc)
}

// Listen registers fn for events dispatched at node or its descendants.
// The returned func removes the registration.
func (p *Polyfill) Listen(node *html.Node, fn Listener) func() {
	return p.gateway.Listen(node, fn)
}

// ListenAll registers fn for every event. The returned func removes it.
func (p *Polyfill) ListenAll(fn Listener) func() {
	return p.gateway.ListenAll(fn)
}

// Document returns the host document.
func (p *Polyfill) Document() *Document {
	return p.doc
}

// Required reports whether the configured user agent needs every external
// reference resolved. It is known after Start or Scan.
func (p *Polyfill) Required() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.required
}

// startFrames starts the frame loop unless disabled or already running.
// Called on the engine turn.
func (p *Polyfill) startFrames() {
	interval := p.settings.frameInterval
	if interval <= 0 || p.frameStop != nil {
		return
	}

	stop, done := make(chan struct{}), make(chan struct{})
	p.frameStop, p.frameDone = stop, done

	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				p.Flush()
			}
		}
	}()
}

func (p *Polyfill) beginFetch() {
	p.idleMu.Lock()
	defer p.idleMu.Unlock()

	if p.inflight == 0 {
		p.idle = make(chan struct{})
	}
	p.inflight++
}

func (p *Polyfill) endFetch() {
	p.idleMu.Lock()
	defer p.idleMu.Unlock()

	p.inflight--
	if p.inflight == 0 {
		close(p.idle)
	}
}

func (p *Polyfill) idleChan() <-chan struct{} {
	p.idleMu.Lock()
	defer p.idleMu.Unlock()

	return p.idle
}

func (p *Polyfill) pending() int {
	p.idleMu.Lock()
	defer p.idleMu.Unlock()

	return p.inflight
}

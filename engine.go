package spritefill

import (
	"context"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/arloliu/spritefill/internal/address"
	"github.com/arloliu/spritefill/internal/cache"
	"github.com/arloliu/spritefill/internal/dom"
	"github.com/arloliu/spritefill/internal/event"
	"golang.org/x/net/html"
)

// Everything in this file runs on the engine turn (p.mu held), including
// the closures handed to the scheduler.

// detect resolves the document base and decides whether the user agent
// requires every reference to be resolved.
func (p *Polyfill) detect() {
	base := p.base
	if href, ok := p.doc.BaseHref(); ok && href != "" {
		if u, err := address.Rebase(p.base, href); err == nil {
			base = u
		} else {
			p.logger.Debug("ignoring invalid base element", "href", href, "error", err)
		}
	}
	p.docBase = base
	p.docOrigin = address.Origin(base)

	if p.detected {
		return
	}
	p.detected = true

	p.required = p.settings.always
	for _, re := range p.agents {
		if p.required {
			break
		}
		p.required = re.MatchString(p.settings.userAgent)
	}

	p.logger.Debug("environment detected",
		"required", p.required,
		"userAgent", p.settings.userAgent,
		"origin", p.docOrigin,
	)
}

// scope returns the subtree scanned for consumers.
func (p *Polyfill) scope() *html.Node {
	if p.context != nil {
		if n := querySelector(p.doc.Root(), p.context); n != nil {
			return n
		}
	}

	return p.doc.Body()
}

// hostRoot returns the node resources are inlined into.
func (p *Polyfill) hostRoot() *html.Node {
	if p.rootSel != nil {
		if n := querySelector(p.doc.Root(), p.rootSel); n != nil {
			return n
		}
	}

	return p.doc.Body()
}

func querySelector(n *html.Node, m cascadia.Matcher) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && m.Match(c) {
			return c
		}
		if found := querySelector(c, m); found != nil {
			return found
		}
	}

	return nil
}

// scan processes every consumer in the scope.
func (p *Polyfill) scan() {
	scope := p.scope()

	var nodes []*html.Node
	if p.matcher != nil {
		nodes = dom.QueryAll(scope, p.matcher)
	} else {
		for _, n := range p.settings.targets {
			if dom.Contains(scope, n) {
				nodes = append(nodes, n)
			}
		}
	}

	for _, n := range nodes {
		p.process(n)
	}
}

// eligible reports whether ref must be resolved.
func (p *Polyfill) eligible(ref address.Reference) bool {
	if p.required {
		return true
	}

	return p.settings.crossDomain && ref.Origin != p.docOrigin
}

// process runs the per-consumer algorithm: gate "load" for an unseen
// address, then gate "apply" and queue the rewrite.
func (p *Polyfill) process(node *html.Node) {
	value := dom.LinkValue(node)
	if value == "" || strings.HasPrefix(value, "#") {
		return
	}
	if p.cache.HasConsumer(node) {
		return
	}
	if _, ok := p.applying[node]; ok {
		return
	}

	ref, err := address.Parse(p.docBase, value)
	if err != nil {
		p.logger.Debug("skipping unparseable reference", "value", value, "error", err)
		return
	}
	if ref.SameDocument() || !p.eligible(ref) {
		return
	}

	if res, ok := p.cache.Resource(ref.Address); ok && res.State == cache.Failed {
		return
	}

	if !p.cache.HasResource(ref.Address) {
		p.emit(node, event.Load, event.LoadDetail{Address: ref.Address}, func() {
			p.load(ref.Address)
		})
	}

	p.emit(node, event.Apply, event.ApplyDetail{Address: ref.Address, Identifier: ref.Fragment}, func() {
		p.applying[node] = struct{}{}
		p.sched.Schedule(func() { p.apply(node, ref) })
	})
}

// apply rewrites node to the local fragment and records it.
func (p *Polyfill) apply(node *html.Node, ref address.Reference) {
	delete(p.applying, node)
	if p.destroyed {
		return
	}
	if res, ok := p.cache.Resource(ref.Address); ok && res.State == cache.Failed {
		return
	}

	dom.SetLink(node, "#"+ref.Fragment)
	p.cache.RecordConsumer(node, ref.Raw, ref.Address)
}

// load reserves addr and fetches it on its own goroutine.
func (p *Polyfill) load(addr string) {
	if err := p.cache.Reserve(addr); err != nil {
		p.logger.Debug("skipping load", "address", addr, "error", err)
		return
	}

	if p.fetchCtx == nil {
		p.fetchCtx, p.cancelFetch = context.WithCancel(context.Background())
	}

	p.beginFetch()
	go p.fetch(p.fetchCtx, addr)
}

// fetch runs off the engine turn and takes it to record the outcome.
func (p *Polyfill) fetch(ctx context.Context, addr string) {
	defer p.endFetch()

	if p.settings.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.settings.timeout)
		defer cancel()
	}

	data, err := p.resolver.Resolve(ctx, addr)
	var node *html.Node
	if err == nil {
		node, err = dom.ParseResource(data)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		p.fail(addr, &FetchError{Address: addr, Err: err})
		return
	}
	p.loaded(addr, node, data)
}

// loaded stores the hidden resource and gates its insertion.
func (p *Polyfill) loaded(addr string, node *html.Node, data []byte) {
	if p.destroyed {
		return
	}

	dom.Hide(node)
	if err := p.cache.SetResource(addr, node, data); err != nil {
		p.logger.Debug("dropping fetched resource", "address", addr, "error", err)
		return
	}
	p.logger.Debug("resource loaded", "address", addr, "size", len(data))

	root := p.hostRoot()
	p.emit(root, event.Insert, event.InsertDetail{Address: addr, Resource: node}, func() {
		p.sched.Schedule(func() {
			if p.destroyed {
				return
			}
			if res, ok := p.cache.Resource(addr); !ok || res.Node != node || node.Parent != nil {
				return
			}
			p.doc.Prepend(root, node)
		})
	})
}

// fail marks addr failed and gates releasing it. A canceled "error" event
// pins the failure so the address is never fetched again.
func (p *Polyfill) fail(addr string, err error) {
	if p.destroyed {
		p.logger.Debug("dropping failed fetch after destroy", "address", addr, "error", err)
		return
	}
	p.logger.Warn("failed to load resource", "address", addr, "error", err)
	if ferr := p.cache.Fail(addr, err); ferr != nil {
		return
	}

	p.emit(p.hostRoot(), event.Error, event.ErrorDetail{Address: addr, Err: err}, func() {
		p.sched.Schedule(func() { p.release(addr) })
	})
}

// release forgets a failed address and revokes its consumers so a later
// scan retries it.
func (p *Polyfill) release(addr string) {
	if res, ok := p.cache.Resource(addr); !ok || res.State != cache.Failed {
		return
	}

	p.cache.RemoveResource(addr)
	for _, c := range p.cache.ConsumersOf(addr) {
		p.revoke(c)
	}
}

// revoke gates restoring a consumer's original reference.
func (p *Polyfill) revoke(c cache.Consumer) {
	p.emit(c.Node, event.Revoke, event.RevokeDetail{Value: c.Original}, func() {
		p.sched.Schedule(func() {
			if original, ok := p.cache.ForgetConsumer(c.Node); ok {
				dom.SetLink(c.Node, original)
			}
		})
	})
}

// remove gates detaching a loaded resource and deleting its entry.
func (p *Polyfill) remove(res cache.Resource) {
	p.emit(res.Node, event.Remove, event.RemoveDetail{Address: res.Address}, func() {
		p.sched.Schedule(func() {
			p.doc.Detach(res.Node)
			p.cache.RemoveResource(res.Address)
		})
	})
}

// emit dispatches through the gateway and logs the outcome.
func (p *Polyfill) emit(target *html.Node, name string, detail event.Detail, continuation func()) bool {
	ev, ok := p.gateway.Emit(target, name, detail, continuation)
	p.logger.Debug("event dispatched",
		"event", ev.Type,
		"id", ev.ID,
		"address", detail.Fields()["address"],
		"canceled", !ok,
	)

	return ok
}

package event

import (
	"sync"

	"golang.org/x/net/html"
)

// Listener observes an event and may veto it.
type Listener func(*Event)

type registration struct {
	id int
	fn Listener
}

// Gateway dispatches namespaced, bubbling, cancelable events.
// Listener registration is safe for concurrent use; Emit runs listeners
// synchronously on the calling goroutine.
type Gateway struct {
	namespace string

	mu     sync.RWMutex
	nextID int
	nodes  map[*html.Node][]registration
	global []registration
}

// NewGateway creates a Gateway scoping event types under namespace.
func NewGateway(namespace string) *Gateway {
	return &Gateway{
		namespace: namespace,
		nodes:     make(map[*html.Node][]registration),
	}
}

// Listen registers fn on node. Events dispatched at node or any descendant
// reach it while bubbling. The returned func removes the registration.
func (g *Gateway) Listen(node *html.Node, fn Listener) func() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nextID++
	id := g.nextID
	g.nodes[node] = append(g.nodes[node], registration{id: id, fn: fn})

	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()

		regs := g.nodes[node]
		for i, r := range regs {
			if r.id == id {
				regs = append(regs[:i], regs[i+1:]...)
				break
			}
		}
		if len(regs) == 0 {
			delete(g.nodes, node)
		} else {
			g.nodes[node] = regs
		}
	}
}

// ListenAll registers fn for every event regardless of target.
// Global listeners run after bubbling completes.
func (g *Gateway) ListenAll(fn Listener) func() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nextID++
	id := g.nextID
	g.global = append(g.global, registration{id: id, fn: fn})

	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()

		for i, r := range g.global {
			if r.id == id {
				g.global = append(g.global[:i], g.global[i+1:]...)
				break
			}
		}
	}
}

// Emit dispatches name at target and runs continuation when no listener
// canceled the event. It returns the event and whether continuation ran.
func (g *Gateway) Emit(target *html.Node, name string, detail Detail, continuation func()) (*Event, bool) {
	ev := newEvent(g.namespace, name, target, detail)

	for node := target; node != nil && !ev.stopped; node = node.Parent {
		ev.current = node
		for _, fn := range g.listenersFor(node) {
			fn(ev)
		}
	}

	ev.current = nil
	for _, fn := range g.globalListeners() {
		fn(ev)
	}

	if ev.canceled {
		return ev, false
	}
	if continuation != nil {
		continuation()
	}

	return ev, true
}

func (g *Gateway) listenersFor(node *html.Node) []Listener {
	g.mu.RLock()
	defer g.mu.RUnlock()

	regs := g.nodes[node]
	out := make([]Listener, len(regs))
	for i, r := range regs {
		out[i] = r.fn
	}

	return out
}

func (g *Gateway) globalListeners() []Listener {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Listener, len(g.global))
	for i, r := range g.global {
		out[i] = r.fn
	}

	return out
}

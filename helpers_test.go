package spritefill_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/arloliu/spritefill"
	"github.com/arloliu/spritefill/internal/dom"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const (
	testBase = "https://example.com/app/page.html"
	iconsURL = "https://example.com/app/icons.svg"
	sprite   = `<svg xmlns="http://www.w3.org/2000/svg"><symbol id="star"></symbol><symbol id="heart"></symbol></svg>`
)

// fakeResolver serves documents from memory and counts every fetch.
type fakeResolver struct {
	mu    sync.Mutex
	docs  map[string]string
	errs  map[string]error
	calls map[string]int
	block chan struct{}
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		docs:  map[string]string{iconsURL: sprite},
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (r *fakeResolver) Resolve(ctx context.Context, address string) ([]byte, error) {
	r.mu.Lock()
	r.calls[address]++
	block := r.block
	r.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.errs[address]; err != nil {
		return nil, err
	}
	doc, ok := r.docs[address]
	if !ok {
		return nil, errors.New("not found: " + address)
	}

	return []byte(doc), nil
}

func (r *fakeResolver) count(address string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.calls[address]
}

func (r *fakeResolver) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, c := range r.calls {
		n += c
	}

	return n
}

func (r *fakeResolver) fail(address string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errs[address] = err
}

func (r *fakeResolver) heal(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.errs, address)
}

func parse(t *testing.T, body string) *spritefill.Document {
	t.Helper()

	doc, err := spritefill.ParseDocument(strings.NewReader("<!DOCTYPE html><html><head></head><body>" + body + "</body></html>"))
	require.NoError(t, err)

	return doc
}

// build creates a Polyfill that always resolves, drains only on
// Flush/Settle and does not watch the document.
func build(t *testing.T, doc *spritefill.Document, r spritefill.Resolver, opts ...spritefill.Option) *spritefill.Polyfill {
	t.Helper()

	b := spritefill.New(doc).
		WithBaseURL(testBase).
		WithResolver(r).
		WithAlways(true).
		WithFrameInterval(0).
		WithWatch(false)
	for _, opt := range opts {
		b.Apply(opt)
	}

	p, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	return p
}

// start builds, starts and settles a Polyfill.
func start(t *testing.T, doc *spritefill.Document, r spritefill.Resolver, opts ...spritefill.Option) *spritefill.Polyfill {
	t.Helper()

	p := build(t, doc, r, opts...)
	require.NoError(t, p.Start())
	settle(t, p)

	return p
}

func settle(t *testing.T, p *spritefill.Polyfill) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Settle(ctx))
}

func query(doc *spritefill.Document, selector string) []*html.Node {
	return cascadia.QueryAll(doc.Root(), cascadia.MustCompile(selector))
}

func queryOne(t *testing.T, doc *spritefill.Document, selector string) *html.Node {
	t.Helper()

	nodes := query(doc, selector)
	require.Len(t, nodes, 1, "selector %q", selector)

	return nodes[0]
}

func link(n *html.Node) string {
	return dom.LinkValue(n)
}

func attr(n *html.Node, key string) string {
	v, _ := dom.Attr(n, key)
	return v
}

// recorder collects event names.
type recorder struct {
	mu     sync.Mutex
	events []*spritefill.Event
}

func (r *recorder) listen(ev *spritefill.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, ev)
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Name)
	}

	return out
}

func (r *recorder) count(name string) int {
	n := 0
	for _, got := range r.names() {
		if got == name {
			n++
		}
	}

	return n
}

// veto cancels every event named name.
func veto(name string) spritefill.Listener {
	return func(ev *spritefill.Event) {
		if ev.Name == name {
			ev.PreventDefault()
		}
	}
}

// logSink collects log output written from any goroutine.
type logSink struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *logSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.buf.Write(p)
}

func (s *logSink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.buf.String()
}

func (s *logSink) logger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(s, &slog.HandlerOptions{Level: level}))
}

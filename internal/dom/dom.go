// Package dom wraps an x/net/html tree with structural change notification,
// selector queries and the attribute helpers used by the resolver.
package dom

import (
	"bytes"
	"errors"
	"fmt"
	"hash/maphash"
	"io"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrNoElement is returned when a resource has no element to inline.
var ErrNoElement = errors.New("resource contains no element")

// Document is a host tree. Structural mutations made through its methods
// are announced on Changes; attribute writes are not.
type Document struct {
	root    *html.Node
	changes chan struct{}
}

// New wraps an existing tree.
func New(root *html.Node) *Document {
	return &Document{
		root:    root,
		changes: make(chan struct{}, 1),
	}
}

// Parse reads an HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	return New(root), nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Root returns the document node.
func (d *Document) Root() *html.Node {
	return d.root
}

// Changes delivers one pending signal per batch of structural mutations.
func (d *Document) Changes() <-chan struct{} {
	return d.changes
}

// Notify announces a structural mutation made outside the Document methods.
func (d *Document) Notify() {
	select {
	case d.changes <- struct{}{}:
	default:
	}
}

// AppendChild attaches child as the last child of parent.
func (d *Document) AppendChild(parent, child *html.Node) {
	parent.AppendChild(child)
	d.Notify()
}

// Prepend attaches child as the first child of parent.
func (d *Document) Prepend(parent, child *html.Node) {
	parent.InsertBefore(child, parent.FirstChild)
	d.Notify()
}

// Detach removes n from its parent. It reports false when n was not attached.
func (d *Document) Detach(n *html.Node) bool {
	if n == nil || n.Parent == nil {
		return false
	}

	n.Parent.RemoveChild(n)
	d.Notify()

	return true
}

// Render serializes the document.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// String renders the document, returning "" on error.
func (d *Document) String() string {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return ""
	}

	return buf.String()
}

// DocumentElement returns the <html> element, or the root when absent.
func (d *Document) DocumentElement() *html.Node {
	for c := d.root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}

	return d.root
}

// Body returns <body>, falling back to the document element.
func (d *Document) Body() *html.Node {
	if n := First(d.root, atom.Body); n != nil {
		return n
	}

	return d.DocumentElement()
}

// BaseHref returns the href of the first <base> element.
func (d *Document) BaseHref() (string, bool) {
	n := First(d.root, atom.Base)
	if n == nil {
		return "", false
	}

	return Attr(n, "href")
}

// First returns the first element in n's subtree with the given atom.
func First(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := First(c, a); found != nil {
			return found
		}
	}

	return nil
}

// Compile parses a CSS selector group such as "svg use".
func Compile(selector string) (cascadia.SelectorGroup, error) {
	sel, err := cascadia.ParseGroup(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}

	return sel, nil
}

// QueryAll returns the descendants of scope matching m in document order.
func QueryAll(scope *html.Node, m cascadia.Matcher) []*html.Node {
	return cascadia.QueryAll(scope, m)
}

// Contains reports whether n is ancestor or equal to other.
func Contains(n, other *html.Node) bool {
	for p := other; p != nil; p = p.Parent {
		if p == n {
			return true
		}
	}

	return false
}

var fingerprintSeed = maphash.MakeSeed()

// Fingerprint hashes the node identities of n's subtree. Any insertion,
// removal or move changes it; attribute writes do not.
func Fingerprint(n *html.Node) uint64 {
	var sum, depth uint64
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		sum = sum*31 + maphash.Comparable(fingerprintSeed, node) + depth
		depth++
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		depth--
	}
	walk(n)

	return sum
}

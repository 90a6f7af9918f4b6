package dom

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Attr returns the value of the un-namespaced attribute key.
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}

	return "", false
}

// SetAttr sets an un-namespaced attribute, adding it when missing.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// isXlinkHref matches xlink:href in both parser forms: namespaced inside
// foreign content and a literal key outside it.
func isXlinkHref(a html.Attribute) bool {
	return (a.Namespace == "xlink" && a.Key == "href") || (a.Namespace == "" && a.Key == "xlink:href")
}

// LinkValue returns href, falling back to xlink:href.
func LinkValue(n *html.Node) string {
	if v, ok := Attr(n, "href"); ok && v != "" {
		return v
	}
	for _, a := range n.Attr {
		if isXlinkHref(a) {
			return a.Val
		}
	}

	return ""
}

// SetLink overwrites whichever of href and xlink:href are present.
func SetLink(n *html.Node, val string) {
	for i, a := range n.Attr {
		if (a.Namespace == "" && a.Key == "href") || isXlinkHref(a) {
			n.Attr[i].Val = val
		}
	}
}

// hiddenStyle keeps an inlined resource out of layout.
var hiddenStyle = []string{
	"position:absolute",
	"overflow:hidden",
	"width:0",
	"height:0",
}

// Hide marks n as non-visual and non-interactive.
func Hide(n *html.Node) {
	SetAttr(n, "aria-hidden", "true")
	SetAttr(n, "focusable", "false")

	style, _ := Attr(n, "style")
	style = strings.TrimSpace(style)
	parts := make([]string, 0, len(hiddenStyle)+1)
	if style != "" {
		parts = append(parts, strings.TrimSuffix(style, ";"))
	}
	parts = append(parts, hiddenStyle...)
	SetAttr(n, "style", strings.Join(parts, ";"))
}

// ParseResource parses a fetched document and returns its root element,
// detached and ready to be inlined.
func ParseResource(data []byte) (*html.Node, error) {
	context := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}

	nodes, err := html.ParseFragment(bytes.NewReader(data), context)
	if err != nil {
		return nil, err
	}

	for _, n := range nodes {
		if n.Type == html.ElementNode {
			return n, nil
		}
	}

	return nil, ErrNoElement
}

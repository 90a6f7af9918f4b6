// Package address normalizes reference strings into cache keys.
package address

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Reference is a parsed external fragment reference.
type Reference struct {
	Raw      string // the reference as written on the consumer
	Address  string // resolved address without fragment; empty for same-document refs
	Fragment string // text after the first '#', verbatim
	Origin   string // scheme://host of Address, empty when scheme-less
}

// SameDocument reports whether the reference points into the host document.
func (r Reference) SameDocument() bool {
	return r.Address == ""
}

// Parse splits ref on the first '#' and resolves the address part against base.
// A nil base leaves relative references relative; dot segments are still
// removed so equal documents yield equal addresses.
func Parse(base *url.URL, ref string) (Reference, error) {
	addr, fragment, _ := strings.Cut(ref, "#")

	result := Reference{Raw: ref, Fragment: fragment}
	if addr == "" {
		return result, nil
	}

	u, err := url.Parse(addr)
	if err != nil {
		return Reference{}, fmt.Errorf("invalid reference %q: %w", ref, err)
	}

	switch {
	case base != nil:
		u = base.ResolveReference(u)
	case u.IsAbs():
		u = u.ResolveReference(u)
	default:
		cleanRelative(u)
	}
	u.Fragment = ""
	u.RawFragment = ""

	result.Address = u.String()
	result.Origin = Origin(u)

	return result, nil
}

// cleanRelative removes dot segments from a relative reference without
// anchoring it, so "./x.svg", "a/../x.svg" and "x.svg" share one key.
func cleanRelative(u *url.URL) {
	if u.Path == "" || u.Host != "" {
		return
	}
	u.Path = path.Clean(u.Path)
	u.RawPath = ""
}

// Origin returns scheme://host for u, or "" when u has no scheme.
func Origin(u *url.URL) string {
	if u == nil || u.Scheme == "" {
		return ""
	}

	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

// ParseBase parses a document base URL. An empty string yields nil.
func ParseBase(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", raw, err)
	}

	return u, nil
}

// Rebase resolves href (typically a <base href>) against base.
func Rebase(base *url.URL, href string) (*url.URL, error) {
	u, err := url.Parse(href)
	if err != nil {
		return nil, fmt.Errorf("invalid base href %q: %w", href, err)
	}
	if base == nil {
		return u, nil
	}

	return base.ResolveReference(u), nil
}

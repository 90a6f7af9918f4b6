package resolver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/afero"
)

// SubResolver fetches addresses of the schemes it is registered for.
// Implementations must be safe for concurrent use.
type SubResolver interface {
	// Resolve returns the content stored at address.
	Resolve(ctx context.Context, address string) ([]byte, error)
}

// CompositeResolver delegates resolution to sub-resolvers based on scheme.
// Scheme-less addresses are treated as file paths.
type CompositeResolver struct {
	resolvers map[string]SubResolver
}

// Option configures the default sub-resolvers.
type Option func(*HTTPResolver)

// WithClient sets the HTTP client.
func WithClient(c *http.Client) Option {
	return func(r *HTTPResolver) {
		if c != nil {
			r.Client = c
		}
	}
}

// WithMaxSize bounds the size of a fetched document, for files and http alike.
func WithMaxSize(n int64) Option {
	return func(r *HTTPResolver) {
		if n > 0 {
			r.MaxSize = n
		}
	}
}

// WithUserAgent sets the User-Agent request header.
func WithUserAgent(ua string) Option {
	return func(r *HTTPResolver) {
		r.UserAgent = ua
	}
}

// New creates a new CompositeResolver with default sub-resolvers.
// If fs is nil, the OS filesystem is used for file resolution.
func New(fs afero.Fs, opts ...Option) *CompositeResolver {
	cr := &CompositeResolver{
		resolvers: make(map[string]SubResolver),
	}
	httpResolver := NewHTTPResolver()
	for _, opt := range opts {
		opt(httpResolver)
	}

	fileResolver := NewFileResolver(fs)
	fileResolver.MaxSize = httpResolver.MaxSize
	cr.Register("file", fileResolver)
	cr.Register("http", httpResolver)
	cr.Register("https", httpResolver)

	return cr
}

// Register registers a sub-resolver for a given scheme.
func (r *CompositeResolver) Register(scheme string, resolver SubResolver) {
	r.resolvers[strings.ToLower(scheme)] = resolver
}

// Resolve delegates resolution to the appropriate sub-resolver.
func (r *CompositeResolver) Resolve(ctx context.Context, address string) ([]byte, error) {
	if address == "" {
		return nil, fmt.Errorf("empty address")
	}

	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", address, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "file"
	}

	resolver, ok := r.resolvers[scheme]
	if !ok {
		return nil, fmt.Errorf("unsupported scheme: %s", scheme)
	}

	return resolver.Resolve(ctx, address)
}

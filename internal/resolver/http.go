package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// defaultMaxSize bounds a fetched document.
const defaultMaxSize = 16 * 1024 * 1024

// ErrTooLarge is returned when a document exceeds the configured size limit.
var ErrTooLarge = errors.New("document exceeds maximum size")

// StatusError reports a response other than 200 OK.
type StatusError struct {
	Address    string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s failed with status: %d", e.Address, e.StatusCode)
}

// HTTPResolver resolves http:// and https:// addresses with a plain GET.
type HTTPResolver struct {
	Client    *http.Client
	MaxSize   int64 // Max size in bytes to read (default: 16MB)
	UserAgent string
}

// NewHTTPResolver creates a new HTTPResolver.
func NewHTTPResolver() *HTTPResolver {
	return &HTTPResolver{
		Client:  http.DefaultClient,
		MaxSize: defaultMaxSize,
	}
}

// Resolve fetches content from the given address using an HTTP GET request.
func (r *HTTPResolver) Resolve(ctx context.Context, address string) ([]byte, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", address, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme for http resolver: %s", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "image/svg+xml, application/xml;q=0.9, */*;q=0.8")
	if r.UserAgent != "" {
		req.Header.Set("User-Agent", r.UserAgent)
	}

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Address: address, StatusCode: resp.StatusCode}
	}

	return readLimited(resp.Body, r.MaxSize)
}

// readLimited reads r fully, failing with ErrTooLarge beyond limit bytes.
// A non-positive limit means defaultMaxSize.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = defaultMaxSize
	}

	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}

	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w of %d bytes", ErrTooLarge, limit)
	}

	return data, nil
}

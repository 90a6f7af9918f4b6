package resolver

import (
	"context"
	"fmt"
	"net/url"

	"github.com/spf13/afero"
)

// FileResolver resolves file:// URLs and bare paths.
type FileResolver struct {
	fs      afero.Fs
	MaxSize int64 // Max size in bytes to read (default: 16MB)
}

// NewFileResolver creates a new FileResolver. A nil fs means the OS filesystem.
func NewFileResolver(fs afero.Fs) *FileResolver {
	if fs == nil {
		fs = afero.NewOsFs()
	}

	return &FileResolver{fs: fs, MaxSize: defaultMaxSize}
}

// Resolve reads the file at the given address.
// Supports file:///abs/path, file://relative/path and bare paths.
func (r *FileResolver) Resolve(ctx context.Context, address string) ([]byte, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", address, err)
	}

	var path string
	switch u.Scheme {
	case "":
		path = u.Path
	case "file":
		path = u.Path
		if u.Host != "" && u.Host != "localhost" {
			// file://relative/path: Host holds the first segment
			path = u.Host + u.Path
		}
	default:
		return nil, fmt.Errorf("unsupported scheme for file resolver: %s", u.Scheme)
	}

	if path == "" {
		return nil, fmt.Errorf("empty file path in address: %s", address)
	}

	// Check context before reading
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := r.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return readLimited(f, r.MaxSize)
}

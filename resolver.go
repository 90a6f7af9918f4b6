package spritefill

import "context"

// Resolver fetches the document at an address.
// It is used to mock fetching in tests or provide custom transports.
// Implementations MUST be safe for concurrent use by multiple goroutines.
type Resolver interface {
	// Resolve returns the content stored at address.
	Resolve(ctx context.Context, address string) ([]byte, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, address string) ([]byte, error)

// Resolve calls f(ctx, address).
func (f ResolverFunc) Resolve(ctx context.Context, address string) ([]byte, error) {
	return f(ctx, address)
}

package spritefill

import (
	"errors"

	"github.com/arloliu/spritefill/internal/config"
)

var (
	// ErrNilDocument is returned by Build when no document was given.
	ErrNilDocument = errors.New("document must not be nil")

	// ErrDestroyed is returned by operations on a destroyed Polyfill.
	ErrDestroyed = errors.New("polyfill destroyed")

	// ErrRunning is returned by Start when the Polyfill is already started.
	ErrRunning = errors.New("polyfill already running")
)

// FetchError reports a failed or unparseable resource fetch.
type FetchError struct {
	Address string
	Err     error
}

func (e *FetchError) Error() string {
	return "failed to fetch " + e.Address + ": " + e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FieldError represents an error that occurred while processing a config field.
type FieldError = config.FieldError

// ValidationError wraps validation errors from the validator package.
type ValidationError = config.ValidationError

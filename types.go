package spritefill

import (
	"io"

	"github.com/arloliu/spritefill/internal/config"
	"github.com/arloliu/spritefill/internal/dom"
	"github.com/arloliu/spritefill/internal/event"
	"github.com/arloliu/spritefill/internal/frame"
	"github.com/spf13/afero"
	"golang.org/x/net/html"
)

// Document is a host tree whose structural mutations are observable.
type Document = dom.Document

// ParseDocument reads an HTML document.
func ParseDocument(r io.Reader) (*Document, error) {
	return dom.Parse(r)
}

// NewDocument wraps an already parsed tree.
func NewDocument(root *html.Node) *Document {
	return dom.New(root)
}

// Config is the file-loadable resolver configuration.
type Config = config.Config

// ByteSize is a byte count that unmarshals from strings like "16MiB".
type ByteSize = config.ByteSize

// Duration is a time.Duration that unmarshals from strings like "30s".
type Duration = config.Duration

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return config.Default()
}

// LoadConfig reads a YAML or JSON config file, applying defaults,
// SPRITEFILL_* environment overrides and validation.
func LoadConfig(path string) (Config, error) {
	return config.Load(path)
}

// LoadConfigFs is LoadConfig reading path from fs.
func LoadConfigFs(fs afero.Fs, path string) (Config, error) {
	return config.Load(path, config.WithFs(fs))
}

// Event is a dispatched lifecycle event.
type Event = event.Event

// Listener observes lifecycle events and may veto them with PreventDefault.
// Listeners run on the engine turn and must not call back into the Polyfill.
type Listener = event.Listener

// Lifecycle event payloads.
type (
	LoadDetail   = event.LoadDetail
	ApplyDetail  = event.ApplyDetail
	InsertDetail = event.InsertDetail
	RevokeDetail = event.RevokeDetail
	RemoveDetail = event.RemoveDetail
	ErrorDetail  = event.ErrorDetail
)

// Lifecycle event names.
const (
	EventLoad   = event.Load
	EventApply  = event.Apply
	EventInsert = event.Insert
	EventRevoke = event.Revoke
	EventRemove = event.Remove
	EventError  = event.Error
)

// Scheduler defers tree mutations to the next frame.
// Implementations must run tasks only from Schedule or Drain.
type Scheduler = frame.Scheduler

// FrameQueue is the default Scheduler.
type FrameQueue = frame.Queue

// NewFrameQueue creates an empty FrameQueue.
func NewFrameQueue() *FrameQueue {
	return frame.NewQueue()
}

// Immediate is a Scheduler running every mutation synchronously.
type Immediate = frame.Immediate

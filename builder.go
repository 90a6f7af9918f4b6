package spritefill

import (
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/arloliu/spritefill/internal/address"
	"github.com/arloliu/spritefill/internal/cache"
	"github.com/arloliu/spritefill/internal/config"
	"github.com/arloliu/spritefill/internal/dom"
	"github.com/arloliu/spritefill/internal/event"
	"github.com/arloliu/spritefill/internal/frame"
	"github.com/arloliu/spritefill/internal/resolver"
	"github.com/spf13/afero"
	"golang.org/x/net/html"
)

// settings is the immutable resolver configuration a Polyfill runs with.
type settings struct {
	target        string
	targets       []*html.Node
	context       string
	root          string
	crossDomain   bool
	namespace     string
	agents        []string
	userAgent     string
	always        bool
	baseURL       string
	timeout       time.Duration
	maxSize       int64
	frameInterval time.Duration
	watch         bool
	debounce      time.Duration
	poll          time.Duration
}

func settingsFrom(cfg config.Config) settings {
	return settings{
		target:        cfg.Target,
		context:       cfg.Context,
		root:          cfg.Root,
		crossDomain:   cfg.CrossDomain,
		namespace:     cfg.Namespace,
		agents:        append([]string(nil), cfg.Agents...),
		userAgent:     cfg.UserAgent,
		always:        cfg.Always,
		baseURL:       cfg.BaseURL,
		timeout:       cfg.Timeout.Duration(),
		maxSize:       cfg.MaxSize.Int64(),
		frameInterval: cfg.FrameInterval.Duration(),
		watch:         cfg.Watch.Enabled,
		debounce:      cfg.Watch.Debounce.Duration(),
		poll:          cfg.Watch.Poll.Duration(),
	}
}

// New creates a Builder for a Polyfill over doc, starting from DefaultConfig.
func New(doc *Document) *Builder {
	return &Builder{
		doc:      doc,
		settings: settingsFrom(config.Default()),
	}
}

// Builder provides a fluent API for constructing a Polyfill.
type Builder struct {
	doc       *Document
	settings  settings
	resolver  Resolver
	fs        afero.Fs
	client    *http.Client
	scheduler Scheduler
	logger    *slog.Logger
	listeners []Listener
	err       error
}

// WithConfig replaces every file-configurable setting with cfg.
// Explicit targets set with WithTargets are kept.
func (b *Builder) WithConfig(cfg Config) *Builder {
	if err := config.Validate(cfg); err != nil {
		b.err = err
		return b
	}

	targets := b.settings.targets
	b.settings = settingsFrom(cfg)
	b.settings.targets = targets

	return b
}

// WithTarget sets the selector identifying consumer elements.
// Default is "svg use".
func (b *Builder) WithTarget(selector string) *Builder {
	b.settings.target = selector
	b.settings.targets = nil

	return b
}

// WithTargets sets an explicit consumer collection instead of a selector.
// Only targets inside the scan context are processed.
func (b *Builder) WithTargets(nodes ...*html.Node) *Builder {
	b.settings.targets = append([]*html.Node(nil), nodes...)

	return b
}

// WithContext sets the selector of the subtree scanned for consumers.
// Default is the document <body>.
func (b *Builder) WithContext(selector string) *Builder {
	b.settings.context = selector

	return b
}

// WithRoot sets the selector of the node resources are inlined into.
// Default is the document <body>.
func (b *Builder) WithRoot(selector string) *Builder {
	b.settings.root = selector

	return b
}

// WithCrossDomain treats references to another origin as eligible even when
// the user agent does not require resolution. Default is true.
func (b *Builder) WithCrossDomain(enabled bool) *Builder {
	b.settings.crossDomain = enabled

	return b
}

// WithNamespace sets the lifecycle event type prefix.
// Default is "external-svg-polyfill".
func (b *Builder) WithNamespace(namespace string) *Builder {
	b.settings.namespace = namespace

	return b
}

// WithAgents replaces the user agent patterns requiring resolution.
func (b *Builder) WithAgents(patterns ...string) *Builder {
	b.settings.agents = append([]string(nil), patterns...)

	return b
}

// WithUserAgent sets the user agent the output is rendered for.
// It is matched against the agent patterns and sent on HTTP fetches.
func (b *Builder) WithUserAgent(ua string) *Builder {
	b.settings.userAgent = ua

	return b
}

// WithAlways resolves every external reference regardless of user agent.
func (b *Builder) WithAlways(enabled bool) *Builder {
	b.settings.always = enabled

	return b
}

// WithBaseURL sets the document address relative references resolve against.
// A <base href> in the document is resolved against it.
func (b *Builder) WithBaseURL(base string) *Builder {
	b.settings.baseURL = base

	return b
}

// WithResolver sets a custom resolver for fetching resources.
// The default resolver supports file://, http://, https:// and plain paths.
func (b *Builder) WithResolver(r Resolver) *Builder {
	b.resolver = r

	return b
}

// WithFilesystem sets the filesystem the default resolver reads files from.
// Ignored when WithResolver is used.
func (b *Builder) WithFilesystem(fs afero.Fs) *Builder {
	b.fs = fs

	return b
}

// WithHTTPClient sets the client the default resolver fetches with.
// Ignored when WithResolver is used.
func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.client = c

	return b
}

// WithMaxSize bounds a document fetched over HTTP. Default is 16MiB.
func (b *Builder) WithMaxSize(n int64) *Builder {
	b.settings.maxSize = n

	return b
}

// WithTimeout bounds every fetch. Default is 30 seconds, 0 disables it.
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.settings.timeout = timeout

	return b
}

// WithScheduler sets the frame scheduler. Default is a FrameQueue.
func (b *Builder) WithScheduler(s Scheduler) *Builder {
	b.scheduler = s

	return b
}

// WithFrameInterval sets how often queued mutations are flushed.
// Default is 16ms; 0 disables the frame loop so only Flush and Settle drain.
func (b *Builder) WithFrameInterval(interval time.Duration) *Builder {
	b.settings.frameInterval = interval

	return b
}

// WithLogger sets the structured logger. Default discards everything.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger

	return b
}

// WithListener registers fn for every lifecycle event.
func (b *Builder) WithListener(fn Listener) *Builder {
	if fn != nil {
		b.listeners = append(b.listeners, fn)
	}

	return b
}

// WithWatch enables or disables re-scanning on document changes.
// Default is true.
func (b *Builder) WithWatch(enabled bool) *Builder {
	b.settings.watch = enabled

	return b
}

// WithPollInterval additionally re-scans when the scanned subtree changed
// without notification. Default is 0 (no polling).
func (b *Builder) WithPollInterval(interval time.Duration) *Builder {
	b.settings.poll = interval

	return b
}

// WithDebounceInterval coalesces change notifications within interval.
// Default is 10ms.
func (b *Builder) WithDebounceInterval(interval time.Duration) *Builder {
	b.settings.debounce = interval

	return b
}

// Apply applies a configuration function to the builder.
// This enables reusable configuration bundles:
//
//	var legacy = func(b *spritefill.Builder) {
//	    b.WithAlways(true).WithNamespace("legacy")
//	}
//	p, _ := spritefill.New(doc).Apply(legacy).Build()
func (b *Builder) Apply(fn Option) *Builder {
	if fn != nil {
		fn(b)
	}

	return b
}

// Build creates the Polyfill with the configured options.
// Returns an error if the document is nil or a selector, agent pattern or
// base URL is invalid.
func (b *Builder) Build() (*Polyfill, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.doc == nil {
		return nil, ErrNilDocument
	}

	s := b.settings

	var matcher cascadia.Matcher
	if s.targets == nil {
		sel, err := dom.Compile(s.target)
		if err != nil {
			return nil, fmt.Errorf("target: %w", err)
		}
		matcher = sel
	}

	contextSel, err := compileOptional(s.context)
	if err != nil {
		return nil, fmt.Errorf("context: %w", err)
	}
	rootSel, err := compileOptional(s.root)
	if err != nil {
		return nil, fmt.Errorf("root: %w", err)
	}

	agents := make([]*regexp.Regexp, 0, len(s.agents))
	for _, pattern := range s.agents {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid agent pattern %q: %w", pattern, err)
		}
		agents = append(agents, re)
	}

	base, err := address.ParseBase(s.baseURL)
	if err != nil {
		return nil, err
	}

	res := b.resolver
	if res == nil {
		res = resolver.New(b.fs,
			resolver.WithClient(b.client),
			resolver.WithMaxSize(s.maxSize),
			resolver.WithUserAgent(s.userAgent),
		)
	}

	sched := b.scheduler
	if sched == nil {
		sched = frame.NewQueue()
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	gateway := event.NewGateway(s.namespace)
	for _, fn := range b.listeners {
		gateway.ListenAll(fn)
	}

	idle := make(chan struct{})
	close(idle)

	return &Polyfill{
		doc:      b.doc,
		settings: s,
		matcher:  matcher,
		context:  contextSel,
		rootSel:  rootSel,
		agents:   agents,
		base:     base,
		resolver: res,
		sched:    sched,
		logger:   logger,
		gateway:  gateway,
		cache:    cache.New(),
		applying: make(map[*html.Node]struct{}),
		idle:     idle,
	}, nil
}

func compileOptional(selector string) (cascadia.Matcher, error) {
	if selector == "" {
		return nil, nil
	}

	return dom.Compile(selector)
}

// Attach builds a Polyfill over doc with opts applied and starts it.
func Attach(doc *Document, opts ...Option) (*Polyfill, error) {
	b := New(doc)
	for _, opt := range opts {
		b.Apply(opt)
	}

	p, err := b.Build()
	if err != nil {
		return nil, err
	}

	if err := p.Start(); err != nil {
		return nil, err
	}

	return p, nil
}

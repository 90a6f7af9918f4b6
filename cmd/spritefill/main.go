// Command spritefill inlines the external SVG sprite sheets referenced by an
// HTML document and rewrites each reference to point at the inlined copy.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sugawarayuuta/sonnet"
	"sigs.k8s.io/yaml"

	"github.com/arloliu/spritefill"
	"github.com/arloliu/spritefill/internal/config"
	"github.com/arloliu/spritefill/policy"
	"github.com/arloliu/spritefill/watcher"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

type options struct {
	configPath string
	envFiles   []string
	envPrefix  string
	envForce   bool
	output     string
	base       string
	force      bool
	userAgent  string
	engine     string
	deny       []string
	report     string
	watch      bool
	timeout    time.Duration
	verbose    bool
	version    bool
	input      string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	o := &options{}

	fs := flag.NewFlagSet("spritefill", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "YAML or JSON configuration file")
	fs.Func("env-file", "dotenv file loaded before environment overrides (repeatable)", func(s string) error {
		o.envFiles = append(o.envFiles, s)
		return nil
	})
	fs.StringVar(&o.envPrefix, "env-prefix", config.DefaultEnvPrefix, "Prefix of environment overrides")
	fs.BoolVar(&o.envForce, "env-override", false, "Let -env-file values replace variables already set")
	fs.StringVar(&o.output, "o", "stdout", "Output target: file path or \"stdout\"")
	fs.StringVar(&o.base, "base", "", "Address of the input document")
	fs.BoolVar(&o.force, "force", false, "Resolve references regardless of the user agent")
	fs.StringVar(&o.userAgent, "user-agent", "", "User agent the output is rendered for")
	fs.StringVar(&o.engine, "policy", "", "Policy engine for -deny: expr, cel or js")
	fs.Func("deny", "Veto policy evaluated on every lifecycle event (repeatable)", func(s string) error {
		o.deny = append(o.deny, s)
		return nil
	})
	fs.StringVar(&o.report, "report", "", "Write a cache report to stderr: json or yaml")
	fs.BoolVar(&o.watch, "watch", false, "Re-render whenever the input or configuration changes")
	fs.DurationVar(&o.timeout, "timeout", 0, "Per-fetch timeout, overrides the configuration")
	fs.BoolVar(&o.verbose, "v", false, "Log lifecycle events")
	fs.BoolVar(&o.version, "version", false, "Print version and exit")

	fs.Usage = func() {
		_, _ = fmt.Fprint(stderr, "Usage: spritefill [flags] <input.html | ->\n\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if o.version {
		return o, nil
	}

	switch o.report {
	case "", "json", "yaml":
	default:
		return nil, fmt.Errorf("unknown report format %q", o.report)
	}

	if fs.NArg() != 1 {
		fs.Usage()
		return nil, errors.New("exactly one input is required")
	}
	o.input = fs.Arg(0)

	if o.watch && o.input == "-" {
		return nil, errors.New("-watch requires an input file")
	}

	return o, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	if o.version {
		_, _ = fmt.Fprintln(stdout, "spritefill "+version)

		return nil
	}

	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}

	r := &renderer{opts: o, cfg: cfg, logger: logger, stdin: stdin, stdout: stdout, stderr: stderr}
	if err := r.render(ctx); err != nil {
		return err
	}

	if !o.watch {
		return nil
	}

	return r.watch(ctx)
}

func loadConfig(o *options) (config.Config, error) {
	loadOpts := []config.Option{}
	if o.envPrefix != "" {
		loadOpts = append(loadOpts, config.WithEnvPrefix(o.envPrefix))
	}
	if len(o.envFiles) > 0 {
		loadOpts = append(loadOpts, config.WithDotenv(o.envFiles...))
	}
	if o.envForce {
		loadOpts = append(loadOpts, config.WithDotenvOverride())
	}

	cfg, err := config.Load(o.configPath, loadOpts...)
	if err != nil {
		return config.Config{}, err
	}

	if o.base != "" {
		cfg.BaseURL = o.base
	}
	if cfg.BaseURL == "" && o.input != "" && o.input != "-" {
		base, err := fileBase(o.input)
		if err != nil {
			return config.Config{}, err
		}
		cfg.BaseURL = base
	}
	if o.force {
		cfg.Always = true
	}
	if o.userAgent != "" {
		cfg.UserAgent = o.userAgent
	}
	if o.timeout > 0 {
		cfg.Timeout = config.Duration(o.timeout)
	}
	if o.engine != "" {
		cfg.Policy.Engine = o.engine
	}
	cfg.Policy.Deny = append(cfg.Policy.Deny, o.deny...)

	// A one-shot render settles explicitly; nothing observes the tree.
	cfg.Watch.Enabled = false
	cfg.FrameInterval = 0

	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}

	return cfg, nil
}

// fileBase returns the file:// address of path, so references in the page
// resolve next to it rather than against the working directory.
func fileBase(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving input path: %w", err)
	}

	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}

type renderer struct {
	opts   *options
	cfg    config.Config
	logger *slog.Logger
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func (r *renderer) readInput() ([]byte, error) {
	if r.opts.input == "-" {
		return io.ReadAll(r.stdin)
	}

	return os.ReadFile(r.opts.input)
}

func (r *renderer) render(ctx context.Context) error {
	data, err := r.readInput()
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	doc, err := spritefill.ParseDocument(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parsing input: %w", err)
	}

	listeners, err := policy.FromConfig(r.cfg, policy.WithLogger(r.logger))
	if err != nil {
		return err
	}

	p, err := spritefill.New(doc).
		WithConfig(r.cfg).
		WithLogger(r.logger).
		Apply(spritefill.WithListeners(listeners...)).
		Build()
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	p.ListenAll(func(ev *spritefill.Event) {
		if ev.Name != spritefill.EventError {
			return
		}
		if d, ok := ev.Detail.(spritefill.ErrorDetail); ok {
			r.logger.Warn("reference not resolved", "address", d.Address, "error", d.Err)
		}
	})

	if err := p.Start(); err != nil {
		return err
	}
	if err := p.Settle(ctx); err != nil {
		return err
	}

	if err := r.write(doc); err != nil {
		return err
	}

	if r.opts.report != "" {
		return writeReport(r.stderr, r.opts.report, p.Report())
	}

	return nil
}

func (r *renderer) write(doc *spritefill.Document) error {
	if r.opts.output == "" || r.opts.output == "stdout" {
		return doc.Render(r.stdout)
	}

	var buf bytes.Buffer
	if err := doc.Render(&buf); err != nil {
		return err
	}

	if err := os.WriteFile(r.opts.output, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	return nil
}

func (r *renderer) watch(ctx context.Context) error {
	files := []string{r.opts.input}
	if r.opts.configPath != "" {
		files = append(files, r.opts.configPath)
	}

	w, err := watcher.New().
		WithFiles(files...).
		WithDebounceInterval(200 * time.Millisecond).
		Build()
	if err != nil {
		return err
	}

	err = w.Watch(func() {
		if r.opts.configPath != "" {
			cfg, err := loadConfig(r.opts)
			if err != nil {
				r.logger.Error("reloading configuration failed", "error", err)
				return
			}
			r.cfg = cfg
		}
		if err := r.render(ctx); err != nil {
			r.logger.Error("render failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	defer w.Stop()

	r.logger.Info("watching for changes", "files", strings.Join(files, ","))
	<-ctx.Done()

	return nil
}

func writeReport(w io.Writer, format string, report spritefill.Report) error {
	var (
		data []byte
		err  error
	)

	switch format {
	case "yaml":
		data, err = yaml.Marshal(report)
	default:
		data, err = sonnet.Marshal(report)
		if err == nil {
			data = append(data, '\n')
		}
	}
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	_, err = w.Write(data)

	return err
}

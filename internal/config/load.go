package config

import (
	"bytes"
	"fmt"
	"os"
	"reflect"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
	kyaml "sigs.k8s.io/yaml"
)

// DefaultEnvPrefix prefixes every `env` tag.
const DefaultEnvPrefix = "SPRITEFILL_"

// Loader reads a Config from a file or bytes.
type Loader struct {
	fs             afero.Fs
	envPrefix      string
	dotenvFiles    []string
	dotenvOverride bool
	validator      *validator.Validate
}

// Option configures a Loader.
type Option func(*Loader)

// WithFs sets the filesystem config files are read from.
func WithFs(fs afero.Fs) Option {
	return func(l *Loader) {
		if fs != nil {
			l.fs = fs
		}
	}
}

// WithEnvPrefix replaces DefaultEnvPrefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithDotenv loads the given .env files into the process environment
// before env overrides are applied. Missing files are ignored.
func WithDotenv(files ...string) Option {
	return func(l *Loader) {
		l.dotenvFiles = append(l.dotenvFiles, files...)
	}
}

// WithDotenvOverride lets .env values replace variables already set.
func WithDotenvOverride() Option {
	return func(l *Loader) {
		l.dotenvOverride = true
	}
}

// NewLoader creates a Loader reading from the OS filesystem.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		fs:        afero.NewOsFs(),
		envPrefix: DefaultEnvPrefix,
		validator: validator.New(),
	}
	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Load reads the file at path. An empty path yields defaults plus env overrides.
func (l *Loader) Load(path string) (Config, error) {
	if path == "" {
		return l.LoadBytes(nil, "")
	}

	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return l.LoadBytes(data, path)
}

// LoadBytes parses data as JSON (when it starts with '{') or YAML.
// Processing order: dotenv, defaults, source, env overrides, validation.
func (l *Loader) LoadBytes(data []byte, name string) (Config, error) {
	if name == "" {
		name = "bytes"
	}

	if err := l.loadDotenvFiles(); err != nil {
		return Config{}, fmt.Errorf("failed to load dotenv files: %w", err)
	}

	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to apply defaults: %w", err)
	}

	if err := unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal %s: %w", name, err)
	}

	if err := applyEnv(reflect.ValueOf(&cfg), l.envPrefix); err != nil {
		return Config{}, err
	}

	if err := l.validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (l *Loader) validate(cfg Config) error {
	if err := l.validator.Struct(cfg); err != nil {
		return &ValidationError{Errors: []error{err}}
	}

	return nil
}

// loadDotenvFiles loads the configured dotenv files that exist on disk.
func (l *Loader) loadDotenvFiles() error {
	files := filterExistingFiles(l.dotenvFiles)
	if len(files) == 0 {
		return nil
	}

	if l.dotenvOverride {
		return godotenv.Overload(files...)
	}

	return godotenv.Load(files...)
}

// filterExistingFiles returns only files that exist on disk.
// Missing files are silently ignored to support optional .env.local patterns.
func filterExistingFiles(files []string) []string {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}

	return existing
}

func unmarshal(data []byte, cfg *Config) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}

	if trimmed[0] == '{' {
		return kyaml.Unmarshal(trimmed, cfg)
	}

	return yaml.Unmarshal(trimmed, cfg)
}

// Load reads a config file with a default Loader.
func Load(path string, opts ...Option) (Config, error) {
	return NewLoader(opts...).Load(path)
}

// LoadBytes parses config data with a default Loader.
func LoadBytes(data []byte, opts ...Option) (Config, error) {
	return NewLoader(opts...).LoadBytes(data, "")
}

// Default returns the built-in configuration without env overrides.
func Default() Config {
	var cfg Config
	defaults.MustSet(&cfg)

	return cfg
}

// Validate checks cfg against its validate tags.
func Validate(cfg Config) error {
	return NewLoader().validate(cfg)
}

// Package config defines the resolver configuration and loads it from
// YAML or JSON files with defaults, environment overrides and validation.
package config

import "time"

// DefaultAgents match user agents that cannot dereference external
// <use> references.
var DefaultAgents = []string{
	`(?i)msie|trident`,
	`(?i)edge/12`,
	`(?i)ucbrowser/11`,
}

// Config is the immutable resolver configuration.
type Config struct {
	// Target is the selector identifying consumer elements.
	Target string `yaml:"target" json:"target" env:"TARGET" default:"svg use" validate:"required"`
	// Context is the selector of the subtree scanned for consumers. Empty means <body>.
	Context string `yaml:"context" json:"context" env:"CONTEXT"`
	// Root is the selector of the node resources are inlined into. Empty means <body>.
	Root string `yaml:"root" json:"root" env:"ROOT"`
	// CrossDomain treats cross-origin references as eligible.
	CrossDomain bool `yaml:"crossdomain" json:"crossdomain" env:"CROSSDOMAIN" default:"true"`
	// Namespace prefixes lifecycle event types.
	Namespace string `yaml:"namespace" json:"namespace" env:"NAMESPACE" default:"external-svg-polyfill" validate:"required"`
	// Agents are regular expressions matched against UserAgent.
	Agents []string `yaml:"agents" json:"agents" env:"AGENTS"`
	// UserAgent identifies the environment the output is rendered for.
	UserAgent string `yaml:"userAgent" json:"userAgent" env:"USER_AGENT"`
	// Always resolves every external reference regardless of UserAgent.
	Always bool `yaml:"always" json:"always" env:"ALWAYS"`
	// BaseURL is the document address relative references resolve against.
	BaseURL string `yaml:"baseURL" json:"baseURL" env:"BASE_URL" validate:"omitempty,uri"`

	Timeout       Duration `yaml:"timeout" json:"timeout" env:"TIMEOUT" validate:"gte=0"`
	MaxSize       ByteSize `yaml:"maxSize" json:"maxSize" env:"MAX_SIZE" validate:"gte=0"`
	FrameInterval Duration `yaml:"frameInterval" json:"frameInterval" env:"FRAME_INTERVAL" validate:"gte=0"`

	Watch  WatchConfig  `yaml:"watch" json:"watch"`
	Policy PolicyConfig `yaml:"policy" json:"policy"`
}

// WatchConfig controls tree observation.
type WatchConfig struct {
	Enabled  bool     `yaml:"enabled" json:"enabled" env:"WATCH" default:"true"`
	Debounce Duration `yaml:"debounce" json:"debounce" env:"WATCH_DEBOUNCE" validate:"gte=0"`
	Poll     Duration `yaml:"poll" json:"poll" env:"WATCH_POLL" validate:"gte=0"`
}

// PolicyConfig lists veto expressions applied to lifecycle events.
type PolicyConfig struct {
	Engine string   `yaml:"engine" json:"engine" env:"POLICY_ENGINE" default:"expr" validate:"oneof=expr cel js"`
	Deny   []string `yaml:"deny" json:"deny" env:"POLICY_DENY"`
}

// SetDefaults fills the duration and size fields; called by defaults.Set.
func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = Duration(30 * time.Second)
	}
	if c.MaxSize == 0 {
		c.MaxSize = ByteSize(16 << 20)
	}
	if c.FrameInterval == 0 {
		c.FrameInterval = Duration(16 * time.Millisecond)
	}
	if c.Agents == nil {
		c.Agents = append([]string(nil), DefaultAgents...)
	}
}

// SetDefaults fills the debounce interval; called by defaults.Set.
func (w *WatchConfig) SetDefaults() {
	if w.Debounce == 0 {
		w.Debounce = Duration(10 * time.Millisecond)
	}
}

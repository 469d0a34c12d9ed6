// Package config loads the runtime settings of the koala command.
//
// A configuration file may be written as YAML, TOML or JSON; the format is
// picked from the file extension. Zero values are replaced by defaults
// before validation.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog"

	"github.com/entrhq/koala/pkg/navigation"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultBrowser                = "chromium"
	DefaultWidth                  = 1280
	DefaultHeight                 = 720
	DefaultLogLevel               = "info"
	DefaultMaxLineBytes           = 4 << 20
	DefaultCallbackTimeoutSeconds = 30
)

// ErrUnsupportedConfig is returned for files whose extension names no
// known format.
var ErrUnsupportedConfig = errors.New("unsupported config format")

// Viewport is the initial size of opened frames.
type Viewport struct {
	Width  int `json:"width" yaml:"width" toml:"width"`
	Height int `json:"height" yaml:"height" toml:"height"`
}

// Config holds the runtime parameters of a koala process.
type Config struct {
	Browser  string   `json:"browser" yaml:"browser" toml:"browser"`
	Headless *bool    `json:"headless,omitempty" yaml:"headless,omitempty" toml:"headless,omitempty"`
	Viewport Viewport `json:"viewport" yaml:"viewport" toml:"viewport"`

	// BlockedURLs are glob patterns of addresses pages may never request.
	// A missing list selects the navigation defaults, an empty one blocks
	// nothing.
	BlockedURLs []string `json:"blocked_urls" yaml:"blocked_urls" toml:"blocked_urls"`

	LogLevel               string `json:"log_level" yaml:"log_level" toml:"log_level"`
	MaxLineBytes           int    `json:"max_line_bytes" yaml:"max_line_bytes" toml:"max_line_bytes"`
	MetricsAddr            string `json:"metrics_addr" yaml:"metrics_addr" toml:"metrics_addr"`
	CallbackTimeoutSeconds int    `json:"callback_timeout_seconds" yaml:"callback_timeout_seconds" toml:"callback_timeout_seconds"`
}

// Default returns a configuration with every default applied.
func Default() Config {
	var cfg Config
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Browser == "" {
		c.Browser = DefaultBrowser
	}
	if c.Headless == nil {
		headless := true
		c.Headless = &headless
	}
	if c.Viewport.Width == 0 {
		c.Viewport.Width = DefaultWidth
	}
	if c.Viewport.Height == 0 {
		c.Viewport.Height = DefaultHeight
	}
	if c.BlockedURLs == nil {
		c.BlockedURLs = append([]string{}, navigation.DefaultBlocked...)
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.MaxLineBytes == 0 {
		c.MaxLineBytes = DefaultMaxLineBytes
	}
	if c.CallbackTimeoutSeconds == 0 {
		c.CallbackTimeoutSeconds = DefaultCallbackTimeoutSeconds
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch c.Browser {
	case "chromium", "firefox", "webkit":
	default:
		return fmt.Errorf("browser: unknown engine %q", c.Browser)
	}

	if c.Viewport.Width < 0 || c.Viewport.Height < 0 {
		return fmt.Errorf("viewport: negative size %dx%d", c.Viewport.Width, c.Viewport.Height)
	}

	for _, p := range c.BlockedURLs {
		if _, err := glob.Compile(p); err != nil {
			return fmt.Errorf("blocked_urls: pattern %q: %w", p, err)
		}
	}

	if level := strings.ToLower(strings.TrimSpace(c.LogLevel)); level != "" && level != "off" {
		if _, err := zerolog.ParseLevel(level); err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
	}

	if c.MaxLineBytes < 0 {
		return fmt.Errorf("max_line_bytes: must not be negative, got %d", c.MaxLineBytes)
	}
	if c.CallbackTimeoutSeconds < 0 {
		return fmt.Errorf("callback_timeout_seconds: must not be negative, got %d", c.CallbackTimeoutSeconds)
	}
	return nil
}

// IsHeadless reports whether the browser runs without a window.
// Unset means headless.
func (c *Config) IsHeadless() bool {
	return c.Headless == nil || *c.Headless
}

// CallbackTimeout is the longest the host waits for a callback answer.
func (c *Config) CallbackTimeout() time.Duration {
	return time.Duration(c.CallbackTimeoutSeconds) * time.Second
}

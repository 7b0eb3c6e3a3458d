// CLAUDE:SUMMARY Configuration struct and defaults for the textract extraction pipeline.
package docpipe

import "log/slog"

// Config configures the extraction pipeline.
type Config struct {
	// MaxInputBytes rejects payloads larger than this before parsing (default: 50 MB).
	// The HTTP layer enforces its own limit first; this guards library callers.
	MaxInputBytes int64 `json:"max_input_bytes" yaml:"max_input_bytes"`

	// Layout tunes PDF layout analysis. Zero value means DefaultLayoutParams.
	Layout LayoutParams `json:"layout" yaml:"layout"`

	// Logger for debug/error messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxInputBytes <= 0 {
		c.MaxInputBytes = 50 * 1024 * 1024
	}
	if c.Layout == (LayoutParams{}) {
		c.Layout = DefaultLayoutParams()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

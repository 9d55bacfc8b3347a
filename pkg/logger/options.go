package logger

import (
	"io"
	"log/slog"
)

// Option tweaks the logger New builds.
type Option func(*config)

// WithDebug turns on debug records, which is where per-attempt stream
// details end up. Info otherwise.
func WithDebug(debug bool) Option {
	return func(c *config) {
		c.level = slog.LevelInfo
		if debug {
			c.level = slog.LevelDebug
		}
	}
}

// WithPretty renders records with charmbracelet/log, for a terminal on
// stderr. When both are set it beats WithJSON.
func WithPretty(pretty bool) Option {
	return func(c *config) {
		c.pretty = pretty
	}
}

// WithJSON writes one JSON object per record, the format of smriti.log.
func WithJSON(json bool) Option {
	return func(c *config) {
		c.json = json
	}
}

// WithWriter replaces the default os.Stdout destination with w.
func WithWriter(w io.Writer) Option {
	return func(c *config) {
		c.writers = []io.Writer{w}
	}
}

// WithWriters fans each record out to all of ws through a single handler,
// so every destination gets the same format. Use Multi to mix formats.
func WithWriters(ws ...io.Writer) Option {
	return func(c *config) {
		c.writers = ws
	}
}

// WithSource records the calling file and line.
func WithSource(source bool) Option {
	return func(c *config) {
		c.source = source
	}
}

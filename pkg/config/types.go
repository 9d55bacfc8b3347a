package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent smriti configuration stored as config.toml
// in the .smriti/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Client      ClientConfig      `toml:"client"`
	Stream      StreamConfig      `toml:"stream"`
	Storage     StorageConfig     `toml:"storage"`
	EventStream EventStreamConfig `toml:"eventstream"`
}

// ClientConfig holds settings for talking to the LocalMind backend.
type ClientConfig struct {
	// BaseURL is the backend root URL (scheme + host + port).
	BaseURL  string `toml:"base_url,omitempty"`
	Model    string `toml:"model,omitempty"`
	Username string `toml:"username,omitempty"`
}

// StreamConfig holds reply streaming settings.
type StreamConfig struct {
	MaxAttempts uint `toml:"max_attempts,omitempty"`

	// BaseDelay is a Go duration string, e.g. "1s".
	BaseDelay string `toml:"base_delay,omitempty"`

	ResetOnRetry bool `toml:"reset_on_retry,omitempty"`

	// OnConflict is "reject" or "cancel".
	OnConflict string `toml:"on_conflict,omitempty"`

	CompleteEvent string `toml:"complete_event,omitempty"`

	// RefreshOnComplete is a pointer so an explicit false survives default
	// merging.
	RefreshOnComplete *bool `toml:"refresh_on_complete,omitempty"`
}

// Delay parses BaseDelay.
func (s StreamConfig) Delay() (time.Duration, error) {
	if s.BaseDelay == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.BaseDelay)
	if err != nil {
		return 0, fmt.Errorf("invalid stream.base_delay: %w", err)
	}
	return d, nil
}

// Refresh reports whether chats are refetched after each reply.
func (s StreamConfig) Refresh() bool {
	return s.RefreshOnComplete == nil || *s.RefreshOnComplete
}

// StorageConfig holds the local chat cache settings.
type StorageConfig struct {
	// SQLitePath is the cache database. Empty keeps the cache in memory.
	SQLitePath string `toml:"sqlite_path,omitempty"`
}

// EventStreamConfig holds reply event publishing settings.
type EventStreamConfig struct {
	// Provider is "" (disabled) or "kafka".
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"client.base_url": {
		get: func(c *Config) string { return c.Client.BaseURL },
		set: func(c *Config, v string) error { c.Client.BaseURL = v; return nil },
	},
	"client.model": {
		get: func(c *Config) string { return c.Client.Model },
		set: func(c *Config, v string) error { c.Client.Model = v; return nil },
	},
	"client.username": {
		get: func(c *Config) string { return c.Client.Username },
		set: func(c *Config, v string) error { c.Client.Username = v; return nil },
	},
	"stream.max_attempts": {
		get: func(c *Config) string {
			if c.Stream.MaxAttempts == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Stream.MaxAttempts), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for stream.max_attempts: %w", err)
			}
			if n == 0 {
				return fmt.Errorf("invalid value for stream.max_attempts: must be at least 1")
			}
			c.Stream.MaxAttempts = uint(n)
			return nil
		},
	},
	"stream.base_delay": {
		get: func(c *Config) string { return c.Stream.BaseDelay },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for stream.base_delay: %w", err)
			}
			c.Stream.BaseDelay = v
			return nil
		},
	},
	"stream.reset_on_retry": {
		get: func(c *Config) string { return strconv.FormatBool(c.Stream.ResetOnRetry) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for stream.reset_on_retry: %w", err)
			}
			c.Stream.ResetOnRetry = b
			return nil
		},
	},
	"stream.on_conflict": {
		get: func(c *Config) string { return c.Stream.OnConflict },
		set: func(c *Config, v string) error {
			switch v {
			case "reject", "cancel":
				c.Stream.OnConflict = v
				return nil
			default:
				return fmt.Errorf("invalid value for stream.on_conflict: %q (valid: reject, cancel)", v)
			}
		},
	},
	"stream.complete_event": {
		get: func(c *Config) string { return c.Stream.CompleteEvent },
		set: func(c *Config, v string) error { c.Stream.CompleteEvent = v; return nil },
	},
	"stream.refresh_on_complete": {
		get: func(c *Config) string { return strconv.FormatBool(c.Stream.Refresh()) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for stream.refresh_on_complete: %w", err)
			}
			c.Stream.RefreshOnComplete = &b
			return nil
		},
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"eventstream.provider": {
		get: func(c *Config) string { return c.EventStream.Provider },
		set: func(c *Config, v string) error {
			switch v {
			case "", "kafka":
				c.EventStream.Provider = v
				return nil
			default:
				return fmt.Errorf("invalid value for eventstream.provider: %q (valid: kafka)", v)
			}
		},
	},
	"eventstream.brokers": {
		get: func(c *Config) string { return strings.Join(c.EventStream.Brokers, ",") },
		set: func(c *Config, v string) error { c.EventStream.Brokers = SplitList(v); return nil },
	},
	"eventstream.topic": {
		get: func(c *Config) string { return c.EventStream.Topic },
		set: func(c *Config, v string) error { c.EventStream.Topic = v; return nil },
	},
}

// SplitList splits a comma separated value, dropping empty items.
func SplitList(v string) []string {
	var out []string
	for item := range strings.SplitSeq(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

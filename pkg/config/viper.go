package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/localmind/smriti/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the SMRITI_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (SMRITI_CLIENT_BASE_URL, SMRITI_STREAM_MAX_ATTEMPTS, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: SMRITI_CLIENT_MODEL, SMRITI_STORAGE_SQLITE_PATH, etc.
	v.SetEnvPrefix("SMRITI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Client
	v.SetDefault("client.base_url", d.Client.BaseURL)
	v.SetDefault("client.model", d.Client.Model)
	v.SetDefault("client.username", d.Client.Username)

	// Stream
	v.SetDefault("stream.max_attempts", d.Stream.MaxAttempts)
	v.SetDefault("stream.base_delay", d.Stream.BaseDelay)
	v.SetDefault("stream.reset_on_retry", d.Stream.ResetOnRetry)
	v.SetDefault("stream.on_conflict", d.Stream.OnConflict)
	v.SetDefault("stream.complete_event", d.Stream.CompleteEvent)
	v.SetDefault("stream.refresh_on_complete", d.Stream.Refresh())

	// Storage
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)

	// Event stream
	v.SetDefault("eventstream.provider", d.EventStream.Provider)
	v.SetDefault("eventstream.brokers", d.EventStream.Brokers)
	v.SetDefault("eventstream.topic", d.EventStream.Topic)
}

// FromViper resolves a Config from the viper precedence chain and validates
// the values that have a closed set of options.
func FromViper(v *viper.Viper) (*Config, error) {
	refresh := v.GetBool("stream.refresh_on_complete")
	cfg := &Config{
		Version: v.GetInt("version"),
		Client: ClientConfig{
			BaseURL:  v.GetString("client.base_url"),
			Model:    v.GetString("client.model"),
			Username: v.GetString("client.username"),
		},
		Stream: StreamConfig{
			MaxAttempts:       v.GetUint("stream.max_attempts"),
			BaseDelay:         v.GetString("stream.base_delay"),
			ResetOnRetry:      v.GetBool("stream.reset_on_retry"),
			OnConflict:        v.GetString("stream.on_conflict"),
			CompleteEvent:     v.GetString("stream.complete_event"),
			RefreshOnComplete: &refresh,
		},
		Storage: StorageConfig{
			SQLitePath: v.GetString("storage.sqlite_path"),
		},
		EventStream: EventStreamConfig{
			Provider: v.GetString("eventstream.provider"),
			Brokers:  brokers(v.GetStringSlice("eventstream.brokers")),
			Topic:    v.GetString("eventstream.topic"),
		},
	}

	for _, key := range []string{"stream.on_conflict", "eventstream.provider"} {
		info := configKeys[key]
		if err := info.set(cfg, info.get(cfg)); err != nil {
			return nil, err
		}
	}
	if _, err := cfg.Stream.Delay(); err != nil {
		return nil, err
	}
	if cfg.Stream.MaxAttempts == 0 {
		return nil, errors.New("stream.max_attempts must be at least 1")
	}

	return cfg, nil
}

// brokers flattens flag and env values, which arrive comma separated.
func brokers(raw []string) []string {
	var out []string
	for _, item := range raw {
		out = append(out, SplitList(item)...)
	}
	return out
}

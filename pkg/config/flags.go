package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --base-url
// on "smriti chat", "smriti chats" and "smriti tui").
type Flag struct {
	// Name is the long flag name (e.g. "base-url").
	Name string

	// Shorthand is the one-letter short flag (e.g. "b"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "client.base_url").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagBaseURL       = "base-url"
	FlagModel         = "model"
	FlagUsername      = "username"
	FlagMaxAttempts   = "max-attempts"
	FlagBaseDelay     = "base-delay"
	FlagResetOnRetry  = "reset-on-retry"
	FlagOnConflict    = "on-conflict"
	FlagCompleteEvent = "complete-event"
	FlagSQLite        = "sqlite"
	FlagEventProvider = "eventstream-provider"
	FlagEventBrokers  = "eventstream-brokers"
	FlagEventTopic    = "eventstream-topic"
)

// ClientFlags is the registry shared by every command that talks to the
// backend.
var ClientFlags = FlagSet{
	FlagBaseURL:       {Name: "base-url", Shorthand: "b", ViperKey: "client.base_url", Description: "LocalMind backend URL"},
	FlagModel:         {Name: "model", Shorthand: "m", ViperKey: "client.model", Description: "Model name sent with each message"},
	FlagUsername:      {Name: "username", Shorthand: "u", ViperKey: "client.username", Description: "Profile user name"},
	FlagMaxAttempts:   {Name: "max-attempts", ViperKey: "stream.max_attempts", Description: "Stream attempts before giving up"},
	FlagBaseDelay:     {Name: "base-delay", ViperKey: "stream.base_delay", Description: "Backoff before the second attempt, doubled each retry"},
	FlagResetOnRetry:  {Name: "reset-on-retry", ViperKey: "stream.reset_on_retry", Description: "Discard partial replies before retrying"},
	FlagOnConflict:    {Name: "on-conflict", ViperKey: "stream.on_conflict", Description: "Behavior when a chat is already streaming (reject, cancel)"},
	FlagCompleteEvent: {Name: "complete-event", ViperKey: "stream.complete_event", Description: "SSE event name that ends a reply"},
	FlagSQLite:        {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to the SQLite chat cache"},
	FlagEventProvider: {Name: "eventstream-provider", ViperKey: "eventstream.provider", Description: "Reply event publisher (kafka)"},
	FlagEventBrokers:  {Name: "eventstream-brokers", ViperKey: "eventstream.brokers", Description: "Comma separated Kafka brokers"},
	FlagEventTopic:    {Name: "eventstream-topic", ViperKey: "eventstream.topic", Description: "Kafka topic for reply events"},
}

// ClientFlagKeys lists every ClientFlags entry in help order.
var ClientFlagKeys = []string{
	FlagBaseURL,
	FlagModel,
	FlagUsername,
	FlagMaxAttempts,
	FlagBaseDelay,
	FlagResetOnRetry,
	FlagOnConflict,
	FlagCompleteEvent,
	FlagSQLite,
	FlagEventProvider,
	FlagEventBrokers,
	FlagEventTopic,
}

// AddClientFlags registers all ClientFlags on cmd. The values are read back
// through viper after BindRegisteredFlags.
func AddClientFlags(cmd *cobra.Command) {
	for _, key := range ClientFlagKeys {
		switch key {
		case FlagMaxAttempts:
			AddUintFlag(cmd, ClientFlags, key, new(uint))
		case FlagResetOnRetry:
			AddBoolFlag(cmd, ClientFlags, key, new(bool))
		default:
			AddStringFlag(cmd, ClientFlags, key, new(string))
		}
	}
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddBoolFlag registers a bool flag on cmd from the given FlagSet.
func AddBoolFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *bool) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultBool(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().BoolVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().BoolVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}

// defaultBool returns the default bool value for a viper key from NewDefaultConfig.
func defaultBool(viperKey string) bool {
	v := viper.New()
	setViperDefaults(v)
	return v.GetBool(viperKey)
}

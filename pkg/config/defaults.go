package config

const (
	defaultBaseURL  = "http://localhost:8080"
	defaultModel    = "deepseek"
	defaultUsername = "smriti"

	defaultMaxAttempts   = 6
	defaultBaseDelay     = "1s"
	defaultOnConflict    = "reject"
	defaultCompleteEvent = "complete"

	defaultEventTopic = "smriti.replies"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	refresh := true
	return &Config{
		Version: CurrentV,
		Client: ClientConfig{
			BaseURL:  defaultBaseURL,
			Model:    defaultModel,
			Username: defaultUsername,
		},
		Stream: StreamConfig{
			MaxAttempts:       defaultMaxAttempts,
			BaseDelay:         defaultBaseDelay,
			OnConflict:        defaultOnConflict,
			CompleteEvent:     defaultCompleteEvent,
			RefreshOnComplete: &refresh,
		},
		EventStream: EventStreamConfig{
			Topic: defaultEventTopic,
		},
	}
}

package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeReplyCompleted is emitted after a streamed reply finished.
	EventTypeReplyCompleted = "smriti.reply.completed"

	// EventTypeReplyFailed is emitted after a streamed reply gave up.
	EventTypeReplyFailed = "smriti.reply.failed"

	// EventTypeReplyCanceled is emitted when the user canceled a reply.
	EventTypeReplyCanceled = "smriti.reply.canceled"
)

// ReplyEvent is a transport-neutral event payload for a finished reply.
type ReplyEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	Source        EventSource `json:"source"`
	Reply         ReplyMeta   `json:"reply"`
}

// EventSource identifies where the reply was requested.
type EventSource struct {
	Client  string `json:"client"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model,omitempty"`
}

// ReplyMeta captures the reply lifecycle.
type ReplyMeta struct {
	// ChatKey is the local key the reply was streamed into.
	ChatKey string `json:"chat_key"`

	// ChatID is the backend chat ID, empty for a chat the backend had not
	// assigned one to yet.
	ChatID string `json:"chat_id,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	Attempts    int       `json:"attempts"`
	Characters  int       `json:"characters"`
	Error       string    `json:"error,omitempty"`
}

// NewReplyEvent stamps a new event of eventType.
func NewReplyEvent(eventType string, source EventSource, reply ReplyMeta) *ReplyEvent {
	if reply.DurationMs == 0 && !reply.StartedAt.IsZero() && !reply.CompletedAt.IsZero() {
		reply.DurationMs = reply.CompletedAt.Sub(reply.StartedAt).Milliseconds()
	}

	return &ReplyEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
		Reply:         reply,
	}
}

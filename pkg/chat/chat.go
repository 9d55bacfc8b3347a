// Package chat holds the conversation data model and the pure functions that
// move a chat through one send: Begin creates the placeholder reply, Merge
// appends streamed payloads to it, and Reconcile supersedes it with the
// authoritative copy fetched from the backend.
//
// None of these functions mutate their input; each returns a new Chat whose
// message slice does not alias the original, so readers holding an earlier
// snapshot never observe a half-applied change.
package chat

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Status is the local, never-serialized streaming state of a Message.
type Status int

const (
	// StatusNone is a settled message.
	StatusNone Status = iota
	// StatusStreaming marks the placeholder while payloads are arriving.
	StatusStreaming
	// StatusFailed marks a placeholder whose stream ended in failure. The text
	// received before the failure is kept.
	StatusFailed
	// StatusCanceled marks a placeholder whose stream the user stopped.
	StatusCanceled
)

func (s Status) String() string {
	switch s {
	case StatusStreaming:
		return "streaming"
	case StatusFailed:
		return "failed"
	case StatusCanceled:
		return "canceled"
	default:
		return ""
	}
}

// Message is a single entry in a Chat.
type Message struct {
	// ID is the authoritative identifier assigned by the backend. Empty for
	// messages created locally.
	ID string `json:"id,omitempty"`

	// LocalID identifies a locally created message until the authoritative
	// copy replaces it.
	LocalID string `json:"-"`

	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	Status Status `json:"-"`
}

// IsPlaceholder reports whether m is a locally created assistant reply.
func (m Message) IsPlaceholder() bool {
	return m.Role == RoleAssistant && m.LocalID != ""
}

// Chat is an ordered conversation.
type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a copy of c that shares no message storage with it.
func (c Chat) Clone() Chat {
	c.Messages = slices.Clone(c.Messages)
	return c
}

// Last returns the trailing message, or false for an empty chat.
func (c Chat) Last() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// Placeholder returns the in-flight reply if the chat currently ends with one.
func (c Chat) Placeholder() (Message, bool) {
	last, ok := c.Last()
	if !ok || !last.IsPlaceholder() {
		return Message{}, false
	}
	return last, true
}

// Opening returns the first user message, which identifies a chat the backend
// created from a local send.
func (c Chat) Opening() (Message, bool) {
	for _, m := range c.Messages {
		if m.Role == RoleUser {
			return m, true
		}
	}
	return Message{}, false
}

// NewLocalID returns a fresh identifier for a locally created message.
func NewLocalID() string {
	return uuid.NewString()
}

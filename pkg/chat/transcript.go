package chat

import "time"

// Begin appends the user's message followed by an empty assistant
// placeholder. The placeholder is the only message later payloads may
// modify.
func Begin(c Chat, text string, now time.Time) Chat {
	out := c.Clone()
	out.Messages = append(out.Messages,
		Message{
			LocalID:   NewLocalID(),
			Role:      RoleUser,
			Content:   text,
			Timestamp: now,
		},
		Message{
			LocalID:   NewLocalID(),
			Role:      RoleAssistant,
			Timestamp: now,
			Status:    StatusStreaming,
		},
	)
	if out.CreatedAt.IsZero() {
		out.CreatedAt = now
	}
	out.UpdatedAt = now
	return out
}

// Merge appends payload to the content of the last message when that message
// is an assistant message. Otherwise c is returned unchanged.
func Merge(c Chat, payload string) Chat {
	return updateLast(c, func(m *Message) {
		m.Content += payload
	})
}

// ResetReply empties the content of a trailing assistant message. It backs the
// reset-and-replace retry policy, where each new attempt starts the reply
// over instead of appending to a partial one.
func ResetReply(c Chat) Chat {
	return updateLast(c, func(m *Message) {
		m.Content = ""
	})
}

// SetReplyStatus sets the local status of a trailing assistant message.
func SetReplyStatus(c Chat, status Status) Chat {
	return updateLast(c, func(m *Message) {
		m.Status = status
	})
}

// Reconcile supersedes local state with the authoritative copy of the same
// chat. Matching is by position: every index the authoritative copy covers
// is taken from it, identifiers are not compared. Local messages past the
// end of the authoritative copy (for instance a failed reply the backend
// never stored) are kept so nothing the user has seen silently disappears.
func Reconcile(local, authoritative Chat) Chat {
	out := authoritative.Clone()
	if n := len(authoritative.Messages); len(local.Messages) > n {
		out.Messages = append(out.Messages, local.Messages[n:]...)
	}
	return out
}

// updateLast applies fn to a copy of the trailing assistant message.
func updateLast(c Chat, fn func(*Message)) Chat {
	n := len(c.Messages)
	if n == 0 || c.Messages[n-1].Role != RoleAssistant {
		return c
	}

	out := c.Clone()
	fn(&out.Messages[n-1])
	return out
}

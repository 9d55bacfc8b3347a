package storage

import (
	"errors"
	"slices"

	"github.com/localmind/smriti/pkg/chat"
)

// NotFoundError is returned when a chat doesn't exist in the cache.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return "chat not found"
	}

	return "chat not found: " + e.ID
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// ErrMissingID is returned when putting a chat without an ID. Only chats
// known to the backend are cached.
var ErrMissingID = errors.New("cannot cache a chat without an id")

// Settled returns a copy of c safe to cache: messages still streaming are
// dropped, transient local state is cleared.
func Settled(c chat.Chat) chat.Chat {
	out := c.Clone()
	out.Messages = slices.DeleteFunc(out.Messages, func(m chat.Message) bool {
		return m.Status == chat.StatusStreaming
	})
	for i := range out.Messages {
		out.Messages[i].LocalID = ""
		out.Messages[i].Status = chat.StatusNone
	}
	return out
}

// SortOldestFirst orders chats by creation time, then by ID.
func SortOldestFirst(chats []chat.Chat) {
	slices.SortStableFunc(chats, func(a, b chat.Chat) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
}

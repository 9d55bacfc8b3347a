// Package storage defines the local chat cache. The cache holds the last
// authoritative copy of every chat fetched from the backend so chats can be
// listed offline. It is never the source of truth.
package storage

import (
	"context"

	"github.com/localmind/smriti/pkg/chat"
)

// Driver defines the interface for caching chats.
type Driver interface {
	// Put inserts or replaces a chat by its ID.
	Put(ctx context.Context, c chat.Chat) error

	// Get retrieves a chat by ID. Returns NotFoundError if it is not cached.
	Get(ctx context.Context, id string) (chat.Chat, error)

	// List returns every cached chat, oldest first.
	List(ctx context.Context) ([]chat.Chat, error)

	// Replace swaps the whole cache for chats, dropping anything not listed.
	Replace(ctx context.Context, chats []chat.Chat) error

	// Delete removes a chat. Returns NotFoundError if it is not cached.
	Delete(ctx context.Context, id string) error

	// DeleteAll empties the cache.
	DeleteAll(ctx context.Context) error

	// Close closes the store and releases any resources.
	Close() error
}

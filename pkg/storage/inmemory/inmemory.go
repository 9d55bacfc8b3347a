// Package inmemory provides a map-backed chat cache, used when no sqlite path
// is configured and in tests.
package inmemory

import (
	"context"
	"sync"

	"github.com/localmind/smriti/pkg/chat"
	"github.com/localmind/smriti/pkg/storage"
)

// Driver implements storage.Driver using an in-memory map.
type Driver struct {
	// mu is a read write sync mutex for locking the mapping of chats
	mu sync.RWMutex

	// chats is keyed by the backend chat ID
	chats map[string]chat.Chat
}

// NewDriver creates a new in-memory cache.
func NewDriver() *Driver {
	return &Driver{
		chats: make(map[string]chat.Chat),
	}
}

// Put inserts or replaces a chat.
func (d *Driver) Put(_ context.Context, c chat.Chat) error {
	if c.ID == "" {
		return storage.ErrMissingID
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.chats[c.ID] = storage.Settled(c)
	return nil
}

// Get retrieves a chat by ID.
func (d *Driver) Get(_ context.Context, id string) (chat.Chat, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.chats[id]
	if !ok {
		return chat.Chat{}, storage.NotFoundError{ID: id}
	}

	return c.Clone(), nil
}

// List returns all cached chats, oldest first.
func (d *Driver) List(_ context.Context) ([]chat.Chat, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	chats := make([]chat.Chat, 0, len(d.chats))
	for _, c := range d.chats {
		chats = append(chats, c.Clone())
	}

	storage.SortOldestFirst(chats)
	return chats, nil
}

// Replace swaps the cache contents for chats.
func (d *Driver) Replace(_ context.Context, chats []chat.Chat) error {
	next := make(map[string]chat.Chat, len(chats))
	for _, c := range chats {
		if c.ID == "" {
			return storage.ErrMissingID
		}
		next[c.ID] = storage.Settled(c)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.chats = next
	return nil
}

// Delete removes a chat by ID.
func (d *Driver) Delete(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.chats[id]; !ok {
		return storage.NotFoundError{ID: id}
	}

	delete(d.chats, id)
	return nil
}

// DeleteAll empties the cache.
func (d *Driver) DeleteAll(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.chats = make(map[string]chat.Chat)
	return nil
}

// Count returns the number of cached chats.
func (d *Driver) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.chats)
}

// Close is a no-op for the in-memory cache.
func (d *Driver) Close() error {
	return nil
}

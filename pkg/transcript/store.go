// Package transcript owns the live chat state of a client session. A Store
// holds immutable chat snapshots and fans updates out to watchers; a Manager
// runs sends against the backend and enforces one active stream per chat.
package transcript

import (
	"errors"
	"strings"
	"sync"

	"github.com/localmind/smriti/pkg/chat"
)

// LocalKeyPrefix marks the key of a chat the backend has not assigned an ID
// to yet.
const LocalKeyPrefix = "local:"

// ErrUnknownChat is returned for a key the store does not hold.
var ErrUnknownChat = errors.New("unknown chat")

// NewLocalKey returns a fresh key for a chat not yet known to the backend.
func NewLocalKey() string {
	return LocalKeyPrefix + chat.NewLocalID()
}

// IsLocalKey reports whether key was minted by NewLocalKey.
func IsLocalKey(key string) bool {
	return strings.HasPrefix(key, LocalKeyPrefix)
}

// Update is delivered to watchers after every change.
type Update struct {
	Key  string
	Chat chat.Chat

	// Deleted is set when Key was removed. Chat is the last snapshot.
	Deleted bool

	// Renamed holds the previous key after a Rekey.
	Renamed string
}

// Entry pairs a chat with its key.
type Entry struct {
	Key  string
	Chat chat.Chat
}

// Store is a keyed collection of chat snapshots. Every change replaces a
// snapshot wholesale; a snapshot handed out is never modified afterwards.
type Store struct {
	mu       sync.RWMutex
	chats    map[string]chat.Chat
	order    []string
	aliases  map[string]string
	watchers map[int]chan Update
	nextID   int
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		chats:    make(map[string]chat.Chat),
		aliases:  make(map[string]string),
		watchers: make(map[int]chan Update),
	}
}

// Get returns the snapshot for key.
func (s *Store) Get(key string) (chat.Chat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chats[s.resolve(key)]
	return c, ok
}

// Resolve follows Rekey renames, returning the current key for key.
func (s *Store) Resolve(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolve(key)
}

// Keys returns the keys in insertion order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// List returns every chat in insertion order.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]Entry, 0, len(s.order))
	for _, key := range s.order {
		entries = append(entries, Entry{Key: key, Chat: s.chats[key]})
	}
	return entries
}

// Len returns the number of chats.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chats)
}

// Put inserts or replaces the chat at key.
func (s *Store) Put(key string, c chat.Chat) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key = s.resolve(key)
	if _, ok := s.chats[key]; !ok {
		s.order = append(s.order, key)
	}
	s.chats[key] = c
	s.notify(Update{Key: key, Chat: c})
}

// Apply replaces the chat at key with fn's result. fn must not mutate its
// argument; the chat package functions satisfy this.
func (s *Store) Apply(key string, fn func(chat.Chat) chat.Chat) (chat.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key = s.resolve(key)
	c, ok := s.chats[key]
	if !ok {
		return chat.Chat{}, ErrUnknownChat
	}

	c = fn(c)
	s.chats[key] = c
	s.notify(Update{Key: key, Chat: c})
	return c, nil
}

// Rekey moves the chat at from to to, keeping its position. Later lookups of
// from resolve to to.
func (s *Store) Rekey(from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	from = s.resolve(from)
	c, ok := s.chats[from]
	if !ok {
		return ErrUnknownChat
	}
	if from == to {
		return nil
	}
	if _, taken := s.chats[to]; taken {
		return errors.New("rekey target already exists: " + to)
	}

	delete(s.chats, from)
	s.chats[to] = c
	for i, key := range s.order {
		if key == from {
			s.order[i] = to
			break
		}
	}
	s.aliases[from] = to
	s.notify(Update{Key: to, Chat: c, Renamed: from})
	return nil
}

// Delete removes key and reports whether it existed.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key = s.resolve(key)
	c, ok := s.chats[key]
	if !ok {
		return false
	}

	delete(s.chats, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	s.notify(Update{Key: key, Chat: c, Deleted: true})
	return true
}

// Clear removes every chat.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range s.order {
		s.notify(Update{Key: key, Chat: s.chats[key], Deleted: true})
	}
	s.chats = make(map[string]chat.Chat)
	s.order = nil
	s.aliases = make(map[string]string)
}

// Watch subscribes to updates. The channel has room for buffer updates; a
// watcher that falls further behind misses updates rather than stalling the
// writer, so it should re-read with Get when it needs the latest state. The
// returned func unsubscribes and closes the channel.
func (s *Store) Watch(buffer int) (<-chan Update, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Update, max(buffer, 0))
	s.watchers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.watchers, id)
			close(ch)
		})
	}
}

// notify fans u out. Callers hold s.mu, so watchers see updates in the order
// they were applied.
func (s *Store) notify(u Update) {
	for _, ch := range s.watchers {
		select {
		case ch <- u:
		default:
		}
	}
}

func (s *Store) resolve(key string) string {
	// Aliases never chain into a loop: a key is renamed only once, to a
	// backend ID, and backend IDs are never renamed.
	for range len(s.aliases) + 1 {
		next, ok := s.aliases[key]
		if !ok {
			return key
		}
		key = next
	}
	return key
}

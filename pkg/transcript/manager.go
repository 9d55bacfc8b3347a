package transcript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/localmind/smriti/pkg/chat"
	"github.com/localmind/smriti/pkg/eventstream"
	"github.com/localmind/smriti/pkg/logger"
	"github.com/localmind/smriti/pkg/storage"
	"github.com/localmind/smriti/pkg/stream"
	"github.com/localmind/smriti/pkg/worker"
)

// ConflictPolicy decides what Send does when the chat already has a reply
// streaming.
type ConflictPolicy string

const (
	// ConflictReject fails the second send with ErrStreamActive.
	ConflictReject ConflictPolicy = "reject"

	// ConflictCancel cancels the running reply, waits for it to settle, then
	// sends.
	ConflictCancel ConflictPolicy = "cancel"
)

var (
	// ErrStreamActive is returned when a chat already has a reply streaming.
	ErrStreamActive = errors.New("a reply is already streaming for this chat")

	// ErrEmptyMessage is returned by Send for a blank message.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("transcript manager closed")
)

const refreshTimeout = 30 * time.Second

// Backend is the part of the backend client the Manager uses.
type Backend interface {
	StreamRequest(message, chatID string) (stream.Request, error)
	Streamer() stream.Doer
	ListChats(ctx context.Context) ([]chat.Chat, error)
	DeleteChat(ctx context.Context, id string) error
	DeleteAllChats(ctx context.Context) error
}

// Config configures a Manager.
type Config struct {
	Backend Backend

	// Store holds the live chats. A new Store is created when nil.
	Store *Store

	// Cache, if set, receives authoritative chats after each refresh and
	// settled chats after each reply.
	Cache storage.Driver

	// Publisher, if set, receives a reply event for every finished send.
	Publisher eventstream.Publisher

	// Source is stamped on every reply event.
	Source eventstream.EventSource

	OnConflict ConflictPolicy

	// ResetOnRetry empties the reply before every retry instead of keeping
	// the text the failed attempt delivered.
	ResetOnRetry bool

	// RefreshOnComplete refetches the chat list after every successful reply
	// and reconciles the transcript with it.
	RefreshOnComplete bool

	SupervisorOptions []stream.SupervisorOption

	Logger *slog.Logger

	// Now is the clock, time.Now when nil.
	Now func() time.Time
}

// Manager runs sends against the backend. It guarantees that at most one
// reply streams into a chat at a time.
type Manager struct {
	cfg    Config
	store  *Store
	pool   *worker.Pool
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	active  map[string]*Handle
	closed  bool
	running sync.WaitGroup
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Backend == nil {
		return nil, errors.New("transcript manager requires a backend")
	}

	switch cfg.OnConflict {
	case "":
		cfg.OnConflict = ConflictReject
	case ConflictReject, ConflictCancel:
	default:
		return nil, fmt.Errorf("unknown conflict policy %q (valid: reject, cancel)", cfg.OnConflict)
	}

	if cfg.Store == nil {
		cfg.Store = NewStore()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Source.Client == "" {
		cfg.Source.Client = "smriti"
	}

	l := logger.OrNop(cfg.Logger)
	pool, err := worker.NewPool(&worker.Config{
		Driver:    cfg.Cache,
		Publisher: cfg.Publisher,
		Logger:    l,
	})
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}

	return &Manager{
		cfg:    cfg,
		store:  cfg.Store,
		pool:   pool,
		logger: l,
		now:    cfg.Now,
		active: make(map[string]*Handle),
	}, nil
}

// Store returns the live chat store.
func (m *Manager) Store() *Store {
	return m.store
}

// Resolve returns the current key for key, following the rename of a local
// chat to its backend ID.
func (m *Manager) Resolve(key string) string {
	return m.store.Resolve(key)
}

// Active returns the running handle for key, if any.
func (m *Manager) Active(key string) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.active[m.store.Resolve(key)]
	return h, ok
}

// Send appends text and an empty reply placeholder to the chat at key, then
// streams the reply into the placeholder in the background. An empty key
// starts a new chat. The placeholder exists by the time Send returns.
//
// The stream is bound to ctx: canceling it cancels the reply like
// Handle.Cancel does.
func (m *Manager) Send(ctx context.Context, key, text string) (*Handle, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	m.mu.Lock()
	for {
		if m.closed {
			m.mu.Unlock()
			return nil, ErrClosed
		}

		key = m.store.Resolve(key)
		prior, busy := m.active[key]
		if !busy || key == "" {
			break
		}
		if m.cfg.OnConflict != ConflictCancel {
			m.mu.Unlock()
			return nil, ErrStreamActive
		}

		m.mu.Unlock()
		m.logger.Debug("canceling active reply", "chat", key)
		prior.Cancel()
		select {
		case <-prior.Done():
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		m.mu.Lock()
	}
	defer m.mu.Unlock()

	chatID := ""
	if key != "" {
		if _, ok := m.store.Get(key); !ok {
			return nil, ErrUnknownChat
		}
		if !IsLocalKey(key) {
			chatID = key
		}
	}

	req, err := m.cfg.Backend.StreamRequest(text, chatID)
	if err != nil {
		return nil, err
	}

	if key == "" {
		key = NewLocalKey()
		m.store.Put(key, chat.Chat{Title: "New Chat"})
	}

	now := m.now()
	if _, err := m.store.Apply(key, func(c chat.Chat) chat.Chat {
		return chat.Begin(c, text, now)
	}); err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		key:    key,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	h.attempts.Store(1)
	m.active[key] = h

	m.logger.Debug("reply started", "chat", key, "new_chat", chatID == "")
	m.running.Add(1)
	go m.run(streamCtx, h, req, now)

	return h, nil
}

// run streams one reply. It is the only writer of the placeholder for h.key
// until h is removed from the active set.
func (m *Manager) run(ctx context.Context, h *Handle, req stream.Request, started time.Time) {
	defer m.running.Done()
	defer h.cancel()

	characters := 0
	opts := append([]stream.SupervisorOption{stream.WithLogger(m.logger.With("chat", h.key))},
		m.cfg.SupervisorOptions...)
	opts = append(opts, stream.WithOnRetry(func(attempt int, err error) {
		h.attempts.Store(int32(attempt))
		if m.cfg.ResetOnRetry {
			characters = 0
			_, _ = m.store.Apply(h.key, chat.ResetReply)
		}
	}))

	sup := stream.NewSupervisor(m.cfg.Backend.Streamer(), opts...)
	err := sup.Run(ctx, req, func(payload string) {
		characters += utf8.RuneCountInString(payload)
		_, _ = m.store.Apply(h.key, func(c chat.Chat) chat.Chat {
			return chat.Merge(c, payload)
		})
	})

	status, eventType := chat.StatusNone, eventstream.EventTypeReplyCompleted
	switch {
	case err == nil:
	case ctx.Err() != nil:
		status, eventType = chat.StatusCanceled, eventstream.EventTypeReplyCanceled
	default:
		status, eventType = chat.StatusFailed, eventstream.EventTypeReplyFailed
	}

	final, _ := m.store.Apply(h.key, func(c chat.Chat) chat.Chat {
		return chat.SetReplyStatus(c, status)
	})

	m.mu.Lock()
	delete(m.active, h.key)
	m.mu.Unlock()

	completed := m.now()
	attrs := []any{
		"chat", h.key,
		"attempts", h.Attempts(),
		"characters", characters,
		"duration", completed.Sub(started),
	}
	switch {
	case err == nil:
		m.logger.Info("reply completed", attrs...)
	case status == chat.StatusCanceled:
		m.logger.Info("reply canceled", attrs...)
	default:
		m.logger.Error("reply failed", append(attrs, "error", err)...)
	}

	meta := eventstream.ReplyMeta{
		ChatKey:     h.key,
		StartedAt:   started,
		CompletedAt: completed,
		Attempts:    h.Attempts(),
		Characters:  characters,
	}
	if err != nil {
		meta.Error = err.Error()
	}
	if !IsLocalKey(h.key) {
		meta.ChatID = h.key
	}

	job := worker.Job{Event: eventstream.NewReplyEvent(eventType, m.cfg.Source, meta)}
	if meta.ChatID != "" {
		job.Chat = &final
	}
	m.pool.Enqueue(job)

	if err == nil && m.cfg.RefreshOnComplete {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		if rerr := m.Refresh(refreshCtx); rerr != nil {
			m.logger.Warn("refresh after reply failed", "chat", h.key, "error", rerr)
		}
		cancel()
	}

	h.err = err
	close(h.done)
}

// Refresh fetches the authoritative chat list and reconciles the store with
// it:
//
//   - known chats without an active reply are reconciled by position;
//   - a settled local chat is renamed to the newest unknown backend chat
//     that opens with the same user message;
//   - remaining unknown backend chats are added;
//   - backend chats no longer listed are removed.
//
// The authoritative list then replaces the cache contents, after any cache
// writes already queued.
func (m *Manager) Refresh(ctx context.Context) error {
	chats, err := m.cfg.Backend.ListChats(ctx)
	if err != nil {
		return fmt.Errorf("refreshing chats: %w", err)
	}

	m.mu.Lock()
	m.reconcileLocked(chats)
	m.mu.Unlock()

	if m.cfg.Cache != nil {
		if err := m.pool.Run(ctx, worker.Job{Replace: true, Chats: chats}); err != nil {
			return fmt.Errorf("caching chats: %w", err)
		}
	}
	return nil
}

func (m *Manager) reconcileLocked(chats []chat.Chat) {
	listed := make(map[string]bool, len(chats))
	var unknown []chat.Chat

	for _, sc := range chats {
		listed[sc.ID] = true
		if _, ok := m.store.Get(sc.ID); !ok {
			unknown = append(unknown, sc)
			continue
		}
		if _, busy := m.active[sc.ID]; busy {
			continue
		}
		_, _ = m.store.Apply(sc.ID, func(local chat.Chat) chat.Chat {
			return chat.Reconcile(local, sc)
		})
	}

	for _, key := range m.store.Keys() {
		if _, busy := m.active[key]; busy {
			continue
		}

		if !IsLocalKey(key) {
			if !listed[key] {
				m.logger.Debug("chat removed by backend", "chat", key)
				m.store.Delete(key)
			}
			continue
		}

		local, _ := m.store.Get(key)
		i := adoptionCandidate(local, unknown)
		if i < 0 {
			continue
		}

		sc := unknown[i]
		unknown = slices.Delete(unknown, i, i+1)
		if err := m.store.Rekey(key, sc.ID); err != nil {
			m.logger.Warn("could not rename local chat", "chat", key, "id", sc.ID, "error", err)
			continue
		}
		_, _ = m.store.Apply(sc.ID, func(l chat.Chat) chat.Chat {
			return chat.Reconcile(l, sc)
		})
		m.logger.Debug("local chat adopted", "chat", key, "id", sc.ID)
	}

	for _, sc := range unknown {
		m.store.Put(sc.ID, sc)
	}
}

// adoptionCandidate returns the index of the newest chat in candidates whose
// opening user message matches local's, or -1.
func adoptionCandidate(local chat.Chat, candidates []chat.Chat) int {
	opening, ok := local.Opening()
	if !ok {
		return -1
	}

	best := -1
	for i, c := range candidates {
		first, ok := c.Opening()
		if !ok || first.Content != opening.Content {
			continue
		}
		if best < 0 || c.CreatedAt.After(candidates[best].CreatedAt) {
			best = i
		}
	}
	return best
}

// LoadCache seeds the store with cached chats it does not hold yet, for
// offline use. It returns how many chats were added.
func (m *Manager) LoadCache(ctx context.Context) (int, error) {
	if m.cfg.Cache == nil {
		return 0, nil
	}

	cached, err := m.cfg.Cache.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading cached chats: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	added := 0
	for _, c := range cached {
		if _, ok := m.store.Get(c.ID); ok {
			continue
		}
		m.store.Put(c.ID, c)
		added++
	}
	return added, nil
}

// Delete removes the chat at key from the backend, the store and the cache.
// A chat with an active reply cannot be deleted.
func (m *Manager) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	key = m.store.Resolve(key)
	if _, busy := m.active[key]; busy {
		return ErrStreamActive
	}
	if _, ok := m.store.Get(key); !ok {
		return ErrUnknownChat
	}

	if !IsLocalKey(key) {
		if err := m.cfg.Backend.DeleteChat(ctx, key); err != nil {
			return err
		}
		m.pool.Enqueue(worker.Job{DeleteID: key})
	}

	m.store.Delete(key)
	return nil
}

// DeleteAll removes every chat from the backend, the store and the cache.
// It fails with ErrStreamActive while any reply is streaming.
func (m *Manager) DeleteAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if len(m.active) > 0 {
		return ErrStreamActive
	}

	if err := m.cfg.Backend.DeleteAllChats(ctx); err != nil {
		return err
	}

	m.store.Clear()
	if m.cfg.Cache != nil {
		if err := m.pool.Run(ctx, worker.Job{ClearAll: true}); err != nil {
			return fmt.Errorf("clearing cache: %w", err)
		}
	}
	return nil
}

// Close cancels every active reply, waits for them to settle and drains
// pending cache and event work.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	handles := make([]*Handle, 0, len(m.active))
	for _, h := range m.active {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}
	m.running.Wait()

	m.pool.Close()
	return nil
}

// Handle tracks one streaming reply.
type Handle struct {
	key      string
	cancel   context.CancelFunc
	done     chan struct{}
	err      error
	attempts atomic.Int32
}

// Key returns the chat key the reply streams into. For a new chat this is
// the local key; Manager.Resolve maps it to the backend ID once adopted.
func (h *Handle) Key() string {
	return h.key
}

// Done is closed once the reply has settled.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the reply settles and returns its outcome: nil, the
// context error after cancellation, or the stream error.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// Cancel stops the reply. Text already merged stays in the transcript.
func (h *Handle) Cancel() {
	h.cancel()
}

// Attempts returns the number of the current (or last) attempt.
func (h *Handle) Attempts() int {
	return int(h.attempts.Load())
}

// Package backendtest runs an in-process LocalMind backend for tests. It
// speaks the same wire protocol as the real backend: replies stream as
// "data: <chunk>" frames with heartbeats and a closing "complete" event.
package backendtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/localmind/smriti/pkg/backend"
	"github.com/localmind/smriti/pkg/chat"
)

// Epoch is the creation time of the first chat; each later chat is one
// minute newer.
var Epoch = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

// GreetingMessage is the assistant message the backend seeds a chat with
// after all chats were deleted.
const GreetingMessage = "Hi, I'm Smriti, an AI chatbot running completely locally on your system with no external dependencies."

// Fault alters one streaming request.
type Fault struct {
	// Status, if non-zero, is returned instead of a stream.
	Status int

	// DropAfter, if positive, drops the connection after that many reply
	// chunks.
	DropAfter int
}

// Server is a fake backend.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	chats    []chat.Chat
	profiles map[string]backend.Profile
	streams  int
	nextID   int
	nextMsg  int

	// Reply returns the chunks streamed for message. Defaults to
	// EchoReply. Payloads lose surrounding whitespace on the wire, so
	// chunks should not start or end with spaces.
	Reply func(message string) []string

	// Faults is keyed by the 1-based number of the streaming request.
	Faults map[int]Fault

	// Hold, when non-nil, pauses every stream after its first chunk until
	// the channel is closed or the client goes away.
	Hold chan struct{}
}

// EchoReply streams message back in two halves.
func EchoReply(message string) []string {
	mid := len(message) / 2
	return []string{message[:mid], message[mid:]}
}

// NewServer starts a fake backend. Close it when done.
func NewServer() *Server {
	s := &Server{
		profiles: make(map[string]backend.Profile),
		Reply:    EchoReply,
		Faults:   make(map[int]Fault),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/chats", s.handleListChats)
	mux.HandleFunc("DELETE /api/chat/{id}", s.handleDeleteChat)
	mux.HandleFunc("DELETE /api/chats", s.handleDeleteAllChats)
	mux.HandleFunc("GET /api/user", s.handleGetUser)
	mux.HandleFunc("PUT /api/user", s.handleUpdateUser)
	mux.HandleFunc("POST /api/create-user", s.handleCreateUser)

	s.Server = httptest.NewServer(mux)
	return s
}

// NewClient returns a backend client for s.
func (s *Server) NewClient() *backend.Client {
	c, err := backend.NewClient(backend.Config{
		BaseURL:  s.URL,
		Model:    "deepseek",
		Username: "ada",
	})
	if err != nil {
		panic(err)
	}
	return c
}

// Chats returns a copy of the stored chats.
func (s *Server) Chats() []chat.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]chat.Chat, 0, len(s.chats))
	for _, c := range s.chats {
		out = append(out, c.Clone())
	}
	return out
}

// Streams returns how many streaming requests were received.
func (s *Server) Streams() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streams
}

// AddChat stores a chat with the given alternating user/assistant
// contents and returns it.
func (s *Server) AddChat(title string, contents ...string) chat.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.newChatLocked(title)
	for i, content := range contents {
		role := chat.RoleUser
		if i%2 == 1 {
			role = chat.RoleAssistant
		}
		s.appendLocked(c.ID, role, content)
	}
	return s.chats[s.indexLocked(c.ID)].Clone()
}

// SetProfile stores a profile.
func (s *Server) SetProfile(p backend.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.Username] = p
}

// Profile returns the stored profile for username.
func (s *Server) Profile(username string) (backend.Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[username]
	return p, ok
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
		ChatID  string `json:"chatId,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "User Prompt is required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.streams++
	fault := s.Faults[s.streams]
	if fault.Status != 0 {
		s.mu.Unlock()
		http.Error(w, http.StatusText(fault.Status), fault.Status)
		return
	}

	chatID := req.ChatID
	if chatID == "" {
		chatID = s.newChatLocked("New Chat").ID
	} else if s.indexLocked(chatID) < 0 {
		s.mu.Unlock()
		http.Error(w, "Invalid chat ID", http.StatusBadRequest)
		return
	}
	s.appendLocked(chatID, chat.RoleUser, req.Message)
	chunks := s.Reply(req.Message)
	hold := s.Hold
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher := w.(http.Flusher)

	fmt.Fprint(w, "data: \n\n")
	flusher.Flush()

	for i, chunk := range chunks {
		if fault.DropAfter > 0 && i == fault.DropAfter {
			panic(http.ErrAbortHandler)
		}

		fmt.Fprintf(w, "data: %s\n\n", chunk)
		flusher.Flush()

		if i == 0 && hold != nil {
			select {
			case <-hold:
			case <-r.Context().Done():
				return
			}
		}
	}

	s.mu.Lock()
	s.appendLocked(chatID, chat.RoleAssistant, strings.Join(chunks, ""))
	s.mu.Unlock()

	fmt.Fprint(w, "event: complete\ndata: done\n\n")
	flusher.Flush()
}

func (s *Server) handleListChats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Chats())
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(r.PathValue("id"))
	if i < 0 {
		http.Error(w, "Failed to delete chat", http.StatusNotFound)
		return
	}
	s.chats = slices.Delete(s.chats, i, i+1)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteAllChats(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chats = nil
	greet := s.newChatLocked("Greet User")
	s.appendLocked(greet.ID, chat.RoleAssistant, GreetingMessage)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	p, ok := s.Profile(r.URL.Query().Get("userId"))
	if !ok {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req backend.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	p := s.profiles[req.Username]
	p.Username = req.Username
	p.AboutMe = req.AboutMe
	p.Preferences = req.Preferences
	p.UpdatedAt = time.Now().UTC()
	s.profiles[req.Username] = p
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		AboutMe  string `json:"aboutMe"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[req.Username]; exists {
		http.Error(w, "Username already exists", http.StatusConflict)
		return
	}

	s.nextID++
	now := time.Now().UTC()
	p := backend.Profile{
		ID:        "u" + strconv.Itoa(s.nextID),
		Username:  req.Username,
		AboutMe:   req.AboutMe,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.profiles[req.Username] = p

	writeJSON(w, http.StatusCreated, map[string]string{
		"status":   "success",
		"message":  "User created successfully",
		"userId":   p.ID,
		"username": p.Username,
	})
}

func (s *Server) newChatLocked(title string) chat.Chat {
	s.nextID++
	created := Epoch.Add(time.Duration(s.nextID) * time.Minute)
	c := chat.Chat{
		ID:        "c" + strconv.Itoa(s.nextID),
		Title:     title,
		Messages:  []chat.Message{},
		CreatedAt: created,
		UpdatedAt: created,
	}
	s.chats = append(s.chats, c)
	return c
}

func (s *Server) appendLocked(chatID string, role chat.Role, content string) {
	i := s.indexLocked(chatID)
	s.nextMsg++

	c := s.chats[i].Clone()
	ts := c.UpdatedAt.Add(time.Second)
	c.Messages = append(c.Messages, chat.Message{
		ID:        "m" + strconv.Itoa(s.nextMsg),
		Role:      role,
		Content:   content,
		Timestamp: ts,
	})
	c.UpdatedAt = ts
	s.chats[i] = c
}

func (s *Server) indexLocked(id string) int {
	return slices.IndexFunc(s.chats, func(c chat.Chat) bool { return c.ID == id })
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

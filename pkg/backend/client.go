// Package backend is the HTTP client for the LocalMind chat backend. It builds
// the streaming request descriptor consumed by the stream package and wraps
// the CRUD endpoints for chats and the user profile.
package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/localmind/smriti/pkg/chat"
	"github.com/localmind/smriti/pkg/logger"
	"github.com/localmind/smriti/pkg/stream"
)

const (
	// DefaultTimeout bounds every non-streaming request.
	DefaultTimeout = 30 * time.Second

	// maxErrorBody caps how much of an error response is kept on StatusError.
	maxErrorBody = 4 * 1024
)

// Config configures a Client.
type Config struct {
	// BaseURL is the backend root, e.g. "http://localhost:8080".
	BaseURL string

	// Model is sent with every streaming request.
	Model string

	// Username selects the profile for GetProfile / UpdateProfile when the
	// caller passes none.
	Username string

	// Timeout for CRUD requests. Streaming requests are bounded only by
	// their context.
	Timeout time.Duration

	// Transport overrides the HTTP transport of both clients, mainly for
	// tests.
	Transport http.RoundTripper

	Logger *slog.Logger
}

// Client talks to the backend.
type Client struct {
	baseURL  *url.URL
	model    string
	username string

	http   *http.Client
	stream *http.Client
	logger *slog.Logger
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("backend base URL is required")
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing backend base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend base URL %q must be http or https", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := cfg.Transport
	if transport == nil {
		transport = newTransport()
	}

	return &Client{
		baseURL:  base,
		model:    cfg.Model,
		username: cfg.Username,
		http:     &http.Client{Timeout: timeout, Transport: transport},
		stream:   &http.Client{Transport: transport},
		logger:   logger.OrNop(cfg.Logger),
	}, nil
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
}

// BaseURL returns the normalized backend root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Streamer returns the Doer used for streaming requests. Unlike the CRUD
// client it carries no overall timeout: a reply may take minutes.
func (c *Client) Streamer() stream.Doer {
	return c.stream
}

// chatRequest is the body of POST /api/chat.
type chatRequest struct {
	Message string `json:"message"`
	Model   string `json:"model,omitempty"`
	ChatID  string `json:"chatId,omitempty"`
}

// StreamRequest describes a streaming send of message. An empty chatID asks
// the backend to start a new chat.
func (c *Client) StreamRequest(message, chatID string) (stream.Request, error) {
	body, err := json.Marshal(chatRequest{
		Message: message,
		Model:   c.model,
		ChatID:  chatID,
	})
	if err != nil {
		return stream.Request{}, fmt.Errorf("marshaling chat request: %w", err)
	}

	return stream.Request{
		Method: http.MethodPost,
		URL:    c.endpoint("/api/chat", nil),
		Header: http.Header{
			"Content-Type": []string{"application/json"},
			"Accept":       []string{"text/event-stream"},
		},
		Body: body,
	}, nil
}

// ListChats returns every chat known to the backend.
func (c *Client) ListChats(ctx context.Context) ([]chat.Chat, error) {
	var chats []chat.Chat
	if err := c.do(ctx, http.MethodGet, "/api/chats", nil, nil, &chats); err != nil {
		return nil, fmt.Errorf("listing chats: %w", err)
	}
	return chats, nil
}

// DeleteChat removes one chat.
func (c *Client) DeleteChat(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("chat id is required")
	}
	if err := c.do(ctx, http.MethodDelete, "/api/chat/"+url.PathEscape(id), nil, nil, nil); err != nil {
		return fmt.Errorf("deleting chat %s: %w", id, err)
	}
	return nil
}

// DeleteAllChats removes every chat.
func (c *Client) DeleteAllChats(ctx context.Context) error {
	if err := c.do(ctx, http.MethodDelete, "/api/chats", nil, nil, nil); err != nil {
		return fmt.Errorf("deleting all chats: %w", err)
	}
	return nil
}

// GetProfile fetches the profile for username, or for the configured user
// when username is empty.
func (c *Client) GetProfile(ctx context.Context, username string) (*Profile, error) {
	if username == "" {
		username = c.username
	}

	query := url.Values{}
	if username != "" {
		query.Set("userId", username)
	}

	profile := &Profile{}
	if err := c.do(ctx, http.MethodGet, "/api/user", query, nil, profile); err != nil {
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	return profile, nil
}

// UpdateProfile overwrites the profile settings. An empty Username falls back
// to the configured user.
func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) error {
	if update.Username == "" {
		update.Username = c.username
	}
	if err := c.do(ctx, http.MethodPut, "/api/user", nil, update, nil); err != nil {
		return fmt.Errorf("updating profile: %w", err)
	}
	return nil
}

// CreateProfile registers a new user and returns the backend's user id.
func (c *Client) CreateProfile(ctx context.Context, username, aboutMe string) (string, error) {
	if username == "" {
		username = c.username
	}

	var created createProfileResponse
	req := createProfileRequest{Username: username, AboutMe: aboutMe}
	if err := c.do(ctx, http.MethodPost, "/api/create-user", nil, req, &created); err != nil {
		return "", fmt.Errorf("creating profile: %w", err)
	}
	return created.UserID, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = query.Encode()
	return u.String()
}

// do sends a JSON request and decodes a JSON response into out when out is
// non-nil. Non-2xx responses become *StatusError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("backend request", "method", method, "path", path)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(msg)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

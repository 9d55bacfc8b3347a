// Package stream consumes a streamed assistant reply over HTTP.
//
// A Session performs exactly one attempt: it sends the request, feeds the
// response body through the sse package, and hands every extracted payload
// to a caller-supplied sink. A Supervisor wraps Sessions with bounded
// exponential backoff.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync/atomic"

	"github.com/localmind/smriti/pkg/logger"
	"github.com/localmind/smriti/pkg/sse"
)

// DefaultCompleteEvent is the event type the LocalMind backend sends after the
// last payload ("event: complete\ndata: done").
const DefaultCompleteEvent = "complete"

// State is the lifecycle position of a Session.
type State int32

const (
	StateNotStarted State = iota
	StateConnecting
	StateStreaming
	StateCompleted
	StateFailed
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// sessionConfig holds the optional knobs of a Session.
type sessionConfig struct {
	// Tee, if set, receives a verbatim copy of every response byte.
	Tee io.Writer

	// CompleteEvent is the SSE event type that ends the stream early. Frames of
	// this type are not delivered. Empty disables the check.
	CompleteEvent string

	// ChunkSize is the per-read buffer size.
	ChunkSize int

	Logger *slog.Logger
}

// SessionOption configures a Session.
type SessionOption func(*sessionConfig)

// WithTee copies every raw response byte to w.
func WithTee(w io.Writer) SessionOption {
	return func(c *sessionConfig) { c.Tee = w }
}

// WithCompleteEvent sets the event type that ends the stream. An empty name
// disables the check.
func WithCompleteEvent(name string) SessionOption {
	return func(c *sessionConfig) { c.CompleteEvent = name }
}

// WithChunkSize sets the per-read buffer size.
func WithChunkSize(n int) SessionOption {
	return func(c *sessionConfig) { c.ChunkSize = n }
}

// WithSessionLogger sets the logger used for debug output.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(c *sessionConfig) { c.Logger = l }
}

// Session is a single, non-restartable streaming attempt.
type Session struct {
	doer   Doer
	req    Request
	config sessionConfig
	logger *slog.Logger

	state    atomic.Int32
	payloads atomic.Int64
}

// NewSession prepares a session. Nothing is sent until Run.
func NewSession(doer Doer, req Request, opts ...SessionOption) *Session {
	config := sessionConfig{CompleteEvent: DefaultCompleteEvent}
	for _, opt := range opts {
		opt(&config)
	}

	return &Session{
		doer:   doer,
		req:    req,
		config: config,
		logger: logger.OrNop(config.Logger),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Delivered returns how many payloads have been handed to the sink.
func (s *Session) Delivered() int64 {
	return s.payloads.Load()
}

// Run performs the request and calls onPayload, synchronously and in arrival
// order, for every payload in the response. It returns nil once the body is
// exhausted (or the complete event arrives).
//
// A *TransportError reports connection failures, non-success statuses and
// read failures. ErrUnsupportedTransport reports a successful response without a body.
// If ctx is canceled Run returns the context's error, and onPayload is not
// called again after cancellation is observed.
func (s *Session) Run(ctx context.Context, onPayload func(string)) error {
	if !s.state.CompareAndSwap(int32(StateNotStarted), int32(StateConnecting)) {
		return ErrSessionUsed
	}

	httpReq, err := s.req.HTTPRequest(ctx)
	if err != nil {
		s.setState(StateFailed)
		return err
	}

	s.logger.Debug("opening stream",
		"method", httpReq.Method,
		"url", s.req.URL,
	)

	resp, err := s.doer.Do(httpReq)
	if err != nil {
		return s.fail(ctx, &TransportError{Err: err})
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
		return s.fail(ctx, &TransportError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response status %q", resp.Status),
		})
	}
	if resp.Body == nil {
		s.setState(StateFailed)
		return ErrUnsupportedTransport
	}
	defer resp.Body.Close()

	s.setState(StateStreaming)

	reader := sse.NewReaderSize(resp.Body, s.config.Tee, s.config.ChunkSize)
	for {
		frame, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return s.fail(ctx, &TransportError{Err: fmt.Errorf("reading stream: %w", err)})
		}

		if ctx.Err() != nil {
			return s.fail(ctx, ctx.Err())
		}

		if s.config.CompleteEvent != "" && sse.Parse(frame).Type == s.config.CompleteEvent {
			s.logger.Debug("complete event received")
			break
		}

		payload, ok := sse.Extract(frame)
		if !ok {
			continue
		}

		s.payloads.Add(1)
		onPayload(payload)
	}

	s.setState(StateCompleted)
	s.logger.Debug("stream completed", "payloads", s.Delivered())
	return nil
}

// Payloads exposes the session as a lazy, finite sequence. Iteration starts
// the request; breaking out of the loop cancels it. A terminal error is
// yielded once, with an empty payload, after the last delivered payload.
func (s *Session) Payloads(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stopped := false
		err := s.Run(ctx, func(payload string) {
			if stopped {
				return
			}
			if !yield(payload, nil) {
				stopped = true
				cancel()
			}
		})

		if err != nil && !stopped {
			yield("", err)
		}
	}
}

// fail records the terminal state for err. A canceled context always wins
// over the transport error it caused, so cancellation is never mistaken for
// a retryable failure.
func (s *Session) fail(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		s.setState(StateCanceled)
		s.logger.Debug("stream canceled", "payloads", s.Delivered())
		return ctxErr
	}

	s.setState(StateFailed)
	s.logger.Debug("stream failed", "error", err, "payloads", s.Delivered())
	return err
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
}

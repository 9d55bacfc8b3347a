package stream

import (
	"context"
	"log/slog"
	"time"

	"github.com/localmind/smriti/pkg/logger"
)

const (
	// DefaultMaxAttempts is the total number of attempts, including the first.
	DefaultMaxAttempts = 6

	// DefaultBaseDelay is the wait before the first retry. Each following
	// retry doubles it.
	DefaultBaseDelay = time.Second

	// MaxDelay caps a single backoff wait.
	MaxDelay = time.Hour
)

// SleepFunc waits for d or until ctx is done, whichever comes first.
type SleepFunc func(ctx context.Context, d time.Duration) error

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithMaxAttempts sets the attempt budget. Values below 1 are treated as 1.
func WithMaxAttempts(n int) SupervisorOption {
	return func(s *Supervisor) { s.maxAttempts = max(n, 1) }
}

// WithBaseDelay sets the first backoff delay.
func WithBaseDelay(d time.Duration) SupervisorOption {
	return func(s *Supervisor) { s.baseDelay = d }
}

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(fn SleepFunc) SupervisorOption {
	return func(s *Supervisor) { s.sleep = fn }
}

// WithOnRetry registers a hook called right before each new attempt.
// attempt is the 1-based number of the attempt about to start, err the
// failure that caused it.
func WithOnRetry(fn func(attempt int, err error)) SupervisorOption {
	return func(s *Supervisor) { s.onRetry = fn }
}

// WithLogger sets the supervisor's logger. It is also handed to every
// session unless a session option overrides it.
func WithLogger(l *slog.Logger) SupervisorOption {
	return func(s *Supervisor) { s.logger = logger.OrNop(l) }
}

// WithSessionOptions sets options applied to every session the supervisor
// creates.
func WithSessionOptions(opts ...SessionOption) SupervisorOption {
	return func(s *Supervisor) { s.sessionOpts = append(s.sessionOpts, opts...) }
}

// Supervisor runs a request to completion, retrying transport failures with
// exponential backoff. Each attempt gets a fresh Session. Payloads delivered
// by a failed attempt are not retracted.
type Supervisor struct {
	doer        Doer
	maxAttempts int
	baseDelay   time.Duration
	sleep       SleepFunc
	onRetry     func(attempt int, err error)
	logger      *slog.Logger
	sessionOpts []SessionOption
}

// NewSupervisor returns a Supervisor with DefaultMaxAttempts and
// DefaultBaseDelay unless overridden.
func NewSupervisor(doer Doer, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		doer:        doer,
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		sleep:       Sleep,
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxAttempts returns the attempt budget.
func (s *Supervisor) MaxAttempts() int {
	return s.maxAttempts
}

// Delay returns the wait after the failure of the 0-based attempt i, never
// more than MaxDelay.
func (s *Supervisor) Delay(i int) time.Duration {
	if s.baseDelay <= 0 || i <= 0 {
		return min(max(s.baseDelay, 0), MaxDelay)
	}
	if s.baseDelay > MaxDelay>>i {
		return MaxDelay
	}
	return s.baseDelay << i
}

// Run executes req until one attempt succeeds, a non-retryable error
// occurs, ctx is canceled, or the attempt budget is spent. In the last case
// the result is a *RetriesExhaustedError wrapping the final failure.
func (s *Supervisor) Run(ctx context.Context, req Request, onPayload func(string)) error {
	sessionOpts := append([]SessionOption{WithSessionLogger(s.logger)}, s.sessionOpts...)

	var last error
	for i := range s.maxAttempts {
		if i > 0 && s.onRetry != nil {
			s.onRetry(i+1, last)
		}

		session := NewSession(s.doer, req, sessionOpts...)
		err := session.Run(ctx, onPayload)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		last = err

		if i == s.maxAttempts-1 {
			break
		}

		delay := s.Delay(i)
		s.logger.Warn("stream attempt failed, retrying",
			"attempt", i+1,
			"max_attempts", s.maxAttempts,
			"delay", delay,
			"error", err,
		)
		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
	}

	s.logger.Error("stream retries exhausted",
		"attempts", s.maxAttempts,
		"error", last,
	)
	return &RetriesExhaustedError{Attempts: s.maxAttempts, Last: last}
}

// Sleep is the default SleepFunc: a timer wait that aborts on ctx.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

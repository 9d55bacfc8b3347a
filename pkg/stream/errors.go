package stream

import (
	"errors"
	"fmt"
)

// ErrUnsupportedTransport is returned when the transport cannot deliver the
// response body incrementally. It is never retried.
var ErrUnsupportedTransport = errors.New("transport does not support streamed responses")

// ErrRetriesExhausted matches any *RetriesExhaustedError via errors.Is.
var ErrRetriesExhausted = errors.New("stream retries exhausted")

// ErrSessionUsed is returned by Session.Run on a second call. Sessions are
// not restartable; build a new one per attempt.
var ErrSessionUsed = errors.New("stream session already started")

// TransportError is a retryable failure: the connection could not be
// established, the response status was not a success, or reading the body
// failed part way through.
type TransportError struct {
	// StatusCode is the HTTP status for a non-success response, 0 otherwise.
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("stream transport: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("stream transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RetriesExhaustedError is returned by the Supervisor once every attempt has
// failed with a TransportError.
type RetriesExhaustedError struct {
	Attempts int

	// Last is the failure of the final attempt.
	Last error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("stream failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Last
}

func (e *RetriesExhaustedError) Is(target error) bool {
	return target == ErrRetriesExhausted
}

// IsRetryable reports whether err is a TransportError.
func IsRetryable(err error) bool {
	var terr *TransportError
	return errors.As(err, &terr)
}

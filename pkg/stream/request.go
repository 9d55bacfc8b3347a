package stream

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
)

// Doer sends an HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Request fully describes one streaming request. It is a value so the same
// descriptor can be replayed by every retry attempt.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// HTTPRequest builds a fresh *http.Request bound to ctx. Each call gets its
// own body reader.
func (r Request) HTTPRequest(ctx context.Context) (*http.Request, error) {
	method := r.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, bytes.NewReader(r.Body))
	if err != nil {
		return nil, fmt.Errorf("creating stream request: %w", err)
	}

	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "text/event-stream")
	}

	return req, nil
}

// Package sse consumes Server-Sent Events from a chunked HTTP body.
//
// The pipeline has two stages. A Decoder turns raw byte chunks, split at
// arbitrary points, into complete frames (text delimited by a blank line).
// Extract then pulls the payload out of one frame. Reader glues both to an
// io.Reader and can tee the raw bytes to a second writer for debugging.
//
// This package intentionally does NOT provide SSE writer or server
// capabilities.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// Event is a fully parsed frame.
type Event struct {
	// Type is the SSE event type from the "event:" field.
	// An empty string means the default "message" type per the SSE spec.
	Type string

	// Data is the concatenated contents of all "data:" lines for this event,
	// joined with "\n".
	Data string

	// ID is the last event ID from the "id:" field, if present.
	ID string
}

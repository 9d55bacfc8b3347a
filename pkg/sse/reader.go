package sse

import (
	"errors"
	"fmt"
	"io"
)

const defaultChunkSize = 4 * 1024

// Reader pulls frames out of an io.Reader, typically an HTTP response body.
// Optionally every raw byte read is also written, untouched, to a tee
// destination:
//
// ┌──────────────────┐
// │ source io.Reader │
// └──────────────────┘
// │
// ▼
// ┌──────────────────┐   ┌───────────────────────┐
// │   Reader.Next()  │──▶│ tee io.Writer (opt.)  │
// └──────────────────┘   └───────────────────────┘
// │
// ▼
// ┌──────────────────┐
// │  frame (string)  │
// └──────────────────┘
type Reader struct {
	src   io.Reader
	tee   io.Writer
	dec   *Decoder
	chunk []byte

	ready []string
	eof   bool
	err   error
}

// NewReader returns a Reader over src. tee may be nil.
func NewReader(src io.Reader, tee io.Writer) *Reader {
	return NewReaderSize(src, tee, defaultChunkSize)
}

// NewReaderSize is NewReader with an explicit per-read chunk size.
func NewReaderSize(src io.Reader, tee io.Writer, size int) *Reader {
	if size <= 0 {
		size = defaultChunkSize
	}

	return &Reader{
		src:   src,
		tee:   tee,
		dec:   NewDecoder(),
		chunk: make([]byte, size),
	}
}

// Next blocks until a complete frame is available and returns it. After the
// source is exhausted, and any unterminated trailing frame has been
// returned, Next returns io.EOF. Any other error comes from the source or
// from the tee writer.
func (r *Reader) Next() (string, error) {
	for len(r.ready) == 0 {
		if r.eof {
			return "", io.EOF
		}

		if err := r.fill(); err != nil {
			return "", err
		}
	}

	frame := r.ready[0]
	r.ready = r.ready[1:]
	return frame, nil
}

// fill performs one read from the source and queues the frames it completes.
func (r *Reader) fill() error {
	if r.err != nil {
		return r.err
	}

	n, err := r.src.Read(r.chunk)
	if n > 0 {
		if r.tee != nil {
			if _, werr := r.tee.Write(r.chunk[:n]); werr != nil {
				return fmt.Errorf("writing tee: %w", werr)
			}
		}
		r.ready = append(r.ready, r.dec.Feed(r.chunk[:n])...)
	}

	switch {
	case errors.Is(err, io.EOF):
		r.eof = true
		r.ready = append(r.ready, r.dec.Flush()...)
		return nil
	case err != nil:
		// Frames completed by the same read are still handed out first.
		if len(r.ready) > 0 {
			r.err = err
			return nil
		}
		return err
	default:
		return nil
	}
}

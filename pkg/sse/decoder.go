package sse

import (
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const frameDelimiter = "\n\n"

// Decoder splits a byte stream delivered in arbitrary chunks into complete
// frames. It is not safe for concurrent use.
//
// Bytes are decoded as UTF-8 incrementally: a multi-byte rune split across
// two chunks is held back until its remaining bytes arrive. CR-LF line
// endings are normalized to LF before the buffer is split on blank lines.
type Decoder struct {
	utf8 transform.Transformer

	// pending holds the leading bytes of a rune that has not fully arrived.
	pending []byte

	// residual is decoded text not yet terminated by a blank line.
	residual string
}

// NewDecoder returns an empty Decoder.
func NewDecoder() *Decoder {
	return &Decoder{
		utf8: unicode.UTF8.NewDecoder(),
	}
}

// Feed consumes the next chunk and returns every frame it completed, in
// arrival order. The returned slice is empty when the chunk did not finish a
// frame.
func (d *Decoder) Feed(chunk []byte) []string {
	text := d.decode(chunk, false)
	if text == "" {
		return nil
	}

	return d.split(d.residual + text)
}

// Flush signals end of stream. A non-empty residual is returned as a final
// frame, since producers may omit the blank line after the last event. The
// Decoder is reset and may be reused afterwards.
func (d *Decoder) Flush() []string {
	frames := d.split(d.residual + d.decode(nil, true))

	last := strings.TrimSuffix(d.residual, "\n")
	if last != "" {
		frames = append(frames, last)
	}

	d.residual = ""
	d.pending = nil
	d.utf8.Reset()

	return frames
}

// Buffered reports how many decoded bytes are waiting for a frame delimiter.
func (d *Decoder) Buffered() int {
	return len(d.residual) + len(d.pending)
}

// split normalizes buf, stores the unterminated tail as the new residual and
// returns the complete, non-empty frames in front of it.
func (d *Decoder) split(buf string) []string {
	buf = strings.ReplaceAll(buf, "\r\n", "\n")

	parts := strings.Split(buf, frameDelimiter)
	d.residual = parts[len(parts)-1]

	var frames []string
	for _, part := range parts[:len(parts)-1] {
		if part == "" {
			// Runs of blank lines, e.g. keep-alive newlines.
			continue
		}
		frames = append(frames, part)
	}

	return frames
}

// decode converts chunk (prefixed by any held-back rune bytes) to text.
// Invalid sequences become U+FFFD. Unless atEOF is set, an incomplete
// trailing rune is kept in d.pending for the next call.
func (d *Decoder) decode(chunk []byte, atEOF bool) string {
	src := make([]byte, 0, len(d.pending)+len(chunk))
	src = append(src, d.pending...)
	src = append(src, chunk...)
	d.pending = nil

	if len(src) == 0 {
		return ""
	}

	var out strings.Builder
	// Every source byte expands to at most one replacement character.
	dst := make([]byte, len(src)*len(string(utf8.RuneError))+utf8.UTFMax)

	for len(src) > 0 {
		nDst, nSrc, err := d.utf8.Transform(dst, src, atEOF)
		out.Write(dst[:nDst])
		src = src[nSrc:]

		switch {
		case err == nil:
			return out.String()
		case errors.Is(err, transform.ErrShortSrc):
			d.pending = append(d.pending, src...)
			return out.String()
		case errors.Is(err, transform.ErrShortDst):
			continue
		default:
			// The UTF-8 decoder replaces rather than rejects, so any other
			// error means the transformer is broken; keep what we have.
			return out.String()
		}
	}

	return out.String()
}

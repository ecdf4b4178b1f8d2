// Package bufwriter implements a bounded writer over a fixed-capacity,
// caller-supplied byte buffer. Writes are clipped to the remaining capacity
// and never touch bytes past the end of the buffer.
package bufwriter

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument is returned for a nil or zero-length destination.
var ErrInvalidArgument = errors.New("invalid destination buffer")

// Writer tracks a write cursor and remaining capacity inside buf.
type Writer struct {
	buf       []byte
	n         int
	truncated bool
}

// New returns a Writer over buf. The capacity is len(buf); bytes between
// len and cap are never written.
func New(buf []byte) (*Writer, error) {
	if len(buf) == 0 {
		return nil, ErrInvalidArgument
	}
	return &Writer{buf: buf[:len(buf):len(buf)]}, nil
}

// Len returns the number of payload bytes written, excluding any terminator.
func (w *Writer) Len() int {
	return w.n
}

// Remaining returns the unwritten capacity.
func (w *Writer) Remaining() int {
	return len(w.buf) - w.n
}

// Full reports whether the remaining capacity is exhausted.
func (w *Writer) Full() bool {
	return w.Remaining() <= 0
}

// Truncated reports whether Retract was called.
func (w *Writer) Truncated() bool {
	return w.truncated
}

// Bytes returns the payload written so far.
func (w *Writer) Bytes() []byte {
	return w.buf[:w.n]
}

// WriteString appends s clipped to the remaining capacity and returns the
// number of bytes actually copied.
func (w *Writer) WriteString(s string) int {
	if w.truncated {
		return 0
	}
	added := copy(w.buf[w.n:], s)
	w.n += added
	return added
}

// Printf renders format and appends the result with WriteString.
func (w *Writer) Printf(format string, args ...any) int {
	return w.WriteString(fmt.Sprintf(format, args...))
}

// WriteToken appends s only if s and a trailing terminator both fit.
// Nothing is written otherwise.
func (w *Writer) WriteToken(s string) bool {
	if w.truncated || len(s) >= w.Remaining() {
		return false
	}
	w.n += copy(w.buf[w.n:], s)
	return true
}

// Retract drops the last written byte so the terminator has a slot, and
// stops all further writes.
func (w *Writer) Retract() {
	if w.n > 0 {
		w.n--
	}
	w.truncated = true
}

// Terminate writes a NUL at the cursor and returns the payload length plus
// the terminator. It returns an error when the cursor sits past the end of
// the buffer, which callers avoid by calling Retract once Full.
func (w *Writer) Terminate() (int, error) {
	if w.n >= len(w.buf) {
		return -1, fmt.Errorf("terminate at %d: buffer capacity %d exhausted", w.n, len(w.buf))
	}
	w.buf[w.n] = 0
	return w.n + 1, nil
}

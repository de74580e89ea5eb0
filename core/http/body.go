package http

import (
	"bytes"
	"io"
	"sync/atomic"

	"github.com/searchktools/conduit/core/pools"
)

// Body is a request body. It is either absent, fully buffered, or a stream
// still sitting on the connection that is read lazily and at most once.
// A non-zero limit caps how many bytes a stream may yield; exceeding it
// fails the read with ErrPayloadTooLarge.
type Body struct {
	buf      []byte
	buffered bool
	off      int

	src      io.Reader
	limit    int64
	n        int64
	err      error
	detached atomic.Bool
}

// NoBody is the empty body of requests that carry none.
func NoBody() *Body {
	return &Body{buffered: true}
}

// NewBody returns a buffered body over b.
func NewBody(b []byte) *Body {
	return &Body{buf: b, buffered: true}
}

// NewStreamBody returns a body that reads lazily from r. limit <= 0 disables the cap.
func NewStreamBody(r io.Reader, limit int64) *Body {
	return &Body{src: r, limit: limit}
}

// Buffered reports whether the whole body is already in memory.
func (b *Body) Buffered() bool {
	return b.buffered
}

// Read implements io.Reader. Once Bytes has been called, Read serves the
// cached copy.
func (b *Body) Read(p []byte) (int, error) {
	if b.buffered {
		if b.off >= len(b.buf) {
			return 0, io.EOF
		}
		n := copy(p, b.buf[b.off:])
		b.off += n
		return n, nil
	}
	if b.detached.Load() {
		return 0, ErrBodyDetached
	}
	if b.err != nil {
		return 0, b.err
	}
	if b.limit > 0 {
		remaining := b.limit + 1 - b.n
		if int64(len(p)) > remaining {
			p = p[:remaining]
		}
	}
	n, err := b.src.Read(p)
	b.n += int64(n)
	if b.limit > 0 && b.n > b.limit {
		b.err = ErrPayloadTooLarge
		return n - int(b.n-b.limit), b.err
	}
	if err != nil {
		b.err = err
	}
	return n, err
}

// Bytes materializes the body, enforcing the limit, and caches the result so
// later calls and reads see the same bytes.
func (b *Body) Bytes() ([]byte, error) {
	if b.buffered {
		return b.buf, nil
	}
	if b.n == 0 && b.err == io.EOF {
		b.buffered = true
		return nil, nil
	}
	if b.n > 0 || b.err != nil {
		if b.err != nil && b.err != io.EOF {
			return nil, b.err
		}
		return nil, ErrBodyConsumed
	}

	buf := pools.AcquireBuffer()
	defer pools.ReleaseBuffer(buf)
	if _, err := buf.ReadFrom(b); err != nil {
		return nil, err
	}
	b.buf = bytes.Clone(buf.B)
	b.buffered = true
	b.off = 0
	return b.buf, nil
}

// Discard reads and drops whatever is left of a stream, stopping after max
// bytes. It reports whether the body was fully drained.
func (b *Body) Discard(max int64) bool {
	if b.detached.Load() {
		return false
	}
	if b.buffered {
		return true
	}
	if b.err == io.EOF {
		return true
	}
	if b.err != nil {
		return false
	}
	n, err := io.CopyN(io.Discard, b, max+1)
	return err == io.EOF && n <= max
}

// Detach makes every later read of a stream fail. The connection layer uses it
// when it stops waiting for a handler that may still hold the body.
func (b *Body) Detach() {
	b.detached.Store(true)
}

// Detached reports whether Detach was called.
func (b *Body) Detached() bool {
	return b.detached.Load()
}

package http

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
)

// DefaultStreamBuffer is the channel capacity of streamed bodies.
const DefaultStreamBuffer = 100

// StreamFunc produces the chunks of a streamed body. It runs in its own
// goroutine once the connection starts writing the response, and the stream
// ends when it returns. ctx is cancelled when the consumer goes away.
type StreamFunc func(ctx context.Context, tx *StreamSender) error

// Stream is a streamed body: a producer feeding a bounded channel that the
// connection drains onto the socket. A full channel blocks the producer.
type Stream struct {
	fn   StreamFunc
	size int

	once sync.Once
	ch   chan []byte
	err  error
}

// StreamOption configures a stream.
type StreamOption func(*Stream)

// WithStreamBuffer sets the channel capacity.
func WithStreamBuffer(n int) StreamOption {
	return func(s *Stream) {
		if n > 0 {
			s.size = n
		}
	}
}

// NewStream returns a 200 response with a streamed body.
func NewStream(fn StreamFunc, opts ...StreamOption) *Response {
	s := &Stream{fn: fn, size: DefaultStreamBuffer}
	for _, opt := range opts {
		opt(s)
	}
	r := NewResponse(200)
	r.kind = BodyStream
	r.stream = s
	return r
}

// Start launches the producer and returns the channel of chunks. The channel
// is closed after the last chunk. Calling Start again returns the same channel.
// Cancelling ctx releases a producer blocked on a full channel.
func (s *Stream) Start(ctx context.Context) <-chan []byte {
	s.once.Do(func() {
		s.ch = make(chan []byte, s.size)
		go s.produce(ctx)
	})
	return s.ch
}

func (s *Stream) produce(ctx context.Context) {
	defer close(s.ch)
	defer func() {
		if v := recover(); v != nil {
			s.err = &PanicError{Value: v, Stack: debug.Stack()}
		}
	}()
	s.err = s.fn(ctx, &StreamSender{ch: s.ch, ctx: ctx})
}

// Err returns the producer's error. It is only meaningful after the channel
// returned by Start has been closed.
func (s *Stream) Err() error {
	return s.err
}

// StreamSender is the producer side of a stream.
type StreamSender struct {
	ch  chan<- []byte
	ctx context.Context
}

// Send queues one chunk, blocking while the channel is full. It fails with
// ErrStreamClosed once the consumer is gone. p must not be modified afterwards.
func (tx *StreamSender) Send(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	select {
	case tx.ch <- p:
		return nil
	case <-tx.ctx.Done():
		return ErrStreamClosed
	}
}

// SendString queues one text chunk.
func (tx *StreamSender) SendString(s string) error {
	return tx.Send([]byte(s))
}

// Sendf formats and queues one chunk.
func (tx *StreamSender) Sendf(format string, args ...any) error {
	return tx.Send(fmt.Appendf(nil, format, args...))
}

// Context is cancelled when the consumer stops reading.
func (tx *StreamSender) Context() context.Context {
	return tx.ctx
}

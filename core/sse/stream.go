package sse

import (
	"context"

	"github.com/searchktools/conduit/core/http"
)

// MIMEEventStream is the content type of event streams.
const MIMEEventStream = "text/event-stream"

// Writer sends events on a streamed response.
type Writer struct {
	tx *http.StreamSender
}

// Send writes one event. It fails once the client has gone away.
func (w *Writer) Send(event Event) error {
	return w.tx.Send(Format(event))
}

// Comment writes a comment line, typically as a keep-alive.
func (w *Writer) Comment(text string) error {
	return w.tx.Send(Comment(text))
}

// Context ends when the client goes away.
func (w *Writer) Context() context.Context {
	return w.tx.Context()
}

// Stream returns a response that runs fn and streams the events it sends.
func Stream(fn func(ctx context.Context, w *Writer) error) *http.Response {
	resp := http.NewStream(func(ctx context.Context, tx *http.StreamSender) error {
		return fn(ctx, &Writer{tx: tx})
	})
	resp.Header.Set("Content-Type", MIMEEventStream)
	resp.Header.Set("Cache-Control", "no-cache")
	resp.Header.Set("X-Accel-Buffering", "no")
	return resp
}

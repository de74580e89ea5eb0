package http

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/searchktools/conduit/core/codec"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name        string
		resp        *Response
		status      int
		contentType string
		kind        BodyKind
	}{
		{"text", Text("hi"), 200, MIMETextPlain, BodyBuffered},
		{"html", HTML("<p>"), 200, MIMETextHTML, BodyBuffered},
		{"json", JSON(map[string]int{"a": 1}), 200, MIMEJSON, BodyBuffered},
		{"json failure", JSON(make(chan int)), 500, MIMETextPlain, BodyBuffered},
		{"no content", NoContent(), 204, "", BodyNone},
		{"status", Status(202), 202, "", BodyNone},
		{"redirect", Redirect(302, "/login"), 302, "", BodyNone},
		{"from nil", From(nil), 204, "", BodyNone},
		{"from string", From("s"), 200, MIMETextPlain, BodyBuffered},
		{"from bytes", From([]byte{1}), 200, MIMEOctet, BodyBuffered},
		{"from error", From(NotFound("gone")), 404, MIMETextPlain, BodyBuffered},
		{"from struct", From(struct{ A int }{1}), 200, MIMEJSON, BodyBuffered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.resp.Status)
			assert.Equal(t, tt.contentType, tt.resp.Header.Get("Content-Type"))
			assert.Equal(t, tt.kind, tt.resp.Kind())
		})
	}
}

func TestBuilder(t *testing.T) {
	resp := NewBuilder().Status(201).Header("X-Id", "7").JSON(map[string]string{"ok": "yes"})
	assert.Equal(t, 201, resp.Status)
	assert.Equal(t, "7", resp.Header.Get("X-Id"))
	assert.JSONEq(t, `{"ok":"yes"}`, string(resp.Bytes()))

	resp = NewBuilder().Header("Content-Type", "text/csv").Body([]byte("a,b"))
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	assert.Equal(t, 200, resp.Status)

	resp = NewBuilder().Status(404).Empty()
	assert.Equal(t, BodyNone, resp.Kind())
}

func TestEncodeProto(t *testing.T) {
	resp, err := Encode(codec.Protobuf, wrapperspb.String("x"))
	require.NoError(t, err)
	assert.Equal(t, "application/x-protobuf", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Bytes())

	_, err = Encode(codec.Protobuf, "not proto")
	var se *SerializationError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 500, se.StatusCode())
}

func TestStreamPreservesOrderAndTerminatesOnce(t *testing.T) {
	resp := NewStream(func(ctx context.Context, tx *StreamSender) error {
		for i := range 50 {
			if err := tx.Sendf("%d,", i); err != nil {
				return err
			}
		}
		return nil
	}, WithStreamBuffer(4))

	var got string
	chunks := 0
	for chunk := range resp.Stream().Start(context.Background()) {
		got += string(chunk)
		chunks++
	}
	assert.Equal(t, 50, chunks)
	var want strings.Builder
	for i := range 50 {
		fmt.Fprintf(&want, "%d,", i)
	}
	assert.Equal(t, want.String(), got)
	assert.NoError(t, resp.Stream().Err())

	// the channel stays closed; a second Start returns the same drained channel
	_, open := <-resp.Stream().Start(context.Background())
	assert.False(t, open)
}

func TestStreamConsumerGone(t *testing.T) {
	resp := NewStream(func(ctx context.Context, tx *StreamSender) error {
		for {
			if err := tx.SendString("x"); err != nil {
				return err
			}
		}
	}, WithStreamBuffer(1))

	ctx, cancel := context.WithCancel(context.Background())
	ch := resp.Stream().Start(ctx)
	<-ch
	cancel()
	for range ch {
	}
	assert.ErrorIs(t, resp.Stream().Err(), ErrStreamClosed)
}

func TestStreamProducerPanic(t *testing.T) {
	resp := NewStream(func(ctx context.Context, tx *StreamSender) error {
		panic("producer blew up")
	})
	for range resp.Stream().Start(context.Background()) {
	}
	var pe *PanicError
	require.ErrorAs(t, resp.Stream().Err(), &pe)
	assert.Equal(t, "producer blew up", pe.Value)
}

func TestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(path, []byte("<h1>hi</h1>"), 0o600))

	resp := File(path)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, BodyStream, resp.Kind())
	assert.Equal(t, "11", resp.Header.Get("Content-Length"))
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	var got []byte
	for chunk := range resp.Stream().Start(context.Background()) {
		got = append(got, chunk...)
	}
	assert.Equal(t, "<h1>hi</h1>", string(got))

	missing := File(filepath.Join(dir, "nope.txt"))
	assert.Equal(t, 404, missing.Status)
	assert.Equal(t, "File not found", string(missing.Bytes()))
}

func TestWebSocketAccept(t *testing.T) {
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", WebSocketAccept("dGhlIHNhbXBsZSBub25jZQ=="))

	resp := Hijack(func(context.Context, *Upgraded) {})
	fn, writeHead := resp.UpgradeHandler()
	assert.NotNil(t, fn)
	assert.False(t, writeHead)
	assert.Equal(t, BodyUpgrade, resp.Kind())
}

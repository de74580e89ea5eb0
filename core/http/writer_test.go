package http

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	nethttp "net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, resp *Response, opts WriteOptions) (*nethttp.Response, []byte) {
	t.Helper()
	var out bytes.Buffer
	bw := bufio.NewWriter(&out)
	require.NoError(t, WriteResponse(context.Background(), bw, resp, opts))
	require.NoError(t, bw.Flush())

	method := nethttp.MethodGet
	if opts.Head {
		method = nethttp.MethodHead
	}
	parsed, err := nethttp.ReadResponse(bufio.NewReader(&out), &nethttp.Request{Method: method})
	require.NoError(t, err)
	body, err := io.ReadAll(parsed.Body)
	require.NoError(t, err)
	return parsed, body
}

func TestWriteBuffered(t *testing.T) {
	resp := Text("hello").WithHeader("X-Trace", "abc")

	parsed, body := write(t, resp, WriteOptions{Proto11: true})
	assert.Equal(t, 200, parsed.StatusCode)
	assert.Equal(t, MIMETextPlain, parsed.Header.Get("Content-Type"))
	assert.Equal(t, "abc", parsed.Header.Get("X-Trace"))
	assert.Equal(t, int64(5), parsed.ContentLength)
	assert.Equal(t, "hello", string(body))
	assert.False(t, parsed.Close)
}

func TestWriteStreamChunked(t *testing.T) {
	resp := NewStream(func(ctx context.Context, tx *StreamSender) error {
		for _, s := range []string{"one ", "two ", "three"} {
			if err := tx.SendString(s); err != nil {
				return err
			}
		}
		return nil
	})

	parsed, body := write(t, resp, WriteOptions{Proto11: true})
	assert.Equal(t, []string{"chunked"}, parsed.TransferEncoding)
	assert.Equal(t, "one two three", string(body))
}

func TestWriteStreamHTTP10IsCollected(t *testing.T) {
	resp := NewStream(func(ctx context.Context, tx *StreamSender) error {
		_ = tx.SendString("ab")
		return tx.SendString("c")
	})

	parsed, body := write(t, resp, WriteOptions{Proto11: false})
	assert.Equal(t, int64(3), parsed.ContentLength)
	assert.Empty(t, parsed.TransferEncoding)
	assert.Equal(t, "abc", string(body))
}

func TestWriteHeadAndClose(t *testing.T) {
	parsed, body := write(t, Text("invisible"), WriteOptions{Proto11: true, Head: true, Close: true})
	assert.Equal(t, int64(9), parsed.ContentLength)
	assert.Empty(t, body)
	assert.True(t, parsed.Close)
}

func TestWriteUpgradeHead(t *testing.T) {
	resp := Upgrade("websocket", func(context.Context, *Upgraded) {})
	resp.Header.Set("Sec-WebSocket-Accept", WebSocketAccept("dGhlIHNhbXBsZSBub25jZQ=="))

	var out bytes.Buffer
	bw := bufio.NewWriter(&out)
	require.NoError(t, WriteResponse(context.Background(), bw, resp, WriteOptions{Proto11: true}))
	require.NoError(t, bw.Flush())

	parsed, err := nethttp.ReadResponse(bufio.NewReader(&out), nil)
	require.NoError(t, err)
	assert.Equal(t, 101, parsed.StatusCode)
	assert.Equal(t, "websocket", parsed.Header.Get("Upgrade"))
	assert.Equal(t, "Upgrade", parsed.Header.Get("Connection"))
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", parsed.Header.Get("Sec-WebSocket-Accept"))
}

func TestWriteStreamProducerError(t *testing.T) {
	boom := errors.New("boom")
	resp := NewStream(func(ctx context.Context, tx *StreamSender) error {
		_ = tx.SendString("partial")
		return boom
	})

	var out bytes.Buffer
	err := WriteResponse(context.Background(), bufio.NewWriter(&out), resp, WriteOptions{Proto11: true})
	assert.ErrorIs(t, err, boom)
}

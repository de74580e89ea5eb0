package http

import (
	"context"
	"io"
	nethttp "net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest(t *testing.T) {
	req := NewRequest("post", "/items/9?sort=desc", strings.NewReader(`{"n":1}`))
	req.SetParams(Params{"id": "9"})

	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "/items/9", req.Path())
	assert.Equal(t, "desc", req.Query("sort"))
	assert.Equal(t, "9", req.Param("id"))
	_, ok := req.LookupParam("missing")
	assert.False(t, ok)
	assert.Equal(t, int64(7), req.ContentLength)
	assert.Equal(t, context.Background(), req.Context())

	var v struct{ N int }
	req.Header.Set("Content-Type", "application/json")
	require.NoError(t, req.Bind(&v))
	assert.Equal(t, 1, v.N)
}

func TestBindErrors(t *testing.T) {
	req := NewRequest("POST", "/", strings.NewReader("not json"))
	req.Header.Set("Content-Type", "application/json")

	var v map[string]any
	err := req.Bind(&v)
	var se *SerializationError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 400, se.StatusCode())

	req.Header.Set("Content-Type", "text/csv")
	err = req.Bind(&v)
	code, _ := Describe(err)
	assert.Equal(t, nethttp.StatusUnsupportedMediaType, code)
}

func TestStreamBodyReadOnce(t *testing.T) {
	body := NewStreamBody(strings.NewReader("abcdef"), 0)
	assert.False(t, body.Buffered())

	buf := make([]byte, 3)
	n, err := body.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(buf[:n]))

	_, err = body.Bytes()
	assert.ErrorIs(t, err, ErrBodyConsumed)
}

func TestStreamBodyBytesCaches(t *testing.T) {
	body := NewStreamBody(strings.NewReader("payload"), 7)

	first, err := body.Bytes()
	require.NoError(t, err)
	second, err := body.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "payload", string(first))
	assert.Equal(t, first, second)

	rest, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(rest))
}

func TestStreamBodyLimit(t *testing.T) {
	body := NewStreamBody(strings.NewReader("0123456789"), 4)
	data, err := io.ReadAll(body)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.Equal(t, "0123", string(data))
}

func TestBodyDiscardAndDetach(t *testing.T) {
	body := NewStreamBody(strings.NewReader("0123456789"), 0)
	assert.True(t, body.Discard(64))

	body = NewStreamBody(strings.NewReader("0123456789"), 0)
	assert.False(t, body.Discard(4))

	body = NewStreamBody(strings.NewReader("0123456789"), 0)
	body.Detach()
	_, err := body.Read(make([]byte, 4))
	assert.ErrorIs(t, err, ErrBodyDetached)

	empty := NewStreamBody(strings.NewReader(""), 0)
	data, err := empty.Bytes()
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestStdRoundTrip(t *testing.T) {
	req := NewRequest("PUT", "/std?q=1", strings.NewReader("body"))
	req.Header.Set("X-In", "yes")

	resp := ServeStd(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		data, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Out", r.Header.Get("X-In")+r.URL.Query().Get("q"))
		w.WriteHeader(nethttp.StatusAccepted)
		_, _ = w.Write(append([]byte("got "), data...))
	}), req)

	assert.Equal(t, nethttp.StatusAccepted, resp.Status)
	assert.Equal(t, "yes1", resp.Header.Get("X-Out"))
	assert.Equal(t, "got body", string(resp.Bytes()))
	assert.NotEmpty(t, resp.Header.Get("Content-Type"))

	back := FromStd(req.Std(), 0)
	assert.Equal(t, "PUT", back.Method)
	assert.Equal(t, "/std", back.Path())
}

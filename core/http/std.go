package http

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"strconv"

	"github.com/valyala/bytebufferpool"
)

// ServeStd runs a net/http handler against req and captures its output as a
// buffered response. Handlers that hijack or stream indefinitely are not
// supported.
func ServeStd(h nethttp.Handler, req *Request) *Response {
	rec := &recorder{header: make(Header)}
	rec.body = bytebufferpool.Get()
	defer bytebufferpool.Put(rec.body)

	h.ServeHTTP(rec, req.Std())

	status := rec.status
	if status == 0 {
		status = nethttp.StatusOK
	}
	resp := Blob(status, "", append([]byte(nil), rec.body.B...))
	for k, vs := range rec.header {
		resp.Header[k] = vs
	}
	if resp.Header.Get("Content-Type") == "" && len(resp.data) > 0 {
		resp.Header.Set("Content-Type", nethttp.DetectContentType(resp.data))
	}
	return resp
}

type recorder struct {
	header Header
	status int
	body   *bytebufferpool.ByteBuffer
}

func (r *recorder) Header() nethttp.Header {
	return r.header
}

func (r *recorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
}

func (r *recorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = nethttp.StatusOK
	}
	return r.body.Write(p)
}

// Flush is a no-op; the whole body is delivered at once.
func (r *recorder) Flush() {}

// WriteStd writes resp through a net/http ResponseWriter. Streamed bodies are
// flushed chunk by chunk when w supports it. Upgrades cannot be expressed
// through a ResponseWriter and are answered with 501.
func WriteStd(ctx context.Context, w nethttp.ResponseWriter, resp *Response) error {
	if resp.Kind() == BodyUpgrade {
		nethttp.Error(w, "upgrade not supported on this connection", nethttp.StatusNotImplemented)
		return nil
	}
	h := w.Header()
	for k, vs := range resp.Header {
		switch k {
		case "Connection", "Transfer-Encoding", "Upgrade", "Keep-Alive":
			continue
		}
		h[k] = vs
	}
	switch resp.Kind() {
	case BodyBuffered:
		h.Set("Content-Length", strconv.Itoa(len(resp.data)))
		w.WriteHeader(resp.Status)
		if _, err := w.Write(resp.data); err != nil {
			return &TransportError{Op: "write", Err: err}
		}
	case BodyStream:
		w.WriteHeader(resp.Status)
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		rc := nethttp.NewResponseController(w)
		s := resp.Stream()
		for chunk := range s.Start(ctx) {
			if _, err := w.Write(chunk); err != nil {
				return &TransportError{Op: "write", Err: err}
			}
			if err := rc.Flush(); err != nil && !errors.Is(err, nethttp.ErrNotSupported) {
				return &TransportError{Op: "flush", Err: err}
			}
		}
		if err := s.Err(); err != nil {
			return fmt.Errorf("stream producer: %w", err)
		}
	default:
		w.WriteHeader(resp.Status)
	}
	return nil
}

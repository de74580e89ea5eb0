package http

import (
	"bufio"
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httputil"
	"strconv"
	"sync"

	"github.com/valyala/fasthttp"
)

var responseHeaderPool = sync.Pool{
	New: func() any {
		return &fasthttp.ResponseHeader{}
	},
}

// WriteOptions describes the exchange a response answers.
type WriteOptions struct {
	// Proto11 is set when the request was HTTP/1.1; chunked framing is only
	// used for those clients.
	Proto11 bool
	// Head suppresses the body.
	Head bool
	// Close announces that the connection closes after this response.
	Close bool
}

// OptionsFor derives write options from a request.
func OptionsFor(req *Request) WriteOptions {
	return WriteOptions{
		Proto11: req.Proto == "HTTP/1.1",
		Head:    req.Method == nethttp.MethodHead,
		Close:   req.Close,
	}
}

// WriteResponse serializes resp onto bw. Buffered bodies are written with a
// Content-Length. Streams are written chunked (or raw when the response
// carries its own Content-Length) and flushed chunk by chunk; for HTTP/1.0
// clients a stream without a length is collected first. Upgrade responses only
// get their head written here. The caller flushes bw afterwards.
func WriteResponse(ctx context.Context, bw *bufio.Writer, resp *Response, opts WriteOptions) error {
	h := responseHeaderPool.Get().(*fasthttp.ResponseHeader)
	defer func() {
		h.Reset()
		responseHeaderPool.Put(h)
	}()
	h.SetNoDefaultContentType(true)
	h.SetStatusCode(resp.Status)
	for key, values := range resp.Header {
		switch key {
		case "Content-Length", "Transfer-Encoding", "Date":
			continue
		case "Connection":
			if resp.Kind() != BodyUpgrade {
				continue
			}
		}
		for _, v := range values {
			h.Add(key, v)
		}
	}

	kind, data, stream := resp.Kind(), resp.Bytes(), resp.Stream()
	chunked := false
	switch kind {
	case BodyBuffered:
		h.SetContentLength(len(data))
	case BodyStream:
		if n, err := strconv.Atoi(resp.Header.Get("Content-Length")); err == nil && n >= 0 {
			h.SetContentLength(n)
		} else if opts.Proto11 || opts.Head {
			h.SetContentLength(-1)
			chunked = true
		} else {
			collected, err := collect(ctx, stream)
			if err != nil {
				return err
			}
			kind, data = BodyBuffered, collected
			h.SetContentLength(len(data))
		}
	case BodyUpgrade:
	default:
		h.SetContentLength(0)
	}

	if kind != BodyUpgrade {
		if opts.Close {
			h.SetConnectionClose()
		} else if !opts.Proto11 {
			h.Set("Connection", "keep-alive")
		}
	}

	if err := h.Write(bw); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	if opts.Head {
		return nil
	}

	switch kind {
	case BodyBuffered:
		if _, err := bw.Write(data); err != nil {
			return &TransportError{Op: "write", Err: err}
		}
	case BodyStream:
		return writeStream(ctx, bw, stream, chunked)
	}
	return nil
}

func writeStream(ctx context.Context, bw *bufio.Writer, s *Stream, chunked bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		w  io.Writer = bw
		cw io.WriteCloser
	)
	if chunked {
		cw = httputil.NewChunkedWriter(bw)
		w = cw
	}
	for chunk := range s.Start(ctx) {
		if _, err := w.Write(chunk); err != nil {
			return &TransportError{Op: "write", Err: err}
		}
		if err := bw.Flush(); err != nil {
			return &TransportError{Op: "flush", Err: err}
		}
	}
	if err := s.Err(); err != nil {
		return fmt.Errorf("stream producer: %w", err)
	}
	if chunked {
		if err := cw.Close(); err != nil {
			return &TransportError{Op: "write", Err: err}
		}
		if _, err := bw.WriteString("\r\n"); err != nil {
			return &TransportError{Op: "write", Err: err}
		}
	}
	return nil
}

func collect(ctx context.Context, s *Stream) ([]byte, error) {
	var out []byte
	for chunk := range s.Start(ctx) {
		out = append(out, chunk...)
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("stream producer: %w", err)
	}
	return out, nil
}

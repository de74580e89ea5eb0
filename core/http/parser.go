package http

import (
	"bufio"
	"fmt"
	"io"
	"net/http/httputil"
	"net/url"
	"sync"

	"github.com/valyala/fasthttp"
	"golang.org/x/net/http/httpguts"
)

var requestHeaderPool = sync.Pool{
	New: func() any {
		return &fasthttp.RequestHeader{}
	},
}

// ReadRequest parses one request head from br. The body is left on br behind
// a lazy stream capped at limit (limit <= 0 means no cap); the caller must
// consume or discard it before reading the next request.
func ReadRequest(br *bufio.Reader, limit int64) (*Request, error) {
	h := requestHeaderPool.Get().(*fasthttp.RequestHeader)
	defer func() {
		h.Reset()
		requestHeaderPool.Put(h)
	}()

	if err := h.Read(br); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}

	rawURI := string(h.RequestURI())
	u, err := url.ParseRequestURI(rawURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}

	req := &Request{
		Method:     string(h.Method()),
		URL:        u,
		RequestURI: rawURI,
		Proto:      "HTTP/1.0",
		Header:     make(Header, 8),
		Host:       string(h.Host()),
	}
	if h.IsHTTP11() {
		req.Proto = "HTTP/1.1"
	}
	h.VisitAll(func(key, value []byte) {
		req.Header.Add(string(key), string(value))
	})

	connection := req.Header.Values("Connection")
	if req.Proto == "HTTP/1.1" {
		req.Close = h.ConnectionClose() || httpguts.HeaderValuesContainsToken(connection, "close")
	} else {
		req.Close = !httpguts.HeaderValuesContainsToken(connection, "keep-alive")
	}

	switch cl := h.ContentLength(); {
	case cl == -1 || httpguts.HeaderValuesContainsToken(req.Header.Values("Transfer-Encoding"), "chunked"):
		req.ContentLength = -1
		req.body = NewStreamBody(newChunkedReader(br), limit)
	case cl > 0:
		req.ContentLength = int64(cl)
		req.body = NewStreamBody(io.LimitReader(br, int64(cl)), limit)
	default:
		req.body = NoBody()
	}
	return req, nil
}

// chunkedReader decodes a chunked body and consumes the trailer section so the
// next request starts at a clean boundary.
type chunkedReader struct {
	br   *bufio.Reader
	r    io.Reader
	done bool
}

func newChunkedReader(br *bufio.Reader) *chunkedReader {
	return &chunkedReader{br: br, r: httputil.NewChunkedReader(br)}
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if c.done {
		return 0, io.EOF
	}
	n, err := c.r.Read(p)
	if err == io.EOF {
		c.done = true
		if terr := c.skipTrailer(); terr != nil {
			return n, terr
		}
	}
	return n, err
}

func (c *chunkedReader) skipTrailer() error {
	for {
		line, err := c.br.ReadSlice('\n')
		if err != nil {
			return io.ErrUnexpectedEOF
		}
		if len(line) <= 2 {
			return nil
		}
	}
}

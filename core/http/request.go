package http

import (
	"context"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"

	"github.com/searchktools/conduit/core/codec"
	"github.com/searchktools/conduit/core/extensions"
)

// Common methods.
const (
	MethodGet     = nethttp.MethodGet
	MethodHead    = nethttp.MethodHead
	MethodPost    = nethttp.MethodPost
	MethodPut     = nethttp.MethodPut
	MethodPatch   = nethttp.MethodPatch
	MethodDelete  = nethttp.MethodDelete
	MethodOptions = nethttp.MethodOptions
)

// Header is a canonicalized header map.
type Header = nethttp.Header

// Params holds the values bound by a route's parameter and wildcard segments.
type Params map[string]string

// Get returns the value bound to name, or "".
func (p Params) Get(name string) string {
	return p[name]
}

// Request is one parsed HTTP request. It is owned by a single dispatch and
// must not be retained after the response has been written.
type Request struct {
	Method     string
	URL        *url.URL
	RequestURI string
	Proto      string
	Header     Header
	Host       string
	RemoteAddr string

	// ContentLength is the declared body size, or -1 when unknown (chunked).
	ContentLength int64

	// Close reports whether the client asked to close the connection after
	// this request.
	Close bool

	params  Params
	pattern string
	body    *Body
	ext     extensions.Extensions
	ctx     context.Context
}

// NewRequest builds a request for tests and in-process dispatch. The body, if
// any, is fully buffered.
func NewRequest(method, target string, body io.Reader) *Request {
	u, err := url.ParseRequestURI(target)
	if err != nil {
		u = &url.URL{Path: target}
	}
	req := &Request{
		Method:        strings.ToUpper(method),
		URL:           u,
		RequestURI:    target,
		Proto:         "HTTP/1.1",
		Header:        make(Header),
		Host:          "localhost",
		RemoteAddr:    "127.0.0.1:0",
		ContentLength: 0,
		body:          NoBody(),
	}
	if body != nil {
		data, _ := io.ReadAll(body)
		req.body = NewBody(data)
		req.ContentLength = int64(len(data))
	}
	return req
}

// Context returns the request context. It is cancelled when the handler's
// time budget runs out or the connection goes away.
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// SetContext replaces the request context.
func (r *Request) SetContext(ctx context.Context) {
	r.ctx = ctx
}

// Path returns the decoded URL path.
func (r *Request) Path() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.Path
}

// Query returns the first value of a query parameter.
func (r *Request) Query(key string) string {
	if r.URL == nil {
		return ""
	}
	return r.URL.Query().Get(key)
}

// Param returns a path parameter bound by the matched route.
func (r *Request) Param(name string) string {
	return r.params[name]
}

// LookupParam is like Param but reports whether the parameter exists.
func (r *Request) LookupParam(name string) (string, bool) {
	v, ok := r.params[name]
	return v, ok
}

// Params returns all path parameters.
func (r *Request) Params() Params {
	return r.params
}

// SetParams replaces the path parameters.
func (r *Request) SetParams(p Params) {
	r.params = p
}

// Pattern is the route pattern that matched this request.
func (r *Request) Pattern() string {
	return r.pattern
}

// SetPattern records the matched route pattern.
func (r *Request) SetPattern(pattern string) {
	r.pattern = pattern
}

// Extensions returns the request-scoped typed store.
func (r *Request) Extensions() *extensions.Extensions {
	return &r.ext
}

// Body returns the request body. It is never nil.
func (r *Request) Body() *Body {
	if r.body == nil {
		r.body = NoBody()
	}
	return r.body
}

// SetBody replaces the request body.
func (r *Request) SetBody(b *Body) {
	r.body = b
}

// Bytes materializes the body.
func (r *Request) Bytes() ([]byte, error) {
	return r.Body().Bytes()
}

// Decode materializes the body and decodes it with c.
func (r *Request) Decode(c codec.Codec, v any) error {
	data, err := r.Bytes()
	if err != nil {
		return err
	}
	if err := c.Decode(data, v); err != nil {
		return &SerializationError{Op: "decode", Codec: c.Name(), Err: err}
	}
	return nil
}

// Bind decodes the body with the codec selected by the Content-Type header.
func (r *Request) Bind(v any) error {
	c, err := codec.ForContentType(r.Header.Get("Content-Type"))
	if err != nil {
		return NewStatusError(nethttp.StatusUnsupportedMediaType, "")
	}
	return r.Decode(c, v)
}

// Std converts the request into a net/http request sharing the same body,
// for handing off to libraries written against the standard library.
func (r *Request) Std() *nethttp.Request {
	proto := r.Proto
	major, minor, ok := nethttp.ParseHTTPVersion(proto)
	if !ok {
		proto, major, minor = "HTTP/1.1", 1, 1
	}
	var body io.ReadCloser = nethttp.NoBody
	if b := r.Body(); !b.Buffered() || len(b.buf) > 0 {
		body = io.NopCloser(b)
	}
	u := r.URL
	if u == nil {
		u = &url.URL{Path: "/"}
	}
	sr := &nethttp.Request{
		Method:        r.Method,
		URL:           u,
		Proto:         proto,
		ProtoMajor:    major,
		ProtoMinor:    minor,
		Header:        r.Header,
		Body:          body,
		ContentLength: r.ContentLength,
		Host:          r.Host,
		RemoteAddr:    r.RemoteAddr,
		RequestURI:    r.RequestURI,
		Close:         r.Close,
	}
	return sr.WithContext(r.Context())
}

// FromStd converts a net/http request. Its body is read lazily under limit.
func FromStd(sr *nethttp.Request, limit int64) *Request {
	req := &Request{
		Method:        sr.Method,
		URL:           sr.URL,
		RequestURI:    sr.RequestURI,
		Proto:         sr.Proto,
		Header:        sr.Header,
		Host:          sr.Host,
		RemoteAddr:    sr.RemoteAddr,
		ContentLength: sr.ContentLength,
		Close:         sr.Close,
		ctx:           sr.Context(),
	}
	if req.RequestURI == "" && sr.URL != nil {
		req.RequestURI = sr.URL.RequestURI()
	}
	if sr.Body == nil || sr.Body == nethttp.NoBody {
		req.body = NoBody()
	} else {
		req.body = NewStreamBody(sr.Body, limit)
	}
	return req
}

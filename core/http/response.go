package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"mime"
	nethttp "net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/searchktools/conduit/core/codec"
)

// Content types
const (
	MIMETextPlain = "text/plain; charset=utf-8"
	MIMETextHTML  = "text/html; charset=utf-8"
	MIMEJSON      = "application/json"
	MIMEOctet     = "application/octet-stream"
)

// BodyKind identifies a response body variant.
type BodyKind uint8

const (
	BodyNone BodyKind = iota
	BodyBuffered
	BodyStream
	BodyUpgrade
)

func (k BodyKind) String() string {
	switch k {
	case BodyBuffered:
		return "buffered"
	case BodyStream:
		return "stream"
	case BodyUpgrade:
		return "upgrade"
	default:
		return "none"
	}
}

// Response is a status, headers and at most one body variant. Outer middleware
// may change Status and Header freely; the body is fixed by the constructor
// that created the response.
type Response struct {
	Status int
	Header Header

	kind    BodyKind
	data    []byte
	stream  *Stream
	upgrade *upgrade
}

// NewResponse returns a response with status code and no body.
func NewResponse(status int) *Response {
	return &Response{Status: status, Header: make(Header)}
}

// Status is NewResponse.
func Status(code int) *Response {
	return NewResponse(code)
}

// NoContent returns 204 No Content.
func NoContent() *Response {
	return NewResponse(nethttp.StatusNoContent)
}

// OK returns an empty 200.
func OK() *Response {
	return NewResponse(nethttp.StatusOK)
}

// Blob returns a buffered response with an explicit content type.
func Blob(status int, contentType string, data []byte) *Response {
	r := NewResponse(status)
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	r.kind = BodyBuffered
	r.data = data
	return r
}

// Text returns a 200 text/plain response.
func Text(s string) *Response {
	return Blob(nethttp.StatusOK, MIMETextPlain, []byte(s))
}

// HTML returns a 200 text/html response.
func HTML(s string) *Response {
	return Blob(nethttp.StatusOK, MIMETextHTML, []byte(s))
}

// JSON returns a 200 application/json response. A value that cannot be
// marshalled yields a 500.
func JSON(v any) *Response {
	data, err := json.Marshal(v)
	if err != nil {
		return Blob(nethttp.StatusInternalServerError, MIMETextPlain,
			[]byte((&SerializationError{Op: "encode", Codec: "json", Err: err}).Error()))
	}
	return Blob(nethttp.StatusOK, MIMEJSON, data)
}

// Encode returns a 200 response whose body is v encoded with c.
func Encode(c codec.Codec, v any) (*Response, error) {
	data, err := c.Encode(v)
	if err != nil {
		return nil, &SerializationError{Op: "encode", Codec: c.Name(), Err: err}
	}
	return Blob(nethttp.StatusOK, c.ContentType(), data), nil
}

// Redirect returns a redirect to location.
func Redirect(code int, location string) *Response {
	r := NewResponse(code)
	r.Header.Set("Location", location)
	return r
}

// File streams the file at path. A missing file yields 404.
func File(path string) *Response {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Blob(nethttp.StatusNotFound, MIMETextPlain, []byte("File not found"))
		}
		return Blob(nethttp.StatusInternalServerError, MIMETextPlain, []byte(StatusText(nethttp.StatusInternalServerError)))
	}
	st, err := f.Stat()
	if err != nil || st.IsDir() {
		f.Close()
		return Blob(nethttp.StatusNotFound, MIMETextPlain, []byte("File not found"))
	}

	r := NewStream(func(ctx context.Context, tx *StreamSender) error {
		defer f.Close()
		for {
			buf := make([]byte, 32*1024)
			n, err := f.Read(buf)
			if n > 0 {
				if serr := tx.Send(buf[:n]); serr != nil {
					return serr
				}
			}
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
		}
	})
	r.Header.Set("Content-Type", ContentTypeByExtension(path))
	r.Header.Set("Content-Length", strconv.FormatInt(st.Size(), 10))
	return r
}

// ContentTypeByExtension guesses a content type from a file name.
func ContentTypeByExtension(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return MIMEOctet
}

// From converts common handler results into a response: nil becomes 204, a
// string text/plain, a byte slice application/octet-stream, an error a
// StatusError-shaped plain response. Other values are rendered as JSON.
func From(v any) *Response {
	switch v := v.(type) {
	case nil:
		return NoContent()
	case *Response:
		return v
	case string:
		return Text(v)
	case []byte:
		return Blob(nethttp.StatusOK, MIMEOctet, v)
	case error:
		return DefaultErrorHandler{}.Handle(v)
	default:
		return JSON(v)
	}
}

// WithStatus sets the status code and returns r.
func (r *Response) WithStatus(code int) *Response {
	r.Status = code
	return r
}

// WithHeader sets a header and returns r.
func (r *Response) WithHeader(key, value string) *Response {
	if r.Header == nil {
		r.Header = make(Header)
	}
	r.Header.Set(key, value)
	return r
}

// Kind reports the body variant.
func (r *Response) Kind() BodyKind {
	return r.kind
}

// Bytes returns a buffered body. It is nil for the other variants.
func (r *Response) Bytes() []byte {
	return r.data
}

// Stream returns a streamed body, or nil.
func (r *Response) Stream() *Stream {
	return r.stream
}

// ResponseBuilder assembles a response step by step.
type ResponseBuilder struct {
	status int
	header Header
}

// NewBuilder starts a 200 response.
func NewBuilder() *ResponseBuilder {
	return &ResponseBuilder{status: nethttp.StatusOK, header: make(Header)}
}

// Status sets the status code.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.status = code
	return b
}

// Header adds a header value.
func (b *ResponseBuilder) Header(key, value string) *ResponseBuilder {
	b.header.Add(key, value)
	return b
}

// Body finishes the response with a buffered body.
func (b *ResponseBuilder) Body(data []byte) *Response {
	r := Blob(b.status, "", data)
	b.merge(r)
	return r
}

// Text finishes the response with a text/plain body.
func (b *ResponseBuilder) Text(s string) *Response {
	r := Blob(b.status, MIMETextPlain, []byte(s))
	b.merge(r)
	return r
}

// JSON finishes the response with a JSON body.
func (b *ResponseBuilder) JSON(v any) *Response {
	r := JSON(v)
	if r.Status == nethttp.StatusOK {
		r.Status = b.status
	}
	b.merge(r)
	return r
}

// Empty finishes the response without a body.
func (b *ResponseBuilder) Empty() *Response {
	r := NewResponse(b.status)
	b.merge(r)
	return r
}

func (b *ResponseBuilder) merge(r *Response) {
	for k, vs := range b.header {
		r.Header[k] = slices.Clone(vs)
	}
}

package http

import (
	"errors"
	"fmt"
	nethttp "net/http"
)

var (
	// ErrBodyConsumed is returned when a streamed body is read after another
	// reader already drained it.
	ErrBodyConsumed = errors.New("request body already consumed")
	// ErrBodyDetached is returned by reads on a body whose connection was
	// abandoned after a handler timeout.
	ErrBodyDetached = errors.New("request body detached from connection")
	// ErrStreamClosed is returned by StreamSender.Send once the consumer is gone.
	ErrStreamClosed = errors.New("response stream closed")

	ErrNotFound         = NewSentinel(nethttp.StatusNotFound, "Route not found")
	ErrPayloadTooLarge  = NewSentinel(nethttp.StatusRequestEntityTooLarge, "Payload too large")
	ErrHandlerTimeout   = NewSentinel(nethttp.StatusGatewayTimeout, "Handler timed out")
	ErrMalformedRequest = NewSentinel(nethttp.StatusBadRequest, "Malformed request")
)

// NewSentinel returns an immutable status error for package-level variables.
// errors.As into a *StatusError yields a fresh copy, and errors.Is matches
// any StatusError with the same code.
func NewSentinel(code int, message string) error {
	return statusSentinel{code: code, message: message}
}

type statusSentinel struct {
	code    int
	message string
}

func (e statusSentinel) Error() string   { return fmt.Sprintf("%d %s", e.code, e.message) }
func (e statusSentinel) StatusCode() int { return e.code }

func (e statusSentinel) Is(target error) bool {
	t, ok := target.(*StatusError)
	return ok && t.Code == e.code
}

func (e statusSentinel) As(target any) bool {
	t, ok := target.(**StatusError)
	if ok {
		*t = NewStatusError(e.code, e.message)
	}
	return ok
}

// StatusCoder is implemented by errors that carry an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// StatusError is an explicit HTTP-level failure. An empty Message renders the
// canonical status text.
type StatusError struct {
	Code    int
	Message string
}

// NewStatusError creates a StatusError.
func NewStatusError(code int, message string) *StatusError {
	return &StatusError{Code: code, Message: message}
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%d %s", e.Code, StatusText(e.Code))
	}
	return fmt.Sprintf("%d %s", e.Code, e.Message)
}

func (e *StatusError) StatusCode() int { return e.Code }

// Is matches any StatusError with the same code, so errors.Is(err, ErrPayloadTooLarge)
// holds for every 413 regardless of its message.
func (e *StatusError) Is(target error) bool {
	switch t := target.(type) {
	case *StatusError:
		return t.Code == e.Code
	case statusSentinel:
		return t.code == e.Code
	}
	return false
}

func BadRequest(msg string) *StatusError   { return NewStatusError(nethttp.StatusBadRequest, msg) }
func Unauthorized(msg string) *StatusError { return NewStatusError(nethttp.StatusUnauthorized, msg) }
func Forbidden(msg string) *StatusError    { return NewStatusError(nethttp.StatusForbidden, msg) }
func NotFound(msg string) *StatusError     { return NewStatusError(nethttp.StatusNotFound, msg) }
func MethodNotAllowed(msg string) *StatusError {
	return NewStatusError(nethttp.StatusMethodNotAllowed, msg)
}
func PayloadTooLarge(msg string) *StatusError {
	return NewStatusError(nethttp.StatusRequestEntityTooLarge, msg)
}
func Unprocessable(msg string) *StatusError {
	return NewStatusError(nethttp.StatusUnprocessableEntity, msg)
}
func Internal(msg string) *StatusError { return NewStatusError(nethttp.StatusInternalServerError, msg) }
func GatewayTimeout(msg string) *StatusError {
	return NewStatusError(nethttp.StatusGatewayTimeout, msg)
}

// SerializationError reports a body that could not be decoded or encoded.
// Decode failures are the client's fault (400); encode failures are ours (500).
type SerializationError struct {
	Op    string // "decode" or "encode"
	Codec string
	Err   error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Codec, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

func (e *SerializationError) StatusCode() int {
	if e.Op == "decode" {
		return nethttp.StatusBadRequest
	}
	return nethttp.StatusInternalServerError
}

// TransportError wraps a socket or protocol failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport %s: %v", e.Op, e.Err) }

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) StatusCode() int { return nethttp.StatusInternalServerError }

// CustomError is a catch-all failure whose message is shown to the client.
type CustomError struct {
	Message string
}

// Custom creates a CustomError.
func Custom(format string, args ...any) *CustomError {
	return &CustomError{Message: fmt.Sprintf(format, args...)}
}

func (e *CustomError) Error() string { return e.Message }

func (e *CustomError) StatusCode() int { return nethttp.StatusInternalServerError }

// PanicError is produced when a handler or middleware panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

func (e *PanicError) StatusCode() int { return nethttp.StatusInternalServerError }

// Describe maps an error to the status code and client-facing message used by
// the built-in error handlers. Errors outside the taxonomy are reported as a
// bare 500 so internal details do not leak.
func Describe(err error) (int, string) {
	var (
		se  *StatusError
		ser *SerializationError
		te  *TransportError
		ce  *CustomError
		pe  *PanicError
	)
	switch {
	case errors.As(err, &se):
		return se.Code, se.Message
	case errors.As(err, &ser):
		return ser.StatusCode(), ser.Error()
	case errors.As(err, &te):
		return te.StatusCode(), ""
	case errors.As(err, &ce):
		return ce.StatusCode(), ce.Message
	case errors.As(err, &pe):
		return pe.StatusCode(), ""
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode(), ""
	}
	return nethttp.StatusInternalServerError, ""
}

// StatusText returns the reason phrase for code.
func StatusText(code int) string {
	if text := nethttp.StatusText(code); text != "" {
		return text
	}
	return "Unknown"
}

package http

import (
	"encoding/json"
	"strconv"
)

// ErrorHandler turns an error signalled by a handler or middleware into the
// response the client sees.
type ErrorHandler interface {
	Handle(err error) *Response
}

// ErrorHandlerFunc adapts a function to ErrorHandler.
type ErrorHandlerFunc func(err error) *Response

func (f ErrorHandlerFunc) Handle(err error) *Response {
	return f(err)
}

// DefaultErrorHandler renders "<code> <message>" as text/plain. A status error
// without a message produces an empty body.
type DefaultErrorHandler struct{}

func (DefaultErrorHandler) Handle(err error) *Response {
	code, msg := Describe(err)
	if msg == "" {
		return NewResponse(code)
	}
	return Blob(code, MIMETextPlain, []byte(strconv.Itoa(code)+" "+msg))
}

// JSONErrorHandler renders {"error": "...", "status": N}.
type JSONErrorHandler struct{}

type errorBody struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

func (JSONErrorHandler) Handle(err error) *Response {
	code, msg := Describe(err)
	if msg == "" {
		msg = StatusText(code)
	}
	data, _ := json.Marshal(errorBody{Error: msg, Status: code})
	return Blob(code, MIMEJSON, data)
}

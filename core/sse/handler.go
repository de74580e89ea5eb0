package sse

import (
	"github.com/google/uuid"

	"github.com/searchktools/conduit/core/http"
	"github.com/searchktools/conduit/core/middleware"
)

// Handler returns a route handler subscribing each request to b. id names
// the client; when nil or empty a UUID is used.
func Handler[S any](b *Broker, id func(req *http.Request) string) middleware.HandlerFunc[S] {
	return func(req *http.Request, _ S) (*http.Response, error) {
		clientID := ""
		if id != nil {
			clientID = id(req)
		}
		if clientID == "" {
			clientID = uuid.NewString()
		}
		return b.Subscribe(clientID, req.Header.Get("Last-Event-ID"))
	}
}

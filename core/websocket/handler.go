package websocket

import (
	"context"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/searchktools/conduit/core/http"
	"github.com/searchktools/conduit/core/logger"
	"github.com/searchktools/conduit/core/middleware"
)

// Handler returns a route handler that upgrades requests and serves each
// connection on hub. id names the client; when nil or empty a UUID is used.
func Handler[S any](up *Upgrader, hub *Hub, id func(req *http.Request) string) middleware.HandlerFunc[S] {
	return func(req *http.Request, _ S) (*http.Response, error) {
		clientID := ""
		if id != nil {
			clientID = id(req)
		}
		if clientID == "" {
			clientID = uuid.NewString()
		}
		return up.Accept(req, func(ctx context.Context, conn *websocket.Conn) {
			if err := hub.Serve(ctx, clientID, conn); err != nil {
				up.log.Warn("client rejected", logger.Error(err), logger.RemoteAddr(req.RemoteAddr))
			}
		})
	}
}

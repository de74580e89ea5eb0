/*
Package conduit is an embeddable HTTP server engine for Go.

An application is a set of routes compiled into an immutable table, a shared
state value handed to every handler, and an engine that owns the listener and
its connections.

Features

  - HTTP/1.1 with keep-alive and pipelining, HTTP/2 over cleartext (h2c)
  - Routing with named parameters, catch-all segments, nesting and
    specificity ordering; 404 and 405 (with Allow) are produced by the router
  - Middleware chains composed once at build time: global, router, route
  - Buffered, streamed and upgrade response bodies
  - Request body limits (413), handler timeouts (504), pluggable error handlers
  - Connection limits and graceful shutdown
  - WebSocket hubs and Server-Sent Events brokers
  - Prometheus metrics, slog logging, YAML and environment configuration

Quick Start

	package main

	import (
		"context"
		"log"

		"github.com/searchktools/conduit/app"
		"github.com/searchktools/conduit/config"
		"github.com/searchktools/conduit/core/http"
	)

	type State struct{}

	func main() {
		cfg, err := config.Load("")
		if err != nil {
			log.Fatal(err)
		}
		a := app.New(cfg, &State{})
		a.Routes().Get("/hello/:name", func(req *http.Request, _ *State) (*http.Response, error) {
			return http.Text("Hello, " + req.Param("name")), nil
		})
		if err := a.Run(context.Background()); err != nil {
			log.Fatal(err)
		}
	}

Modules

  - app: configured application with signal-driven shutdown
  - config: defaults, YAML, .env and CONDUIT_ environment variables
  - core: builder, dispatcher, engine and connection loop
  - core/http: requests, responses, bodies, errors and error handlers
  - core/router: path matcher and composable routers
  - core/middleware: middleware chain and common middleware
  - core/extensions: typed per-request values
  - core/http2: h2c connections
  - core/websocket: WebSocket upgrade and hub
  - core/sse: Server-Sent Events streams and broker
  - core/observability: Prometheus metrics
  - core/pools: buffer pools
  - core/codec: JSON and Protobuf body codecs
  - core/logger: slog construction and attributes
*/
package conduit

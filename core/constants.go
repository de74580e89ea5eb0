package core

import (
	"errors"
	"time"
)

// HTTP header constants
const (
	HeaderAllow      = "Allow"
	HeaderConnection = "Connection"
	HeaderUpgrade    = "Upgrade"
)

// Error definitions
var (
	ErrShutdownTimeout = errors.New("core: connections still open after shutdown timeout")
	ErrServerClosed    = errors.New("core: server already served")
)

// maxPostHandlerReadBytes is how much of an unread request body is discarded
// to keep a connection alive.
const maxPostHandlerReadBytes = 256 << 10

// aLongTimeAgo is a deadline in the past, used to wake a blocked read.
var aLongTimeAgo = time.Unix(1, 0)

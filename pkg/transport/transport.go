// Package transport defines the bidirectional message channel used to talk to
// the blurring service, and a websocket implementation of it.
//
// A Channel lives for exactly one connection attempt. Its Handler observes
// the attempt through OnOpen, OnMessage, OnError and OnClose; OnClose is
// always delivered exactly once and is always the last callback.
package transport

import (
	"context"
	"errors"

	"github.com/gorilla/websocket"
)

// Close codes used by the session.
const (
	CloseNormal    = websocket.CloseNormalClosure   // 1000: user stop
	CloseGoingAway = websocket.CloseGoingAway       // 1001: liveness timeout, shutdown
	CloseAbnormal  = websocket.CloseAbnormalClosure // 1006: no close frame received
)

// ErrNotOpen is returned by Send when the channel is not open.
var ErrNotOpen = errors.New("channel is not open")

// Handler receives the lifecycle events of a Channel. Callbacks are invoked
// from the channel's own goroutine, one at a time.
type Handler interface {
	OnOpen()
	OnMessage(data []byte)
	OnError(err error)
	OnClose(code int, reason string)
}

// Channel is one connection attempt to the service.
type Channel interface {
	// Send writes a text message. It fails with ErrNotOpen, and without side
	// effects, unless the channel is open.
	Send(data []byte) error

	// IsOpen reports whether the channel can send.
	IsOpen() bool

	// Close sends a close frame with code and reason and releases the
	// connection. Subsequent calls do nothing.
	Close(code int, reason string)
}

// Dialer opens channels.
type Dialer interface {
	// Open starts connecting to url and returns immediately. The outcome is
	// reported to h.
	Open(ctx context.Context, url string, h Handler) Channel
}

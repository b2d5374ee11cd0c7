package interfaces

import (
	"context"
	"net/http"
	"time"
)

// Socket is the minimal surface of an established transport connection
// ARCHITECTURAL DISCOVERY: Pure abstraction without implementation details
// ensures clean boundaries between transport infrastructure and the
// connection state machine; *websocket.Conn satisfies it directly
type Socket interface {
	// ReadMessage blocks until the next frame arrives or the read deadline passes
	ReadMessage() (messageType int, p []byte, err error)

	// WriteMessage sends one frame
	// FUNCTIONAL DISCOVERY: Callers must serialize writes - implementations
	// are not required to be safe for concurrent writers
	WriteMessage(messageType int, data []byte) error

	// SetReadDeadline bounds the next ReadMessage call; doubles as the
	// heartbeat liveness timeout
	SetReadDeadline(t time.Time) error

	// SetWriteDeadline bounds the next WriteMessage call
	SetWriteDeadline(t time.Time) error

	// Close closes the transport and unblocks any pending read
	Close() error
}

// Transport abstracts establishment of the raw realtime socket
// TECHNICAL DISCOVERY: Header pass-through carries the bearer credential so
// the dialer implementation stays credential-agnostic
type Transport interface {
	Dial(ctx context.Context, url string, header http.Header) (Socket, error)
}

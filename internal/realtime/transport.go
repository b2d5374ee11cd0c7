package realtime

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"studyhall/pkg/interfaces"
)

// textMessage aliases the websocket frame type used for the JSON sub-protocol
const textMessage = websocket.TextMessage

// WebsocketTransport dials the realtime endpoint over a websocket
// ARCHITECTURAL DISCOVERY: Transport kept behind the interfaces.Transport
// boundary so connection tests can substitute in-memory sockets without
// a listening server
type WebsocketTransport struct {
	HandshakeTimeout time.Duration
}

// NewWebsocketTransport creates a transport with the given dial timeout
func NewWebsocketTransport(handshakeTimeout time.Duration) *WebsocketTransport {
	return &WebsocketTransport{HandshakeTimeout: handshakeTimeout}
}

// Dial establishes the raw socket; the credential header travels with the
// HTTP upgrade request
func (t *WebsocketTransport) Dial(ctx context.Context, url string, header http.Header) (interfaces.Socket, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: t.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	return conn, nil
}

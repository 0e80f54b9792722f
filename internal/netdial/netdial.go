// Package netdial provides shared websocket dialers with sensible
// timeouts. Use these instead of websocket.DefaultDialer so every
// connection in the system carries the same dial behavior.
package netdial

import (
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// Default timeouts for outbound connections.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultConnectTimeout   = 10 * time.Second
	DefaultKeepAlive        = 30 * time.Second
)

// Dialer is the shared websocket dialer for long-lived feed streams.
var Dialer = NewDialer(DefaultHandshakeTimeout)

// NewDialer creates a websocket dialer with the given handshake timeout
// and the shared TCP dial settings.
func NewDialer(handshakeTimeout time.Duration) *websocket.Dialer {
	return &websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
		NetDialContext: (&net.Dialer{
			Timeout:   DefaultConnectTimeout,
			KeepAlive: DefaultKeepAlive,
		}).DialContext,
	}
}

package robot

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-tumbller/internal/log"
	"github.com/teslashibe/go-tumbller/internal/netdial"
)

// bridgeFrame is the JSON frame sent to the BLE gateway. The gateway owns
// the translation into the firmware's single-character ASCII protocol.
type bridgeFrame struct {
	ID         string `json:"id"`
	Command    string `json:"command"`
	Reason     string `json:"reason"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// Bridge delivers commands to the Tumbller over a websocket connection to
// the BLE gateway process. It reconnects lazily on the next Send after a
// write failure.
type Bridge struct {
	url string

	mu     sync.Mutex
	ws     *websocket.Conn
	closed bool
}

// NewBridge creates a bridge for the given gateway websocket URL,
// e.g. "ws://gateway.local:9000/tumbller".
func NewBridge(url string) *Bridge {
	return &Bridge{url: url}
}

// Connect establishes the websocket connection. Send also connects on
// demand, so calling Connect up front is optional but surfaces config
// errors early.
func (b *Bridge) Connect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connectLocked()
}

func (b *Bridge) connectLocked() error {
	if b.ws != nil {
		return nil
	}
	ws, _, err := netdial.NewDialer(5 * time.Second).Dial(b.url, nil)
	if err != nil {
		return fmt.Errorf("bridge dial %s: %w", b.url, err)
	}
	ws.SetPingHandler(func(appData string) error {
		return ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})
	b.ws = ws
	log.Info("bridge connected", "url", b.url)
	return nil
}

// Send delivers one command frame to the gateway.
func (b *Bridge) Send(cmd Command) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("bridge: closed")
	}
	if err := b.connectLocked(); err != nil {
		return err
	}

	frame := bridgeFrame{
		ID:      uuid.NewString(),
		Command: string(cmd.Kind.Byte()),
		Reason:  cmd.Reason,
	}
	if cmd.Timed() {
		frame.DurationMS = cmd.Duration.Milliseconds()
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("bridge marshal: %w", err)
	}

	b.ws.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if err := b.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		// Drop the connection; the next Send redials.
		b.ws.Close()
		b.ws = nil
		return fmt.Errorf("bridge write: %w", err)
	}
	return nil
}

// Close shuts the bridge down. Idempotent; Send fails afterwards.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if b.ws != nil {
		err := b.ws.Close()
		b.ws = nil
		return err
	}
	return nil
}

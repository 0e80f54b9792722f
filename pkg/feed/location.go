package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/teslashibe/go-tumbller/internal/log"
	"github.com/teslashibe/go-tumbller/internal/netdial"
	"github.com/teslashibe/go-tumbller/pkg/twin"
)

const (
	readTimeout    = 60 * time.Second
	reconnectDelay = 2 * time.Second
	eventBuffer    = 64
)

// locationPayload mirrors the DWM gateway uplink frame.
type locationPayload struct {
	NodeID   string `json:"node_id"`
	Location struct {
		Position struct {
			X float64 `json:"x"`
			Y float64 `json:"y"`
			Z float64 `json:"z"`
		} `json:"position"`
	} `json:"location"`
}

// LocationClient consumes the gateway's position stream over a websocket
// and republishes it as typed PositionUpdate events. It reconnects with a
// fixed delay until its context is cancelled.
type LocationClient struct {
	url     string
	updates chan PositionUpdate
	errs    chan ServiceError
}

// NewLocationClient creates a client for the gateway location stream.
func NewLocationClient(url string) *LocationClient {
	return &LocationClient{
		url:     url,
		updates: make(chan PositionUpdate, eventBuffer),
		errs:    make(chan ServiceError, 8),
	}
}

// Updates returns the typed position event stream.
func (c *LocationClient) Updates() <-chan PositionUpdate {
	return c.updates
}

// Errors returns non-fatal feed failures.
func (c *LocationClient) Errors() <-chan ServiceError {
	return c.errs
}

// Run connects and pumps events until ctx is cancelled. The update channel
// is closed on return.
func (c *LocationClient) Run(ctx context.Context) {
	defer close(c.updates)

	for {
		if err := c.pump(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.reportError(err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *LocationClient) pump(ctx context.Context) error {
	ws, _, err := netdial.Dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("location dial %s: %w", c.url, err)
	}
	defer ws.Close()
	log.Info("location feed connected", "url", c.url)

	// Unblock ReadMessage when the context ends. The watcher exits with
	// this pump call so reconnect cycles do not accumulate goroutines.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-done:
		}
	}()

	for {
		ws.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("location read: %w", err)
		}

		update, err := parseLocation(data)
		if err != nil {
			// A malformed frame is not worth a reconnect.
			c.reportError(err)
			continue
		}

		select {
		case c.updates <- update:
		default:
			log.Warn("location updates channel full, dropping fix", "entity", update.EntityID)
		}
	}
}

func (c *LocationClient) reportError(err error) {
	log.Warn("location feed error", "err", err)
	select {
	case c.errs <- ServiceError{Service: "location", Err: err}:
	default:
	}
}

// parseLocation decodes one gateway uplink frame into a PositionUpdate.
func parseLocation(data []byte) (PositionUpdate, error) {
	var p locationPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return PositionUpdate{}, fmt.Errorf("location payload: %w", err)
	}
	if p.NodeID == "" {
		return PositionUpdate{}, fmt.Errorf("location payload: missing node_id")
	}
	return PositionUpdate{
		EntityID: p.NodeID,
		Position: twin.Position{
			X: p.Location.Position.X,
			Y: p.Location.Position.Y,
			Z: p.Location.Position.Z,
		},
	}, nil
}

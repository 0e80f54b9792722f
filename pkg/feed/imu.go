package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/teslashibe/go-tumbller/internal/log"
	"github.com/teslashibe/go-tumbller/internal/netdial"
)

// imuPayload mirrors the gateway's yaw-rate frame. Timestamps are unix
// seconds with a fractional part.
type imuPayload struct {
	YawRate   *float64 `json:"yaw_rate"`
	Timestamp float64  `json:"timestamp"`
}

// IMUClient consumes the robot's gyro stream and republishes it as typed
// OrientationUpdate events.
type IMUClient struct {
	url     string
	updates chan OrientationUpdate
	errs    chan ServiceError
}

// NewIMUClient creates a client for the gateway IMU stream.
func NewIMUClient(url string) *IMUClient {
	return &IMUClient{
		url:     url,
		updates: make(chan OrientationUpdate, eventBuffer),
		errs:    make(chan ServiceError, 8),
	}
}

// Updates returns the typed orientation event stream.
func (c *IMUClient) Updates() <-chan OrientationUpdate {
	return c.updates
}

// Errors returns non-fatal feed failures.
func (c *IMUClient) Errors() <-chan ServiceError {
	return c.errs
}

// Run connects and pumps events until ctx is cancelled. The update channel
// is closed on return.
func (c *IMUClient) Run(ctx context.Context) {
	defer close(c.updates)

	for {
		if err := c.pump(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("imu feed error", "err", err)
			select {
			case c.errs <- ServiceError{Service: "imu", Err: err}:
			default:
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *IMUClient) pump(ctx context.Context) error {
	ws, _, err := netdial.Dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("imu dial %s: %w", c.url, err)
	}
	defer ws.Close()
	log.Info("imu feed connected", "url", c.url)

	// The watcher exits with this pump call so reconnect cycles do not
	// accumulate goroutines.
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
			return fmt.Errorf("imu read: %w", err)
		}

		update, err := parseIMU(data)
		if err != nil {
			select {
			case c.errs <- ServiceError{Service: "imu", Err: err}:
			default:
			}
			continue
		}

		select {
		case c.updates <- update:
		default:
			log.Warn("imu updates channel full, dropping sample")
		}
	}
}

// parseIMU decodes one gyro frame into an OrientationUpdate.
func parseIMU(data []byte) (OrientationUpdate, error) {
	var p imuPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return OrientationUpdate{}, fmt.Errorf("imu payload: %w", err)
	}
	if p.YawRate == nil {
		return OrientationUpdate{}, fmt.Errorf("imu payload: missing yaw_rate")
	}

	ts := time.Now()
	if p.Timestamp > 0 {
		sec, frac := math.Modf(p.Timestamp)
		ts = time.Unix(int64(sec), int64(frac*1e9))
	}
	return OrientationUpdate{YawRate: *p.YawRate, Timestamp: ts}, nil
}

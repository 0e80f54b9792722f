// Package feed delivers position and orientation events from the UWB
// gateway into the digital twin. Events travel on typed channels with an
// explicit schema per message kind; consumers never see raw payloads.
package feed

import (
	"time"

	"github.com/teslashibe/go-tumbller/pkg/twin"
)

// PositionUpdate is one UWB position fix for a tagged entity.
type PositionUpdate struct {
	EntityID string
	Position twin.Position
}

// OrientationUpdate is one gyro yaw-rate sample from the robot's IMU.
type OrientationUpdate struct {
	YawRate   float64 // rad/s
	Timestamp time.Time
}

// ServiceError reports a non-fatal feed failure (parse error, dropped
// connection) to whoever monitors the channels.
type ServiceError struct {
	Service string
	Err     error
}

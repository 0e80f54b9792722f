// Package twin maintains a digital twin of the anchor zone: every UWB-tagged
// entity seen by the positioning system, plus the robot's integrated
// orientation. It is the single source of truth shared between the feed
// goroutines and the steering controller.
package twin

import (
	"math"
	"time"
)

// Role is the semantic label bound to an entity ID.
type Role int

const (
	RoleUnknown Role = iota
	RoleRobot
	RoleTarget
)

// String returns the role name for logging.
func (r Role) String() string {
	switch r {
	case RoleRobot:
		return "robot"
	case RoleTarget:
		return "target"
	default:
		return "unknown"
	}
}

// Position is a point in anchor-zone coordinates (meters).
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Distance returns the 3D Euclidean distance to other.
func (p Position) Distance(other Position) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	dz := p.Z - other.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Entity is a tracked tag in the anchor zone.
type Entity struct {
	ID         string    `json:"id"`
	Role       Role      `json:"role"`
	Position   Position  `json:"position"`
	FirstSeen  time.Time `json:"first_seen"`
	LastUpdate time.Time `json:"last_update"`
	InZone     bool      `json:"in_zone"`
}

// PositionSample is one history entry for an entity.
type PositionSample struct {
	Position  Position  `json:"position"`
	Timestamp time.Time `json:"timestamp"`
}

// Orientation is the robot's dead-reckoned heading state, integrated from
// gyro yaw rates. It drifts without absolute correction; the steering
// controller keeps its own movement-derived estimate for control.
type Orientation struct {
	Yaw             float64 // radians, normalized to (-pi, pi]
	AngularVelocity float64 // rad/s
	LastUpdate      time.Time
}

// Summary is a copy-out snapshot of the model state for monitoring.
type Summary struct {
	TotalEntities    int       `json:"total_entities"`
	EntitiesInZone   int       `json:"entities_in_zone"`
	RobotRegistered  bool      `json:"robot_registered"`
	TargetRegistered bool      `json:"target_registered"`
	RobotToTarget    float64   `json:"robot_to_target_distance"`
	RobotToTargetOK  bool      `json:"robot_to_target_valid"`
	Timestamp        time.Time `json:"timestamp"`
}

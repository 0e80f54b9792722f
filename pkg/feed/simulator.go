package feed

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/teslashibe/go-tumbller/pkg/robot"
	"github.com/teslashibe/go-tumbller/pkg/twin"
)

// Simulator is a synthetic gateway for bench bring-up without hardware.
// It walks a target around the zone, integrates a toy robot that obeys the
// commands it receives as an Actuator, and emits the same typed events the
// real feed clients would.
type Simulator struct {
	robotID  string
	targetID string

	// Toy kinematics.
	speed    float64 // m/s while a forward/backward command is active
	turnRate float64 // rad/s while a turn command is active

	mu        sync.Mutex
	robotPos  twin.Position
	robotYaw  float64
	targetPos twin.Position
	phase     float64
	current   robot.Command

	updates chan PositionUpdate
	orient  chan OrientationUpdate
}

var _ robot.Actuator = (*Simulator)(nil)

// NewSimulator creates a simulator for the given role IDs. The target
// starts 2m east of the robot and orbits slowly.
func NewSimulator(robotID, targetID string) *Simulator {
	return &Simulator{
		robotID:   robotID,
		targetID:  targetID,
		speed:     0.25,
		turnRate:  1.0,
		targetPos: twin.Position{X: 2},
		updates:   make(chan PositionUpdate, eventBuffer),
		orient:    make(chan OrientationUpdate, eventBuffer),
	}
}

// Updates returns the simulated position stream.
func (s *Simulator) Updates() <-chan PositionUpdate {
	return s.updates
}

// Orientation returns the simulated gyro stream.
func (s *Simulator) Orientation() <-chan OrientationUpdate {
	return s.orient
}

// Send implements robot.Actuator: the command shapes the robot's motion
// until superseded.
func (s *Simulator) Send(cmd robot.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = cmd
	return nil
}

// Run advances the simulation every step until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context, step time.Duration) {
	defer close(s.updates)
	defer close(s.orient)

	ticker := time.NewTicker(step)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.advance(step.Seconds(), time.Now())
		}
	}
}

// advance integrates one physics step and emits events.
func (s *Simulator) advance(dt float64, now time.Time) {
	s.mu.Lock()

	// Target orbits the zone center at 0.1 rad/s, radius 2m.
	s.phase += 0.1 * dt
	s.targetPos = twin.Position{X: 2 * math.Cos(s.phase), Y: 2 * math.Sin(s.phase)}

	var yawRate float64
	switch s.current.Kind {
	case robot.Forward:
		s.robotPos.X += s.speed * math.Cos(s.robotYaw) * dt
		s.robotPos.Y += s.speed * math.Sin(s.robotYaw) * dt
	case robot.Backward:
		s.robotPos.X -= s.speed * math.Cos(s.robotYaw) * dt
		s.robotPos.Y -= s.speed * math.Sin(s.robotYaw) * dt
	case robot.Left:
		yawRate = s.turnRate
	case robot.Right:
		yawRate = -s.turnRate
	}
	s.robotYaw = math.Atan2(math.Sin(s.robotYaw+yawRate*dt), math.Cos(s.robotYaw+yawRate*dt))

	robotUpdate := PositionUpdate{EntityID: s.robotID, Position: s.robotPos}
	targetUpdate := PositionUpdate{EntityID: s.targetID, Position: s.targetPos}
	s.mu.Unlock()

	for _, u := range []PositionUpdate{robotUpdate, targetUpdate} {
		select {
		case s.updates <- u:
		default:
		}
	}
	select {
	case s.orient <- OrientationUpdate{YawRate: yawRate, Timestamp: now}:
	default:
	}
}

// RobotPose returns the simulated robot position and heading.
func (s *Simulator) RobotPose() (twin.Position, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.robotPos, s.robotYaw
}

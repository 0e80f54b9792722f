// Package steering contains the decision engine that keeps the Tumbller
// following its target: a fixed-period control loop combining digital twin
// state, a movement-derived heading estimate and periodic self-calibration.
//
// The robot has no compass. The gyro-integrated yaw held by the twin drifts,
// so the controller maintains its own heading estimate from how the robot
// actually moves, corrected by open-loop calibration runs.
package steering

import (
	"math"
	"time"

	"github.com/teslashibe/go-tumbller/pkg/twin"
)

// NormalizeAngle wraps an angle into (-pi, pi].
func NormalizeAngle(theta float64) float64 {
	return math.Atan2(math.Sin(theta), math.Cos(theta))
}

// headingSample pairs a robot position with when it was observed.
type headingSample struct {
	pos twin.Position
	at  time.Time
}

// HeadingEstimator derives a yaw estimate from recent robot movement.
// It keeps its own bounded window of positions, independent from the twin's
// history, because it belongs to the controller and must not race with the
// position feed.
type HeadingEstimator struct {
	window      time.Duration
	minMovement float64
	samples     []headingSample
}

// headingSampleCap bounds the window in count as well as time.
const headingSampleCap = 100

// NewHeadingEstimator creates an estimator over the given time window.
// Movement below minMovement (meters) across the window yields no estimate.
func NewHeadingEstimator(window time.Duration, minMovement float64) *HeadingEstimator {
	return &HeadingEstimator{window: window, minMovement: minMovement}
}

// Observe records the robot's position at time now and trims the window.
func (h *HeadingEstimator) Observe(pos twin.Position, now time.Time) {
	h.samples = append(h.samples, headingSample{pos: pos, at: now})

	cutoff := now.Add(-h.window)
	first := 0
	for first < len(h.samples) && !h.samples[first].at.After(cutoff) {
		first++
	}
	h.samples = h.samples[first:]

	if n := len(h.samples); n > headingSampleCap {
		h.samples = h.samples[n-headingSampleCap:]
	}
}

// Estimate returns the movement heading, computed from the aggregate
// displacement between the oldest and newest sample in the window. It
// reports false when the robot has not moved enough for the direction to be
// trustworthy; the caller keeps its previous estimate in that case.
func (h *HeadingEstimator) Estimate() (float64, bool) {
	if len(h.samples) < 2 {
		return 0, false
	}
	first := h.samples[0].pos
	last := h.samples[len(h.samples)-1].pos

	dx := last.X - first.X
	dy := last.Y - first.Y
	if math.Hypot(dx, dy) < h.minMovement {
		return 0, false
	}
	return math.Atan2(dy, dx), true
}

// Reset drops all samples. Used after calibration so the pre-calibration
// trajectory cannot contaminate the fresh estimate.
func (h *HeadingEstimator) Reset() {
	h.samples = nil
}

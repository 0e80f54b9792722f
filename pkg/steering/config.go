package steering

import (
	"fmt"
	"time"
)

// Config holds all tunable parameters for the decision engine. The earlier
// hand-tuned controller revisions disagreed on most of these values; they
// are all configuration now, nothing is hardcoded in the loop.
type Config struct {
	// Timing
	DecisionInterval  time.Duration // control loop period
	RateLimitInterval time.Duration // minimum spacing between issued commands

	// Following distances (meters)
	MinDistance float64 // closer than this: stop
	MaxDistance float64 // farther than this: chase

	// Heading control
	AngleThreshold float64 // bearing error tolerated before turning (radians)
	TurnRate       float64 // assumed turn rate for timing turns (rad/s)
	AssumedSpeed   float64 // assumed forward speed for timing runs (m/s)
	MinTurn        time.Duration
	MaxTurn        time.Duration
	MinForward     time.Duration
	MaxForward     time.Duration

	// Movement-derived heading estimate
	HeadingWindow      time.Duration // position window for the estimator
	MinHeadingMovement float64       // displacement needed for an estimate (m)

	// Self-calibration
	CalibrationInterval    time.Duration // time between calibration runs
	CalibrationDuration    time.Duration // open-loop forward run length
	MinCalibrationMovement float64       // displacement for a run to count (m)

	// Path planning
	GridResolution float64 // planner cell size (m)
	UsePlanner     bool    // steer along A* waypoints instead of direct bearing
}

// DefaultConfig returns the tuning used on the bench robot.
func DefaultConfig() Config {
	return Config{
		DecisionInterval:  500 * time.Millisecond,
		RateLimitInterval: 300 * time.Millisecond,

		MinDistance: 0.3,
		MaxDistance: 0.8,

		AngleThreshold: 0.3,
		TurnRate:       1.0,
		AssumedSpeed:   0.25,
		MinTurn:        200 * time.Millisecond,
		MaxTurn:        time.Second,
		MinForward:     300 * time.Millisecond,
		MaxForward:     2 * time.Second,

		HeadingWindow:      15 * time.Second,
		MinHeadingMovement: 0.1,

		CalibrationInterval:    30 * time.Second,
		CalibrationDuration:    1500 * time.Millisecond,
		MinCalibrationMovement: 0.2,

		GridResolution: 0.5,
	}
}

// Validate rejects tunings the decision loop cannot run with.
func (c Config) Validate() error {
	checks := []struct {
		ok  bool
		msg string
	}{
		{c.DecisionInterval > 0, "decision interval must be positive"},
		{c.RateLimitInterval >= 0, "rate limit interval must not be negative"},
		{c.MinDistance >= 0 && c.MinDistance < c.MaxDistance, "distance band must satisfy 0 <= min < max"},
		{c.AngleThreshold > 0, "angle threshold must be positive"},
		{c.TurnRate > 0, "turn rate must be positive"},
		{c.AssumedSpeed > 0, "assumed speed must be positive"},
		{c.MinTurn > 0 && c.MinTurn <= c.MaxTurn, "turn durations must satisfy 0 < min <= max"},
		{c.MinForward > 0 && c.MinForward <= c.MaxForward, "forward durations must satisfy 0 < min <= max"},
		{c.HeadingWindow > 0, "heading window must be positive"},
		{c.MinHeadingMovement > 0, "min heading movement must be positive"},
		{c.CalibrationInterval > 0, "calibration interval must be positive"},
		{c.CalibrationDuration > 0, "calibration duration must be positive"},
		{c.MinCalibrationMovement > 0, "min calibration movement must be positive"},
		{c.GridResolution > 0, "grid resolution must be positive"},
	}
	for _, chk := range checks {
		if !chk.ok {
			return fmt.Errorf("steering config: %s", chk.msg)
		}
	}
	return nil
}

// CautiousConfig slows everything down for cramped test spaces.
func CautiousConfig() Config {
	cfg := DefaultConfig()
	cfg.DecisionInterval = time.Second
	cfg.MaxDistance = 1.2
	cfg.MaxForward = time.Second
	cfg.AssumedSpeed = 0.15
	return cfg
}

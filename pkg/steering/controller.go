package steering

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/teslashibe/go-tumbller/internal/log"
	"github.com/teslashibe/go-tumbller/pkg/planner"
	"github.com/teslashibe/go-tumbller/pkg/robot"
	"github.com/teslashibe/go-tumbller/pkg/twin"
)

// State describes what the controller is doing between ticks.
type State int

const (
	StateIdle State = iota
	StateCalibrating
	StateCommandInFlight
)

// String returns the state name for logging and the dashboard.
func (s State) String() string {
	switch s {
	case StateCalibrating:
		return "calibrating"
	case StateCommandInFlight:
		return "command_in_flight"
	default:
		return "idle"
	}
}

// Decision reason tags attached to every command.
const (
	ReasonTooClose          = "too_close"
	ReasonAtTargetDistance  = "at_target_distance"
	ReasonApproach          = "approach"
	ReasonTurn              = "turn_to_bearing"
	ReasonMissingPositions  = "missing_positions"
	ReasonCalibrating       = "calibration_run"
	ReasonCalibrationDone   = "calibration_complete"
	ReasonCalibrationFailed = "calibration_failed"
	ReasonAutoStop          = "auto_stop"
)

// Controller is the steering decision engine. One goroutine runs its tick
// loop; all shared state lives behind the twin, so the controller's own
// mutex only covers its private estimate and command bookkeeping.
type Controller struct {
	cfg      Config
	twin     *twin.Twin
	actuator robot.Actuator

	// Neighbors overrides the planner's traversability when set; nil means
	// an unobstructed grid.
	Neighbors planner.NeighborFunc

	mu      sync.Mutex
	heading *HeadingEstimator
	yaw     float64 // movement-derived estimate actually used for steering

	lastCommandAt time.Time
	inFlightUntil time.Time
	generation    uint64
	autoStop      *time.Timer

	calibrating     bool
	calibStartPos   twin.Position
	calibStartedAt  time.Time
	lastCalibration time.Time

	stopped    bool
	lastReason string
	onCommand  func(robot.Command)

	now func() time.Time
}

// NewController creates a controller reading from tw and commanding act.
func NewController(cfg Config, tw *twin.Twin, act robot.Actuator) *Controller {
	return &Controller{
		cfg:      cfg,
		twin:     tw,
		actuator: act,
		heading:  NewHeadingEstimator(cfg.HeadingWindow, cfg.MinHeadingMovement),
		now:      time.Now,
	}
}

// SetCommandHook registers a function invoked for every dispatched command.
// The dashboard uses it for the command log; it must not block.
func (c *Controller) SetCommandHook(fn func(robot.Command)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCommand = fn
}

// Run executes the fixed-period decision loop until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	c.mu.Lock()
	if c.lastCalibration.IsZero() {
		// First calibration happens one full interval after startup.
		c.lastCalibration = c.now()
	}
	c.mu.Unlock()

	ticker := time.NewTicker(c.cfg.DecisionInterval)
	defer ticker.Stop()

	log.Info("steering controller started", "interval", c.cfg.DecisionInterval)

	for {
		select {
		case <-ctx.Done():
			c.Stop()
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

// Stop halts the controller: the pending auto-stop task is cancelled and no
// further commands are dispatched. Idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}
	c.stopped = true
	if c.autoStop != nil {
		c.autoStop.Stop()
		c.autoStop = nil
	}
	log.Info("steering controller stopped")
}

// State reports the controller's current phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.calibrating {
		return StateCalibrating
	}
	if c.now().Before(c.inFlightUntil) {
		return StateCommandInFlight
	}
	return StateIdle
}

// EstimatedYaw returns the movement-derived heading used for steering.
func (c *Controller) EstimatedYaw() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.yaw
}

// LastDecision returns the reason tag of the most recent tick outcome.
func (c *Controller) LastDecision() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastReason
}

// tick runs one decision cycle.
func (c *Controller) tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}
	now := c.now()

	// A previously issued timed command is still running.
	if now.Before(c.inFlightUntil) {
		return
	}

	// Rate limit between issued commands.
	if !c.lastCommandAt.IsZero() && now.Sub(c.lastCommandAt) < c.cfg.RateLimitInterval {
		return
	}

	rb, okRobot := c.twin.RoleEntity(twin.RoleRobot)
	tg, okTarget := c.twin.RoleEntity(twin.RoleTarget)
	if !okRobot || !okTarget {
		// No live position for one of the roles yet; retry next tick.
		c.lastReason = ReasonMissingPositions
		log.Debug("tick skipped", "reason", ReasonMissingPositions,
			"have_robot", okRobot, "have_target", okTarget)
		return
	}

	if c.calibrating {
		if now.Sub(c.calibStartedAt) >= c.cfg.CalibrationDuration {
			c.finalizeCalibration(rb.Position, now)
		}
		return
	}

	if now.Sub(c.lastCalibration) >= c.cfg.CalibrationInterval {
		c.beginCalibration(rb.Position, now)
		return
	}

	// Refresh the movement-derived heading.
	c.heading.Observe(rb.Position, now)
	if yaw, ok := c.heading.Estimate(); ok {
		c.yaw = yaw
	}

	dist := rb.Position.Distance(tg.Position)

	steerTo := tg.Position
	if c.cfg.UsePlanner {
		if wp, ok := c.nextWaypoint(rb.Position, tg.Position); ok {
			steerTo = wp
		}
		// Unreachable goal: fall back to direct bearing.
	}

	bearing := math.Atan2(steerTo.Y-rb.Position.Y, steerTo.X-rb.Position.X)
	angleErr := NormalizeAngle(bearing - c.yaw)

	// Decision policy, strict priority order.
	switch {
	case dist < c.cfg.MinDistance:
		c.issue(robot.Command{Kind: robot.Stop, Reason: ReasonTooClose}, now)

	case dist > c.cfg.MaxDistance && math.Abs(angleErr) > c.cfg.AngleThreshold:
		kind := robot.Right
		if angleErr > 0 {
			kind = robot.Left
		}
		d := clampDuration(durationFor(math.Abs(angleErr), c.cfg.TurnRate), c.cfg.MinTurn, c.cfg.MaxTurn)
		c.issue(robot.Command{Kind: kind, Duration: d, Reason: ReasonTurn}, now)

	case dist > c.cfg.MaxDistance:
		d := clampDuration(durationFor(dist, c.cfg.AssumedSpeed), c.cfg.MinForward, c.cfg.MaxForward)
		c.issue(robot.Command{Kind: robot.Forward, Duration: d, Reason: ReasonApproach}, now)

	default:
		c.issue(robot.Command{Kind: robot.Stop, Reason: ReasonAtTargetDistance}, now)
	}
}

// beginCalibration suspends normal decisions and starts an open-loop
// forward run. The auto-stop one-shot halts the motors when the duration
// elapses; finalization still waits for the next tick, because it must
// read the robot's end position from the twin.
func (c *Controller) beginCalibration(pos twin.Position, now time.Time) {
	c.calibrating = true
	c.calibStartPos = pos
	c.calibStartedAt = now

	c.generation++
	gen := c.generation
	c.cancelAutoStop()
	c.lastCommandAt = now
	c.inFlightUntil = now.Add(c.cfg.CalibrationDuration)
	c.lastReason = ReasonCalibrating
	c.autoStop = time.AfterFunc(c.cfg.CalibrationDuration, func() {
		c.expire(gen)
	})

	log.Info("calibration started", "duration", c.cfg.CalibrationDuration,
		"start_x", pos.X, "start_y", pos.Y)
	c.dispatch(robot.Command{Kind: robot.Forward, Duration: c.cfg.CalibrationDuration, Reason: ReasonCalibrating})
}

// finalizeCalibration compares displacement against the threshold, adopts
// the movement direction as the new yaw on success, and stops the robot.
// The calibration clock resets on success and failure alike, so a failed
// run waits a full interval before the next attempt.
func (c *Controller) finalizeCalibration(pos twin.Position, now time.Time) {
	dx := pos.X - c.calibStartPos.X
	dy := pos.Y - c.calibStartPos.Y
	displacement := math.Hypot(dx, dy)

	c.calibrating = false
	c.lastCalibration = now
	c.heading.Reset()

	if displacement >= c.cfg.MinCalibrationMovement {
		c.yaw = math.Atan2(dy, dx)
		log.Info("calibration complete", "yaw", c.yaw, "displacement", displacement)
		c.issue(robot.Command{Kind: robot.Stop, Reason: ReasonCalibrationDone}, now)
		return
	}

	// The robot barely moved; keep the old estimate.
	log.Warn("calibration failed", "displacement", displacement,
		"required", c.cfg.MinCalibrationMovement)
	c.issue(robot.Command{Kind: robot.Stop, Reason: ReasonCalibrationFailed}, now)
}

// nextWaypoint plans a path to the target and returns the first cell center
// past the robot's own cell. ok is false when the goal is unreachable or
// the robot already shares the goal cell.
func (c *Controller) nextWaypoint(robotPos, targetPos twin.Position) (twin.Position, bool) {
	res := c.cfg.GridResolution
	start := planner.CellFor(robotPos, res)
	goal := planner.CellFor(targetPos, res)

	path := planner.FindPath(start, goal, c.Neighbors, res)
	if len(path) < 2 {
		return twin.Position{}, false
	}
	return path[1].Center(res), true
}

// issue records and dispatches a decision. Caller must hold the mutex.
func (c *Controller) issue(cmd robot.Command, now time.Time) {
	c.generation++
	gen := c.generation
	c.cancelAutoStop()

	c.lastCommandAt = now
	c.lastReason = cmd.Reason

	if cmd.Timed() {
		c.inFlightUntil = now.Add(cmd.Duration)
		c.autoStop = time.AfterFunc(cmd.Duration, func() {
			c.expire(gen)
		})
	} else {
		c.inFlightUntil = time.Time{}
	}

	log.Debug("command issued", "command", cmd.Kind.String(),
		"reason", cmd.Reason, "duration", cmd.Duration)
	c.dispatch(cmd)
}

// expire is the auto-stop one-shot. The generation guard makes sure an
// expired timer never stops a command that already superseded its own.
func (c *Controller) expire(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped || gen != c.generation {
		return
	}
	c.inFlightUntil = time.Time{}
	c.lastCommandAt = c.now()
	c.dispatch(robot.Command{Kind: robot.Stop, Reason: ReasonAutoStop})
}

// dispatch hands a command to the actuator. Failures are logged, never
// escalated: the next tick re-evaluates from fresh state.
func (c *Controller) dispatch(cmd robot.Command) {
	if c.stopped {
		return
	}
	if err := c.actuator.Send(cmd); err != nil {
		log.Warn("actuation failed", "command", cmd.Kind.String(), "err", err)
	}
	if c.onCommand != nil {
		c.onCommand(cmd)
	}
}

func (c *Controller) cancelAutoStop() {
	if c.autoStop != nil {
		c.autoStop.Stop()
		c.autoStop = nil
	}
}

// durationFor converts a magnitude and a rate into a command duration.
func durationFor(magnitude, rate float64) time.Duration {
	return time.Duration(magnitude / rate * float64(time.Second))
}

func clampDuration(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}

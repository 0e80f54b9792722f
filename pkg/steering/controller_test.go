package steering

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-tumbller/pkg/planner"
	"github.com/teslashibe/go-tumbller/pkg/robot"
	"github.com/teslashibe/go-tumbller/pkg/twin"
)

// recordingActuator captures dispatched commands.
type recordingActuator struct {
	mu   sync.Mutex
	sent []robot.Command
}

func (r *recordingActuator) Send(cmd robot.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, cmd)
	return nil
}

func (r *recordingActuator) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func (r *recordingActuator) last() (robot.Command, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return robot.Command{}, false
	}
	return r.sent[len(r.sent)-1], true
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestRig wires a controller with a fake clock, a fresh twin and a
// recording actuator, with the calibration clock primed so no calibration
// is due at start.
func newTestRig(cfg Config) (*Controller, *twin.Twin, *recordingActuator, *testClock) {
	clock := &testClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	tw := twin.New(twin.Position{}, 100)
	tw.RegisterRole("4c87", twin.RoleRobot)
	tw.RegisterRole("0cad", twin.RoleTarget)
	act := &recordingActuator{}

	c := NewController(cfg, tw, act)
	c.now = clock.Now
	c.lastCalibration = clock.Now()
	return c, tw, act, clock
}

func TestController_MissingPositions(t *testing.T) {
	c, tw, act, _ := newTestRig(DefaultConfig())

	c.tick()
	if act.count() != 0 {
		t.Fatal("No command should be issued without positions")
	}
	if c.LastDecision() != ReasonMissingPositions {
		t.Errorf("LastDecision: got %q, want %q", c.LastDecision(), ReasonMissingPositions)
	}

	// Only the robot known: still missing.
	tw.UpdatePosition("4c87", twin.Position{})
	c.tick()
	if act.count() != 0 {
		t.Error("No command should be issued with only the robot position")
	}
}

func TestController_PolicyPriority(t *testing.T) {
	cases := []struct {
		name       string
		robotPos   twin.Position
		targetPos  twin.Position
		wantKind   robot.Kind
		wantReason string
	}{
		{
			name:       "ahead and far: forward",
			robotPos:   twin.Position{X: 0, Y: 0},
			targetPos:  twin.Position{X: 2, Y: 0},
			wantKind:   robot.Forward,
			wantReason: ReasonApproach,
		},
		{
			name:       "within min distance: stop",
			robotPos:   twin.Position{X: 0, Y: 0},
			targetPos:  twin.Position{X: 0, Y: 0.1},
			wantKind:   robot.Stop,
			wantReason: ReasonTooClose,
		},
		{
			name:       "far and off to the left: turn left",
			robotPos:   twin.Position{X: 0, Y: 0},
			targetPos:  twin.Position{X: 0, Y: 2},
			wantKind:   robot.Left,
			wantReason: ReasonTurn,
		},
		{
			name:       "far and off to the right: turn right",
			robotPos:   twin.Position{X: 0, Y: 0},
			targetPos:  twin.Position{X: 0, Y: -2},
			wantKind:   robot.Right,
			wantReason: ReasonTurn,
		},
		{
			name:       "in band: hold",
			robotPos:   twin.Position{X: 0, Y: 0},
			targetPos:  twin.Position{X: 0.5, Y: 0},
			wantKind:   robot.Stop,
			wantReason: ReasonAtTargetDistance,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, tw, act, _ := newTestRig(DefaultConfig())
			// Estimated yaw starts at 0 (facing +x).
			tw.UpdatePosition("4c87", tc.robotPos)
			tw.UpdatePosition("0cad", tc.targetPos)

			c.tick()
			cmd, ok := act.last()
			if !ok {
				t.Fatal("Expected a command")
			}
			if cmd.Kind != tc.wantKind {
				t.Errorf("Kind: got %v, want %v", cmd.Kind, tc.wantKind)
			}
			if cmd.Reason != tc.wantReason {
				t.Errorf("Reason: got %q, want %q", cmd.Reason, tc.wantReason)
			}
			c.Stop()
		})
	}
}

func TestController_TurnDurationClamped(t *testing.T) {
	cfg := DefaultConfig()
	c, tw, act, _ := newTestRig(cfg)

	// Bearing error pi/2 at turn rate 1 rad/s: raw duration ~1.57s, clamped
	// to MaxTurn.
	tw.UpdatePosition("4c87", twin.Position{X: 0, Y: 0})
	tw.UpdatePosition("0cad", twin.Position{X: 0, Y: 2})

	c.tick()
	cmd, _ := act.last()
	if cmd.Duration != cfg.MaxTurn {
		t.Errorf("Turn duration: got %v, want clamp to %v", cmd.Duration, cfg.MaxTurn)
	}
	c.Stop()
}

func TestController_ForwardDurationClamped(t *testing.T) {
	cfg := DefaultConfig()
	c, tw, act, _ := newTestRig(cfg)

	// Distance 2m at 0.25 m/s: raw 8s, clamped to MaxForward.
	tw.UpdatePosition("4c87", twin.Position{X: 0, Y: 0})
	tw.UpdatePosition("0cad", twin.Position{X: 2, Y: 0})

	c.tick()
	cmd, _ := act.last()
	if cmd.Duration != cfg.MaxForward {
		t.Errorf("Forward duration: got %v, want clamp to %v", cmd.Duration, cfg.MaxForward)
	}
	c.Stop()
}

func TestController_SingleCommandInFlight(t *testing.T) {
	cfg := DefaultConfig()
	c, tw, act, clock := newTestRig(cfg)

	tw.UpdatePosition("4c87", twin.Position{X: 0, Y: 0})
	tw.UpdatePosition("0cad", twin.Position{X: 2, Y: 0})

	c.tick()
	if act.count() != 1 {
		t.Fatalf("First tick: got %d commands, want 1", act.count())
	}
	if c.State() != StateCommandInFlight {
		t.Errorf("State: got %v, want command_in_flight", c.State())
	}

	// While the timed forward runs, ticks are no-ops even though the target
	// moved into the stop band.
	tw.UpdatePosition("0cad", twin.Position{X: 0.5, Y: 0})
	clock.Advance(cfg.DecisionInterval)
	c.tick()
	clock.Advance(cfg.DecisionInterval)
	c.tick()
	if act.count() != 1 {
		t.Fatalf("Ticks during in-flight command issued extra commands: %d", act.count())
	}

	// After the duration (plus rate limit) a fresh decision goes out.
	clock.Advance(cfg.MaxForward + cfg.RateLimitInterval)
	c.tick()
	if act.count() != 2 {
		t.Fatalf("Post-expiry tick: got %d commands, want 2", act.count())
	}
	cmd, _ := act.last()
	if cmd.Kind != robot.Stop || cmd.Reason != ReasonAtTargetDistance {
		t.Errorf("Post-expiry decision: got %v %q", cmd.Kind, cmd.Reason)
	}
	c.Stop()
}

func TestController_RateLimit(t *testing.T) {
	cfg := DefaultConfig()
	c, tw, act, clock := newTestRig(cfg)

	// Stop commands are untimed, so only the rate limit spaces them.
	tw.UpdatePosition("4c87", twin.Position{X: 0, Y: 0})
	tw.UpdatePosition("0cad", twin.Position{X: 0.5, Y: 0})

	c.tick()
	if act.count() != 1 {
		t.Fatalf("First tick: got %d, want 1", act.count())
	}

	clock.Advance(cfg.RateLimitInterval / 2)
	c.tick()
	if act.count() != 1 {
		t.Error("Tick inside the rate-limit window must not issue")
	}

	clock.Advance(cfg.RateLimitInterval)
	c.tick()
	if act.count() != 2 {
		t.Errorf("Tick after the window: got %d, want 2", act.count())
	}
	c.Stop()
}

func TestController_AutoStopGeneration(t *testing.T) {
	cfg := DefaultConfig()
	c, tw, act, clock := newTestRig(cfg)

	tw.UpdatePosition("4c87", twin.Position{X: 0, Y: 0})
	tw.UpdatePosition("0cad", twin.Position{X: 2, Y: 0})

	c.tick() // timed forward
	c.mu.Lock()
	staleGen := c.generation
	c.mu.Unlock()

	// A newer command supersedes the forward before its timer fires.
	clock.Advance(cfg.MaxForward + cfg.RateLimitInterval)
	tw.UpdatePosition("0cad", twin.Position{X: 0, Y: 0.1})
	c.tick() // stop: too_close
	before := act.count()

	// The stale expiry must be ignored.
	c.expire(staleGen)
	if act.count() != before {
		t.Error("Stale auto-stop fired despite being superseded")
	}

	// A current-generation expiry issues the auto stop.
	tw.UpdatePosition("0cad", twin.Position{X: 2, Y: 0})
	clock.Advance(cfg.RateLimitInterval)
	c.tick() // timed forward again
	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()
	c.expire(gen)
	cmd, _ := act.last()
	if cmd.Kind != robot.Stop || cmd.Reason != ReasonAutoStop {
		t.Errorf("Auto stop: got %v %q", cmd.Kind, cmd.Reason)
	}
	c.Stop()
}

func TestController_CalibrationSuccess(t *testing.T) {
	cfg := DefaultConfig()
	c, tw, act, clock := newTestRig(cfg)

	tw.UpdatePosition("4c87", twin.Position{X: 1, Y: 1})
	tw.UpdatePosition("0cad", twin.Position{X: 2, Y: 1})

	// Make calibration due.
	clock.Advance(cfg.CalibrationInterval)
	c.tick()
	cmd, _ := act.last()
	if cmd.Kind != robot.Forward || cmd.Reason != ReasonCalibrating {
		t.Fatalf("Calibration start: got %v %q", cmd.Kind, cmd.Reason)
	}
	if c.State() != StateCalibrating {
		t.Errorf("State: got %v, want calibrating", c.State())
	}

	// The robot drifted 0.5m north-east-ish during the open-loop run.
	tw.UpdatePosition("4c87", twin.Position{X: 1.3, Y: 1.4})
	clock.Advance(cfg.CalibrationDuration + 10*time.Millisecond)
	c.tick()

	cmd, _ = act.last()
	if cmd.Kind != robot.Stop || cmd.Reason != ReasonCalibrationDone {
		t.Fatalf("Calibration end: got %v %q", cmd.Kind, cmd.Reason)
	}
	want := math.Atan2(0.4, 0.3)
	if !floatEquals(c.EstimatedYaw(), want) {
		t.Errorf("Yaw after calibration: got %v, want %v", c.EstimatedYaw(), want)
	}
	if c.State() == StateCalibrating {
		t.Error("Calibration state should be cleared")
	}
	c.Stop()
}

func TestController_CalibrationFailure(t *testing.T) {
	cfg := DefaultConfig()
	c, tw, act, clock := newTestRig(cfg)

	tw.UpdatePosition("4c87", twin.Position{X: 1, Y: 1})
	tw.UpdatePosition("0cad", twin.Position{X: 2, Y: 1})
	c.mu.Lock()
	c.yaw = 0.7
	c.mu.Unlock()

	clock.Advance(cfg.CalibrationInterval)
	c.tick() // calibration forward

	// Only 5cm of displacement: below the 0.2m threshold.
	tw.UpdatePosition("4c87", twin.Position{X: 1.05, Y: 1})
	clock.Advance(cfg.CalibrationDuration + 10*time.Millisecond)
	c.tick()

	cmd, _ := act.last()
	if cmd.Kind != robot.Stop || cmd.Reason != ReasonCalibrationFailed {
		t.Fatalf("Failed calibration: got %v %q", cmd.Kind, cmd.Reason)
	}
	if !floatEquals(c.EstimatedYaw(), 0.7) {
		t.Errorf("Yaw must be unchanged on failure: got %v", c.EstimatedYaw())
	}

	// The calibration clock reset on failure: the next tick decides
	// normally instead of immediately recalibrating.
	clock.Advance(cfg.RateLimitInterval + 10*time.Millisecond)
	c.tick()
	cmd, _ = act.last()
	if cmd.Reason == ReasonCalibrating {
		t.Error("Failed calibration retried before a full interval elapsed")
	}
	c.Stop()
}

func TestController_CalibrationAutoStop(t *testing.T) {
	cfg := DefaultConfig()
	c, tw, act, clock := newTestRig(cfg)

	tw.UpdatePosition("4c87", twin.Position{X: 1, Y: 1})
	tw.UpdatePosition("0cad", twin.Position{X: 2, Y: 1})

	clock.Advance(cfg.CalibrationInterval)
	c.tick() // calibration forward
	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()

	// The motors halt when the run's duration elapses even if the tick
	// loop has not come around yet.
	clock.Advance(cfg.CalibrationDuration)
	c.expire(gen)
	cmd, _ := act.last()
	if cmd.Kind != robot.Stop || cmd.Reason != ReasonAutoStop {
		t.Fatalf("Calibration expiry: got %v %q, want stop auto_stop", cmd.Kind, cmd.Reason)
	}

	// Finalization still happens on the next tick, reading the robot's
	// end position from the twin.
	tw.UpdatePosition("4c87", twin.Position{X: 1.3, Y: 1.4})
	clock.Advance(cfg.RateLimitInterval + 10*time.Millisecond)
	c.tick()
	cmd, _ = act.last()
	if cmd.Kind != robot.Stop || cmd.Reason != ReasonCalibrationDone {
		t.Fatalf("Finalize after expiry: got %v %q", cmd.Kind, cmd.Reason)
	}
	if !floatEquals(c.EstimatedYaw(), math.Atan2(0.4, 0.3)) {
		t.Errorf("Yaw after calibration: got %v", c.EstimatedYaw())
	}
	c.Stop()
}

func TestController_PlannerFallbackWhenUnreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UsePlanner = true
	c, tw, act, _ := newTestRig(cfg)

	// Isolate the goal: nothing is traversable.
	c.Neighbors = func(planner.Cell) []planner.Cell { return nil }

	tw.UpdatePosition("4c87", twin.Position{X: 0, Y: 0})
	tw.UpdatePosition("0cad", twin.Position{X: 2, Y: 0})

	c.tick()
	cmd, ok := act.last()
	if !ok {
		t.Fatal("Expected a direct-bearing command despite unreachable plan")
	}
	if cmd.Kind != robot.Forward {
		t.Errorf("Fallback command: got %v, want forward", cmd.Kind)
	}
	c.Stop()
}

func TestController_PlannerWaypointSteering(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UsePlanner = true
	c, tw, act, _ := newTestRig(cfg)

	// Target far to the north-east. On a 4-connected grid the first
	// waypoint is axis-aligned, so the initial bearing is toward a
	// neighbor cell center rather than the diagonal.
	tw.UpdatePosition("4c87", twin.Position{X: 0, Y: 0})
	tw.UpdatePosition("0cad", twin.Position{X: 2, Y: 2})

	c.tick()
	cmd, ok := act.last()
	if !ok {
		t.Fatal("Expected a command")
	}
	// Yaw 0, waypoint either east (angle 0: forward) or north (angle pi/2:
	// turn left). Both are legal depending on tie-break; diagonal would be
	// pi/4 which with threshold 0.3 forces a turn, so forward proves the
	// waypoint was axis-aligned east.
	if cmd.Kind != robot.Forward && cmd.Kind != robot.Left {
		t.Errorf("Waypoint steering: got %v, want forward or left", cmd.Kind)
	}
	c.Stop()
}

func TestController_StopIdempotentAndFinal(t *testing.T) {
	cfg := DefaultConfig()
	c, tw, act, _ := newTestRig(cfg)

	tw.UpdatePosition("4c87", twin.Position{X: 0, Y: 0})
	tw.UpdatePosition("0cad", twin.Position{X: 2, Y: 0})

	c.Stop()
	c.Stop() // must not panic

	c.tick()
	if act.count() != 0 {
		t.Error("No dispatch after Stop")
	}

	// Expiries after stop are swallowed too.
	c.expire(0)
	if act.count() != 0 {
		t.Error("Auto stop dispatched after Stop")
	}
}

func TestController_CommandHook(t *testing.T) {
	cfg := DefaultConfig()
	c, tw, act, _ := newTestRig(cfg)

	var hooked []robot.Command
	c.SetCommandHook(func(cmd robot.Command) { hooked = append(hooked, cmd) })

	tw.UpdatePosition("4c87", twin.Position{X: 0, Y: 0})
	tw.UpdatePosition("0cad", twin.Position{X: 0.5, Y: 0})
	c.tick()

	if len(hooked) != act.count() || len(hooked) != 1 {
		t.Errorf("Hook calls: got %d, want 1", len(hooked))
	}
	c.Stop()
}

package twin

import (
	"errors"
	"math"
	"sync"
	"time"
)

// ErrNoPosition is returned by Distance when either entity has never
// received a position update. Distance is undefined in that case, not zero.
var ErrNoPosition = errors.New("twin: entity has no recorded position")

// History bounds. Both are enforced together: a sample is kept only while it
// is among the newest MaxHistoryLength entries AND younger than HistoryWindow.
const (
	MaxHistoryLength = 50
	HistoryWindow    = 30 * time.Second
)

// Twin is the concurrency-safe digital twin of the anchor zone.
// All public methods are short, free of I/O, and safe for concurrent use.
type Twin struct {
	mu sync.RWMutex

	zoneCenter Position
	zoneRadius float64

	entities map[string]*Entity
	roles    map[Role]string // role -> entity id binding
	history  map[string][]PositionSample

	orientation Orientation

	now func() time.Time // injectable clock for tests
}

// New creates a twin for a spherical zone at center with the given radius.
func New(center Position, radius float64) *Twin {
	return &Twin{
		zoneCenter: center,
		zoneRadius: radius,
		entities:   make(map[string]*Entity),
		roles:      make(map[Role]string),
		history:    make(map[string][]PositionSample),
		now:        time.Now,
	}
}

// RegisterRole binds an entity ID to a role. Idempotent; calling it again
// for the same role rebinds it (last write wins) and releases the
// previously bound entity.
func (t *Twin) RegisterRole(id string, role Role) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if oldID, ok := t.roles[role]; ok && oldID != id {
		if old, ok := t.entities[oldID]; ok {
			old.Role = RoleUnknown
		}
	}
	t.roles[role] = id
	if e, ok := t.entities[id]; ok {
		e.Role = role
	}
}

// UpdatePosition upserts the entity, recomputes zone membership and appends
// a history sample. It never fails; unknown IDs create a new entity.
func (t *Twin) UpdatePosition(id string, pos Position) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()

	e, ok := t.entities[id]
	if !ok {
		e = &Entity{ID: id, Role: t.roleFor(id), FirstSeen: now}
		t.entities[id] = e
	}
	e.Position = pos
	e.LastUpdate = now
	e.InZone = pos.Distance(t.zoneCenter) <= t.zoneRadius

	samples := append(t.history[id], PositionSample{Position: pos, Timestamp: now})
	t.history[id] = trimHistory(samples, now)
}

// UpdateOrientation integrates a gyro yaw-rate sample into the dead-reckoned
// heading. dt is the time since the previous sample. The result is
// normalized to (-pi, pi]. This estimate drifts; treat it as secondary.
func (t *Twin) UpdateOrientation(yawRate float64, dt time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	yaw := t.orientation.Yaw + yawRate*dt.Seconds()
	t.orientation.Yaw = math.Atan2(math.Sin(yaw), math.Cos(yaw))
	t.orientation.AngularVelocity = yawRate
	t.orientation.LastUpdate = t.now()
}

// Entity returns a copy of the entity state, or (zero, false) if the ID has
// never been seen.
func (t *Twin) Entity(id string) (Entity, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.entities[id]
	if !ok {
		return Entity{}, false
	}
	return *e, true
}

// RoleEntity returns the entity currently bound to role.
func (t *Twin) RoleEntity(role Role) (Entity, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	id, ok := t.roles[role]
	if !ok {
		return Entity{}, false
	}
	e, ok := t.entities[id]
	if !ok {
		return Entity{}, false
	}
	return *e, true
}

// Orientation returns the current dead-reckoned orientation.
func (t *Twin) Orientation() Orientation {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.orientation
}

// Trajectory returns the entity's history samples newer than now-window,
// oldest first. The returned slice is a copy.
func (t *Twin) Trajectory(id string, window time.Duration) []PositionSample {
	t.mu.RLock()
	defer t.mu.RUnlock()

	samples := t.history[id]
	cutoff := t.now().Add(-window)

	var out []PositionSample
	for _, s := range samples {
		if s.Timestamp.After(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

// Distance returns the 3D distance between two entities. It returns
// ErrNoPosition when either entity has never received a position update.
func (t *Twin) Distance(id1, id2 string) (float64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e1, ok1 := t.entities[id1]
	e2, ok2 := t.entities[id2]
	if !ok1 || !ok2 {
		return 0, ErrNoPosition
	}
	return e1.Position.Distance(e2.Position), nil
}

// Snapshot returns copies of all tracked entities.
func (t *Twin) Snapshot() []Entity {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Entity, 0, len(t.entities))
	for _, e := range t.entities {
		out = append(out, *e)
	}
	return out
}

// Summary returns a monitoring snapshot of the model state.
func (t *Twin) Summary() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Summary{
		TotalEntities: len(t.entities),
		Timestamp:     t.now(),
	}
	for _, e := range t.entities {
		if e.InZone {
			s.EntitiesInZone++
		}
	}

	robotID, hasRobot := t.roles[RoleRobot]
	targetID, hasTarget := t.roles[RoleTarget]
	s.RobotRegistered = hasRobot
	s.TargetRegistered = hasTarget

	if hasRobot && hasTarget {
		robot, ok1 := t.entities[robotID]
		target, ok2 := t.entities[targetID]
		if ok1 && ok2 {
			s.RobotToTarget = robot.Position.Distance(target.Position)
			s.RobotToTargetOK = true
		}
	}
	return s
}

// roleFor resolves the role bound to id. Caller must hold the lock.
func (t *Twin) roleFor(id string) Role {
	for role, boundID := range t.roles {
		if boundID == id {
			return role
		}
	}
	return RoleUnknown
}

// trimHistory enforces the dual history bound: newest MaxHistoryLength
// samples, all younger than HistoryWindow.
func trimHistory(samples []PositionSample, now time.Time) []PositionSample {
	if n := len(samples); n > MaxHistoryLength {
		samples = samples[n-MaxHistoryLength:]
	}
	cutoff := now.Add(-HistoryWindow)
	first := 0
	for first < len(samples) && !samples[first].Timestamp.After(cutoff) {
		first++
	}
	return samples[first:]
}

// Package robot defines the motion command model for the Tumbller and the
// actuator interfaces used to deliver commands. Translating a command into
// the physical BLE protocol is the bridge's concern, not the core's.
package robot

import "time"

// Kind is a discrete motion command.
type Kind int

const (
	Stop Kind = iota
	Forward
	Backward
	Left
	Right
)

// String returns the command name for logging.
func (k Kind) String() string {
	switch k {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return "stop"
	}
}

// Byte returns the single-character wire form understood by the Tumbller
// firmware. The BLE bridge maps Right to its own quirk byte if needed.
func (k Kind) Byte() byte {
	switch k {
	case Forward:
		return 'f'
	case Backward:
		return 'b'
	case Left:
		return 'l'
	case Right:
		return 'r'
	default:
		return 's'
	}
}

// Command is one actuation decision. Duration zero means untimed: the
// command holds until superseded. Timed commands are auto-stopped by the
// controller when the duration elapses.
type Command struct {
	Kind     Kind
	Duration time.Duration
	Reason   string
}

// Timed reports whether the command carries a duration.
func (c Command) Timed() bool {
	return c.Duration > 0
}

package robot

// Actuator is the opaque sink for motion commands. Implementations must be
// safe for concurrent use; Send should return promptly and never block on
// slow hardware for longer than its own transport timeout.
type Actuator interface {
	Send(cmd Command) error
}

// ActuatorFunc adapts a function to the Actuator interface.
type ActuatorFunc func(cmd Command) error

// Send calls f.
func (f ActuatorFunc) Send(cmd Command) error {
	return f(cmd)
}

// Ensure implementations satisfy Actuator.
var (
	_ Actuator = (*Bridge)(nil)
	_ Actuator = (*Dispatcher)(nil)
	_ Actuator = ActuatorFunc(nil)
)

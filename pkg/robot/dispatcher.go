package robot

import (
	"sync"

	"github.com/teslashibe/go-tumbller/internal/log"
)

// dispatchQueueSize bounds the number of commands waiting on the actuator.
// The control loop runs at around 1-10 Hz, so a small buffer is plenty;
// a full queue means the actuator is wedged and dropping is the right call.
const dispatchQueueSize = 16

// Dispatcher decouples the control loop from actuator I/O. Send queues the
// command and returns immediately; a single worker goroutine drains the
// queue so hardware latency never stalls the decision cadence.
type Dispatcher struct {
	actuator Actuator
	queue    chan Command

	mu      sync.Mutex
	closed  bool
	dropped uint64

	done chan struct{}
}

// NewDispatcher wraps an actuator with an async queue and starts the
// delivery worker.
func NewDispatcher(actuator Actuator) *Dispatcher {
	d := &Dispatcher{
		actuator: actuator,
		queue:    make(chan Command, dispatchQueueSize),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for cmd := range d.queue {
		if err := d.actuator.Send(cmd); err != nil {
			// Not fatal: the controller re-evaluates from fresh state on
			// its next tick.
			log.Warn("actuation failed", "command", cmd.Kind.String(), "reason", cmd.Reason, "err", err)
		}
	}
}

// Send queues a command for delivery. It never blocks; when the queue is
// full the command is dropped and counted.
func (d *Dispatcher) Send(cmd Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	select {
	case d.queue <- cmd:
	default:
		d.dropped++
		log.Warn("dispatch queue full, dropping command", "command", cmd.Kind.String(), "dropped", d.dropped)
	}
	return nil
}

// Dropped returns the number of commands dropped due to a full queue.
func (d *Dispatcher) Dropped() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Close stops the worker after draining queued commands. Idempotent.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	<-d.done
}

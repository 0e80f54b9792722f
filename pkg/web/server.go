// Package web provides the real-time follower dashboard.
package web

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-tumbller/internal/log"
	"github.com/teslashibe/go-tumbller/pkg/hub"
	"github.com/teslashibe/go-tumbller/pkg/robot"
	"github.com/teslashibe/go-tumbller/pkg/steering"
	"github.com/teslashibe/go-tumbller/pkg/twin"
)

const (
	commandLogSize = 100

	// How often the state socket pushes a fresh frame.
	statePushInterval = 500 * time.Millisecond
)

// Status is the aggregate view served at /api/status and pushed over
// the state socket.
type Status struct {
	Twin            twin.Summary `json:"twin"`
	ControllerState string       `json:"controller_state"`
	EstimatedYaw    float64      `json:"estimated_yaw"`
	LastDecision    string       `json:"last_decision"`
	CommandsIssued  uint64       `json:"commands_issued"`
	Clients         int          `json:"clients"`
}

// CommandEntry is one line of the dashboard command log.
type CommandEntry struct {
	ID       string    `json:"id"`
	Time     time.Time `json:"time"`
	Command  string    `json:"command"`
	Reason   string    `json:"reason"`
	Duration float64   `json:"duration_seconds,omitempty"`
}

// Server serves the REST API, the state websocket, and the static
// dashboard assets.
type Server struct {
	app  *fiber.App
	addr string

	model      *twin.Twin
	controller *steering.Controller
	stateHub   *hub.Hub

	mu       sync.RWMutex
	commands []CommandEntry
	issued   uint64
}

// NewServer wires the routes. Run starts serving.
func NewServer(addr string, model *twin.Twin, controller *steering.Controller) *Server {
	s := &Server{
		addr:       addr,
		model:      model,
		controller: controller,
		stateHub:   hub.New("state"),
		commands:   make([]CommandEntry, 0, commandLogSize),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Tumbller Dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development.
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/entities", s.handleEntities)
	api.Get("/trajectory/:id", s.handleTrajectory)
	api.Get("/commands", s.handleCommands)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/state", websocket.New(s.handleStateWS))

	s.app = app
	return s
}

// RecordCommand appends a command to the dashboard log and broadcasts
// it. Attach via the controller's command hook.
func (s *Server) RecordCommand(cmd robot.Command) {
	entry := CommandEntry{
		ID:      uuid.NewString(),
		Time:    time.Now().UTC(),
		Command: cmd.Kind.String(),
		Reason:  cmd.Reason,
	}
	if cmd.Duration > 0 {
		entry.Duration = cmd.Duration.Seconds()
	}

	s.mu.Lock()
	s.commands = append(s.commands, entry)
	if len(s.commands) > commandLogSize {
		s.commands = s.commands[1:]
	}
	s.issued++
	s.mu.Unlock()

	if err := s.stateHub.BroadcastPayload(hub.TypeCommand, entry); err != nil {
		log.Warn("broadcast command entry failed", "error", err)
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go s.stateHub.Run(ctx)
	go s.pushLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(s.addr)
	}()

	log.Info("dashboard listening", "addr", s.addr)

	select {
	case <-ctx.Done():
		return s.app.Shutdown()
	case err := <-errCh:
		return err
	}
}

// pushLoop broadcasts the aggregate status on a fixed cadence so the
// dashboard stays live without polling.
func (s *Server) pushLoop(ctx context.Context) {
	ticker := time.NewTicker(statePushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.stateHub.ClientCount() == 0 {
				continue
			}
			if err := s.stateHub.BroadcastPayload(hub.TypeState, s.status()); err != nil {
				log.Warn("broadcast status failed", "error", err)
			}
		}
	}
}

// status assembles the aggregate view from its sources.
func (s *Server) status() Status {
	s.mu.RLock()
	issued := s.issued
	s.mu.RUnlock()

	return Status{
		Twin:            s.model.Summary(),
		ControllerState: s.controller.State().String(),
		EstimatedYaw:    s.controller.EstimatedYaw(),
		LastDecision:    s.controller.LastDecision(),
		CommandsIssued:  issued,
		Clients:         s.stateHub.ClientCount(),
	}
}

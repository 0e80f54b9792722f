package web

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-tumbller/pkg/hub"
	"github.com/teslashibe/go-tumbller/pkg/twin"
)

// handleStatus returns the aggregate system status.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status())
}

// handleEntities lists every tracked entity.
func (s *Server) handleEntities(c *fiber.Ctx) error {
	return c.JSON(s.model.Snapshot())
}

// handleTrajectory returns an entity's recent path. The optional
// window query is in seconds, capped at the model's retention window.
func (s *Server) handleTrajectory(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, ok := s.model.Entity(id); !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "unknown entity",
		})
	}

	window := twin.HistoryWindow
	if secs := c.QueryFloat("window"); secs > 0 {
		if w := time.Duration(secs * float64(time.Second)); w < window {
			window = w
		}
	}

	samples := s.model.Trajectory(id, window)
	return c.JSON(fiber.Map{
		"entity_id": id,
		"window":    window.Seconds(),
		"samples":   samples,
	})
}

// handleCommands returns the recent command log, newest last.
func (s *Server) handleCommands(c *fiber.Ctx) error {
	s.mu.RLock()
	out := make([]CommandEntry, len(s.commands))
	copy(out, s.commands)
	s.mu.RUnlock()
	return c.JSON(out)
}

// handleStateWS attaches a dashboard client to the state hub. A fresh
// status frame is sent immediately so the client does not wait for the
// next push tick.
func (s *Server) handleStateWS(c *websocket.Conn) {
	if env, err := hub.NewEnvelope(hub.TypeState, s.status()); err == nil {
		c.WriteJSON(env)
	}

	client := hub.NewClient(s.stateHub, c)
	client.Run()
}

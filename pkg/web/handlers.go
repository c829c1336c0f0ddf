package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-respeaker/pkg/hub"
	"github.com/teslashibe/go-respeaker/pkg/pixelring"
)

// handleStatus returns the current device status
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.snapshot())
}

// handleListStates returns every state name accepted by /api/state/:name
func (s *Server) handleListStates(c *fiber.Ctx) error {
	names := make([]string, 0, pixelring.NumStates)
	for _, st := range pixelring.States() {
		names = append(names, st.String())
	}
	return c.JSON(names)
}

// handleRequestState requests a ring state by name
func (s *Server) handleRequestState(c *fiber.Ctx) error {
	name := c.Params("name")

	st, err := pixelring.ParseState(name)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	s.states.RequestState(st)
	s.logger.Info("state requested over http", "state", st)

	return c.JSON(fiber.Map{
		"requested": st,
	})
}

// handleHotword injects a wake word into a synthetic audio source.
// Query: angle (degrees, default 0), index (wake word, default 1).
func (s *Server) handleHotword(c *fiber.Ctx) error {
	if s.hotword == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "audio source does not accept injected wake words",
		})
	}

	angle := c.QueryInt("angle", 0)
	index := c.QueryInt("index", 1)
	if index < 1 || angle < 0 || angle >= 360 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "index must be >= 1 and angle in [0, 360)",
		})
	}

	s.hotword(index, angle)
	s.logger.Info("wake word injected over http", "index", index, "angle", angle)

	return c.JSON(fiber.Map{
		"index": index,
		"angle": angle,
	})
}

// handleStatusWS streams status events. The first message is the current status.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	client := hub.NewClient(s.statusHub, c)
	if client == nil {
		return
	}

	if msg, err := hub.Event("status", s.snapshot()); err == nil {
		client.Send(msg)
	} else {
		s.logger.Warn("encode initial status", "error", err)
	}

	client.Run()
}

// Package web serves the device's status API: current ring state, session
// and transport health, manual state requests, and a live event stream.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-respeaker/pkg/hub"
	"github.com/teslashibe/go-respeaker/pkg/pixelring"
	"github.com/teslashibe/go-respeaker/pkg/session"
)

// Status is the document served by GET /api/status.
type Status struct {
	State         pixelring.State `json:"state"`
	Session       session.Session `json:"session"`
	ASRConnected  bool            `json:"asr_connected"`
	MQTTConnected bool            `json:"mqtt_connected"`
	Uptime        string          `json:"uptime"`
	Engine        pixelring.Stats `json:"engine"`
	Sessions      session.Stats   `json:"sessions"`
	Subscribers   hub.Stats       `json:"subscribers"`
}

// StateEvent is broadcast on every ring state change.
type StateEvent struct {
	Type string          `json:"type"` // "state"
	Prev pixelring.State `json:"prev"`
	Next pixelring.State `json:"state"`
	At   time.Time       `json:"at"`
}

// SessionEvent is broadcast on every session transition.
type SessionEvent struct {
	Type string `json:"type"` // "session"
	session.Event
}

// StateRequester changes the ring state.
type StateRequester interface {
	RequestState(s pixelring.State)
}

// Server is the status HTTP server.
type Server struct {
	app    *fiber.App
	addr   string
	logger *slog.Logger

	states  StateRequester
	status  func() Status
	hotword func(index, angle int)

	statusHub *hub.Hub

	mu       sync.Mutex
	listener net.Listener
	serveErr chan error
}

// NewServer creates a status server. status is called for every status
// request and for each new stream subscriber.
func NewServer(addr string, states StateRequester, status func() Status, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:      addr,
		logger:    logger,
		states:    states,
		status:    status,
		statusHub: hub.New("status", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "ReSpeaker Status",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/states", s.handleListStates)
	api.Post("/state/:name", s.handleRequestState)
	api.Post("/hotword", s.handleHotword)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// SetStateRequester replaces the state requester. Call it before Start.
func (s *Server) SetStateRequester(states StateRequester) {
	s.states = states
}

// SetHotwordTrigger enables POST /api/hotword. Only synthetic audio sources
// can take injected wake words; without a trigger the endpoint answers 409.
// Call it before Start.
func (s *Server) SetHotwordTrigger(fn func(index, angle int)) {
	s.hotword = fn
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("web: listen %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.serveErr = make(chan error, 1)
	s.mu.Unlock()

	go s.statusHub.Run()
	go func() {
		err := s.app.Listener(ln)
		if err != nil {
			s.logger.Warn("status server stopped", "error", err)
		}
		s.serveErr <- err
	}()

	s.logger.Info("status server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// NotifyState broadcasts a ring state change.
func (s *Server) NotifyState(prev, next pixelring.State) {
	s.broadcast("state", StateEvent{Type: "state", Prev: prev, Next: next, At: time.Now()})
}

// NotifySession broadcasts a session transition.
func (s *Server) NotifySession(e session.Event) {
	s.broadcast("session", SessionEvent{Type: "session", Event: e})
}

func (s *Server) broadcast(kind string, v any) {
	if err := s.statusHub.BroadcastEvent(kind, v); err != nil {
		s.logger.Warn("status broadcast failed", "error", err)
	}
}

// snapshot is the status document with the server's own counters filled in.
func (s *Server) snapshot() Status {
	st := s.status()
	st.Subscribers = s.statusHub.Stats()
	return st
}

// Hub returns the status hub.
func (s *Server) Hub() *hub.Hub {
	return s.statusHub
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown(ctx context.Context) error {
	s.statusHub.Stop()

	s.mu.Lock()
	started := s.listener != nil
	s.mu.Unlock()
	if !started {
		return nil
	}

	timeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	return s.app.ShutdownWithTimeout(timeout)
}

// Package web serves skeleton frames to subscribers over WebSocket and
// exposes pipeline status over HTTP.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-posebridge/pkg/hub"
	"github.com/teslashibe/go-posebridge/pkg/pose"
	"github.com/teslashibe/go-posebridge/pkg/protocol"
)

// ErrClosed is returned by Publish after the server has shut down.
var ErrClosed = errors.New("web: server closed")

// Config holds server configuration
type Config struct {
	Addr           string        // Listen address, e.g. ":8080"
	StatusInterval time.Duration // Period of /ws/status broadcasts
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		StatusInterval: time.Second,
	}
}

// StatusFunc reports current pipeline status.
type StatusFunc func() protocol.StatusData

// Server publishes skeleton frames. It implements pose.Publisher.
type Server struct {
	app    *fiber.App
	config Config
	logger *slog.Logger

	// Last published frame, already in wire form
	last atomic.Pointer[protocol.SkeletonData]

	// Hubs for websocket broadcast
	skeletonHub *hub.Hub
	statusHub   *hub.Hub

	statusMu sync.RWMutex
	status   StatusFunc

	closed atomic.Bool
}

// NewServer creates a new skeleton server. logger may be nil.
func NewServer(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "web")
	s := &Server{
		config:      cfg,
		logger:      logger,
		skeletonHub: hub.New("skeleton", logger),
		statusHub:   hub.New("status", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "posebridge",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	app.Get("/health", s.handleHealth)
	app.Get("/metrics", s.handleMetrics)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/frame", s.handleFrame)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/skeleton", websocket.New(s.handleSkeletonWS))
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// App returns the fiber app so other components can mount routes.
func (s *Server) App() *fiber.App {
	return s.app
}

// SetStatusFunc installs the status reporter used by /api/status.
func (s *Server) SetStatusFunc(fn StatusFunc) {
	s.statusMu.Lock()
	s.status = fn
	s.statusMu.Unlock()
}

// Publish converts frame to its wire form, remembers it and broadcasts it
// to /ws/skeleton subscribers.
func (s *Server) Publish(frame *pose.SkeletonFrame) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if frame == nil {
		return fmt.Errorf("web: nil frame")
	}
	msg, err := protocol.NewSkeletonMessage(frame)
	if err != nil {
		return err
	}
	data, err := msg.Bytes()
	if err != nil {
		return fmt.Errorf("encode skeleton: %w", err)
	}

	wire := protocol.SkeletonFromFrame(frame)
	s.last.Store(&wire)
	s.skeletonHub.Broadcast(data)
	return nil
}

// LastFrame returns the most recently published frame.
func (s *Server) LastFrame() (protocol.SkeletonData, bool) {
	p := s.last.Load()
	if p == nil {
		return protocol.SkeletonData{}, false
	}
	return *p, true
}

// Subscribers returns the number of connected skeleton subscribers.
func (s *Server) Subscribers() int {
	return s.skeletonHub.ClientCount()
}

// Run starts the hubs and the HTTP listener and blocks until ctx is
// cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	go s.skeletonHub.Run(ctx)
	go s.statusHub.Run(ctx)
	go s.broadcastStatus(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.config.Addr)
		errCh <- s.app.Listen(s.config.Addr)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		s.closed.Store(true)
		return err
	}
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	s.closed.Store(true)
	return s.app.Shutdown()
}

func (s *Server) broadcastStatus(ctx context.Context) {
	if s.config.StatusInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.config.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.statusHub.ClientCount() == 0 {
				continue
			}
			msg, err := protocol.NewStatusMessage(s.currentStatus())
			if err != nil {
				continue
			}
			if err := s.statusHub.BroadcastJSON(msg); err != nil {
				s.logger.Warn("status broadcast failed", "error", err)
			}
		}
	}
}

// currentStatus combines the pipeline report with skeleton fan-out counters.
func (s *Server) currentStatus() protocol.StatusData {
	s.statusMu.RLock()
	fn := s.status
	s.statusMu.RUnlock()

	var st protocol.StatusData
	if fn != nil {
		st = fn()
	}
	hs := s.skeletonHub.Stats()
	st.Subscribers = hs.Clients
	st.BroadcastDrops = hs.Dropped
	st.SlowSubscribers = hs.SlowClients
	return st
}

package web

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-posebridge/pkg/hub"
	"github.com/teslashibe/go-posebridge/pkg/pose"
	"github.com/teslashibe/go-posebridge/pkg/protocol"
)

// handleHealth reports ok while both workers are running
func (s *Server) handleHealth(c *fiber.Ctx) error {
	st := s.currentStatus()
	stopped := st.Producer == pose.StateStopped.String() || st.Consumer == pose.StateStopped.String()
	if stopped {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "stopped",
		})
	}
	return c.JSON(fiber.Map{
		"status":      "ok",
		"subscribers": s.Subscribers(),
	})
}

// handleStatus returns pipeline counters and worker states
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.currentStatus())
}

// handleFrame returns the last published skeleton frame
func (s *Server) handleFrame(c *fiber.Ctx) error {
	frame, ok := s.LastFrame()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no frame published yet",
		})
	}
	return c.JSON(frame)
}

// handleSkeletonWS sends the last frame, then streams new ones
func (s *Server) handleSkeletonWS(c *websocket.Conn) {
	var greeting hub.Message
	if frame, ok := s.LastFrame(); ok {
		if msg, err := protocol.NewMessage(protocol.TypeSkeleton, frame); err == nil {
			greeting, _ = msg.Bytes()
		}
	}
	s.serve(s.skeletonHub, c, greeting)
}

// handleStatusWS streams periodic status snapshots
func (s *Server) handleStatusWS(c *websocket.Conn) {
	var greeting hub.Message
	if msg, err := protocol.NewStatusMessage(s.currentStatus()); err == nil {
		greeting, _ = msg.Bytes()
	}
	s.serve(s.statusHub, c, greeting)
}

func (s *Server) serve(h *hub.Hub, c *websocket.Conn, greeting hub.Message) {
	sub := hub.Subscribe(h, c, hub.DefaultSubscriberOptions())
	if sub == nil {
		return
	}
	sub.Serve(greeting)
}

// handleMetrics exposes counters in Prometheus text format
func (s *Server) handleMetrics(c *fiber.Ctx) error {
	st := s.currentStatus()
	return c.SendString(fmt.Sprintf(`# HELP posebridge_sensors Connected sensor count
# TYPE posebridge_sensors gauge
posebridge_sensors %d

# HELP posebridge_subscribers Connected skeleton subscribers
# TYPE posebridge_subscribers gauge
posebridge_subscribers %d

# HELP posebridge_work_produced Total work items produced
# TYPE posebridge_work_produced counter
posebridge_work_produced %d

# HELP posebridge_work_dropped Total camera frames or results overwritten before use
# TYPE posebridge_work_dropped counter
posebridge_work_dropped %d

# HELP posebridge_work_reoffered Total work items replaced by the same camera frame
# TYPE posebridge_work_reoffered counter
posebridge_work_reoffered %d

# HELP posebridge_detect_errors Total failed detector calls
# TYPE posebridge_detect_errors counter
posebridge_detect_errors %d

# HELP posebridge_frames_published Total skeleton frames published
# TYPE posebridge_frames_published counter
posebridge_frames_published %d

# HELP posebridge_broadcast_dropped Skeleton frames dropped on a full broadcast queue
# TYPE posebridge_broadcast_dropped counter
posebridge_broadcast_dropped %d

# HELP posebridge_slow_subscribers Subscribers disconnected for falling behind
# TYPE posebridge_slow_subscribers counter
posebridge_slow_subscribers %d
`, st.Sensors, st.Subscribers, st.Produced, st.Dropped, st.Reoffered, st.Failed, st.Published,
		st.BroadcastDrops, st.SlowSubscribers))
}

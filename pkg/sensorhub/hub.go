// Package sensorhub accepts RGB-D sensor connections over WebSocket and
// feeds decoded frames and intrinsics into a frame sink.
package sensorhub

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-posebridge/pkg/protocol"
	"github.com/teslashibe/go-posebridge/pkg/rgbd"
)

// Sink receives decoded sensor data. *rgbd.Source implements it.
type Sink interface {
	UpdateColor(img rgbd.ColorImage) error
	UpdateDepth(d rgbd.DepthImage) error
	SetIntrinsics(in rgbd.Intrinsics) error

	// Intrinsics bounds decoded frame sizes; nil means not yet known.
	Intrinsics() *rgbd.Intrinsics
}

// maxMessageSize bounds a single sensor message (base64 frames included)
const maxMessageSize = 16 * 1024 * 1024

// SensorConnection represents a connected sensor
type SensorConnection struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time

	mu sync.Mutex
}

// Send sends a message to the sensor
func (s *SensorConnection) Send(msg *protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	return s.Conn.WriteMessage(websocket.TextMessage, data)
}

func (s *SensorConnection) touch() {
	s.mu.Lock()
	s.LastSeen = time.Now()
	s.mu.Unlock()
}

// Hub manages WebSocket connections from sensors
type Hub struct {
	mu      sync.RWMutex
	sensors map[string]*SensorConnection
	sink    Sink
	logger  *slog.Logger

	// Stats
	messagesReceived  atomic.Uint64
	colorFrames       atomic.Uint64
	depthFrames       atomic.Uint64
	cameraInfoUpdates atomic.Uint64
	rejected          atomic.Uint64
}

// NewHub creates a new sensor hub writing into sink. logger may be nil.
func NewHub(sink Sink, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		sensors: make(map[string]*SensorConnection),
		sink:    sink,
		logger:  logger.With("component", "sensorhub"),
	}
}

// RegisterRoutes registers WebSocket routes on a Fiber app
func (h *Hub) RegisterRoutes(app *fiber.App) {
	app.Use("/ws/sensor", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/sensor", websocket.New(h.handleSensor))
	app.Get("/ws/sensor/:id", websocket.New(h.handleSensor))
}

// RegisterAPIRoutes registers sensor management routes
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	sensors := api.Group("/sensors")

	sensors.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"sensors": h.GetSensorInfos(),
			"count":   h.SensorCount(),
		})
	})

	sensors.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.GetStats())
	})
}

// handleSensor handles a sensor WebSocket connection
func (h *Hub) handleSensor(c *websocket.Conn) {
	sensorID := c.Params("id")
	if sensorID == "" {
		sensorID = uuid.NewString()
	}

	sensor := &SensorConnection{
		ID:        sensorID,
		Conn:      c,
		Connected: time.Now(),
		LastSeen:  time.Now(),
	}

	h.mu.Lock()
	h.sensors[sensorID] = sensor
	count := len(h.sensors)
	h.mu.Unlock()

	log := h.logger.With("sensor", sensorID)
	log.Info("sensor connected", "sensors", count)

	defer func() {
		h.mu.Lock()
		if h.sensors[sensorID] == sensor {
			delete(h.sensors, sensorID)
		}
		count := len(h.sensors)
		h.mu.Unlock()
		log.Info("sensor disconnected", "sensors", count)
	}()

	c.SetReadLimit(maxMessageSize)

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			log.Debug("read error", "error", err)
			return
		}

		sensor.touch()
		h.messagesReceived.Add(1)
		if reply := h.handleMessage(sensorID, data); reply != nil {
			if err := sensor.Send(reply); err != nil {
				log.Warn("send failed", "error", err)
				return
			}
		}
	}
}

// handleMessage processes one message and returns an optional reply.
// Malformed or rejected messages are logged and counted; the connection
// stays open.
func (h *Hub) handleMessage(sensorID string, data []byte) *protocol.Message {
	log := h.logger.With("sensor", sensorID)

	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.reject(log, "parse", err)
		return nil
	}

	switch msg.Type {
	case protocol.TypeColor:
		cd, err := msg.GetColorData()
		if err != nil {
			h.reject(log, "color", err)
			return nil
		}
		img, err := cd.Decode(rgbd.BoundsOf(h.sink.Intrinsics()))
		if err != nil {
			h.reject(log, "color", err)
			return nil
		}
		if err := h.sink.UpdateColor(img); err != nil {
			h.reject(log, "color", err)
			return nil
		}
		h.colorFrames.Add(1)

	case protocol.TypeDepth:
		dd, err := msg.GetDepthData()
		if err != nil {
			h.reject(log, "depth", err)
			return nil
		}
		depth, err := dd.Decode(rgbd.BoundsOf(h.sink.Intrinsics()))
		if err != nil {
			h.reject(log, "depth", err)
			return nil
		}
		if err := h.sink.UpdateDepth(depth); err != nil {
			h.reject(log, "depth", err)
			return nil
		}
		h.depthFrames.Add(1)

	case protocol.TypeCameraInfo:
		info, err := msg.GetCameraInfo()
		if err != nil {
			h.reject(log, "camera_info", err)
			return nil
		}
		if err := h.sink.SetIntrinsics(info.Intrinsics()); err != nil {
			h.reject(log, "camera_info", err)
			return nil
		}
		h.cameraInfoUpdates.Add(1)
		log.Info("camera info updated", "width", info.Width, "height", info.Height)

	case protocol.TypePing:
		var id string
		if ping, err := msg.GetPingData(); err == nil {
			id = ping.ID
		}
		pong, err := protocol.NewPongMessage(id, msg.Timestamp, time.Now().UnixMilli())
		if err != nil {
			return nil
		}
		return pong

	default:
		log.Debug("ignoring message", "type", msg.Type)
	}
	return nil
}

func (h *Hub) reject(log *slog.Logger, kind string, err error) {
	h.rejected.Add(1)
	log.Warn("rejected sensor message", "kind", kind, "error", err)
}

// GetSensor returns a sensor connection by ID
func (h *Hub) GetSensor(id string) *SensorConnection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sensors[id]
}

// SensorCount returns the number of connected sensors
func (h *Hub) SensorCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sensors)
}

// Stats contains hub statistics
type Stats struct {
	SensorCount       int    `json:"sensor_count"`
	MessagesReceived  uint64 `json:"messages_received"`
	ColorFrames       uint64 `json:"color_frames"`
	DepthFrames       uint64 `json:"depth_frames"`
	CameraInfoUpdates uint64 `json:"camera_info_updates"`
	Rejected          uint64 `json:"rejected"`
}

// GetStats returns hub statistics
func (h *Hub) GetStats() Stats {
	return Stats{
		SensorCount:       h.SensorCount(),
		MessagesReceived:  h.messagesReceived.Load(),
		ColorFrames:       h.colorFrames.Load(),
		DepthFrames:       h.depthFrames.Load(),
		CameraInfoUpdates: h.cameraInfoUpdates.Load(),
		Rejected:          h.rejected.Load(),
	}
}

// SensorInfo contains info about a connected sensor
type SensorInfo struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
}

// GetSensorInfos returns info about all connected sensors
func (h *Hub) GetSensorInfos() []SensorInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]SensorInfo, 0, len(h.sensors))
	for _, s := range h.sensors {
		s.mu.Lock()
		infos = append(infos, SensorInfo{
			ID:        s.ID,
			Connected: s.Connected,
			LastSeen:  s.LastSeen,
		})
		s.mu.Unlock()
	}
	return infos
}

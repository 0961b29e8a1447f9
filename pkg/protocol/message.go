// Package protocol defines the WebSocket message types exchanged between
// RGB-D sensors, the pose bridge and skeleton subscribers.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Sensor → bridge messages
	TypeColor      MessageType = "color"       // Color frame
	TypeDepth      MessageType = "depth"       // Depth frame aligned to color
	TypeCameraInfo MessageType = "camera_info" // Color camera intrinsics

	// Bridge → subscriber messages
	TypeSkeleton MessageType = "skeleton" // 3D skeleton frame
	TypeStatus   MessageType = "status"   // Pipeline status snapshot

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// =============================================================================
// Sensor → Bridge Message Types
// =============================================================================

// ColorData contains an encoded color frame
type ColorData struct {
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Format  string `json:"format"` // "jpeg"
	Data    string `json:"data"`   // base64 encoded
	StampNs int64  `json:"stamp_ns"`
	Seq     uint64 `json:"seq,omitempty"`
}

// DepthData contains an encoded depth frame
type DepthData struct {
	Width   int     `json:"width"`
	Height  int     `json:"height"`
	Format  string  `json:"format"` // "png16", "raw16le"
	Scale   float64 `json:"scale"`  // meters per unit
	Data    string  `json:"data"`   // base64 encoded
	StampNs int64   `json:"stamp_ns"`
	Seq     uint64  `json:"seq,omitempty"`
}

// CameraInfoData contains pinhole intrinsics of the color camera
type CameraInfoData struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// =============================================================================
// Bridge → Subscriber Message Types
// =============================================================================

// SkeletonData is the wire form of one skeleton frame
type SkeletonData struct {
	FrameID string       `json:"frame_id"`
	StampNs int64        `json:"stamp_ns"`
	Seq     uint64       `json:"seq"`
	WorkID  string       `json:"work_id,omitempty"`
	Persons []PersonData `json:"persons"`
}

// PersonData holds the ordered body parts of one person
type PersonData struct {
	BodyParts []BodyPartData `json:"body_parts"`
}

// BodyPartData is one keypoint with its 3D point
type BodyPartData struct {
	Pixel PixelData `json:"pixel"`
	Score float32   `json:"score"`
	Point PointData `json:"point"`
}

// PixelData is an image coordinate
type PixelData struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// PointData is a camera-frame point in meters. All zero means no depth.
type PointData struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// StatusData summarizes pipeline state
type StatusData struct {
	Producer  string `json:"producer"`
	Consumer  string `json:"consumer"`
	Produced  uint64 `json:"produced"`
	Idle      uint64 `json:"idle"`
	Dropped   uint64 `json:"dropped"`
	Reoffered uint64 `json:"reoffered"`
	Detected  uint64 `json:"detected"`
	Failed    uint64 `json:"detect_errors"`
	Published uint64 `json:"published"`
	Sensors   int    `json:"sensors"`

	// Skeleton fan-out, filled in by the web server
	Subscribers     int    `json:"subscribers"`
	BroadcastDrops  uint64 `json:"broadcast_dropped"`
	SlowSubscribers uint64 `json:"slow_subscribers"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}

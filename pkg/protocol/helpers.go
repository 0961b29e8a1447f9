package protocol

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-posebridge/pkg/pose"
	"github.com/teslashibe/go-posebridge/pkg/rgbd"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewColorMessage creates a color message from JPEG data
func NewColorMessage(width, height int, jpegData []byte, stamp time.Time, seq uint64) (*Message, error) {
	return NewMessage(TypeColor, ColorData{
		Width:   width,
		Height:  height,
		Format:  "jpeg",
		Data:    base64.StdEncoding.EncodeToString(jpegData),
		StampNs: stamp.UnixNano(),
		Seq:     seq,
	})
}

// NewDepthMessage creates a depth message from encoded depth samples
func NewDepthMessage(width, height int, format string, scale float64, data []byte, stamp time.Time, seq uint64) (*Message, error) {
	return NewMessage(TypeDepth, DepthData{
		Width:   width,
		Height:  height,
		Format:  format,
		Scale:   scale,
		Data:    base64.StdEncoding.EncodeToString(data),
		StampNs: stamp.UnixNano(),
		Seq:     seq,
	})
}

// NewCameraInfoMessage creates a camera_info message
func NewCameraInfoMessage(in rgbd.Intrinsics) (*Message, error) {
	return NewMessage(TypeCameraInfo, CameraInfoData{
		Width:  in.Width,
		Height: in.Height,
		Fx:     in.Fx,
		Fy:     in.Fy,
		Ppx:    in.Ppx,
		Ppy:    in.Ppy,
	})
}

// NewSkeletonMessage creates a skeleton message from a frame
func NewSkeletonMessage(frame *pose.SkeletonFrame) (*Message, error) {
	return NewMessage(TypeSkeleton, SkeletonFromFrame(frame))
}

// NewStatusMessage creates a status message
func NewStatusMessage(status StatusData) (*Message, error) {
	return NewMessage(TypeStatus, status)
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// SkeletonFromFrame converts a frame to its wire form
func SkeletonFromFrame(frame *pose.SkeletonFrame) SkeletonData {
	data := SkeletonData{
		FrameID: frame.FrameID,
		StampNs: frame.Stamp.UnixNano(),
		Seq:     frame.Seq,
		Persons: make([]PersonData, len(frame.Persons)),
	}
	if frame.WorkID != uuid.Nil {
		data.WorkID = frame.WorkID.String()
	}
	for i, p := range frame.Persons {
		parts := make([]BodyPartData, len(p.BodyParts))
		for j, bp := range p.BodyParts {
			parts[j] = BodyPartData{
				Pixel: PixelData{X: bp.Pixel.X, Y: bp.Pixel.Y},
				Score: bp.Score,
				Point: PointData{X: bp.Point.X, Y: bp.Point.Y, Z: bp.Point.Z},
			}
		}
		data.Persons[i].BodyParts = parts
	}
	return data
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetColorData extracts color data from a message
func (m *Message) GetColorData() (*ColorData, error) {
	var data ColorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Decode decodes the color frame into a packed BGR image. Frames whose
// header exceeds b are rejected before decoding.
func (c *ColorData) Decode(b rgbd.Bounds) (rgbd.ColorImage, error) {
	if c.Format != "jpeg" && c.Format != "" {
		return rgbd.ColorImage{}, fmt.Errorf("%w: color %q", rgbd.ErrUnsupportedFormat, c.Format)
	}
	raw, err := base64.StdEncoding.DecodeString(c.Data)
	if err != nil {
		return rgbd.ColorImage{}, fmt.Errorf("decode base64: %w", err)
	}
	return rgbd.DecodeColorJPEG(raw, stampOrNow(c.StampNs), b)
}

// GetDepthData extracts depth data from a message
func (m *Message) GetDepthData() (*DepthData, error) {
	var data DepthData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Decode decodes the depth frame, rejecting frames larger than b
func (d *DepthData) Decode(b rgbd.Bounds) (rgbd.DepthImage, error) {
	raw, err := base64.StdEncoding.DecodeString(d.Data)
	if err != nil {
		return rgbd.DepthImage{}, fmt.Errorf("decode base64: %w", err)
	}
	return rgbd.DecodeDepth(d.Format, raw, d.Width, d.Height, d.Scale, stampOrNow(d.StampNs), b)
}

// GetCameraInfo extracts camera info from a message
func (m *Message) GetCameraInfo() (*CameraInfoData, error) {
	var data CameraInfoData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Intrinsics converts camera info to rgbd intrinsics
func (c *CameraInfoData) Intrinsics() rgbd.Intrinsics {
	return rgbd.Intrinsics{
		Width:  c.Width,
		Height: c.Height,
		Fx:     c.Fx,
		Fy:     c.Fy,
		Ppx:    c.Ppx,
		Ppy:    c.Ppy,
	}
}

// GetSkeletonData extracts skeleton data from a message
func (m *Message) GetSkeletonData() (*SkeletonData, error) {
	var data SkeletonData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

func stampOrNow(ns int64) time.Time {
	if ns == 0 {
		return time.Now()
	}
	return time.Unix(0, ns)
}

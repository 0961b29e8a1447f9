package protocol

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-posebridge/pkg/pose"
	"github.com/teslashibe/go-posebridge/pkg/rgbd"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    interface{}
		wantErr bool
	}{
		{
			name:    "ping message",
			msgType: TypePing,
			data:    PingData{ID: "test-123", Timestamp: 1234567890},
			wantErr: false,
		},
		{
			name:    "camera info",
			msgType: TypeCameraInfo,
			data:    CameraInfoData{Width: 640, Height: 480, Fx: 600, Fy: 600, Ppx: 320, Ppy: 240},
			wantErr: false,
		},
		{
			name:    "nil data",
			msgType: TypePong,
			data:    nil,
			wantErr: false,
		},
		{
			name:    "unmarshalable data",
			msgType: TypeStatus,
			data:    make(chan int),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("Type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("Timestamp should be set")
			}
		})
	}
}

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    MessageType
		wantErr bool
	}{
		{"skeleton", `{"type":"skeleton","ts":1,"data":{"frame_id":"cam","persons":[]}}`, TypeSkeleton, false},
		{"depth", `{"type":"depth","data":{"format":"png16"}}`, TypeDepth, false},
		{"no data", `{"type":"ping"}`, TypePing, false},
		{"invalid json", `{"type":`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseMessage([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && msg.Type != tt.want {
				t.Errorf("Type = %v, want %v", msg.Type, tt.want)
			}
		})
	}
}

func TestCameraInfoIntrinsics(t *testing.T) {
	in := rgbd.Intrinsics{Width: 640, Height: 480, Fx: 615.5, Fy: 616.2, Ppx: 321.1, Ppy: 239.7}
	msg, err := NewCameraInfoMessage(in)
	if err != nil {
		t.Fatalf("NewCameraInfoMessage: %v", err)
	}
	b, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	parsed, err := ParseMessage(b)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	info, err := parsed.GetCameraInfo()
	if err != nil {
		t.Fatalf("GetCameraInfo: %v", err)
	}
	if got := info.Intrinsics(); got != in {
		t.Errorf("Intrinsics() = %+v, want %+v", got, in)
	}
}

func TestColorDataDecode(t *testing.T) {
	src := rgbd.ColorImage{Width: 8, Height: 4, Channels: 3, Pix: make([]byte, 8*4*3)}
	for i := range src.Pix {
		src.Pix[i] = 128
	}
	jpg, err := rgbd.EncodeColorJPEG(src, 90)
	if err != nil {
		t.Fatalf("EncodeColorJPEG: %v", err)
	}
	stamp := time.Unix(1700000000, 5000)
	msg, err := NewColorMessage(8, 4, jpg, stamp, 7)
	if err != nil {
		t.Fatalf("NewColorMessage: %v", err)
	}

	data, err := msg.GetColorData()
	if err != nil {
		t.Fatalf("GetColorData: %v", err)
	}
	if data.Seq != 7 || data.Format != "jpeg" {
		t.Errorf("unexpected header: %+v", data)
	}
	img, err := data.Decode(rgbd.Bounds{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if img.Width != 8 || img.Height != 4 || img.Channels != 3 {
		t.Errorf("decoded %dx%dx%d, want 8x4x3", img.Width, img.Height, img.Channels)
	}
	if !img.Stamp.Equal(stamp) {
		t.Errorf("Stamp = %v, want %v", img.Stamp, stamp)
	}
}

func TestColorDataDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data ColorData
		want error
	}{
		{"unsupported format", ColorData{Format: "h264", Data: ""}, rgbd.ErrUnsupportedFormat},
		{"bad base64", ColorData{Format: "jpeg", Data: "!!"}, nil},
		{"not a jpeg", ColorData{Format: "jpeg", Data: base64.StdEncoding.EncodeToString([]byte("nope"))}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.data.Decode(rgbd.Bounds{})
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDepthDataDecode(t *testing.T) {
	depth := rgbd.DepthImage{Width: 3, Height: 2, Data: []uint16{0, 500, 1000, 1500, 2000, 65535}, Scale: 0.001}

	tests := []struct {
		name   string
		format string
		encode func() ([]byte, error)
	}{
		{"png16", rgbd.DepthFormatPNG16, func() ([]byte, error) { return rgbd.EncodeDepthPNG(depth) }},
		{"raw16le", rgbd.DepthFormatRaw16LE, func() ([]byte, error) { return rgbd.EncodeDepthRaw(depth), nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := tt.encode()
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			msg, err := NewDepthMessage(3, 2, tt.format, 0.001, raw, time.Now(), 1)
			if err != nil {
				t.Fatalf("NewDepthMessage: %v", err)
			}
			data, err := msg.GetDepthData()
			if err != nil {
				t.Fatalf("GetDepthData: %v", err)
			}
			got, err := data.Decode(rgbd.Bounds{})
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got.Width != 3 || got.Height != 2 {
				t.Fatalf("decoded %dx%d, want 3x2", got.Width, got.Height)
			}
			for i, v := range depth.Data {
				if got.Data[i] != v {
					t.Errorf("Data[%d] = %d, want %d", i, got.Data[i], v)
				}
			}
		})
	}
}

func TestSkeletonFromFrame(t *testing.T) {
	id := uuid.New()
	frame := &pose.SkeletonFrame{
		FrameID: "camera_color_optical_frame",
		Stamp:   time.Unix(10, 0),
		Seq:     3,
		WorkID:  id,
		Persons: []pose.Person{
			{BodyParts: []pose.BodyPart{
				{Pixel: pose.Pixel{X: 10, Y: 20}, Score: 0.9, Point: rgbd.Point3D{X: 0.1, Y: 0.2, Z: 1}},
				{Pixel: pose.Pixel{X: 30, Y: 40}, Score: 0.8, Point: rgbd.InvalidPoint},
			}},
		},
	}

	data := SkeletonFromFrame(frame)

	if data.FrameID != frame.FrameID || data.Seq != 3 || data.WorkID != id.String() {
		t.Errorf("header mismatch: %+v", data)
	}
	if data.StampNs != 10*int64(time.Second) {
		t.Errorf("StampNs = %d", data.StampNs)
	}
	if len(data.Persons) != 1 || len(data.Persons[0].BodyParts) != 2 {
		t.Fatalf("unexpected shape: %+v", data.Persons)
	}
	first := data.Persons[0].BodyParts[0]
	if first.Pixel != (PixelData{X: 10, Y: 20}) || first.Point != (PointData{X: 0.1, Y: 0.2, Z: 1}) {
		t.Errorf("first body part = %+v", first)
	}
	if data.Persons[0].BodyParts[1].Point != (PointData{}) {
		t.Errorf("missing depth should encode as zero point, got %+v", data.Persons[0].BodyParts[1].Point)
	}
}

func TestSkeletonFromFrameNoWorkID(t *testing.T) {
	data := SkeletonFromFrame(&pose.SkeletonFrame{FrameID: "f"})
	if data.WorkID != "" {
		t.Errorf("WorkID = %q, want empty", data.WorkID)
	}
	if data.Persons == nil {
		t.Error("Persons should be an empty slice, not nil")
	}
}

func TestPongLatency(t *testing.T) {
	msg, err := NewPongMessage("p1", 1000, 1042)
	if err != nil {
		t.Fatalf("NewPongMessage: %v", err)
	}
	pong, err := msg.GetPongData()
	if err != nil {
		t.Fatalf("GetPongData: %v", err)
	}
	if pong.LatencyMs != 42 {
		t.Errorf("LatencyMs = %d, want 42", pong.LatencyMs)
	}
}

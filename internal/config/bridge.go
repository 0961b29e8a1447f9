// Package config provides configuration for the posebridge commands.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Detector backends.
const (
	DetectorOpenPose = "openpose"
	DetectorMock     = "mock"
)

// ErrMissingModelDir is returned by Validate when the OpenPose backend is
// selected without a model directory.
var ErrMissingModelDir = errors.New("config: model directory is required")

// Bridge holds the configuration of the pose bridge.
type Bridge struct {
	ModelDir   string  // Directory containing pose/coco/ model files
	Detector   string  // "openpose" or "mock"
	FrameID    string  // Coordinate frame stamped on skeleton frames
	Port       string  // HTTP/WebSocket listen port
	Intrinsics string  // Optional intrinsics file or URL; empty waits for camera_info
	LogLevel   string  // debug, info, warn, error
	MaxDepth   float64 // Meters; deeper samples are treated as invalid

	PollInterval time.Duration // Producer sleep per cycle
	WarnInterval time.Duration // Minimum gap between empty-frame warnings
	StartTimeout time.Duration // How long to wait for intrinsics; 0 waits forever

	InputSize   int     // Network input width and height
	ScoreThresh float64 // Minimum body part score
}

// DefaultBridge returns production defaults.
func DefaultBridge() Bridge {
	return Bridge{
		Detector:     DetectorOpenPose,
		FrameID:      "camera_color_optical_frame",
		Port:         "8080",
		LogLevel:     "info",
		MaxDepth:     10,
		PollInterval: time.Millisecond,
		WarnInterval: 10 * time.Second,
		InputSize:    368,
		ScoreThresh:  0.1,
	}
}

// FromEnv returns DefaultBridge with environment overrides applied.
func FromEnv() Bridge {
	b := DefaultBridge()
	b.ApplyEnv(os.Getenv)
	return b
}

// ApplyEnv overrides fields from the POSEBRIDGE_* variables and LOG_LEVEL.
// Unparseable numeric values are ignored.
func (b *Bridge) ApplyEnv(getenv func(string) string) {
	if v := getenv("POSEBRIDGE_MODEL_DIR"); v != "" {
		b.ModelDir = v
	}
	if v := getenv("POSEBRIDGE_DETECTOR"); v != "" {
		b.Detector = v
	}
	if v := getenv("POSEBRIDGE_FRAME_ID"); v != "" {
		b.FrameID = v
	}
	if v := getenv("POSEBRIDGE_PORT"); v != "" {
		b.Port = v
	}
	if v := getenv("POSEBRIDGE_INTRINSICS"); v != "" {
		b.Intrinsics = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		b.LogLevel = v
	}
	if v := getenv("POSEBRIDGE_MAX_DEPTH"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			b.MaxDepth = f
		}
	}
	if v := getenv("POSEBRIDGE_WARN_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			b.WarnInterval = d
		}
	}
}

// Addr returns the listen address.
func (b *Bridge) Addr() string {
	return ":" + b.Port
}

// Validate checks the configuration.
func (b *Bridge) Validate() error {
	switch b.Detector {
	case DetectorOpenPose:
		if b.ModelDir == "" {
			return ErrMissingModelDir
		}
		if _, err := os.Stat(b.ModelDir); err != nil {
			return fmt.Errorf("%w: %v", ErrMissingModelDir, err)
		}
	case DetectorMock:
	default:
		return fmt.Errorf("config: unknown detector %q", b.Detector)
	}
	if b.FrameID == "" {
		return fmt.Errorf("config: frame id is required")
	}
	if p, err := strconv.Atoi(b.Port); err != nil || p <= 0 || p > 65535 {
		return fmt.Errorf("config: invalid port %q", b.Port)
	}
	if b.MaxDepth <= 0 {
		return fmt.Errorf("config: max depth must be positive, got %v", b.MaxDepth)
	}
	if b.WarnInterval <= 0 {
		return fmt.Errorf("config: warn interval must be positive, got %v", b.WarnInterval)
	}
	if b.InputSize <= 0 {
		return fmt.Errorf("config: input size must be positive, got %d", b.InputSize)
	}
	return nil
}

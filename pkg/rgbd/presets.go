package rgbd

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// PresetPrefix selects a named preset in LoadIntrinsics, e.g. "preset:d435".
const PresetPrefix = "preset:"

// Preset names for common color streams. Values are nominal; calibrated
// intrinsics from camera_info are preferred when a sensor provides them.
const (
	PresetVGA      = "vga"
	PresetHD720    = "720p"
	PresetD435     = "d435"
	PresetD435HD   = "d435-720p"
	PresetAzureKin = "azure-kinect-720p"
)

// Presets returns all available intrinsics presets.
func Presets() map[string]Intrinsics {
	return map[string]Intrinsics{
		PresetVGA:      fromHFOV(640, 480, 60),
		PresetHD720:    fromHFOV(1280, 720, 69),
		PresetD435:     {Width: 640, Height: 480, Fx: 615.0, Fy: 615.0, Ppx: 320.0, Ppy: 240.0},
		PresetD435HD:   {Width: 1280, Height: 720, Fx: 922.5, Fy: 922.5, Ppx: 640.0, Ppy: 360.0},
		PresetAzureKin: {Width: 1280, Height: 720, Fx: 605.0, Fy: 605.0, Ppx: 638.0, Ppy: 366.0},
	}
}

// PresetNames returns the sorted preset names.
func PresetNames() []string {
	names := make([]string, 0, len(Presets()))
	for name := range Presets() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPreset returns a preset by name, or nil if not found.
func GetPreset(name string) *Intrinsics {
	if in, ok := Presets()[strings.ToLower(name)]; ok {
		return &in
	}
	return nil
}

func presetFromLocation(location string) (*Intrinsics, error) {
	name := strings.TrimPrefix(location, PresetPrefix)
	in := GetPreset(name)
	if in == nil {
		return nil, fmt.Errorf("%w: unknown preset %q (have %s)",
			ErrInvalidIntrinsics, name, strings.Join(PresetNames(), ", "))
	}
	return in, nil
}

// fromHFOV builds centred intrinsics with square pixels from a horizontal
// field of view in degrees.
func fromHFOV(width, height int, hfov float64) Intrinsics {
	f := float64(width) / 2 / math.Tan(hfov*math.Pi/360)
	return Intrinsics{
		Width:  width,
		Height: height,
		Fx:     f,
		Fy:     f,
		Ppx:    float64(width) / 2,
		Ppy:    float64(height) / 2,
	}
}

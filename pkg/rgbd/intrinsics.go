package rgbd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/teslashibe/go-posebridge/internal/httpc"
)

// Intrinsics holds the pinhole parameters of the color camera.
type Intrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// CheckValid reports the first invalid parameter, if any.
func (in *Intrinsics) CheckValid() error {
	if in == nil {
		return ErrNoIntrinsics
	}
	if in.Width <= 0 || in.Height <= 0 {
		return fmt.Errorf("%w: invalid size %dx%d", ErrInvalidIntrinsics, in.Width, in.Height)
	}
	if in.Fx <= 0 || in.Fy <= 0 {
		return fmt.Errorf("%w: invalid focal length fx=%v fy=%v", ErrInvalidIntrinsics, in.Fx, in.Fy)
	}
	if in.Ppx < 0 || in.Ppy < 0 {
		return fmt.Errorf("%w: invalid principal point (%v, %v)", ErrInvalidIntrinsics, in.Ppx, in.Ppy)
	}
	return nil
}

// CameraMatrix returns
//
//	[[fx 0 ppx],
//	 [0 fy ppy],
//	 [0  0   1]]
func (in *Intrinsics) CameraMatrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		in.Fx, 0, in.Ppx,
		0, in.Fy, in.Ppy,
		0, 0, 1,
	})
}

// InverseCameraMatrix returns the closed-form inverse of CameraMatrix.
func (in *Intrinsics) InverseCameraMatrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1 / in.Fx, 0, -in.Ppx / in.Fx,
		0, 1 / in.Fy, -in.Ppy / in.Fy,
		0, 0, 1,
	})
}

// ParseIntrinsics decodes intrinsics JSON and validates it.
func ParseIntrinsics(data []byte) (*Intrinsics, error) {
	var in Intrinsics
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("parse intrinsics: %w", err)
	}
	if err := in.CheckValid(); err != nil {
		return nil, err
	}
	return &in, nil
}

// LoadIntrinsics reads intrinsics JSON from a file path or an http(s) URL,
// or returns a named preset for "preset:<name>".
func LoadIntrinsics(location string) (*Intrinsics, error) {
	if strings.HasPrefix(location, PresetPrefix) {
		return presetFromLocation(location)
	}
	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		data, err = fetch(location)
	} else {
		data, err = os.ReadFile(location)
	}
	if err != nil {
		return nil, fmt.Errorf("load intrinsics from %s: %w", location, err)
	}
	return ParseIntrinsics(data)
}

func fetch(url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), httpc.DefaultTimeout)
	defer cancel()
	return httpc.Fetch(ctx, url)
}

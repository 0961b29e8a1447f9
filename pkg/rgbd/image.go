// Package rgbd holds the latest color and depth frames of an RGB-D sensor
// and turns pixel coordinates into camera-frame 3D points.
package rgbd

import (
	"time"

	"github.com/golang/geo/r3"
)

// Point3D is a camera-frame point in meters.
type Point3D = r3.Vector

// InvalidPoint is returned for pixels without usable depth.
var InvalidPoint = Point3D{}

// DefaultDepthScale converts millimeter depth samples to meters.
const DefaultDepthScale = 0.001

// ColorImage is a packed 8-bit image in BGR channel order.
type ColorImage struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
	Stamp    time.Time
}

// Empty reports whether the image carries no pixel data.
func (c ColorImage) Empty() bool {
	return c.Width <= 0 || c.Height <= 0 || len(c.Pix) == 0
}

// Size returns the number of bytes a well-formed image of these dimensions holds.
func (c ColorImage) Size() int {
	return c.Width * c.Height * c.Channels
}

// DepthImage is a grid of raw depth samples aligned to the color image.
// A sample of 0 means no reading.
type DepthImage struct {
	Width  int
	Height int
	Data   []uint16
	Scale  float64 // meters per unit
	Stamp  time.Time
}

// Empty reports whether the depth image carries no samples.
func (d *DepthImage) Empty() bool {
	return d == nil || d.Width <= 0 || d.Height <= 0 || len(d.Data) < d.Width*d.Height
}

// At returns the sample at (x, y) and false when the pixel is off-image.
func (d *DepthImage) At(x, y int) (uint16, bool) {
	if d.Empty() || x < 0 || y < 0 || x >= d.Width || y >= d.Height {
		return 0, false
	}
	return d.Data[y*d.Width+x], true
}

// Meters returns the depth at (x, y) in meters, or 0 when unknown.
func (d *DepthImage) Meters(x, y int) float64 {
	v, ok := d.At(x, y)
	if !ok || v == 0 {
		return 0
	}
	scale := d.Scale
	if scale <= 0 {
		scale = DefaultDepthScale
	}
	return float64(v) * scale
}

package rgbd

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/mat"
)

// ErrNoSnapshot is returned by Deproject before any RefreshLatestDepthFrame.
var ErrNoSnapshot = errors.New("rgbd: no depth snapshot, call RefreshLatestDepthFrame first")

// Config holds Source configuration.
type Config struct {
	// MaxDepth is the farthest depth in meters still considered valid.
	// 0 disables the check.
	MaxDepth float64 `json:"max_depth"`
}

// DefaultConfig returns a Config suited to common structured-light and
// stereo RGB-D cameras.
func DefaultConfig() Config {
	return Config{
		MaxDepth: 10.0,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.MaxDepth < 0 || math.IsNaN(c.MaxDepth) {
		return fmt.Errorf("max_depth must be >= 0, got %v", c.MaxDepth)
	}
	return nil
}

type calibration struct {
	intrinsics Intrinsics
	inverse    *mat.Dense
}

func (c *calibration) fits(d *DepthImage) bool {
	return d.Width == c.intrinsics.Width && d.Height == c.intrinsics.Height
}

// DepthSnapshot pairs one depth image with the intrinsics in effect when it
// was taken. It is immutable.
type DepthSnapshot struct {
	depth    *DepthImage
	cal      *calibration
	maxDepth float64
}

// Depth returns the depth image of the snapshot, possibly nil.
func (s *DepthSnapshot) Depth() *DepthImage {
	return s.depth
}

// Deproject maps pixel (x, y) to a camera-frame point using the depth
// sample nearest to the pixel. Pixels without usable depth yield
// InvalidPoint.
func (s *DepthSnapshot) Deproject(x, y float64) Point3D {
	if s.depth.Empty() || math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return InvalidPoint
	}

	z := s.depth.Meters(int(math.Round(x)), int(math.Round(y)))
	if z <= 0 || (s.maxDepth > 0 && z > s.maxDepth) {
		return InvalidPoint
	}

	var ray mat.VecDense
	ray.MulVec(s.cal.inverse, mat.NewVecDense(3, []float64{x, y, 1}))
	return Point3D{X: ray.AtVec(0) * z, Y: ray.AtVec(1) * z, Z: z}
}

// Source keeps the most recent color and depth frames of one sensor.
//
// Writers (the ingest side) and readers (producer and consumer goroutines)
// never block each other: every frame is published through an atomic
// pointer and is treated as immutable once stored.
type Source struct {
	cfg Config

	color  atomic.Pointer[ColorImage]
	depth  atomic.Pointer[DepthImage]
	cal    atomic.Pointer[calibration]
	active atomic.Pointer[DepthSnapshot]

	calReady chan struct{}
	calOnce  sync.Once
}

// NewSource creates an empty Source.
func NewSource(cfg Config) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Source{
		cfg:      cfg,
		calReady: make(chan struct{}),
	}, nil
}

// UpdateColor stores img as the latest color frame. The caller must not
// modify img.Pix afterwards.
func (s *Source) UpdateColor(img ColorImage) error {
	if img.Empty() {
		return fmt.Errorf("%w: empty color image", ErrMalformedImage)
	}
	if img.Channels <= 0 || len(img.Pix) != img.Size() {
		return fmt.Errorf("%w: color %dx%dx%d with %d bytes",
			ErrMalformedImage, img.Width, img.Height, img.Channels, len(img.Pix))
	}
	s.color.Store(&img)
	return nil
}

// UpdateDepth stores d as the latest depth frame. The caller must not
// modify d.Data afterwards. Once intrinsics are set, d must have their
// resolution.
func (s *Source) UpdateDepth(d DepthImage) error {
	if d.Empty() || len(d.Data) != d.Width*d.Height {
		return fmt.Errorf("%w: depth %dx%d with %d samples",
			ErrMalformedImage, d.Width, d.Height, len(d.Data))
	}
	if cal := s.cal.Load(); cal != nil && !cal.fits(&d) {
		return fmt.Errorf("%w: depth %dx%d, intrinsics %dx%d",
			ErrSizeMismatch, d.Width, d.Height, cal.intrinsics.Width, cal.intrinsics.Height)
	}
	if d.Scale <= 0 {
		d.Scale = DefaultDepthScale
	}
	s.depth.Store(&d)
	return nil
}

// SetIntrinsics installs the camera intrinsics used for deprojection.
func (s *Source) SetIntrinsics(in Intrinsics) error {
	if err := in.CheckValid(); err != nil {
		return err
	}
	s.cal.Store(&calibration{intrinsics: in, inverse: in.InverseCameraMatrix()})
	s.calOnce.Do(func() { close(s.calReady) })
	return nil
}

// Intrinsics returns the current intrinsics, or nil if none were set.
func (s *Source) Intrinsics() *Intrinsics {
	cal := s.cal.Load()
	if cal == nil {
		return nil
	}
	in := cal.intrinsics
	return &in
}

// WaitIntrinsics blocks until intrinsics are available or ctx is done.
func (s *Source) WaitIntrinsics(ctx context.Context) (*Intrinsics, error) {
	select {
	case <-s.calReady:
		return s.Intrinsics(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// LatestColorFrame returns the newest color frame, or an empty image when
// nothing has been captured yet. It never blocks.
func (s *Source) LatestColorFrame() (ColorImage, error) {
	img := s.color.Load()
	if img == nil {
		return ColorImage{}, nil
	}
	return *img, nil
}

// RefreshLatestDepthFrame makes the newest depth frame the one used by
// subsequent Deproject calls. A missing depth frame is not an error; points
// simply come back invalid until one arrives. The same holds for a frame
// stored before intrinsics of a different resolution were installed.
func (s *Source) RefreshLatestDepthFrame() error {
	cal := s.cal.Load()
	if cal == nil {
		return ErrNoIntrinsics
	}
	depth := s.depth.Load()
	if depth != nil && !cal.fits(depth) {
		depth = nil
	}
	s.active.Store(&DepthSnapshot{
		depth:    depth,
		cal:      cal,
		maxDepth: s.cfg.MaxDepth,
	})
	return nil
}

// Snapshot returns the depth snapshot selected by the last refresh.
func (s *Source) Snapshot() *DepthSnapshot {
	return s.active.Load()
}

// Deproject maps (x, y) through the current depth snapshot.
func (s *Source) Deproject(x, y float64) (Point3D, error) {
	snap := s.active.Load()
	if snap == nil {
		return InvalidPoint, ErrNoSnapshot
	}
	return snap.Deproject(x, y), nil
}

package pose

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-posebridge/pkg/rgbd"
)

// DepthSource gives access to the latest depth frame for deprojection.
type DepthSource interface {
	// RefreshLatestDepthFrame selects the newest depth frame for the
	// following Deproject calls.
	RefreshLatestDepthFrame() error

	// Deproject maps a pixel to a camera-frame point. Pixels without
	// usable depth yield rgbd.InvalidPoint and no error.
	Deproject(x, y float64) (rgbd.Point3D, error)
}

// Publisher delivers finished frames. The frame must not be modified by
// the publisher's callers after Publish.
type Publisher interface {
	Publish(frame *SkeletonFrame) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(frame *SkeletonFrame) error

// Publish calls f(frame).
func (f PublisherFunc) Publish(frame *SkeletonFrame) error {
	return f(frame)
}

// ConsumerConfig holds Consumer settings.
type ConsumerConfig struct {
	// FrameID tags every published frame with the camera coordinate frame.
	FrameID string
}

// DefaultConsumerConfig returns defaults.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		FrameID: "camera_color_optical_frame",
	}
}

// Validate checks that the configuration is valid.
func (c *ConsumerConfig) Validate() error {
	if c.FrameID == "" {
		return fmt.Errorf("frame_id is required")
	}
	return nil
}

// Consumer converts detection results into published SkeletonFrames.
type Consumer struct {
	worker

	cfg   ConsumerConfig
	depth DepthSource
	pub   Publisher
	now   func() time.Time

	seq       atomic.Uint64
	published atomic.Uint64
}

// NewConsumer creates a running Consumer.
func NewConsumer(cfg ConsumerConfig, depth DepthSource, pub Publisher, logger *slog.Logger) (*Consumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid consumer config: %w", err)
	}
	if depth == nil || pub == nil {
		return nil, fmt.Errorf("consumer: depth source and publisher are required")
	}
	c := &Consumer{
		cfg:   cfg,
		depth: depth,
		pub:   pub,
		now:   time.Now,
	}
	c.init("consumer", logger)
	return c, nil
}

// Published returns the number of frames published so far.
func (c *Consumer) Published() uint64 {
	return c.published.Load()
}

// Accept turns res into one published SkeletonFrame. Results with no
// persons are skipped. After a fault it returns the *WorkerError forever
// and publishes nothing.
func (c *Consumer) Accept(res *Result) (err error) {
	if err := c.Err(); err != nil {
		return err
	}
	if res == nil || res.Keypoints.Persons() == 0 {
		return nil
	}
	defer c.recoverFault("accept", &err)

	frame, err := c.assemble(res)
	if err != nil {
		return err
	}

	if err := c.pub.Publish(frame); err != nil {
		return c.fail("publish", err)
	}
	c.published.Add(1)
	return nil
}

// assemble builds a fresh frame; it never reuses a previous one.
func (c *Consumer) assemble(res *Result) (*SkeletonFrame, error) {
	kps := res.Keypoints
	frame := &SkeletonFrame{
		FrameID: c.cfg.FrameID,
		Stamp:   c.now(),
		Persons: make([]Person, kps.Persons()),
	}
	if res.Work != nil {
		frame.WorkID = res.Work.ID
	}

	// Depth is sampled now, not at color capture time.
	if err := c.depth.RefreshLatestDepthFrame(); err != nil {
		return nil, c.fail("refresh_depth", err)
	}

	for p := range frame.Persons {
		parts := make([]BodyPart, kps.Parts())
		for b := range parts {
			kp, err := kps.Keypoint(p, b)
			if err != nil {
				return nil, c.fail("keypoint", err)
			}
			// Score 0 marks a part the detector did not find.
			point := rgbd.InvalidPoint
			if kp.Score != 0 {
				point, err = c.depth.Deproject(float64(kp.X), float64(kp.Y))
				if err != nil {
					return nil, c.fail("deproject", err)
				}
			}
			parts[b] = BodyPart{
				Pixel: Pixel{X: kp.X, Y: kp.Y},
				Score: kp.Score,
				Point: point,
			}
		}
		frame.Persons[p].BodyParts = parts
	}

	frame.Seq = c.seq.Add(1)
	return frame, nil
}

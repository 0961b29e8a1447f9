package pose

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/teslashibe/go-posebridge/pkg/rgbd"
)

// ColorSource supplies the latest color frame without blocking.
type ColorSource interface {
	LatestColorFrame() (rgbd.ColorImage, error)
}

// ProducerConfig holds Producer tuning.
type ProducerConfig struct {
	// PollInterval is slept on every Next call to bound idle CPU use.
	PollInterval time.Duration

	// WarnInterval is the minimum gap between "no color frame" warnings.
	WarnInterval time.Duration
}

// DefaultProducerConfig returns production defaults.
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		PollInterval: time.Millisecond,
		WarnInterval: 10 * time.Second,
	}
}

// Validate checks that the configuration is valid.
func (c *ProducerConfig) Validate() error {
	if c.PollInterval < 0 {
		return fmt.Errorf("poll_interval must be >= 0, got %v", c.PollInterval)
	}
	if c.WarnInterval <= 0 {
		return fmt.Errorf("warn_interval must be > 0, got %v", c.WarnInterval)
	}
	return nil
}

// Producer feeds the freshest color frame to the detection engine.
// Frames are never queued: each call offers whatever is newest.
type Producer struct {
	worker

	cfg    ProducerConfig
	source ColorSource
	empty  rate.Sometimes
}

// NewProducer creates a running Producer.
func NewProducer(cfg ProducerConfig, source ColorSource, logger *slog.Logger) (*Producer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid producer config: %w", err)
	}
	if source == nil {
		return nil, fmt.Errorf("producer: color source is required")
	}
	p := &Producer{
		cfg:    cfg,
		source: source,
		empty:  rate.Sometimes{Interval: cfg.WarnInterval},
	}
	p.init("producer", logger)
	return p, nil
}

// Next returns one unit of work, or (nil, nil) when no color frame is
// available yet. After a fault it returns (nil, *WorkerError) forever.
func (p *Producer) Next() (work *Work, err error) {
	if err := p.Err(); err != nil {
		return nil, err
	}
	defer p.recoverFault("next", &err)

	time.Sleep(p.cfg.PollInterval)

	img, err := p.source.LatestColorFrame()
	if err != nil {
		return nil, p.fail("latest_color", err)
	}

	if img.Empty() {
		p.empty.Do(func() {
			p.logger.Warn("empty color image frame detected, ignoring")
		})
		return nil, nil
	}

	if img.Channels <= 0 || len(img.Pix) != img.Size() {
		return nil, p.fail("wrap", fmt.Errorf("%w: color %dx%dx%d with %d bytes",
			rgbd.ErrMalformedImage, img.Width, img.Height, img.Channels, len(img.Pix)))
	}

	return &Work{
		ID:      uuid.New(),
		Image:   img,
		Created: time.Now(),
	}, nil
}

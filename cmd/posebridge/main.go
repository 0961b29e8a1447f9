// posebridge: turns 2D keypoint detections on RGB-D color frames into
// per-person 3D skeletons and streams them over WebSocket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-posebridge/internal/config"
	"github.com/teslashibe/go-posebridge/internal/log"
	"github.com/teslashibe/go-posebridge/pkg/engine"
	"github.com/teslashibe/go-posebridge/pkg/engine/openpose"
	"github.com/teslashibe/go-posebridge/pkg/pose"
	"github.com/teslashibe/go-posebridge/pkg/protocol"
	"github.com/teslashibe/go-posebridge/pkg/rgbd"
	"github.com/teslashibe/go-posebridge/pkg/sensorhub"
	"github.com/teslashibe/go-posebridge/pkg/web"
)

var version = "0.1.0"

func main() {
	cfg := config.FromEnv()

	flag.StringVar(&cfg.ModelDir, "model-dir", cfg.ModelDir, "Directory containing pose/coco/ model files")
	flag.StringVar(&cfg.Detector, "detector", cfg.Detector, "Detector backend: openpose or mock")
	flag.StringVar(&cfg.FrameID, "frame-id", cfg.FrameID, "Frame id stamped on skeleton frames")
	flag.StringVar(&cfg.Port, "port", cfg.Port, "HTTP/WebSocket port")
	flag.StringVar(&cfg.Intrinsics, "intrinsics", cfg.Intrinsics, "Intrinsics JSON file, URL or preset:<name> (default: wait for camera_info)")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	flag.Float64Var(&cfg.MaxDepth, "max-depth", cfg.MaxDepth, "Maximum valid depth in meters")
	flag.DurationVar(&cfg.StartTimeout, "start-timeout", cfg.StartTimeout, "How long to wait for camera_info (0 = forever)")
	flag.IntVar(&cfg.InputSize, "input-size", cfg.InputSize, "Network input size in pixels")
	flag.Float64Var(&cfg.ScoreThresh, "score-thresh", cfg.ScoreThresh, "Minimum body part score")
	flag.Parse()

	log.Init(cfg.LogLevel)
	logger := log.Component("posebridge")

	if err := cfg.Validate(); err != nil {
		if errors.Is(err, config.ErrMissingModelDir) {
			logger.Error("model directory not set; use --model-dir or POSEBRIDGE_MODEL_DIR, or --detector=mock", "error", err)
		} else {
			logger.Error("invalid configuration", "error", err)
		}
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		logger.Error("posebridge stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("goodbye")
}

func run(cfg config.Bridge) error {
	logger := log.Component("posebridge")
	logger.Info("starting", "version", version, "detector", cfg.Detector, "frame_id", cfg.FrameID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	detector, err := newDetector(cfg)
	if err != nil {
		return err
	}
	defer detector.Close()

	src, err := rgbd.NewSource(rgbd.Config{MaxDepth: cfg.MaxDepth})
	if err != nil {
		return err
	}

	srv := web.NewServer(web.Config{Addr: cfg.Addr(), StatusInterval: time.Second}, log.L())
	sensors := sensorhub.NewHub(src, log.L())
	sensors.RegisterRoutes(srv.App())
	sensors.RegisterAPIRoutes(srv.App().Group("/api"))

	srvErr := make(chan error, 1)
	go func() {
		err := srv.Run(ctx)
		if err != nil {
			stop()
		}
		srvErr <- err
	}()

	logger.Info("endpoints",
		"sensor", fmt.Sprintf("ws://localhost:%s/ws/sensor", cfg.Port),
		"skeleton", fmt.Sprintf("ws://localhost:%s/ws/skeleton", cfg.Port),
		"status", fmt.Sprintf("http://localhost:%s/api/status", cfg.Port),
	)

	if err := loadIntrinsics(ctx, cfg, src); err != nil {
		if ctx.Err() != nil {
			// interrupted before start
			return waitServer(srvErr, nil)
		}
		return err
	}

	producer, err := pose.NewProducer(pose.ProducerConfig{
		PollInterval: cfg.PollInterval,
		WarnInterval: cfg.WarnInterval,
	}, src, log.L())
	if err != nil {
		return err
	}
	consumer, err := pose.NewConsumer(pose.ConsumerConfig{FrameID: cfg.FrameID}, src, srv, log.L())
	if err != nil {
		return err
	}
	eng, err := engine.New(producer, detector, consumer, log.L())
	if err != nil {
		return err
	}

	status := func() protocol.StatusData {
		p, c := eng.States()
		st := eng.Stats()
		return protocol.StatusData{
			Producer:  p.String(),
			Consumer:  c.String(),
			Produced:  st.Produced,
			Idle:      st.Idle,
			Dropped:   st.Dropped,
			Reoffered: st.Reoffered,
			Detected:  st.Detected,
			Failed:    st.DetectErrors,
			Published: consumer.Published(),
			Sensors:   sensors.SensorCount(),
		}
	}
	srv.SetStatusFunc(status)

	runErr := eng.Run(ctx)
	stop()
	return waitServer(srvErr, runErr)
}

// waitServer waits for the web server to stop and returns runErr, or the
// server's error when runErr is nil.
func waitServer(srvErr <-chan error, runErr error) error {
	select {
	case err := <-srvErr:
		if err != nil && runErr == nil {
			return err
		}
	case <-time.After(5 * time.Second):
		log.Component("posebridge").Warn("web server did not stop in time")
	}
	return runErr
}

func newDetector(cfg config.Bridge) (engine.Detector, error) {
	if cfg.Detector == config.DetectorMock {
		return engine.NewMock(len(openpose.Parts)), nil
	}
	opcfg := openpose.DefaultConfig(cfg.ModelDir)
	opcfg.InputWidth = cfg.InputSize
	opcfg.InputHeight = cfg.InputSize
	opcfg.ScoreThresh = float32(cfg.ScoreThresh)
	d, err := openpose.New(opcfg)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// loadIntrinsics sets intrinsics from the configured location, or waits
// for the first camera_info from a sensor.
func loadIntrinsics(ctx context.Context, cfg config.Bridge, src *rgbd.Source) error {
	logger := log.Component("posebridge")

	if cfg.Intrinsics != "" {
		in, err := rgbd.LoadIntrinsics(cfg.Intrinsics)
		if err != nil {
			return err
		}
		logger.Info("intrinsics loaded", "from", cfg.Intrinsics, "width", in.Width, "height", in.Height)
		return src.SetIntrinsics(*in)
	}

	if cfg.StartTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.StartTimeout)
		defer cancel()
	}
	logger.Info("waiting for camera_info")
	in, err := src.WaitIntrinsics(ctx)
	if err != nil {
		return fmt.Errorf("waiting for intrinsics: %w", err)
	}
	logger.Info("intrinsics received", "width", in.Width, "height", in.Height)
	return nil
}

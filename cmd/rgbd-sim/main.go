// rgbd-sim: pushes synthetic color, depth and camera_info frames to a
// running posebridge, for local testing without a camera.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-posebridge/internal/log"
	"github.com/teslashibe/go-posebridge/pkg/protocol"
	"github.com/teslashibe/go-posebridge/pkg/rgbd"
)

var (
	url      = flag.String("url", "ws://localhost:8080/ws/sensor/sim", "Sensor WebSocket URL")
	fps      = flag.Int("fps", 15, "Frames per second")
	width    = flag.Int("width", 640, "Frame width")
	height   = flag.Int("height", 480, "Frame height")
	distance = flag.Float64("distance", 1.5, "Background distance in meters")
	format   = flag.String("depth-format", rgbd.DepthFormatPNG16, "Depth encoding: png16 or raw16le")
	level    = flag.String("log-level", "info", "Log level")
)

func main() {
	flag.Parse()
	log.Init(*level)
	logger := log.Component("rgbd-sim")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Error("simulator stopped", "error", err)
		os.Exit(1)
	}
}

// minSide keeps the moving block at least a few pixels wide.
const minSide = 16

// validateFlags checks the frame geometry synthesize relies on.
func validateFlags(fps, w, h int, background float64) error {
	if fps <= 0 {
		return fmt.Errorf("fps must be positive, got %d", fps)
	}
	if w < minSide || h < minSide {
		return fmt.Errorf("frame must be at least %dx%d, got %dx%d", minSide, minSide, w, h)
	}
	maxDistance := math.MaxUint16 * rgbd.DefaultDepthScale
	if !(background > 0 && background <= maxDistance) {
		return fmt.Errorf("distance must be in (0, %.3f] meters, got %v", maxDistance, background)
	}
	return nil
}

func run(ctx context.Context) error {
	logger := log.Component("rgbd-sim")
	if err := validateFlags(*fps, *width, *height, *distance); err != nil {
		return err
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, *url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", *url, err)
	}
	defer ws.Close()
	logger.Info("connected", "url", *url)

	// Drain replies so pongs don't back up
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	intr := rgbd.Intrinsics{
		Width:  *width,
		Height: *height,
		Fx:     float64(*width) * 0.9,
		Fy:     float64(*width) * 0.9,
		Ppx:    float64(*width) / 2,
		Ppy:    float64(*height) / 2,
	}
	info, err := protocol.NewCameraInfoMessage(intr)
	if err != nil {
		return err
	}
	if err := send(ws, info); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Second / time.Duration(*fps))
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			logger.Info("sent frames", "count", seq)
			return nil
		case now := <-ticker.C:
			seq++
			if err := sendFrame(ws, now, seq); err != nil {
				return err
			}
			if seq%uint64(*fps*10) == 0 {
				logger.Info("streaming", "frames", seq)
			}
		}
	}
}

func sendFrame(ws *websocket.Conn, now time.Time, seq uint64) error {
	color, depth := synthesize(*width, *height, *distance, seq)

	jpg, err := rgbd.EncodeColorJPEG(color, 80)
	if err != nil {
		return err
	}
	cm, err := protocol.NewColorMessage(color.Width, color.Height, jpg, now, seq)
	if err != nil {
		return err
	}
	if err := send(ws, cm); err != nil {
		return err
	}

	var raw []byte
	switch *format {
	case rgbd.DepthFormatRaw16LE:
		raw = rgbd.EncodeDepthRaw(depth)
	default:
		if raw, err = rgbd.EncodeDepthPNG(depth); err != nil {
			return err
		}
	}
	dm, err := protocol.NewDepthMessage(depth.Width, depth.Height, *format, depth.Scale, raw, now, seq)
	if err != nil {
		return err
	}
	return send(ws, dm)
}

func send(ws *websocket.Conn, msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return ws.WriteMessage(websocket.TextMessage, data)
}

// synthesize draws a moving bright block on a gradient and a matching
// depth map where the block sits one meter in front of the background.
func synthesize(w, h int, background float64, seq uint64) (rgbd.ColorImage, rgbd.DepthImage) {
	color := rgbd.ColorImage{Width: w, Height: h, Channels: 3, Pix: make([]byte, w*h*3)}
	depth := rgbd.DepthImage{Width: w, Height: h, Data: make([]uint16, w*h), Scale: rgbd.DefaultDepthScale}

	bw, bh := w/6, h/2
	bx := int(seq*4) % (w - bw)
	by := h / 4
	far := uint16(math.Round(background / rgbd.DefaultDepthScale))
	near := far / 2
	if background > 1 {
		near = uint16(math.Round((background - 1) / rgbd.DefaultDepthScale))
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			inBlock := x >= bx && x < bx+bw && y >= by && y < by+bh
			if inBlock {
				color.Pix[i*3], color.Pix[i*3+1], color.Pix[i*3+2] = 230, 230, 230
				depth.Data[i] = near
			} else {
				g := byte(x * 255 / w)
				color.Pix[i*3], color.Pix[i*3+1], color.Pix[i*3+2] = g, 64, 255-g
				depth.Data[i] = far
			}
		}
	}
	return color, depth
}

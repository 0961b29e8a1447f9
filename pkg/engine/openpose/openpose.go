// Package openpose provides a keypoint Detector backed by the OpenPose
// COCO Caffe model running on OpenCV's DNN module.
package openpose

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-posebridge/pkg/pose"
)

// COCO body parts in model output order.
var Parts = []string{
	"nose", "neck",
	"r_shoulder", "r_elbow", "r_wrist",
	"l_shoulder", "l_elbow", "l_wrist",
	"r_hip", "r_knee", "r_ankle",
	"l_hip", "l_knee", "l_ankle",
	"r_eye", "l_eye", "r_ear", "l_ear",
}

// ErrModelNotFound is returned when the model files are missing.
var ErrModelNotFound = errors.New("openpose: model not found")

// Config holds detector configuration
type Config struct {
	ModelDir       string  // Directory containing pose/coco/
	Prototxt       string  // Relative to ModelDir
	Weights        string  // Relative to ModelDir
	InputWidth     int     // Network input width
	InputHeight    int     // Network input height
	ScoreThresh    float32 // Minimum part score (default 0.1)
	MinPersonParts int     // Parts above ScoreThresh needed to report a person
}

// DefaultConfig returns defaults for the OpenPose COCO model.
func DefaultConfig(modelDir string) Config {
	return Config{
		ModelDir:       modelDir,
		Prototxt:       filepath.Join("pose", "coco", "pose_deploy_linevec.prototxt"),
		Weights:        filepath.Join("pose", "coco", "pose_iter_440000.caffemodel"),
		InputWidth:     368,
		InputHeight:    368,
		ScoreThresh:    0.1,
		MinPersonParts: 4,
	}
}

// Paths returns the absolute prototxt and weights paths.
func (c Config) Paths() (prototxt, weights string) {
	return filepath.Join(c.ModelDir, c.Prototxt), filepath.Join(c.ModelDir, c.Weights)
}

// Detector runs OpenPose inference. It reports at most one person: the
// strongest response for each part.
type Detector struct {
	net    gocv.Net
	config Config
	mu     sync.Mutex // Protects inference
}

// New loads the model.
func New(cfg Config) (*Detector, error) {
	prototxt, weights := cfg.Paths()
	for _, p := range []string{prototxt, weights} {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, p)
		}
	}

	net := gocv.ReadNetFromCaffe(prototxt, weights)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load OpenPose model from %s", cfg.ModelDir)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &Detector{net: net, config: cfg}, nil
}

// Detect runs the network on work.Image.
func (d *Detector) Detect(ctx context.Context, work *pose.Work) (*pose.KeypointSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	in := work.Image
	if in.Channels != 3 {
		return nil, fmt.Errorf("openpose: need 3-channel BGR, got %d channels", in.Channels)
	}

	img, err := gocv.NewMatFromBytes(in.Height, in.Width, gocv.MatTypeCV8UC3, in.Pix)
	if err != nil {
		return nil, fmt.Errorf("wrap image: %w", err)
	}
	defer img.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	blob := gocv.BlobFromImage(img, 1.0/255.0, image.Pt(d.config.InputWidth, d.config.InputHeight),
		gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	// Output shape: [1, 57, H, W]. The first 18 channels are part heatmaps.
	dims := output.Size()
	if len(dims) != 4 || dims[1] < len(Parts) {
		return nil, fmt.Errorf("openpose: unexpected output shape %v", dims)
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}

	person := peaks(data, dims[2], dims[3], in.Width, in.Height)
	if countAbove(person, d.config.ScoreThresh) < d.config.MinPersonParts {
		return pose.NewKeypointSet(0, len(Parts), nil)
	}
	for i := range person {
		if person[i].Score < d.config.ScoreThresh {
			person[i] = pose.Keypoint{}
		}
	}
	return pose.KeypointsFromPersons([][]pose.Keypoint{person})
}

// peaks finds the maximum of each part heatmap and scales it to image
// coordinates.
func peaks(data []float32, h, w, imgW, imgH int) []pose.Keypoint {
	plane := h * w
	sx := float32(imgW) / float32(w)
	sy := float32(imgH) / float32(h)

	kps := make([]pose.Keypoint, len(Parts))
	for part := range kps {
		heat := data[part*plane : (part+1)*plane]
		best, at := float32(-1), 0
		for i, v := range heat {
			if v > best {
				best, at = v, i
			}
		}
		kps[part] = pose.Keypoint{
			X:     float32(at%w) * sx,
			Y:     float32(at/w) * sy,
			Score: best,
		}
	}
	return kps
}

func countAbove(kps []pose.Keypoint, thresh float32) int {
	n := 0
	for _, kp := range kps {
		if kp.Score >= thresh {
			n++
		}
	}
	return n
}

// Close releases the network.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

package engine

import (
	"context"
	"sync"

	"github.com/teslashibe/go-posebridge/pkg/pose"
)

// Mock implements Detector for testing and for running the bridge
// without a model.
type Mock struct {
	// DetectFunc is called when Detect is invoked.
	DetectFunc func(ctx context.Context, work *pose.Work) (*pose.KeypointSet, error)

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	mu    sync.Mutex
	calls int
}

// NewMock creates a mock detector that reports one person with parts
// body parts centred on the image.
func NewMock(parts int) *Mock {
	return &Mock{
		DetectFunc: func(ctx context.Context, work *pose.Work) (*pose.KeypointSet, error) {
			cx := float32(work.Image.Width) / 2
			cy := float32(work.Image.Height) / 2
			person := make([]pose.Keypoint, parts)
			for i := range person {
				person[i] = pose.Keypoint{X: cx, Y: cy, Score: 1}
			}
			return pose.KeypointsFromPersons([][]pose.Keypoint{person})
		},
	}
}

// Detect calls DetectFunc and records the call.
func (m *Mock) Detect(ctx context.Context, work *pose.Work) (*pose.KeypointSet, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.DetectFunc != nil {
		return m.DetectFunc(ctx, work)
	}
	return nil, nil
}

// Close calls CloseFunc.
func (m *Mock) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Calls returns the number of Detect calls.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

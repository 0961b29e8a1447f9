// Package engine runs the asynchronous detection pipeline: it pulls Work
// from a producer, hands it to a Detector and routes results to a consumer.
package engine

import (
	"context"

	"github.com/teslashibe/go-posebridge/pkg/pose"
)

// Detector finds 2D keypoints in a color frame.
type Detector interface {
	// Detect returns the keypoints found in work.Image. A nil set or one
	// with zero persons means nothing was detected.
	Detect(ctx context.Context, work *pose.Work) (*pose.KeypointSet, error)

	// Close releases resources
	Close() error
}

// Worker reports fail-stop state. Err is the terminal fault once State is
// pose.StateStopped.
type Worker interface {
	State() pose.WorkerState
	Err() error
}

// Producer is the input side of the pipeline.
type Producer interface {
	Worker
	Next() (*pose.Work, error)
}

// Consumer is the output side of the pipeline.
type Consumer interface {
	Worker
	Accept(res *pose.Result) error
}

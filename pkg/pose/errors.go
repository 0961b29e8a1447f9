package pose

import (
	"errors"
	"fmt"
)

// Sentinel errors for keypoint and worker conditions.
var (
	// ErrInvalidKeypoints is returned for keypoint data whose layout does
	// not match its declared shape.
	ErrInvalidKeypoints = errors.New("pose: invalid keypoints")

	// ErrIndexOutOfRange is returned for keypoint lookups outside the set.
	ErrIndexOutOfRange = errors.New("pose: keypoint index out of range")

	// ErrPanic wraps a recovered panic.
	ErrPanic = errors.New("pose: panic")
)

// WorkerError describes the fault that stopped a worker.
type WorkerError struct {
	// Worker is "producer" or "consumer".
	Worker string

	// Op is the operation that failed, such as "latest_color" or "deproject".
	Op string

	// Func, File and Line locate the failing call.
	Func string
	File string
	Line int

	Err error
}

// Error implements the error interface.
func (e *WorkerError) Error() string {
	return fmt.Sprintf("pose %s: %s failed at %s:%d: %v", e.Worker, e.Op, e.File, e.Line, e.Err)
}

// Unwrap returns the underlying error.
func (e *WorkerError) Unwrap() error {
	return e.Err
}

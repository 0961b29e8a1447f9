package pose

import (
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
)

// WorkerState is the lifecycle state of a producer or consumer.
type WorkerState int32

const (
	// StateRunning is the initial state.
	StateRunning WorkerState = iota
	// StateStopped is terminal; it is entered on the first fault.
	StateStopped
)

// String implements fmt.Stringer.
func (s WorkerState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("WorkerState(%d)", int32(s))
	}
}

// worker carries the fail-stop state shared by Producer and Consumer.
type worker struct {
	name   string
	logger *slog.Logger

	state atomic.Int32

	mu  sync.Mutex
	err *WorkerError
}

func (w *worker) init(name string, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	w.name = name
	w.logger = logger.With("worker", name)
}

// State returns the current worker state. Safe for concurrent use.
func (w *worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

// Err returns the fault that stopped the worker, or nil while running.
func (w *worker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		return nil
	}
	return w.err
}

// fail stops the worker because op returned err. The location recorded is
// the caller of fail.
func (w *worker) fail(op string, err error) error {
	fn, file, line := caller(1)
	return w.stop(&WorkerError{Worker: w.name, Op: op, Func: fn, File: file, Line: line, Err: err})
}

// recoverFault converts a panic in the current call into a stop. It must be
// deferred directly.
func (w *worker) recoverFault(op string, errp *error) {
	r := recover()
	if r == nil {
		return
	}
	fn, file, line := panicSite()
	*errp = w.stop(&WorkerError{
		Worker: w.name,
		Op:     op,
		Func:   fn,
		File:   file,
		Line:   line,
		Err:    fmt.Errorf("%w: %v", ErrPanic, r),
	})
}

// stop records werr as the terminal fault. Only the first fault is kept and
// logged.
func (w *worker) stop(werr *WorkerError) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.err != nil {
		return w.err
	}
	w.err = werr
	w.state.Store(int32(StateStopped))

	w.logger.Error("worker stopped",
		"op", werr.Op,
		"error", werr.Err,
		"func", werr.Func,
		"file", werr.File,
		"line", werr.Line,
	)
	return werr
}

func caller(skip int) (fn, file string, line int) {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "unknown", "unknown", 0
	}
	if f := runtime.FuncForPC(pc); f != nil {
		fn = f.Name()
	}
	return fn, file, line
}

// panicSite finds the first frame below the runtime's panic machinery.
func panicSite() (fn, file string, line int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		if !strings.HasPrefix(f.Function, "runtime.") {
			return f.Function, f.File, f.Line
		}
		if !more {
			return "unknown", "unknown", 0
		}
	}
}

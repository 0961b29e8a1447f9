package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-posebridge/pkg/pose"
)

var (
	// ErrStopped is returned by Run when it is called more than once.
	ErrStopped = errors.New("engine: already run")

	// ErrWorkerStopped is returned when a worker is stopped without a
	// recorded fault.
	ErrWorkerStopped = errors.New("engine: worker stopped")
)

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Produced     uint64 // Work items handed to the detector
	Idle         uint64 // Producer cycles with no work
	Dropped      uint64 // Camera frames or results overwritten before use
	Reoffered    uint64 // Work replaced by a newer copy of the same camera frame
	Detected     uint64 // Detector calls that returned
	DetectErrors uint64 // Detector calls that failed
	Accepted     uint64 // Results delivered to the consumer
}

// Engine wires a producer, a detector and a consumer together. Each stage
// runs on its own goroutine and stages are joined by single-slot mailboxes,
// so a slow detector sees only the newest frame.
type Engine struct {
	producer Producer
	detector Detector
	consumer Consumer
	logger   *slog.Logger

	work    *slot[pose.Work]
	results *slot[pose.Result]
	ran     atomic.Bool

	produced     atomic.Uint64
	idle         atomic.Uint64
	dropped      atomic.Uint64
	reoffered    atomic.Uint64
	detected     atomic.Uint64
	detectErrors atomic.Uint64
	accepted     atomic.Uint64
}

// New creates an engine. logger may be nil.
func New(producer Producer, detector Detector, consumer Consumer, logger *slog.Logger) (*Engine, error) {
	if producer == nil || detector == nil || consumer == nil {
		return nil, fmt.Errorf("engine: producer, detector and consumer are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		producer: producer,
		detector: detector,
		consumer: consumer,
		logger:   logger.With("component", "engine"),
		work:     newSlot[pose.Work](),
		results:  newSlot[pose.Result](),
	}, nil
}

// Run drives the pipeline until parent is cancelled or a worker stops.
// It returns nil on cancellation and the worker's error otherwise. Worker
// faults raised after parent is cancelled, such as a publish racing the
// transport shutdown, are not reported.
func (e *Engine) Run(parent context.Context) error {
	if !e.ran.CompareAndSwap(false, true) {
		return ErrStopped
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		if parent.Err() != nil {
			e.logger.Debug("worker fault during shutdown", "error", err)
		} else {
			errOnce.Do(func() { firstErr = err })
		}
		cancel()
	}

	go func() {
		<-ctx.Done()
		e.work.close()
		e.results.close()
	}()

	wg.Add(3)
	go func() {
		defer wg.Done()
		e.input(ctx, fail)
	}()
	go func() {
		defer wg.Done()
		e.detect(ctx)
	}()
	go func() {
		defer wg.Done()
		e.output(fail)
	}()

	e.logger.Info("engine started")
	wg.Wait()

	st := e.Stats()
	e.logger.Info("engine stopped",
		"produced", st.Produced,
		"detected", st.Detected,
		"accepted", st.Accepted,
		"dropped", st.Dropped,
		"reoffered", st.Reoffered,
	)
	return firstErr
}

func (e *Engine) input(ctx context.Context, fail func(error)) {
	for ctx.Err() == nil {
		if err := e.stoppedErr(); err != nil {
			fail(err)
			return
		}
		work, err := e.producer.Next()
		if err != nil {
			fail(err)
			return
		}
		if work == nil {
			e.idle.Add(1)
			continue
		}
		e.produced.Add(1)
		old := e.work.put(work)
		switch {
		case old == nil:
		case old.Image.Stamp.Equal(work.Image.Stamp):
			e.reoffered.Add(1)
		default:
			e.dropped.Add(1)
		}
	}
}

func (e *Engine) detect(ctx context.Context) {
	for {
		work := e.work.take()
		if work == nil {
			return
		}
		kp, err := e.detector.Detect(ctx, work)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.detectErrors.Add(1)
			e.logger.Warn("detection failed", "work_id", work.ID, "error", err)
			continue
		}
		e.detected.Add(1)
		if e.results.put(&pose.Result{Work: work, Keypoints: kp}) != nil {
			e.dropped.Add(1)
		}
	}
}

func (e *Engine) output(fail func(error)) {
	for {
		res := e.results.take()
		if res == nil {
			return
		}
		if err := e.consumer.Accept(res); err != nil {
			fail(err)
			return
		}
		e.accepted.Add(1)
	}
}

// stoppedErr returns the fault of the first stopped worker, or nil.
func (e *Engine) stoppedErr() error {
	for _, w := range []Worker{e.producer, e.consumer} {
		if w.State() == pose.StateStopped {
			if err := w.Err(); err != nil {
				return err
			}
			return ErrWorkerStopped
		}
	}
	return nil
}

// Stats returns current pipeline counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Produced:     e.produced.Load(),
		Idle:         e.idle.Load(),
		Dropped:      e.dropped.Load(),
		Reoffered:    e.reoffered.Load(),
		Detected:     e.detected.Load(),
		DetectErrors: e.detectErrors.Load(),
		Accepted:     e.accepted.Load(),
	}
}

// States reports the producer and consumer worker states.
func (e *Engine) States() (producer, consumer pose.WorkerState) {
	return e.producer.State(), e.consumer.State()
}

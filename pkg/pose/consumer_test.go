package pose

import (
	"errors"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-posebridge/pkg/rgbd"
)

// fakeDepth is a DepthSource driven by functions.
type fakeDepth struct {
	refreshes int
	refresh   func() error
	deproject func(x, y float64) (rgbd.Point3D, error)
}

func (f *fakeDepth) RefreshLatestDepthFrame() error {
	f.refreshes++
	if f.refresh == nil {
		return nil
	}
	return f.refresh()
}

func (f *fakeDepth) Deproject(x, y float64) (rgbd.Point3D, error) {
	return f.deproject(x, y)
}

// recorder is a Publisher that keeps every frame.
type recorder struct {
	mu     sync.Mutex
	frames []*SkeletonFrame
	err    error
}

func (r *recorder) Publish(f *SkeletonFrame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.frames = append(r.frames, f)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func onePerson(t *testing.T) *Result {
	t.Helper()
	kps, err := NewKeypointSet(1, 2, []float32{10, 20, 0.9, 30, 40, 0.8})
	if err != nil {
		t.Fatal(err)
	}
	return &Result{Work: &Work{ID: uuid.New()}, Keypoints: kps}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestConsumerSinglePerson(t *testing.T) {
	src, err := rgbd.NewSource(rgbd.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	src.SetIntrinsics(rgbd.Intrinsics{Width: 64, Height: 64, Fx: 100, Fy: 100})
	depth := make([]uint16, 64*64)
	for i := range depth {
		depth[i] = 1000
	}
	src.UpdateDepth(rgbd.DepthImage{Width: 64, Height: 64, Data: depth, Scale: 0.001})

	pub := &recorder{}
	c, err := NewConsumer(ConsumerConfig{FrameID: "camera"}, src, pub, slog.Default())
	if err != nil {
		t.Fatalf("NewConsumer() error = %v", err)
	}
	stamp := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return stamp }

	res := onePerson(t)
	if err := c.Accept(res); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if pub.count() != 1 {
		t.Fatalf("published %d frames, want 1", pub.count())
	}

	f := pub.frames[0]
	if f.FrameID != "camera" || !f.Stamp.Equal(stamp) || f.Seq != 1 || f.WorkID != res.Work.ID {
		t.Errorf("header = %q %v seq=%d work=%v", f.FrameID, f.Stamp, f.Seq, f.WorkID)
	}
	if len(f.Persons) != 1 || len(f.Persons[0].BodyParts) != 2 {
		t.Fatalf("shape = %d persons, want 1 with 2 parts", len(f.Persons))
	}

	want := []struct {
		px, py, score float32
		x, y, z       float64
	}{
		{10, 20, 0.9, 0.1, 0.2, 1.0},
		{30, 40, 0.8, 0.3, 0.4, 1.0},
	}
	for i, w := range want {
		bp := f.Persons[0].BodyParts[i]
		if bp.Pixel.X != w.px || bp.Pixel.Y != w.py || bp.Score != w.score {
			t.Errorf("part %d pixel/score = %+v %v", i, bp.Pixel, bp.Score)
		}
		if !approx(bp.Point.X, w.x) || !approx(bp.Point.Y, w.y) || !approx(bp.Point.Z, w.z) {
			t.Errorf("part %d point = %v, want (%v, %v, %v)", i, bp.Point, w.x, w.y, w.z)
		}
	}
	if err := f.Check(); err != nil {
		t.Errorf("Check() error = %v", err)
	}
	if c.Published() != 1 {
		t.Errorf("Published() = %d, want 1", c.Published())
	}
}

func TestConsumerSkipsEmptyResults(t *testing.T) {
	depth := &fakeDepth{deproject: func(x, y float64) (rgbd.Point3D, error) {
		return rgbd.Point3D{X: x, Y: y, Z: 1}, nil
	}}
	pub := &recorder{}
	c, _ := NewConsumer(DefaultConsumerConfig(), depth, pub, slog.Default())

	if err := c.Accept(onePerson(t)); err != nil {
		t.Fatal(err)
	}
	published := pub.frames[0]
	before := *published
	beforeParts := append([]BodyPart(nil), published.Persons[0].BodyParts...)

	zero, _ := NewKeypointSet(0, 18, nil)
	for _, res := range []*Result{nil, {}, {Keypoints: zero}} {
		if err := c.Accept(res); err != nil {
			t.Errorf("Accept(%+v) error = %v", res, err)
		}
	}

	if pub.count() != 1 {
		t.Errorf("published %d frames, want 1", pub.count())
	}
	if depth.refreshes != 1 {
		t.Errorf("depth refreshed %d times, want 1", depth.refreshes)
	}
	if published.Seq != before.Seq || published.Stamp != before.Stamp || len(published.Persons) != 1 {
		t.Error("empty results must not touch the previously published frame")
	}
	for i, bp := range published.Persons[0].BodyParts {
		if bp != beforeParts[i] {
			t.Errorf("body part %d changed to %+v", i, bp)
		}
	}
}

func TestConsumerBuildsFreshFrames(t *testing.T) {
	depth := &fakeDepth{deproject: func(x, y float64) (rgbd.Point3D, error) { return rgbd.Point3D{Z: 1}, nil }}
	pub := &recorder{}
	c, _ := NewConsumer(DefaultConsumerConfig(), depth, pub, slog.Default())

	c.Accept(onePerson(t))
	c.Accept(onePerson(t))

	if pub.frames[0] == pub.frames[1] {
		t.Fatal("frames must not be reused")
	}
	if &pub.frames[0].Persons[0] == &pub.frames[1].Persons[0] {
		t.Error("persons slice must not be shared")
	}
	if pub.frames[0].Seq != 1 || pub.frames[1].Seq != 2 {
		t.Errorf("seq = %d, %d; want 1, 2", pub.frames[0].Seq, pub.frames[1].Seq)
	}
}

func TestConsumerStopsOnDeprojectFault(t *testing.T) {
	logger, rec := newRecordLogger()
	boom := errors.New("depth stream closed")
	calls := 0
	depth := &fakeDepth{deproject: func(x, y float64) (rgbd.Point3D, error) {
		calls++
		if calls == 2 {
			return rgbd.Point3D{}, boom
		}
		return rgbd.Point3D{Z: 1}, nil
	}}
	pub := &recorder{}
	c, _ := NewConsumer(DefaultConsumerConfig(), depth, pub, logger)

	err := c.Accept(onePerson(t))
	var werr *WorkerError
	if !errors.As(err, &werr) {
		t.Fatalf("Accept() error = %v, want *WorkerError", err)
	}
	if werr.Worker != "consumer" || werr.Op != "deproject" || !errors.Is(err, boom) {
		t.Errorf("WorkerError = %+v", werr)
	}
	if c.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", c.State())
	}
	if pub.count() != 0 {
		t.Errorf("published %d frames after fault, want 0", pub.count())
	}

	// Later results are rejected without publishing or logging again.
	if err2 := c.Accept(onePerson(t)); err2 != err {
		t.Errorf("Accept() after stop = %v, want %v", err2, err)
	}
	if pub.count() != 0 {
		t.Error("stopped consumer published a frame")
	}
	if n := rec.count(slog.LevelError); n != 1 {
		t.Errorf("logged %d errors, want exactly 1", n)
	}
}

func TestConsumerFaults(t *testing.T) {
	ok := func(x, y float64) (rgbd.Point3D, error) { return rgbd.Point3D{Z: 1}, nil }

	tests := []struct {
		name    string
		depth   *fakeDepth
		pubErr  error
		wantOp  string
		wantErr error
	}{
		{
			name:    "refresh fails",
			depth:   &fakeDepth{refresh: func() error { return rgbd.ErrNoIntrinsics }, deproject: ok},
			wantOp:  "refresh_depth",
			wantErr: rgbd.ErrNoIntrinsics,
		},
		{
			name: "deproject panics",
			depth: &fakeDepth{deproject: func(x, y float64) (rgbd.Point3D, error) {
				var m map[string]int
				m["boom"]++
				return rgbd.Point3D{}, nil
			}},
			wantOp:  "accept",
			wantErr: ErrPanic,
		},
		{
			name:    "publish fails",
			depth:   &fakeDepth{deproject: ok},
			pubErr:  errors.New("transport closed"),
			wantOp:  "publish",
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &recorder{err: tt.pubErr}
			c, _ := NewConsumer(DefaultConsumerConfig(), tt.depth, pub, slog.Default())

			err := c.Accept(onePerson(t))
			var werr *WorkerError
			if !errors.As(err, &werr) {
				t.Fatalf("Accept() error = %v, want *WorkerError", err)
			}
			if werr.Op != tt.wantOp {
				t.Errorf("Op = %q, want %q", werr.Op, tt.wantOp)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if tt.pubErr != nil && !errors.Is(err, tt.pubErr) {
				t.Errorf("error = %v, want %v", err, tt.pubErr)
			}
			if c.State() != StateStopped {
				t.Errorf("State() = %v, want stopped", c.State())
			}
			if c.Published() != 0 {
				t.Errorf("Published() = %d, want 0", c.Published())
			}
		})
	}
}

func TestNewConsumerValidation(t *testing.T) {
	depth := &fakeDepth{}
	if _, err := NewConsumer(ConsumerConfig{}, depth, &recorder{}, nil); err == nil {
		t.Error("empty frame id should be rejected")
	}
	if _, err := NewConsumer(DefaultConsumerConfig(), nil, &recorder{}, nil); err == nil {
		t.Error("nil depth source should be rejected")
	}
	if _, err := NewConsumer(DefaultConsumerConfig(), depth, nil, nil); err == nil {
		t.Error("nil publisher should be rejected")
	}
}

func TestWorkerStateString(t *testing.T) {
	if StateRunning.String() != "running" || StateStopped.String() != "stopped" {
		t.Errorf("unexpected names %q %q", StateRunning, StateStopped)
	}
}

func TestConsumerLeavesUndetectedPartsInvalid(t *testing.T) {
	var calls int
	depth := &fakeDepth{deproject: func(x, y float64) (rgbd.Point3D, error) {
		calls++
		return rgbd.Point3D{X: x / 100, Y: y / 100, Z: 1}, nil
	}}
	pub := &recorder{}
	c, err := NewConsumer(ConsumerConfig{FrameID: "camera"}, depth, pub, slog.Default())
	if err != nil {
		t.Fatal(err)
	}

	// Second part was not found: zeroed pixel and score.
	kps, err := NewKeypointSet(1, 2, []float32{10, 20, 0.9, 0, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Accept(&Result{Work: &Work{ID: uuid.New()}, Keypoints: kps}); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}

	parts := pub.frames[0].Persons[0].BodyParts
	if len(parts) != 2 {
		t.Fatalf("got %d body parts, want 2", len(parts))
	}
	if parts[0].Point.Z != 1 {
		t.Errorf("detected part point = %v", parts[0].Point)
	}
	if parts[1].Point != rgbd.InvalidPoint || parts[1].Score != 0 {
		t.Errorf("undetected part = %+v, want InvalidPoint", parts[1])
	}
	if calls != 1 {
		t.Errorf("Deproject called %d times, want 1", calls)
	}
}

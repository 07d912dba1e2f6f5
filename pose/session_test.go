package pose

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"rep-detection/metrics"
	"rep-detection/models"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1700000000, 0)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type emitted struct {
	name    string
	payload interface{}
}

type recorder struct {
	mu     sync.Mutex
	events []emitted
}

func (r *recorder) Emit(event string, v ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var payload interface{}
	if len(v) > 0 {
		payload = v[0]
	}
	r.events = append(r.events, emitted{name: event, payload: payload})
}

func (r *recorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.name == name {
			n++
		}
	}
	return n
}

func (r *recorder) last(name string) (emitted, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].name == name {
			return r.events[i], true
		}
	}
	return emitted{}, false
}

// waitIdle blocks until the session's in-flight frame finishes.
func waitIdle(t *testing.T, s *Session) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.processing.Load() {
		if time.Now().After(deadline) {
			t.Fatal("frame processing never finished")
		}
		time.Sleep(time.Millisecond)
	}
}

// fullPose builds a front-facing subject with both legs at the given knee
// angle, complete enough to clear every validator stage.
func fullPose(angle float64) []Keypoint {
	points := append(facePose(0.8, 0.7, 0.75), legPose("left", angle, 0.9)...)
	return append(points, legPose("right", angle, 0.9)...)
}

func standingEstimator() Estimator {
	return EstimatorFunc(func(ctx context.Context, image []byte) ([]Keypoint, error) {
		return fullPose(170), nil
	})
}

func newTestSession(t *testing.T, est Estimator, rec *recorder, stats *metrics.Metrics, clock *fakeClock) *Session {
	t.Helper()
	s := NewSession(est, rec, stats)
	s.now = clock.now
	s.Init(models.InitData{Model: "movenet", TargetFPS: 15})
	return s
}

func TestSessionDropsFrameWhileBusy(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	est := EstimatorFunc(func(ctx context.Context, image []byte) ([]Keypoint, error) {
		<-gate
		return nil, nil
	})
	rec := &recorder{}
	stats := metrics.New()
	clock := newFakeClock()
	s := newTestSession(t, est, rec, stats, clock)

	s.HandleFrame([]byte("jpeg"), 0)
	clock.advance(100 * time.Millisecond)
	s.HandleFrame([]byte("jpeg"), 100) // in flight: dropped, no error event

	close(gate)
	waitIdle(t, s)

	if got := stats.FramesDropped.Load(); got != 1 {
		t.Errorf("expected 1 dropped frame, got %d", got)
	}
	if got := stats.FramesReceived.Load(); got != 2 {
		t.Errorf("expected 2 received frames, got %d", got)
	}
	if rec.count(EventError) != 0 {
		t.Error("a busy drop must be silent")
	}
}

func TestSessionThrottlesToTargetFPS(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	stats := metrics.New()
	clock := newFakeClock()
	s := newTestSession(t, standingEstimator(), rec, stats, clock)

	s.HandleFrame([]byte("jpeg"), 0)
	waitIdle(t, s)

	// same instant: inside the 1000/15 ms interval, dropped silently
	s.HandleFrame([]byte("jpeg"), 5)
	waitIdle(t, s)
	if got := stats.FramesDropped.Load(); got != 1 {
		t.Fatalf("expected the early frame dropped, got %d drops", got)
	}

	clock.advance(100 * time.Millisecond)
	s.HandleFrame([]byte("jpeg"), 100)
	waitIdle(t, s)

	if got := stats.FramesProcessed.Load(); got != 2 {
		t.Errorf("expected 2 processed frames, got %d", got)
	}
	if rec.count(EventError) != 0 {
		t.Error("a throttle drop must be silent")
	}
}

func TestSessionDiscardsStaleResultAfterViewChange(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	est := EstimatorFunc(func(ctx context.Context, image []byte) ([]Keypoint, error) {
		<-gate
		return fullPose(170), nil
	})
	rec := &recorder{}
	stats := metrics.New()
	clock := newFakeClock()
	s := newTestSession(t, est, rec, stats, clock)

	s.HandleFrame([]byte("jpeg"), 0)

	// reconfigure to a different view while the estimator is busy
	view := "rear"
	s.Configure(models.ConfigPatch{View: &view})

	close(gate)
	waitIdle(t, s)

	if got := stats.FramesProcessed.Load(); got != 0 {
		t.Errorf("stale result must be discarded, got %d processed", got)
	}
	if rec.count(EventHeartbeat) != 0 {
		t.Error("a discarded frame must not produce a heartbeat")
	}

	// the gate is released: the next frame goes through against the new view
	clock.advance(100 * time.Millisecond)
	s.HandleFrame([]byte("jpeg"), 100)
	waitIdle(t, s)
	if got := stats.FramesProcessed.Load(); got != 1 {
		t.Errorf("expected the post-reset frame processed, got %d", got)
	}
}

func TestSessionReportsEstimatorFailure(t *testing.T) {
	t.Parallel()

	est := EstimatorFunc(func(ctx context.Context, image []byte) ([]Keypoint, error) {
		return nil, errors.New("upstream 502")
	})
	rec := &recorder{}
	stats := metrics.New()
	clock := newFakeClock()
	s := newTestSession(t, est, rec, stats, clock)

	s.HandleFrame([]byte("jpeg"), 0)
	waitIdle(t, s)

	if got := stats.EstimatorErrors.Load(); got != 1 {
		t.Errorf("expected 1 estimator error, got %d", got)
	}
	ev, ok := rec.last(EventError)
	if !ok {
		t.Fatal("expected a detectionError event")
	}
	if ev.payload.(ErrorEvent).Code != ErrCodeInternal {
		t.Errorf("expected internal code, got %q", ev.payload.(ErrorEvent).Code)
	}

	// the flag is released: the next frame is admitted
	clock.advance(100 * time.Millisecond)
	s.HandleFrame([]byte("jpeg"), 100)
	waitIdle(t, s)
	if got := stats.EstimatorErrors.Load(); got != 2 {
		t.Errorf("expected the pipeline to keep running after a failure, got %d errors", got)
	}
}

func TestSessionHeartbeatRateLimit(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	clock := newFakeClock()
	s := newTestSession(t, standingEstimator(), rec, nil, clock)

	s.HandleFrame([]byte("jpeg"), 0)
	waitIdle(t, s)
	if rec.count(EventHeartbeat) != 1 {
		t.Fatalf("expected a heartbeat on the first processed frame, got %d", rec.count(EventHeartbeat))
	}
	ev, _ := rec.last(EventHeartbeat)
	if ev.payload.(HeartbeatEvent).Backend != "func" {
		t.Errorf("heartbeat should name the estimator backend, got %q", ev.payload.(HeartbeatEvent).Backend)
	}

	// inside the 1000ms window: no second heartbeat
	clock.advance(100 * time.Millisecond)
	s.HandleFrame([]byte("jpeg"), 100)
	waitIdle(t, s)
	if rec.count(EventHeartbeat) != 1 {
		t.Errorf("heartbeat inside the window, got %d", rec.count(EventHeartbeat))
	}

	clock.advance(1100 * time.Millisecond)
	s.HandleFrame([]byte("jpeg"), 1200)
	waitIdle(t, s)
	if rec.count(EventHeartbeat) != 2 {
		t.Errorf("expected a heartbeat after the window elapsed, got %d", rec.count(EventHeartbeat))
	}
}

func TestSessionRejectsFrameBeforeInit(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	s := NewSession(standingEstimator(), rec, nil)
	s.now = newFakeClock().now

	s.HandleFrame([]byte("jpeg"), 0)
	waitIdle(t, s)

	ev, ok := rec.last(EventError)
	if !ok {
		t.Fatal("expected a detectionError event")
	}
	if ev.payload.(ErrorEvent).Code != ErrCodeNotInitialized {
		t.Errorf("expected not_initialized, got %q", ev.payload.(ErrorEvent).Code)
	}
}

func TestSessionRejectsEmptyFrame(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	clock := newFakeClock()
	s := newTestSession(t, standingEstimator(), rec, nil, clock)

	s.HandleFrame(nil, 42)

	ev, ok := rec.last(EventError)
	if !ok {
		t.Fatal("expected a detectionError event")
	}
	e := ev.payload.(ErrorEvent)
	if e.Code != ErrCodeUnsupportedFrame {
		t.Errorf("expected unsupported_frame, got %q", e.Code)
	}
	if e.TimestampMs != 42 {
		t.Errorf("error should carry the frame timestamp, got %d", e.TimestampMs)
	}
}

// Full pipeline: estimator-produced keypoints drive the state machine through
// one squat and the rep comes out over the emitter.
func TestSessionCountsRepEndToEnd(t *testing.T) {
	t.Parallel()

	angles := []float64{170, 90, 90, 90, 170}
	var mu sync.Mutex
	next := 0
	est := EstimatorFunc(func(ctx context.Context, image []byte) ([]Keypoint, error) {
		mu.Lock()
		defer mu.Unlock()
		angle := angles[next]
		if next < len(angles)-1 {
			next++
		}
		return fullPose(angle), nil
	})

	rec := &recorder{}
	stats := metrics.New()
	clock := newFakeClock()
	s := newTestSession(t, est, rec, stats, clock)
	s.Configure(models.ConfigPatch{
		Smoothing:     f64(1),
		MinDownHoldMs: i64(100),
		DebounceMs:    i64(300),
	})

	for i, tMs := range []int64{0, 100, 200, 300, 400} {
		if i > 0 {
			clock.advance(100 * time.Millisecond)
		}
		s.HandleFrame([]byte("jpeg"), tMs)
		waitIdle(t, s)
	}

	if rec.count(EventRepComplete) != 1 {
		t.Fatalf("expected exactly one repComplete, got %d", rec.count(EventRepComplete))
	}
	ev, _ := rec.last(EventRepComplete)
	rep := ev.payload.(RepCompleteEvent)
	if rep.TimestampMs != 400 {
		t.Errorf("expected the rep at the rise frame, got t=%d", rep.TimestampMs)
	}
	if stats.RepsCounted.Load() != 1 {
		t.Errorf("expected reps counter 1, got %d", stats.RepsCounted.Load())
	}
	if s.RepCount() != 1 {
		t.Errorf("expected session rep count 1, got %d", s.RepCount())
	}

	summary := s.Stop()
	if summary.RepCount != 1 {
		t.Errorf("summary rep count: got %d", summary.RepCount)
	}
	if summary.MeanConfidence != 0.9 {
		t.Errorf("summary mean confidence: got %.3f", summary.MeanConfidence)
	}
}

func TestSessionStopClosesAndSummarises(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	clock := newFakeClock()
	s := NewSession(standingEstimator(), rec, nil)
	s.now = clock.now
	s.Init(models.InitData{Model: "movenet", TargetFPS: 10, View: "side"})

	clock.advance(5 * time.Second)
	summary := s.Stop()

	if summary.Model != "movenet" || summary.View != ViewSide {
		t.Errorf("summary identity wrong: %+v", summary)
	}
	if summary.DurationMs != 5000 {
		t.Errorf("expected 5000ms duration, got %d", summary.DurationMs)
	}
	if summary.RepCount != 0 || summary.MeanConfidence != 0 {
		t.Errorf("empty session should summarise to zero: %+v", summary)
	}

	// closed: further frames are ignored without errors
	before := rec.count(EventError)
	s.HandleFrame([]byte("jpeg"), 9999)
	waitIdle(t, s)
	if rec.count(EventError) != before {
		t.Error("a closed session must drop frames silently")
	}
}

func TestSessionDebugMetricsRateLimit(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	clock := newFakeClock()
	s := NewSession(standingEstimator(), rec, nil)
	s.now = clock.now
	s.Init(models.InitData{Model: "movenet", TargetFPS: 15, Debug: true})
	defer s.Stop()

	s.HandleFrame([]byte("jpeg"), 0)
	waitIdle(t, s)
	if rec.count(EventDebugMetrics) != 1 {
		t.Fatalf("expected debug metrics on the first frame, got %d", rec.count(EventDebugMetrics))
	}

	// 100ms later: inside the 500ms window
	clock.advance(100 * time.Millisecond)
	s.HandleFrame([]byte("jpeg"), 100)
	waitIdle(t, s)
	if rec.count(EventDebugMetrics) != 1 {
		t.Errorf("debug metrics emitted inside the window, got %d", rec.count(EventDebugMetrics))
	}

	clock.advance(600 * time.Millisecond)
	s.HandleFrame([]byte("jpeg"), 700)
	waitIdle(t, s)
	if rec.count(EventDebugMetrics) != 2 {
		t.Errorf("expected a second debug metrics after the window, got %d", rec.count(EventDebugMetrics))
	}

	ev, _ := rec.last(EventDebugMetrics)
	dm := ev.payload.(DebugMetricsEvent)
	if dm.Phase != string(PhaseUp) {
		t.Errorf("expected the up phase in debug metrics, got %q", dm.Phase)
	}
	if !dm.Valid {
		t.Error("expected a valid signal in debug metrics")
	}
}

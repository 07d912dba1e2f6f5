package pose

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mdobak/go-xerrors"

	"rep-detection/metrics"
	"rep-detection/models"
	"rep-detection/utils"
)

const (
	defaultTargetFPS = 15.0
	maxTargetFPS     = 30.0

	heartbeatInterval    = 1000 * time.Millisecond
	debugMetricsInterval = 500 * time.Millisecond
	idleTimeout          = 2000 * time.Millisecond
	estimateTimeout      = 10 * time.Second

	// Smoothing factor for the inter-frame interval estimate behind the
	// reported fps.
	intervalSmoothing = 0.3
)

// Session owns one client's detection pipeline: the frame gate, the
// estimator invocation, the validator/geometry pass and the phase machine.
//
// Concurrency model: frames arrive on the socket goroutine but at most one
// is ever in flight (the processing flag). Everything past the estimator
// call runs under mu and to completion, so event ordering within a frame is
// deterministic. A reset bumps the generation counter; an estimator result
// carrying a stale generation is discarded, never applied.
type Session struct {
	estimator Estimator
	emitter   Emitter
	stats     *metrics.Metrics // optional

	processing atomic.Bool

	mu         sync.Mutex
	cfg        Config
	view       View
	detector   *Detector
	generation uint64
	model      string
	targetFPS  float64
	debug      bool
	closed     bool

	lastFrameAt         time.Time
	lastFrameDurationMs float64
	frameIntervalMs     float64
	lastHeartbeatAt     time.Time
	lastDebugAt         time.Time

	startedAt     time.Time
	confidenceSum float64
	idleTimer     *time.Timer

	now func() time.Time
}

// Summary is the session recap produced by Stop.
type Summary struct {
	StartedAt      time.Time
	EndedAt        time.Time
	Model          string
	View           View
	RepCount       int
	MeanConfidence float64
	DurationMs     int64
}

// NewSession creates an uninitialised session. Init must run before frames
// are accepted. stats may be nil.
func NewSession(estimator Estimator, emitter Emitter, stats *metrics.Metrics) *Session {
	s := &Session{
		estimator: estimator,
		emitter:   emitter,
		stats:     stats,
		cfg:       DefaultConfig(),
		view:      ViewFront,
		now:       time.Now,
	}
	s.detector = NewDetector(s.cfg, s.view)
	return s
}

// Init binds the session to a model, target frame rate and initial view,
// resetting all detection and scheduling state.
func (s *Session) Init(data models.InitData) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.model = data.Model
	s.targetFPS = clamp(data.TargetFPS, 1, maxTargetFPS)
	if data.TargetFPS == 0 {
		s.targetFPS = defaultTargetFPS
	}
	s.debug = data.Debug
	s.view = ParseView(data.View)
	s.startedAt = s.now()
	s.confidenceSum = 0
	s.lastFrameAt = time.Time{}
	s.lastFrameDurationMs = 0
	s.frameIntervalMs = 0
	s.lastHeartbeatAt = time.Time{}
	s.lastDebugAt = time.Time{}

	s.detector.SetConfig(s.cfg, s.view)
	s.resetDetectionLocked()

	if s.debug && s.idleTimer == nil {
		s.idleTimer = time.AfterFunc(idleTimeout, s.onIdle)
	}

	if s.stats != nil {
		s.stats.TotalSessions.Add(1)
	}
}

// Configure merges a partial threshold patch. A view change forces a full
// detection reset: no smoothing, baseline or timer state survives it.
func (s *Session) Configure(patch models.ConfigPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = s.cfg.Apply(patch)
	if patch.View != nil {
		view := ParseView(*patch.View)
		if view != s.view {
			s.view = view
			s.resetDetectionLocked()
		}
	}
	s.detector.SetConfig(s.cfg, s.view)
}

// HandleFrame admits one frame through the gate. A frame is processed only
// if nothing is in flight and the target-fps interval has elapsed; frames
// arriving too soon or while busy are dropped without error. Correctness
// depends on the caller re-sampling the camera, not on buffering here.
func (s *Session) HandleFrame(image []byte, timestampMs int64) {
	if s.stats != nil {
		s.stats.FramesReceived.Add(1)
	}

	if len(image) == 0 {
		s.emitter.Emit(EventError, ErrorEvent{
			TimestampMs: timestampMs,
			Code:        ErrCodeUnsupportedFrame,
			Message:     "empty frame payload",
		})
		return
	}

	if !s.processing.CompareAndSwap(false, true) {
		if s.stats != nil {
			s.stats.FramesDropped.Add(1)
		}
		return
	}

	now := s.now()
	s.mu.Lock()
	if s.closed || s.startedAt.IsZero() {
		s.mu.Unlock()
		s.processing.Store(false)
		if s.startedAt.IsZero() {
			s.emitter.Emit(EventError, ErrorEvent{
				TimestampMs: timestampMs,
				Code:        ErrCodeNotInitialized,
				Message:     "frame before init",
			})
		}
		return
	}

	minInterval := time.Duration(float64(time.Second) / s.targetFPS)
	if !s.lastFrameAt.IsZero() && now.Sub(s.lastFrameAt) < minInterval {
		s.mu.Unlock()
		s.processing.Store(false)
		if s.stats != nil {
			s.stats.FramesDropped.Add(1)
		}
		return
	}

	if !s.lastFrameAt.IsZero() {
		interval := float64(now.Sub(s.lastFrameAt).Milliseconds())
		if s.frameIntervalMs == 0 {
			s.frameIntervalMs = interval
		} else {
			s.frameIntervalMs += intervalSmoothing * (interval - s.frameIntervalMs)
		}
	}
	s.lastFrameAt = now
	generation := s.generation
	s.mu.Unlock()

	go s.process(image, timestampMs, generation)
}

// process runs one frame to completion: estimator, validation, geometry,
// state machine, telemetry. It releases the in-flight flag on every exit
// path, panics included.
func (s *Session) process(image []byte, timestampMs int64, generation uint64) {
	logger := utils.GetLogger()
	started := s.now()

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(context.Background(), "panic during frame processing",
				slog.Any("error", xerrors.New(fmt.Sprint(r))))
			s.emitter.Emit(EventError, ErrorEvent{
				TimestampMs: timestampMs,
				Code:        ErrCodeInternal,
				Message:     "internal error during frame processing",
			})
		}
		s.processing.Store(false)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), estimateTimeout)
	defer cancel()
	points, err := s.estimator.Estimate(ctx, image)

	s.mu.Lock()
	defer s.mu.Unlock()

	// A stop or view change happened while the estimator was busy; the
	// result belongs to a session state that no longer exists.
	if s.closed || s.generation != generation {
		return
	}

	if err != nil {
		if s.stats != nil {
			s.stats.EstimatorErrors.Add(1)
		}
		logger.ErrorContext(ctx, "estimator failed", slog.Any("error", xerrors.New(err)))
		s.emitter.Emit(EventError, ErrorEvent{
			TimestampMs: timestampMs,
			Code:        ErrCodeInternal,
			Message:     "pose estimation failed",
		})
		s.finishFrameLocked(started)
		return
	}

	s.evaluateLocked(points, timestampMs)
	s.finishFrameLocked(started)
}

func (s *Session) evaluateLocked(points []Keypoint, timestampMs int64) {
	if s.stats != nil {
		s.stats.FramesProcessed.Add(1)
	}

	res := Resolve(s.cfg, s.view)
	var sig Signal
	if len(points) > 0 {
		kps := IndexKeypoints(points)
		if ValidateFrame(kps, s.cfg, s.view, res) {
			if s.view == ViewRear {
				sig = HipDropSignal(kps, res.KeypointConfidence)
			} else {
				sig = KneeAngleSignal(kps, res.KeypointConfidence, res.SingleSidePenalty)
			}
		} else if s.stats != nil {
			s.stats.FramesRejected.Add(1)
		}
	}

	out := s.detector.Advance(sig, timestampMs, s.currentFPSLocked())

	if out.PoseRegained {
		s.emitter.Emit(EventPoseRegained, PoseEvent{TimestampMs: timestampMs})
	}
	if out.PoseLost {
		if s.stats != nil {
			s.stats.PoseLostEvents.Add(1)
		}
		s.emitter.Emit(EventPoseLost, PoseEvent{TimestampMs: timestampMs})
	}
	if out.Rep != nil {
		if s.stats != nil {
			s.stats.RepsCounted.Add(1)
		}
		s.confidenceSum += out.Rep.Confidence
		s.emitter.Emit(EventRepComplete, *out.Rep)
	}

	now := s.now()
	if s.debug && (s.lastDebugAt.IsZero() || now.Sub(s.lastDebugAt) >= debugMetricsInterval) {
		s.lastDebugAt = now
		smoothed, _ := s.detector.Smoothed()
		s.emitter.Emit(EventDebugMetrics, DebugMetricsEvent{
			TimestampMs: timestampMs,
			Signal:      smoothed,
			Phase:       string(s.detector.Phase()),
			Valid:       sig.Valid,
			Confidence:  sig.Confidence,
		})
	}
}

func (s *Session) finishFrameLocked(started time.Time) {
	now := s.now()
	s.lastFrameDurationMs = float64(now.Sub(started).Milliseconds())

	if s.lastHeartbeatAt.IsZero() || now.Sub(s.lastHeartbeatAt) >= heartbeatInterval {
		s.lastHeartbeatAt = now
		s.emitter.Emit(EventHeartbeat, HeartbeatEvent{
			TimestampMs: now.UnixMilli(),
			Backend:     s.estimator.Backend(),
			FPS:         s.currentFPSLocked(),
		})
	}

	if s.idleTimer != nil {
		s.idleTimer.Reset(idleTimeout)
	}
}

func (s *Session) currentFPSLocked() float64 {
	if s.frameIntervalMs <= 0 {
		return 0
	}
	return 1000 / s.frameIntervalMs
}

func (s *Session) onIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.debug {
		return
	}
	s.emitter.Emit(EventIdle, IdleEvent{TimestampMs: s.now().UnixMilli()})
}

func (s *Session) resetDetectionLocked() {
	s.generation++
	s.detector.Reset()
}

// RepCount returns the reps accepted since the last reset.
func (s *Session) RepCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detector.RepCount()
}

// Stop ends the session, releases the estimator and returns a summary of
// what was counted. The session accepts nothing afterwards; an in-flight
// frame's result is discarded via the generation guard.
func (s *Session) Stop() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	summary := Summary{
		StartedAt: s.startedAt,
		EndedAt:   now,
		Model:     s.model,
		View:      s.view,
		RepCount:  s.detector.RepCount(),
	}
	if !s.startedAt.IsZero() {
		summary.DurationMs = now.Sub(s.startedAt).Milliseconds()
	}
	if summary.RepCount > 0 {
		summary.MeanConfidence = s.confidenceSum / float64(summary.RepCount)
	}

	s.closed = true
	s.resetDetectionLocked()
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
	if err := s.estimator.Close(); err != nil {
		utils.LogError(context.Background(), "failed to release estimator", err)
	}

	return summary
}

package pose

// Socket event names the detector emits. Inbound command names live with the
// socket controller; these are shared between the session and the transport.
const (
	EventRepComplete  = "repComplete"
	EventPoseLost     = "poseLost"
	EventPoseRegained = "poseRegained"
	EventHeartbeat    = "heartbeat"
	EventIdle         = "idle"
	EventError        = "detectionError"
	EventDebugMetrics = "debugMetrics"
)

// Error codes carried by detectionError events.
const (
	ErrCodeInternal         = "internal"
	ErrCodeUnsupportedFrame = "unsupported_frame"
	ErrCodeNotInitialized   = "not_initialized"
)

// RepCompleteEvent announces one accepted repetition.
type RepCompleteEvent struct {
	TimestampMs int64   `json:"timestampMs"`
	Confidence  float64 `json:"confidence"`
	FPS         float64 `json:"fps,omitempty"`
}

// PoseEvent marks the start or end of a pose-loss episode.
type PoseEvent struct {
	TimestampMs int64 `json:"timestampMs"`
}

// HeartbeatEvent is the rate-limited liveness signal.
type HeartbeatEvent struct {
	TimestampMs int64   `json:"timestampMs"`
	Backend     string  `json:"backend,omitempty"`
	FPS         float64 `json:"fps,omitempty"`
}

// IdleEvent is emitted in debug mode when no frame has arrived recently.
type IdleEvent struct {
	TimestampMs int64 `json:"timestampMs"`
}

// ErrorEvent reports a recoverable frame-processing failure.
type ErrorEvent struct {
	TimestampMs int64  `json:"timestampMs"`
	Code        string `json:"code"`
	Message     string `json:"message,omitempty"`
}

// DebugMetricsEvent exposes the detector internals for tuning overlays.
type DebugMetricsEvent struct {
	TimestampMs int64   `json:"timestampMs"`
	Signal      float64 `json:"signal"`
	Phase       string  `json:"phase"`
	Valid       bool    `json:"valid"`
	Confidence  float64 `json:"confidence"`
}

// Emitter is the transport capability the session posts events through. A
// socket.io connection satisfies it directly.
type Emitter interface {
	Emit(event string, v ...interface{})
}

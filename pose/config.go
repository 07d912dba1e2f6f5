package pose

import (
	"rep-detection/models"
)

// View is the camera's angle relative to the subject. It selects the signal
// mode (knee angle for front/side, hip-drop displacement for rear) and the
// calibration deltas applied on top of the session config.
type View string

const (
	ViewFront View = "front"
	ViewSide  View = "side"
	ViewRear  View = "rear"
)

// ParseView normalises a wire view string, defaulting to front.
func ParseView(raw string) View {
	switch View(raw) {
	case ViewSide:
		return ViewSide
	case ViewRear:
		return ViewRear
	default:
		return ViewFront
	}
}

// Config holds the per-session detection thresholds. Immutable during a
// frame evaluation; replaced wholesale when a config patch arrives.
type Config struct {
	KeypointConfidence float64 // per-keypoint confidence floor
	DownAngle          float64 // degrees; at or below commits toward Down
	UpAngle            float64 // degrees; at or above completes a rep
	MinDownHoldMs      int64   // continuous dwell required at the bottom
	DebounceMs         int64   // minimum spacing between accepted reps
	PoseLostTimeoutMs  int64   // invalid-signal duration before poseLost
	Smoothing          float64 // EMA factor in (0,1]
	SingleSidePenalty  float64 // confidence multiplier when one leg passes
	AnkleConfidence    float64 // ankle floor for the foot-plant check
	AnkleSymmetry      float64 // allowed ankle height spread, leg-length ratio
	MinLegLengthPx     float64 // below this the plant check is inconclusive
	OrientationCheck   bool
	PlantCheck         bool
}

// DefaultConfig returns the squat-tuned thresholds the frontend starts from.
func DefaultConfig() Config {
	return Config{
		KeypointConfidence: 0.3,
		DownAngle:          100,
		UpAngle:            160,
		MinDownHoldMs:      200,
		DebounceMs:         800,
		PoseLostTimeoutMs:  3000,
		Smoothing:          0.5,
		SingleSidePenalty:  0.85,
		AnkleConfidence:    0.25,
		AnkleSymmetry:      0.35,
		MinLegLengthPx:     80,
		OrientationCheck:   true,
		PlantCheck:         true,
	}
}

// Apply merges a partial patch into the config. Unset fields keep their
// previous value; out-of-range values are clamped to calibration-safe bounds
// rather than rejected.
func (c Config) Apply(patch models.ConfigPatch) Config {
	if patch.KeypointConfidence != nil {
		c.KeypointConfidence = clamp(*patch.KeypointConfidence, minConfidenceFloor, maxConfidenceFloor)
	}
	if patch.DownAngle != nil {
		c.DownAngle = clamp(*patch.DownAngle, 0, 180)
	}
	if patch.UpAngle != nil {
		c.UpAngle = clamp(*patch.UpAngle, 0, 180)
	}
	if patch.MinDownHoldMs != nil && *patch.MinDownHoldMs >= 0 {
		c.MinDownHoldMs = *patch.MinDownHoldMs
	}
	if patch.DebounceMs != nil && *patch.DebounceMs >= 0 {
		c.DebounceMs = *patch.DebounceMs
	}
	if patch.PoseLostTimeoutMs != nil && *patch.PoseLostTimeoutMs > 0 {
		c.PoseLostTimeoutMs = *patch.PoseLostTimeoutMs
	}
	if patch.Smoothing != nil {
		c.Smoothing = clamp(*patch.Smoothing, 0.01, 1)
	}
	if patch.SingleSidePenalty != nil {
		c.SingleSidePenalty = clamp(*patch.SingleSidePenalty, minPenalty, maxPenalty)
	}
	if patch.AnkleConfidence != nil {
		c.AnkleConfidence = clamp(*patch.AnkleConfidence, minConfidenceFloor, maxConfidenceFloor)
	}
	if patch.AnkleSymmetry != nil {
		c.AnkleSymmetry = clamp(*patch.AnkleSymmetry, 0.05, 2)
	}
	if patch.MinLegLengthPx != nil && *patch.MinLegLengthPx >= 0 {
		c.MinLegLengthPx = *patch.MinLegLengthPx
	}
	if patch.OrientationCheck != nil {
		c.OrientationCheck = *patch.OrientationCheck
	}
	if patch.PlantCheck != nil {
		c.PlantCheck = *patch.PlantCheck
	}
	return c
}

package pose

// Physically sane bounds the calibrated thresholds are clamped into,
// regardless of patch values or view deltas.
const (
	minConfidenceFloor = 0.2
	maxConfidenceFloor = 0.95
	minPenalty         = 0.1
	maxPenalty         = 1.0
)

// Rear-view thresholds are ratios of the running displacement baseline
// instead of fixed degrees.
const (
	rearDownRatio = 0.45
	rearUpRatio   = 0.75
)

// viewCalibration adjusts the session config for a camera view before each
// frame evaluation. Deltas are additive, scales multiplicative.
type viewCalibration struct {
	confidenceDelta float64 // shift on the keypoint confidence floor
	penaltyScale    float64 // scale on the single-side penalty
	downAngleDelta  float64 // degrees added to the down threshold
	upAngleDelta    float64 // degrees added to the up threshold
	plantScale      float64 // scale on the ankle-symmetry allowance
}

var calibrations = map[View]viewCalibration{
	// Front-on gives the cleanest keypoints; the table is identity here.
	ViewFront: {confidenceDelta: 0, penaltyScale: 1, downAngleDelta: 0, upAngleDelta: 0, plantScale: 1},
	// Side views self-occlude the far leg: demand a bit more confidence,
	// forgive the missing side, and loosen the hysteresis band slightly.
	ViewSide: {confidenceDelta: 0.05, penaltyScale: 1.1, downAngleDelta: 5, upAngleDelta: -5, plantScale: 1.6},
	// Rear keypoints run lower confidence overall; facial landmarks are
	// unusable, so orientation checks are skipped elsewhere.
	ViewRear: {confidenceDelta: -0.05, penaltyScale: 1, downAngleDelta: 0, upAngleDelta: 0, plantScale: 1.3},
}

// Resolved holds the effective per-frame thresholds after applying the view
// calibration and clamping into sane bounds.
type Resolved struct {
	KeypointConfidence float64
	SingleSidePenalty  float64
	DownThreshold      float64 // degrees; unused for rear
	UpThreshold        float64 // degrees; unused for rear
	AnkleConfidence    float64
	AnkleSymmetry      float64 // already includes the view scale
	MinLegLengthPx     float64
}

// Resolve applies the view's calibration to the config.
func Resolve(cfg Config, view View) Resolved {
	cal, ok := calibrations[view]
	if !ok {
		cal = calibrations[ViewFront]
	}
	return Resolved{
		KeypointConfidence: clamp(cfg.KeypointConfidence+cal.confidenceDelta, minConfidenceFloor, maxConfidenceFloor),
		SingleSidePenalty:  clamp(cfg.SingleSidePenalty*cal.penaltyScale, minPenalty, maxPenalty),
		DownThreshold:      clamp(cfg.DownAngle+cal.downAngleDelta, 0, 180),
		UpThreshold:        clamp(cfg.UpAngle+cal.upAngleDelta, 0, 180),
		AnkleConfidence:    clamp(cfg.AnkleConfidence+cal.confidenceDelta, minConfidenceFloor, maxConfidenceFloor),
		AnkleSymmetry:      cfg.AnkleSymmetry * cal.plantScale,
		MinLegLengthPx:     cfg.MinLegLengthPx,
	}
}

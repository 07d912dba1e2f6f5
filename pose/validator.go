package pose

import "math"

// Orientation is the body orientation inferred from facial keypoints.
type Orientation string

const (
	OrientationFront   Orientation = "front"
	OrientationBack    Orientation = "back"
	OrientationSide    Orientation = "side"
	OrientationUnknown Orientation = "unknown"
)

// eyeVisibleFloor is the confidence above which a single eye counts as
// confidently visible for the one-eye side heuristic.
const eyeVisibleFloor = 0.3

// DetectOrientation infers the subject's orientation from the average
// confidence of nose and eyes. Facing the camera the face scores high; facing
// away it scores near zero; a profile shows exactly one eye.
func DetectOrientation(kps Keypoints) Orientation {
	nose, okN := kps.Get(Nose)
	leftEye, okL := kps.Get(LeftEye)
	rightEye, okR := kps.Get(RightEye)
	if !okN && !okL && !okR {
		return OrientationUnknown
	}

	var noseConf, leftConf, rightConf float64
	if okN {
		noseConf = nose.Confidence
	}
	if okL {
		leftConf = leftEye.Confidence
	}
	if okR {
		rightConf = rightEye.Confidence
	}

	leftVisible := leftConf >= eyeVisibleFloor
	rightVisible := rightConf >= eyeVisibleFloor
	if leftVisible != rightVisible {
		return OrientationSide
	}

	avg := (noseConf + leftConf + rightConf) / 3
	switch {
	case avg > 0.4:
		return OrientationFront
	case avg < 0.2:
		return OrientationBack
	default:
		return OrientationSide
	}
}

// OrientationMatchesView reports whether a detected orientation is plausible
// for the configured camera view. Side detections are always accepted (a
// subject mid-turn should not break detection); unknown is rejected, as is a
// front/back swap.
func OrientationMatchesView(detected Orientation, view View) bool {
	if detected == OrientationUnknown {
		return false
	}
	if detected == OrientationSide || view == ViewSide {
		return true
	}
	switch view {
	case ViewFront:
		return detected == OrientationFront
	case ViewRear:
		return detected == OrientationBack
	default:
		return false
	}
}

// PlantCheck verifies both feet are planted at a comparable height. A raised
// foot (a lunge, a step) produces a large vertical ankle spread relative to
// leg length and the frame is rejected. Low-confidence ankles or implausibly
// short legs make the check inconclusive, and inconclusive data must not
// block detection.
func PlantCheck(kps Keypoints, res Resolved) bool {
	leftAnkle, okLA := kps.Get(LeftAnkle)
	rightAnkle, okRA := kps.Get(RightAnkle)
	leftHip, okLH := kps.Get(LeftHip)
	rightHip, okRH := kps.Get(RightHip)
	if !okLA || !okRA || !okLH || !okRH {
		return true
	}
	if leftAnkle.Confidence < res.AnkleConfidence || rightAnkle.Confidence < res.AnkleConfidence {
		return true
	}

	leftLeg := math.Abs(leftAnkle.Y - leftHip.Y)
	rightLeg := math.Abs(rightAnkle.Y - rightHip.Y)
	avgLegLength := (leftLeg + rightLeg) / 2
	if avgLegLength < res.MinLegLengthPx {
		return true
	}

	spread := math.Abs(leftAnkle.Y - rightAnkle.Y)
	return spread <= avgLegLength*res.AnkleSymmetry
}

// ValidateFrame runs the enabled validator stages for the configured view.
// A rejected frame is treated downstream exactly like an absent pose.
// Orientation is skipped for the rear view, where facial keypoints are
// unreliable by construction.
func ValidateFrame(kps Keypoints, cfg Config, view View, res Resolved) bool {
	if cfg.OrientationCheck && view != ViewRear {
		if !OrientationMatchesView(DetectOrientation(kps), view) {
			return false
		}
	}
	if cfg.PlantCheck {
		if !PlantCheck(kps, res) {
			return false
		}
	}
	return true
}

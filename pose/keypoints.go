// Package pose implements the frame-rate-gated pose-to-repetition detector:
// keypoint geometry, view-dependent calibration, orientation and foot-plant
// validation, the hysteresis phase state machine, and the per-session frame
// scheduler that ties them to an external keypoint estimator.
package pose

import "math"

// Keypoint landmark names follow the MoveNet/COCO 17-point convention.
const (
	Nose          = "nose"
	LeftEye       = "left_eye"
	RightEye      = "right_eye"
	LeftEar       = "left_ear"
	RightEar      = "right_ear"
	LeftShoulder  = "left_shoulder"
	RightShoulder = "right_shoulder"
	LeftElbow     = "left_elbow"
	RightElbow    = "right_elbow"
	LeftWrist     = "left_wrist"
	RightWrist    = "right_wrist"
	LeftHip       = "left_hip"
	RightHip      = "right_hip"
	LeftKnee      = "left_knee"
	RightKnee     = "right_knee"
	LeftAnkle     = "left_ankle"
	RightAnkle    = "right_ankle"
)

// Keypoint is a single named anatomical landmark in image coordinates with a
// per-point confidence score in [0,1]. Produced fresh each frame by the
// estimator and never mutated by the detector.
type Keypoint struct {
	Name       string  `json:"name"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
}

// Keypoints indexes one frame's landmarks by name.
type Keypoints map[string]Keypoint

// IndexKeypoints builds a name lookup from an estimator result. Duplicate
// names keep the higher-confidence point.
func IndexKeypoints(points []Keypoint) Keypoints {
	kps := make(Keypoints, len(points))
	for _, kp := range points {
		if prev, ok := kps[kp.Name]; ok && prev.Confidence >= kp.Confidence {
			continue
		}
		kps[kp.Name] = kp
	}
	return kps
}

// Get returns the named keypoint and whether it was detected this frame.
func (k Keypoints) Get(name string) (Keypoint, bool) {
	kp, ok := k[name]
	return kp, ok
}

// Confident reports whether the named keypoint exists with confidence at or
// above the given floor.
func (k Keypoints) Confident(name string, floor float64) bool {
	kp, ok := k[name]
	return ok && kp.Confidence >= floor
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minFloat(a, b float64) float64 {
	return math.Min(a, b)
}

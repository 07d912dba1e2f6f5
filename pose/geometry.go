package pose

import "math"

// Signal is one frame's validated scalar measurement: a knee angle in degrees
// for front/side views or a hip-to-knee vertical displacement in pixels for
// the rear view. Invalid signals carry zero confidence.
type Signal struct {
	Value      float64
	Confidence float64
	Valid      bool
}

var invalidSignal = Signal{}

var legSides = []struct {
	hip, knee, ankle string
}{
	{LeftHip, LeftKnee, LeftAnkle},
	{RightHip, RightKnee, RightAnkle},
}

// KneeAngleSignal derives the knee flexion angle for front and side views.
// Each leg is evaluated independently: all three of hip, knee and ankle must
// clear the confidence floor. Among passing legs the smaller angle wins (a
// rep is driven by whichever leg is deepest). When exactly one leg passes,
// its confidence is multiplied by the single-side penalty.
func KneeAngleSignal(kps Keypoints, minConfidence, singleSidePenalty float64) Signal {
	var best Signal
	passing := 0

	for _, side := range legSides {
		hip, okH := kps.Get(side.hip)
		knee, okK := kps.Get(side.knee)
		ankle, okA := kps.Get(side.ankle)
		if !okH || !okK || !okA {
			continue
		}
		if hip.Confidence < minConfidence || knee.Confidence < minConfidence || ankle.Confidence < minConfidence {
			continue
		}

		angle := angleAt(knee, hip, ankle)
		confidence := minFloat(hip.Confidence, minFloat(knee.Confidence, ankle.Confidence))

		passing++
		if passing == 1 || angle < best.Value {
			best = Signal{Value: angle, Confidence: confidence, Valid: true}
		}
	}

	if passing == 0 {
		return invalidSignal
	}
	if passing == 1 {
		best.Confidence = clamp(best.Confidence*singleSidePenalty, 0, 1)
	}
	return best
}

// HipDropSignal derives the rear-view displacement signal: the vertical
// distance between hip and knee, averaged over the sides whose two keypoints
// clear the confidence floor.
func HipDropSignal(kps Keypoints, minConfidence float64) Signal {
	var deltaSum, confSum float64
	passing := 0

	for _, side := range legSides {
		hip, okH := kps.Get(side.hip)
		knee, okK := kps.Get(side.knee)
		if !okH || !okK {
			continue
		}
		if hip.Confidence < minConfidence || knee.Confidence < minConfidence {
			continue
		}
		deltaSum += math.Abs(hip.Y - knee.Y)
		confSum += minFloat(hip.Confidence, knee.Confidence)
		passing++
	}

	if passing == 0 {
		return invalidSignal
	}
	n := float64(passing)
	return Signal{Value: deltaSum / n, Confidence: confSum / n, Valid: true}
}

// angleAt computes the angle in degrees at the vertex between the rays
// vertex->a and vertex->b, clamped to [0,180]. Degenerate zero-length rays
// yield the neutral fully-extended angle of 180.
func angleAt(vertex, a, b Keypoint) float64 {
	ax, ay := a.X-vertex.X, a.Y-vertex.Y
	bx, by := b.X-vertex.X, b.Y-vertex.Y

	normA := math.Hypot(ax, ay)
	normB := math.Hypot(bx, by)
	if normA == 0 || normB == 0 {
		return 180
	}

	cos := clamp((ax*bx+ay*by)/(normA*normB), -1, 1)
	return clamp(math.Acos(cos)*180/math.Pi, 0, 180)
}

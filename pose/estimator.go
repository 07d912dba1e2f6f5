package pose

import "context"

// Estimator is the external pose-keypoint capability: given one encoded
// image, return zero or one set of named 2-D keypoints with per-point
// confidence scores. Estimate is the session's only suspension point and may
// fail; failures are reported and the frame is skipped.
type Estimator interface {
	Estimate(ctx context.Context, image []byte) ([]Keypoint, error)
	Backend() string
	Close() error
}

// EstimatorFunc adapts a bare function to the Estimator interface, mostly
// for tests and offline replay.
type EstimatorFunc func(ctx context.Context, image []byte) ([]Keypoint, error)

func (f EstimatorFunc) Estimate(ctx context.Context, image []byte) ([]Keypoint, error) {
	return f(ctx, image)
}

func (f EstimatorFunc) Backend() string { return "func" }

func (f EstimatorFunc) Close() error { return nil }

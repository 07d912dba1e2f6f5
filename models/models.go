package models

import (
	"encoding/json"
	"time"
)

// InitData is the payload of the "init" socket event. It binds a detection
// session to an estimator model and an initial camera view.
type InitData struct {
	Model     string  `json:"model"`
	TargetFPS float64 `json:"targetFps,omitempty"`
	Debug     bool    `json:"debug,omitempty"`
	View      string  `json:"view,omitempty"`
}

// FrameData is the payload of the "frame" socket event: one camera frame as
// base64-encoded JPEG plus the client-side capture timestamp.
type FrameData struct {
	Image       string `json:"image"`
	TimestampMs int64  `json:"timestampMs"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
}

// ConfigPatch is the payload of the "configure" socket event. Every field is
// optional; unset fields keep their previous value.
type ConfigPatch struct {
	View               *string  `json:"view,omitempty"`
	KeypointConfidence *float64 `json:"keypointConfidence,omitempty"`
	DownAngle          *float64 `json:"downAngle,omitempty"`
	UpAngle            *float64 `json:"upAngle,omitempty"`
	MinDownHoldMs      *int64   `json:"minDownHoldMs,omitempty"`
	DebounceMs         *int64   `json:"debounceMs,omitempty"`
	PoseLostTimeoutMs  *int64   `json:"poseLostTimeoutMs,omitempty"`
	Smoothing          *float64 `json:"smoothing,omitempty"`
	SingleSidePenalty  *float64 `json:"singleSidePenalty,omitempty"`
	AnkleConfidence    *float64 `json:"ankleConfidence,omitempty"`
	AnkleSymmetry      *float64 `json:"ankleSymmetry,omitempty"`
	MinLegLengthPx     *float64 `json:"minLegLengthPx,omitempty"`
	OrientationCheck   *bool    `json:"orientationCheck,omitempty"`
	PlantCheck         *bool    `json:"plantCheck,omitempty"`
}

// Workout represents a stored summary of a completed detection session.
type Workout struct {
	ID             string          `json:"id"`
	StartedAt      time.Time       `json:"startedAt"`
	EndedAt        time.Time       `json:"endedAt"`
	View           string          `json:"view"`
	Model          string          `json:"model"`
	RepCount       int             `json:"repCount"`
	MeanConfidence float64         `json:"meanConfidence"`
	DurationMs     int64           `json:"durationMs"`
	Reps           json.RawMessage `json:"reps,omitempty"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
}

package main

import (
	"flag"
	"fmt"

	"rep-detection/pose"
)

// Synthesizes knee-angle sweeps against a threshold configuration to check
// hold and debounce behavior without a camera. Each sweep descends from top
// to bottom, dwells, and rises back; the tool reports how many reps the
// detector accepts.
func main() {
	down := flag.Float64("down", 100, "down threshold in degrees")
	up := flag.Float64("up", 160, "up threshold in degrees")
	holdMs := flag.Int64("hold", 200, "minimum down-hold in ms")
	debounceMs := flag.Int64("debounce", 800, "rep debounce in ms")
	smoothing := flag.Float64("smoothing", 0.5, "EMA factor")
	frameMs := flag.Int64("frame", 50, "frame interval in ms")
	dwellMs := flag.Int64("dwell", 300, "dwell at the bottom in ms")
	reps := flag.Int("reps", 3, "sweeps to synthesize")
	top := flag.Float64("top", 175, "standing angle in degrees")
	bottom := flag.Float64("bottom", 85, "bottom angle in degrees")
	flag.Parse()

	cfg := pose.DefaultConfig()
	cfg.DownAngle = *down
	cfg.UpAngle = *up
	cfg.MinDownHoldMs = *holdMs
	cfg.DebounceMs = *debounceMs
	cfg.Smoothing = *smoothing

	detector := pose.NewDetector(cfg, pose.ViewFront)

	feed := func(angle float64, t int64) int64 {
		sig := pose.Signal{Value: angle, Confidence: 0.9, Valid: true}
		out := detector.Advance(sig, t, 0)
		if out.Rep != nil {
			fmt.Printf("t=%dms repComplete (rep #%d)\n", t, detector.RepCount())
		}
		return t + *frameMs
	}

	const rampSteps = 12
	t := int64(0)
	// settle at the top first so the machine leaves NoPose
	for i := 0; i < 5; i++ {
		t = feed(*top, t)
	}

	for rep := 0; rep < *reps; rep++ {
		for i := 1; i <= rampSteps; i++ {
			angle := *top + (*bottom-*top)*float64(i)/rampSteps
			t = feed(angle, t)
		}
		for held := int64(0); held < *dwellMs; held += *frameMs {
			t = feed(*bottom, t)
		}
		for i := 1; i <= rampSteps; i++ {
			angle := *bottom + (*top-*bottom)*float64(i)/rampSteps
			t = feed(angle, t)
		}
	}

	fmt.Printf("\nsweeps=%d accepted=%d phase=%s\n", *reps, detector.RepCount(), detector.Phase())
	if detector.RepCount() != *reps {
		fmt.Println("threshold configuration did not accept every sweep; check hold/debounce against the frame interval")
	}
}

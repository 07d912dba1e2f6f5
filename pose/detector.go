package pose

// Repetition phase state machine.
//
// Raw per-frame angle/displacement is noisy, so a single threshold crossing
// is never taken as evidence of a completed repetition. Three independent
// guards must all agree before a rep counts:
//
//  1. Smoothing: the raw signal feeds an exponential moving average; the
//     machine only ever looks at the smoothed value.
//  2. Hold: the smoothed signal must stay at or below the down threshold
//     continuously for MinDownHoldMs before the bottom phase commits.
//  3. Debounce: two accepted reps must be at least DebounceMs apart; a
//     qualifying crossing inside the window is suppressed silently, which is
//     what keeps threshold-straddling jitter from double counting.
//
// Pose loss is an episode: one poseLost after the timeout, one poseRegained
// on the next valid frame, never back-to-back repeats of either.

// Phase is the machine's current position in the repetition cycle.
type Phase string

const (
	PhaseNoPose Phase = "no_pose"
	PhaseUp     Phase = "up"
	PhaseDown   Phase = "down"
)

// Outcome is what one frame evaluation produced. At most one rep and one
// pose-episode edge per frame.
type Outcome struct {
	PoseLost     bool
	PoseRegained bool
	Rep          *RepCompleteEvent
}

// Detector owns the detection state for one session. It is not safe for
// concurrent use; the session serializes frames through it.
type Detector struct {
	cfg  Config
	view View

	phase             Phase
	smoothed          float64
	hasSmoothed       bool
	downHoldStartedMs int64
	holding           bool
	lastValidPoseMs   int64
	hasValidPose      bool
	lastRepMs         int64
	hasRep            bool
	poseLostNotified  bool

	// Rear view only: the largest displacement observed so far, from which
	// the down/up thresholds are derived as fixed ratios.
	baseline    float64
	hasBaseline bool

	repCount int
}

// NewDetector creates a detector in the NoPose phase with all timers unset.
func NewDetector(cfg Config, view View) *Detector {
	return &Detector{cfg: cfg, view: view, phase: PhaseNoPose}
}

// Reset returns the detector to its initial form. Called on every view
// change and on stop; nothing carries across.
func (d *Detector) Reset() {
	cfg, view := d.cfg, d.view
	*d = Detector{cfg: cfg, view: view, phase: PhaseNoPose}
}

// SetConfig swaps the threshold set. Detection state is preserved unless the
// view changed, which forces a full reset.
func (d *Detector) SetConfig(cfg Config, view View) {
	viewChanged := view != d.view
	d.cfg = cfg
	d.view = view
	if viewChanged {
		d.Reset()
	}
}

// Phase returns the current phase.
func (d *Detector) Phase() Phase { return d.phase }

// Smoothed returns the EMA value and whether one exists yet.
func (d *Detector) Smoothed() (float64, bool) { return d.smoothed, d.hasSmoothed }

// RepCount returns the number of reps accepted since the last reset.
func (d *Detector) RepCount() int { return d.repCount }

// View returns the configured camera view.
func (d *Detector) View() View { return d.view }

// Advance consumes one validated signal at time tMs (milliseconds) and
// returns the events it produced. fps, when derivable, is attached to rep
// events for the caller's telemetry.
func (d *Detector) Advance(sig Signal, tMs int64, fps float64) Outcome {
	if !sig.Valid {
		return d.advanceInvalid(tMs)
	}
	return d.advanceValid(sig, tMs, fps)
}

func (d *Detector) advanceInvalid(tMs int64) Outcome {
	var out Outcome

	// Transient flicker is tolerated: the phase survives, only the bottom
	// hold timer is abandoned. The episode begins once the timeout elapses.
	d.holding = false

	if d.hasValidPose && !d.poseLostNotified && tMs-d.lastValidPoseMs >= d.cfg.PoseLostTimeoutMs {
		d.poseLostNotified = true
		d.phase = PhaseNoPose
		d.hasSmoothed = false
		out.PoseLost = true
	}
	return out
}

func (d *Detector) advanceValid(sig Signal, tMs int64, fps float64) Outcome {
	var out Outcome

	if d.poseLostNotified {
		d.poseLostNotified = false
		out.PoseRegained = true
	}
	d.lastValidPoseMs = tMs
	d.hasValidPose = true

	if d.hasSmoothed {
		d.smoothed += d.cfg.Smoothing * (sig.Value - d.smoothed)
	} else {
		d.smoothed = sig.Value
		d.hasSmoothed = true
	}

	down, up := d.thresholds()

	switch d.phase {
	case PhaseNoPose:
		if d.smoothed >= up {
			d.phase = PhaseUp
		}

	case PhaseUp:
		if d.smoothed <= down {
			if !d.holding {
				d.holding = true
				d.downHoldStartedMs = tMs
			}
			if tMs-d.downHoldStartedMs >= d.cfg.MinDownHoldMs {
				d.phase = PhaseDown
				d.holding = false
			}
		} else {
			d.holding = false
		}

	case PhaseDown:
		if d.smoothed >= up {
			if !d.hasRep || tMs-d.lastRepMs >= d.cfg.DebounceMs {
				d.phase = PhaseUp
				d.holding = false
				d.lastRepMs = tMs
				d.hasRep = true
				d.repCount++
				out.Rep = &RepCompleteEvent{
					TimestampMs: tMs,
					Confidence:  sig.Confidence,
					FPS:         fps,
				}
			}
			// Inside the debounce window the crossing is suppressed
			// silently: no transition, no event.
		}
	}

	return out
}

// thresholds returns the effective down/up thresholds for the current frame.
// Front and side views use calibrated fixed degrees; the rear view derives
// both as ratios of the running displacement baseline, which only grows, and
// only while standing (the Up phase), so a half-depth bounce cannot inflate
// it mid-rep.
func (d *Detector) thresholds() (down, up float64) {
	if d.view != ViewRear {
		res := Resolve(d.cfg, d.view)
		return res.DownThreshold, res.UpThreshold
	}

	if !d.hasBaseline {
		d.baseline = d.smoothed
		d.hasBaseline = true
	} else if d.phase != PhaseDown && d.smoothed > d.baseline {
		d.baseline = d.smoothed
	}
	return d.baseline * rearDownRatio, d.baseline * rearUpRatio
}

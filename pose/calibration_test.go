package pose

import (
	"testing"

	"rep-detection/models"
)

// Whatever the config and view deltas, the resolved confidence floor and
// single-side penalty must stay inside their physical bounds.
func TestResolveClampsIntoBounds(t *testing.T) {
	t.Parallel()

	configs := []Config{
		DefaultConfig(),
		func() Config {
			c := DefaultConfig()
			c.KeypointConfidence = 0.01
			c.AnkleConfidence = 0.01
			c.SingleSidePenalty = 0.01
			return c
		}(),
		func() Config {
			c := DefaultConfig()
			c.KeypointConfidence = 0.99
			c.AnkleConfidence = 0.99
			c.SingleSidePenalty = 5
			c.DownAngle = -20
			c.UpAngle = 400
			return c
		}(),
	}

	for _, view := range []View{ViewFront, ViewSide, ViewRear} {
		for i, cfg := range configs {
			res := Resolve(cfg, view)
			if res.KeypointConfidence < 0.2 || res.KeypointConfidence > 0.95 {
				t.Errorf("view=%s cfg=%d: confidence floor %.3f out of [0.2, 0.95]", view, i, res.KeypointConfidence)
			}
			if res.AnkleConfidence < 0.2 || res.AnkleConfidence > 0.95 {
				t.Errorf("view=%s cfg=%d: ankle floor %.3f out of [0.2, 0.95]", view, i, res.AnkleConfidence)
			}
			if res.SingleSidePenalty < 0.1 || res.SingleSidePenalty > 1 {
				t.Errorf("view=%s cfg=%d: penalty %.3f out of [0.1, 1]", view, i, res.SingleSidePenalty)
			}
			if res.DownThreshold < 0 || res.DownThreshold > 180 || res.UpThreshold < 0 || res.UpThreshold > 180 {
				t.Errorf("view=%s cfg=%d: thresholds (%.1f, %.1f) out of [0, 180]", view, i, res.DownThreshold, res.UpThreshold)
			}
		}
	}
}

func TestResolveFrontIsIdentity(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	res := Resolve(cfg, ViewFront)

	if res.KeypointConfidence != cfg.KeypointConfidence {
		t.Errorf("confidence floor changed: %.3f", res.KeypointConfidence)
	}
	if res.SingleSidePenalty != cfg.SingleSidePenalty {
		t.Errorf("penalty changed: %.3f", res.SingleSidePenalty)
	}
	if res.DownThreshold != cfg.DownAngle || res.UpThreshold != cfg.UpAngle {
		t.Errorf("thresholds changed: (%.1f, %.1f)", res.DownThreshold, res.UpThreshold)
	}
	if res.AnkleSymmetry != cfg.AnkleSymmetry {
		t.Errorf("ankle symmetry changed: %.3f", res.AnkleSymmetry)
	}
}

func TestResolveSideLoosensHysteresis(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	front := Resolve(cfg, ViewFront)
	side := Resolve(cfg, ViewSide)

	if side.DownThreshold <= front.DownThreshold {
		t.Errorf("side down threshold should sit above front: %.1f vs %.1f", side.DownThreshold, front.DownThreshold)
	}
	if side.UpThreshold >= front.UpThreshold {
		t.Errorf("side up threshold should sit below front: %.1f vs %.1f", side.UpThreshold, front.UpThreshold)
	}
	if side.KeypointConfidence <= front.KeypointConfidence {
		t.Errorf("side should demand more confidence: %.3f vs %.3f", side.KeypointConfidence, front.KeypointConfidence)
	}
	if side.AnkleSymmetry <= front.AnkleSymmetry {
		t.Errorf("side should loosen the plant allowance: %.3f vs %.3f", side.AnkleSymmetry, front.AnkleSymmetry)
	}
}

func TestResolveUnknownViewFallsBackToFront(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if Resolve(cfg, View("overhead")) != Resolve(cfg, ViewFront) {
		t.Error("unknown view should resolve with the front calibration")
	}
}

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }

func TestConfigApplyClampsInsteadOfRejecting(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig().Apply(models.ConfigPatch{
		KeypointConfidence: f64(7),
		DownAngle:          f64(-30),
		UpAngle:            f64(999),
		Smoothing:          f64(0),
		SingleSidePenalty:  f64(0),
		AnkleSymmetry:      f64(100),
	})

	if cfg.KeypointConfidence != 0.95 {
		t.Errorf("confidence should clamp to 0.95, got %.3f", cfg.KeypointConfidence)
	}
	if cfg.DownAngle != 0 || cfg.UpAngle != 180 {
		t.Errorf("angles should clamp to [0, 180], got (%.1f, %.1f)", cfg.DownAngle, cfg.UpAngle)
	}
	if cfg.Smoothing != 0.01 {
		t.Errorf("smoothing should clamp to 0.01, got %.3f", cfg.Smoothing)
	}
	if cfg.SingleSidePenalty != 0.1 {
		t.Errorf("penalty should clamp to 0.1, got %.3f", cfg.SingleSidePenalty)
	}
	if cfg.AnkleSymmetry != 2 {
		t.Errorf("ankle symmetry should clamp to 2, got %.3f", cfg.AnkleSymmetry)
	}
}

func TestConfigApplyPartialPatch(t *testing.T) {
	t.Parallel()

	base := DefaultConfig()
	patched := base.Apply(models.ConfigPatch{
		DebounceMs: i64(400),
		PlantCheck: func() *bool { b := false; return &b }(),
	})

	if patched.DebounceMs != 400 {
		t.Errorf("debounce not applied, got %d", patched.DebounceMs)
	}
	if patched.PlantCheck {
		t.Error("plant toggle not applied")
	}
	// everything unset keeps its prior value
	patched.DebounceMs = base.DebounceMs
	patched.PlantCheck = base.PlantCheck
	if patched != base {
		t.Errorf("unset fields changed: %+v vs %+v", patched, base)
	}

	// negative durations are ignored, not clamped to zero
	kept := base.Apply(models.ConfigPatch{MinDownHoldMs: i64(-5), PoseLostTimeoutMs: i64(0)})
	if kept.MinDownHoldMs != base.MinDownHoldMs || kept.PoseLostTimeoutMs != base.PoseLostTimeoutMs {
		t.Errorf("invalid durations should be ignored: %+v", kept)
	}
}

func TestParseView(t *testing.T) {
	t.Parallel()

	cases := map[string]View{
		"front":  ViewFront,
		"side":   ViewSide,
		"rear":   ViewRear,
		"":       ViewFront,
		"weird":  ViewFront,
		"FRONT":  ViewFront,
		"Selfie": ViewFront,
	}
	for raw, want := range cases {
		if got := ParseView(raw); got != want {
			t.Errorf("ParseView(%q) = %s, want %s", raw, got, want)
		}
	}
}

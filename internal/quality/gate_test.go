package quality

import (
	"testing"

	"github.com/example/facegate/internal/imaging"
)

func graySample(w, h int, fill func(x, y int) uint8) *imaging.Sample {
	gray := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gray[y*w+x] = fill(x, y)
		}
	}
	return &imaging.Sample{Width: w, Height: h, Gray: gray}
}

// Deterministic pseudo-random fill so noise fixtures are reproducible.
func noiseFill(lo, hi int, seed uint32) func(x, y int) uint8 {
	state := seed
	span := uint32(hi - lo + 1)
	return func(x, y int) uint8 {
		state = state*1664525 + 1013904223
		return uint8(lo + int((state>>16)%span))
	}
}

func TestEvaluateRejectsUniformImage(t *testing.T) {
	gate := NewGate(DefaultThresholds())

	report := gate.Evaluate(graySample(100, 100, func(x, y int) uint8 { return 128 }))
	if report.Admissible {
		t.Fatal("expected uniform image to be rejected")
	}
	if report.Reason != ReasonUniformImage {
		t.Fatalf("expected reason %q, got %q", ReasonUniformImage, report.Reason)
	}
	if report.StdDev != 0 {
		t.Fatalf("expected zero stddev, got %f", report.StdDev)
	}
}

func TestEvaluateRejectsUnderexposedImage(t *testing.T) {
	gate := NewGate(DefaultThresholds())

	// Alternating dark stripes: enough variance to pass the uniform
	// check, mean well below the exposure floor.
	report := gate.Evaluate(graySample(100, 100, func(x, y int) uint8 {
		if y%2 == 0 {
			return 0
		}
		return 40
	}))
	if report.Admissible {
		t.Fatal("expected underexposed image to be rejected")
	}
	if report.Reason != ReasonBadExposure {
		t.Fatalf("expected reason %q, got %q", ReasonBadExposure, report.Reason)
	}
}

func TestEvaluateRejectsOverexposedImage(t *testing.T) {
	gate := NewGate(DefaultThresholds())

	report := gate.Evaluate(graySample(100, 100, func(x, y int) uint8 {
		if y%2 == 0 {
			return 215
		}
		return 255
	}))
	if report.Admissible {
		t.Fatal("expected overexposed image to be rejected")
	}
	if report.Reason != ReasonBadExposure {
		t.Fatalf("expected reason %q, got %q", ReasonBadExposure, report.Reason)
	}
}

func TestEvaluateAdmitsStructuredImage(t *testing.T) {
	gate := NewGate(DefaultThresholds())

	report := gate.Evaluate(graySample(100, 100, func(x, y int) uint8 {
		return uint8((x * 2) % 256)
	}))
	if !report.Admissible {
		t.Fatalf("expected admissible report, got reason %q", report.Reason)
	}
	if report.NoiseSuspect {
		t.Fatal("smooth gradient must not be flagged as noise")
	}
}

func TestEvaluateFlagsHighFrequencyNoise(t *testing.T) {
	gate := NewGate(DefaultThresholds())

	report := gate.Evaluate(graySample(120, 120, noiseFill(0, 255, 1)))
	if !report.Admissible {
		t.Fatalf("noise suspect must stay admissible at the gate, got reason %q", report.Reason)
	}
	if !report.NoiseSuspect {
		t.Fatalf("expected noise suspect flag, stddev=%f edges=%f", report.StdDev, report.EdgeDensity)
	}
}

func TestEvaluateDoesNotFlagLowAmplitudeNoise(t *testing.T) {
	gate := NewGate(DefaultThresholds())

	report := gate.Evaluate(graySample(120, 120, noiseFill(100, 160, 7)))
	if !report.Admissible {
		t.Fatalf("expected admissible report, got reason %q", report.Reason)
	}
	if report.NoiseSuspect {
		t.Fatal("low-amplitude texture must not be flagged as noise")
	}
}

// Package quality implements the statistical anti-spoofing gate that
// rejects degenerate inputs before face detection runs.
package quality

import (
	"math"

	"github.com/example/facegate/internal/imaging"
)

// Reason codes surfaced in the final verification result. UniformImage,
// BadExposure and UnstructuredNoise are mutually exclusive with
// NoFaceDetected on any single request.
const (
	ReasonUniformImage      = "uniform_image"
	ReasonBadExposure       = "bad_exposure"
	ReasonUnstructuredNoise = "unstructured_noise"
)

// Gradient magnitude above which a pixel counts toward edge density.
const edgeGradientCutoff = 32

// Thresholds configures the gate policy.
type Thresholds struct {
	// LowVarianceCutoff rejects images whose luminance standard
	// deviation falls below it (solid-color spoof attempts).
	LowVarianceCutoff float64

	// MinLuminance and MaxLuminance bound acceptable mean exposure.
	MinLuminance float64
	MaxLuminance float64

	// NoiseEdgeDensity and NoiseStdDev together flag a noise suspect.
	// The verdict is only finalized if face localization also fails.
	NoiseEdgeDensity float64
	NoiseStdDev      float64
}

// DefaultThresholds returns the gate policy tuned for typical phone
// camera submissions.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LowVarianceCutoff: 8.0,
		MinLuminance:      30.0,
		MaxLuminance:      225.0,
		NoiseEdgeDensity:  0.45,
		NoiseStdDev:       60.0,
	}
}

// Report carries the statistics and the gate verdict for one sample.
type Report struct {
	MeanLuminance float64
	StdDev        float64
	EdgeDensity   float64

	// Admissible is false when the gate rejects the sample outright.
	Admissible bool

	// Reason holds the rejection reason code when Admissible is false.
	Reason string

	// NoiseSuspect marks samples whose statistics resemble pure noise.
	// Callers downgrade a failed localization to unstructured_noise
	// when this is set.
	NoiseSuspect bool
}

// Gate evaluates image admissibility.
type Gate struct {
	thresholds Thresholds
}

// NewGate constructs a gate with the given policy.
func NewGate(thresholds Thresholds) *Gate {
	return &Gate{thresholds: thresholds}
}

// Evaluate computes luminance and edge statistics for the sample and
// applies the rejection policy. It never consults the detector; noise
// classification is finalized by the caller after localization.
func (g *Gate) Evaluate(s *imaging.Sample) Report {
	mean, stddev := luminanceStats(s)
	edges := edgeDensity(s)

	report := Report{
		MeanLuminance: mean,
		StdDev:        stddev,
		EdgeDensity:   edges,
		Admissible:    true,
	}

	switch {
	case stddev < g.thresholds.LowVarianceCutoff:
		report.Admissible = false
		report.Reason = ReasonUniformImage
	case mean < g.thresholds.MinLuminance || mean > g.thresholds.MaxLuminance:
		report.Admissible = false
		report.Reason = ReasonBadExposure
	}

	if edges > g.thresholds.NoiseEdgeDensity && stddev > g.thresholds.NoiseStdDev {
		report.NoiseSuspect = true
	}

	return report
}

func luminanceStats(s *imaging.Sample) (mean, stddev float64) {
	n := float64(len(s.Gray))
	if n == 0 {
		return 0, 0
	}

	var sum float64
	for _, v := range s.Gray {
		sum += float64(v)
	}
	mean = sum / n

	var sq float64
	for _, v := range s.Gray {
		d := float64(v) - mean
		sq += d * d
	}
	stddev = math.Sqrt(sq / n)
	return mean, stddev
}

// edgeDensity returns the fraction of interior pixels whose central
// difference gradient magnitude exceeds the fixed cutoff.
func edgeDensity(s *imaging.Sample) float64 {
	if s.Width < 3 || s.Height < 3 {
		return 0
	}

	var hits, total int
	for y := 1; y < s.Height-1; y++ {
		for x := 1; x < s.Width-1; x++ {
			dx := int(s.At(x+1, y)) - int(s.At(x-1, y))
			dy := int(s.At(x, y+1)) - int(s.At(x, y-1))
			if abs(dx)+abs(dy) > edgeGradientCutoff {
				hits++
			}
			total++
		}
	}
	return float64(hits) / float64(total)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

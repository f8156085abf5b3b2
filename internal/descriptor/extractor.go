// Package descriptor turns a localized face region into a fixed-length
// embedding usable for similarity comparison.
package descriptor

import (
	"fmt"
	"image"
	"math"

	xdraw "golang.org/x/image/draw"

	"github.com/example/facegate/internal/detect"
	"github.com/example/facegate/internal/imaging"
)

// Size is the descriptor dimensionality.
const Size = 128

// Descriptor is an L2-normalized face embedding. Opaque to callers
// beyond Cosine.
type Descriptor [Size]float32

// ExtractionError reports a degenerate region that cannot produce a
// usable descriptor.
type ExtractionError struct {
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract descriptor: %s", e.Reason)
}

// Crop geometry constraints. Regions outside these bounds are spurious
// detections, not usable faces.
const (
	minRegionSide = 16
	minAspect     = 0.5
	maxAspect     = 2.0
	patchSide     = 64
	cellSide      = 8
	cells         = patchSide / cellSide
)

// Extractor computes descriptors from face regions. The embedding is
// deterministic: the same sample and region always produce the same
// descriptor.
type Extractor struct{}

// NewExtractor constructs a local extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract crops the region with a small margin, rescales it to a fixed
// patch and encodes block luminance and gradient statistics.
func (e *Extractor) Extract(s *imaging.Sample, r detect.Region) (Descriptor, error) {
	var d Descriptor

	if r.W < minRegionSide || r.H < minRegionSide {
		return d, &ExtractionError{Reason: fmt.Sprintf("region %dx%d below minimum side %d", r.W, r.H, minRegionSide)}
	}
	aspect := float64(r.W) / float64(r.H)
	if aspect < minAspect || aspect > maxAspect {
		return d, &ExtractionError{Reason: fmt.Sprintf("region aspect ratio %.2f outside [%.1f, %.1f]", aspect, minAspect, maxAspect)}
	}

	patch := cropPatch(s, r)
	encode(patch, &d)
	normalize(&d)
	return d, nil
}

// cropPatch extracts the region plus a 10% margin as a fixed-size
// grayscale patch.
func cropPatch(s *imaging.Sample, r detect.Region) *image.Gray {
	marginX := r.W / 10
	marginY := r.H / 10
	x0 := clamp(r.X-marginX, 0, s.Width)
	y0 := clamp(r.Y-marginY, 0, s.Height)
	x1 := clamp(r.X+r.W+marginX, 0, s.Width)
	y1 := clamp(r.Y+r.H+marginY, 0, s.Height)

	src := image.NewGray(image.Rect(0, 0, x1-x0, y1-y0))
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			src.Pix[(y-y0)*src.Stride+(x-x0)] = s.At(x, y)
		}
	}

	dst := image.NewGray(image.Rect(0, 0, patchSide, patchSide))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)
	return dst
}

// encode fills the descriptor with per-cell mean luminance (first 64
// dims) and per-cell mean gradient magnitude (last 64 dims), each
// standardized against the patch-wide statistics so the embedding is
// insensitive to global brightness and contrast.
func encode(patch *image.Gray, d *Descriptor) {
	lum := make([]float64, cells*cells)
	grad := make([]float64, cells*cells)

	for cy := 0; cy < cells; cy++ {
		for cx := 0; cx < cells; cx++ {
			var lsum, gsum float64
			for y := cy * cellSide; y < (cy+1)*cellSide; y++ {
				for x := cx * cellSide; x < (cx+1)*cellSide; x++ {
					lsum += float64(patch.Pix[y*patch.Stride+x])
					gsum += gradientAt(patch, x, y)
				}
			}
			n := float64(cellSide * cellSide)
			lum[cy*cells+cx] = lsum / n
			grad[cy*cells+cx] = gsum / n
		}
	}

	standardize(lum)
	standardize(grad)
	for i := 0; i < cells*cells; i++ {
		d[i] = float32(lum[i])
		d[cells*cells+i] = float32(grad[i])
	}
}

func gradientAt(patch *image.Gray, x, y int) float64 {
	at := func(x, y int) float64 {
		if x < 0 {
			x = 0
		}
		if y < 0 {
			y = 0
		}
		if x >= patchSide {
			x = patchSide - 1
		}
		if y >= patchSide {
			y = patchSide - 1
		}
		return float64(patch.Pix[y*patch.Stride+x])
	}
	dx := at(x+1, y) - at(x-1, y)
	dy := at(x, y+1) - at(x, y-1)
	return math.Abs(dx) + math.Abs(dy)
}

func standardize(values []float64) {
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	std := math.Sqrt(variance)
	if std < 1e-6 {
		std = 1e-6
	}
	for i, v := range values {
		values[i] = (v - mean) / std
	}
}

func normalize(d *Descriptor) {
	var sq float64
	for _, v := range d {
		sq += float64(v) * float64(v)
	}
	norm := math.Sqrt(sq)
	if norm < 1e-9 {
		return
	}
	for i := range d {
		d[i] = float32(float64(d[i]) / norm)
	}
}

// Cosine returns the cosine similarity of two descriptors. Both sides
// are L2-normalized at extraction time, so this is a dot product.
func Cosine(a, b Descriptor) float64 {
	var dot float64
	for i := 0; i < Size; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

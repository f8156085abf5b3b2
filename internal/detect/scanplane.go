package detect

import (
	"math"

	"github.com/example/facegate/internal/imaging"
)

// Gradient magnitude above which a pixel counts as an edge for the
// window edge-density check. Matches the gate's edge proxy so the two
// stages agree on what "structure" means.
const edgeCutoff = 32

// scanPlane precomputes integral images over luminance, squared
// luminance and the edge map so window statistics are O(1) per window.
type scanPlane struct {
	w, h int
	sum  []float64
	sq   []float64
	edge []float64
}

func newScanPlane(s *imaging.Sample) *scanPlane {
	w, h := s.Width, s.Height
	p := &scanPlane{
		w:    w,
		h:    h,
		sum:  make([]float64, (w+1)*(h+1)),
		sq:   make([]float64, (w+1)*(h+1)),
		edge: make([]float64, (w+1)*(h+1)),
	}

	stride := w + 1
	for y := 0; y < h; y++ {
		var rowSum, rowSq, rowEdge float64
		for x := 0; x < w; x++ {
			v := float64(s.At(x, y))
			rowSum += v
			rowSq += v * v
			if isEdge(s, x, y) {
				rowEdge++
			}
			idx := (y+1)*stride + (x + 1)
			p.sum[idx] = p.sum[idx-stride] + rowSum
			p.sq[idx] = p.sq[idx-stride] + rowSq
			p.edge[idx] = p.edge[idx-stride] + rowEdge
		}
	}
	return p
}

func isEdge(s *imaging.Sample, x, y int) bool {
	if x <= 0 || y <= 0 || x >= s.Width-1 || y >= s.Height-1 {
		return false
	}
	dx := int(s.At(x+1, y)) - int(s.At(x-1, y))
	dy := int(s.At(x, y+1)) - int(s.At(x, y-1))
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	return dx+dy > edgeCutoff
}

// rectSum returns the sum over [x0,x1) x [y0,y1) of the given plane.
func rectSum(plane []float64, stride, x0, y0, x1, y1 int) float64 {
	return plane[y1*stride+x1] - plane[y0*stride+x1] - plane[y1*stride+x0] + plane[y0*stride+x0]
}

func (p *scanPlane) mean(x0, y0, x1, y1 int) float64 {
	n := float64((x1 - x0) * (y1 - y0))
	if n <= 0 {
		return 0
	}
	return rectSum(p.sum, p.w+1, x0, y0, x1, y1) / n
}

func (p *scanPlane) stddev(x0, y0, x1, y1 int) float64 {
	n := float64((x1 - x0) * (y1 - y0))
	if n <= 0 {
		return 0
	}
	stride := p.w + 1
	m := rectSum(p.sum, stride, x0, y0, x1, y1) / n
	msq := rectSum(p.sq, stride, x0, y0, x1, y1) / n
	v := msq - m*m
	if v < 0 {
		v = 0
	}
	return math.Sqrt(v)
}

func (p *scanPlane) edgeDensity(x0, y0, x1, y1 int) float64 {
	n := float64((x1 - x0) * (y1 - y0))
	if n <= 0 {
		return 0
	}
	return rectSum(p.edge, p.w+1, x0, y0, x1, y1) / n
}

// faceness scores one square window. The heuristics approximate the
// coarse structure of a frontal face: an eye band darker than the lower
// face, a center that contrasts with the surrounding frame, real
// internal variance, and edge density well below the noise regime.
func (p *scanPlane) faceness(x, y, size int) (float64, bool) {
	x1 := x + size
	y1 := y + size

	sd := p.stddev(x, y, x1, y1)
	if sd < minWindowStdDev {
		return 0, false
	}

	edges := p.edgeDensity(x, y, x1, y1)
	if edges < minWindowEdges || edges > maxWindowEdges {
		return 0, false
	}

	frac := func(f float64) int { return int(math.Round(float64(size) * f)) }

	eyeBand := p.mean(x+frac(0.15), y+frac(0.20), x+frac(0.85), y+frac(0.45))
	lowerFace := p.mean(x+frac(0.25), y+frac(0.55), x+frac(0.75), y+frac(0.85))
	drop := lowerFace - eyeBand
	if drop < minEyeBandDrop {
		return 0, false
	}

	center := p.mean(x+frac(0.20), y+frac(0.20), x+frac(0.80), y+frac(0.80))
	whole := p.mean(x, y, x1, y1)
	// Ring mean recovered from whole - center areas.
	centerArea := float64((frac(0.80) - frac(0.20)) * (frac(0.80) - frac(0.20)))
	wholeArea := float64(size * size)
	ringArea := wholeArea - centerArea
	if ringArea <= 0 {
		return 0, false
	}
	ring := (whole*wholeArea - center*centerArea) / ringArea
	contrast := math.Abs(center - ring)
	if contrast < minCenterContrast {
		return 0, false
	}

	return drop + contrast + sd*0.1, true
}

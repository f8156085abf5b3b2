// Package detect locates the primary face region in a normalized sample
// using a bounded retry ladder of detector parameters.
package detect

import (
	"errors"
	"math"
	"sort"

	"github.com/example/facegate/internal/imaging"
)

// ErrNoFace is returned when every ladder step yields zero detections.
var ErrNoFace = errors.New("no face detected")

// LadderStep is one detector configuration. Steps run from strict to
// permissive; the first step producing at least one region wins.
type LadderStep struct {
	// ScaleFactor grows the sliding window between scale passes.
	ScaleFactor float64

	// MinNeighbors is the number of overlapping raw hits required to
	// confirm a region at this step.
	MinNeighbors int

	// MinSize is the smallest window side length tried, in pixels.
	MinSize int
}

// DefaultLadder mirrors the strict-to-permissive escalation used for
// resident check-in photos.
func DefaultLadder() []LadderStep {
	return []LadderStep{
		{ScaleFactor: 1.08, MinNeighbors: 5, MinSize: 80},
		{ScaleFactor: 1.10, MinNeighbors: 4, MinSize: 60},
		{ScaleFactor: 1.15, MinNeighbors: 3, MinSize: 40},
		{ScaleFactor: 1.20, MinNeighbors: 2, MinSize: 24},
	}
}

// Region is a detected face bounding box plus the ladder step that
// produced it.
type Region struct {
	X, Y, W, H int
	Step       LadderStep
}

// Area returns the region's pixel area.
func (r Region) Area() int { return r.W * r.H }

// Localizer runs the detection ladder. Detection is deterministic for a
// given sample and ladder; there is no randomness anywhere in the scan.
type Localizer struct {
	ladder []LadderStep
}

// NewLocalizer constructs a localizer; an empty ladder falls back to
// DefaultLadder.
func NewLocalizer(ladder []LadderStep) *Localizer {
	if len(ladder) == 0 {
		ladder = DefaultLadder()
	}
	return &Localizer{ladder: ladder}
}

// Locate scans the ladder in order and returns the largest-area region
// found at the first step with any confirmed detection. It returns
// ErrNoFace when the ladder is exhausted.
func (l *Localizer) Locate(s *imaging.Sample) (Region, error) {
	pre := newScanPlane(s)
	for _, step := range l.ladder {
		regions := detectAtStep(pre, step)
		if len(regions) == 0 {
			continue
		}
		best := regions[0]
		for _, r := range regions[1:] {
			if r.Area() > best.Area() {
				best = r
			}
		}
		best.Step = step
		return best, nil
	}
	return Region{}, ErrNoFace
}

// Window scoring cutoffs. A window is a raw hit when it has enough
// internal contrast, a moderate edge density (pure noise saturates the
// upper bound), a darker eye band than the lower face, and a center
// that stands out from the surrounding frame.
const (
	minWindowStdDev   = 14.0
	minWindowEdges    = 0.015
	maxWindowEdges    = 0.42
	minEyeBandDrop    = 8.0
	minCenterContrast = 8.0
)

type hit struct {
	x, y, size int
	score      float64
}

func detectAtStep(p *scanPlane, step LadderStep) []Region {
	maxSize := p.w
	if p.h < maxSize {
		maxSize = p.h
	}
	if step.MinSize > maxSize {
		return nil
	}

	var hits []hit
	for size := step.MinSize; size <= maxSize; size = nextSize(size, step.ScaleFactor) {
		stride := size / 8
		if stride < 2 {
			stride = 2
		}
		for y := 0; y+size <= p.h; y += stride {
			for x := 0; x+size <= p.w; x += stride {
				if score, ok := p.faceness(x, y, size); ok {
					hits = append(hits, hit{x: x, y: y, size: size, score: score})
				}
			}
		}
	}
	return clusterHits(hits, step.MinNeighbors)
}

func nextSize(size int, scale float64) int {
	next := int(math.Round(float64(size) * scale))
	if next <= size {
		next = size + 1
	}
	return next
}

// clusterHits groups overlapping raw hits and keeps clusters with at
// least minNeighbors members, represented by their best-scoring window.
func clusterHits(hits []hit, minNeighbors int) []Region {
	if len(hits) == 0 {
		return nil
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		if hits[i].y != hits[j].y {
			return hits[i].y < hits[j].y
		}
		if hits[i].x != hits[j].x {
			return hits[i].x < hits[j].x
		}
		return hits[i].size < hits[j].size
	})

	used := make([]bool, len(hits))
	var regions []Region
	for i := range hits {
		if used[i] {
			continue
		}
		seed := hits[i]
		count := 1
		used[i] = true
		for j := i + 1; j < len(hits); j++ {
			if used[j] {
				continue
			}
			if overlaps(seed, hits[j]) {
				used[j] = true
				count++
			}
		}
		if count >= minNeighbors {
			regions = append(regions, Region{X: seed.x, Y: seed.y, W: seed.size, H: seed.size})
		}
	}
	return regions
}

// overlaps reports whether two windows share at least half of the
// smaller window's area.
func overlaps(a, b hit) bool {
	x0 := max(a.x, b.x)
	y0 := max(a.y, b.y)
	x1 := min(a.x+a.size, b.x+b.size)
	y1 := min(a.y+a.size, b.y+b.size)
	if x1 <= x0 || y1 <= y0 {
		return false
	}
	inter := (x1 - x0) * (y1 - y0)
	smaller := a.size * a.size
	if s := b.size * b.size; s < smaller {
		smaller = s
	}
	return inter*2 >= smaller
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

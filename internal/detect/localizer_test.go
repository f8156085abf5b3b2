package detect

import (
	"errors"
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

func noiseFill(lo, hi int, seed uint32) func(x, y int) uint8 {
	state := seed
	span := uint32(hi - lo + 1)
	return func(x, y int) uint8 {
		state = state*1664525 + 1013904223
		return uint8(lo + int((state>>16)%span))
	}
}

// faceSample draws a schematic frontal face: a bright oval against a
// lighter background, a dark eye pair with a brow bar, and a mouth bar.
// The proportions track what the window heuristics measure.
func faceSample(w, h int) *imaging.Sample {
	cx, cy := w/2, h/2+5
	rx, ry := w*5/16, h*3/8

	inEllipse := func(x, y int) bool {
		dx := float64(x-cx) / float64(rx)
		dy := float64(y-cy) / float64(ry)
		return dx*dx+dy*dy <= 1.0
	}
	inCircle := func(x, y, ox, oy, r int) bool {
		dx, dy := x-ox, y-oy
		return dx*dx+dy*dy <= r*r
	}

	return graySample(w, h, func(x, y int) uint8 {
		switch {
		case inCircle(x, y, cx-28, cy-25, 9), inCircle(x, y, cx+28, cy-25, 9):
			return 30 // eyes
		case y >= cy-37 && y <= cy-31 && x >= cx-42 && x <= cx+42 && inEllipse(x, y):
			return 70 // brow band
		case y >= cy+43 && y <= cy+51 && x >= cx-20 && x <= cx+20:
			return 90 // mouth
		case inEllipse(x, y):
			return 160
		default:
			return 205
		}
	})
}

func TestLocateFindsFace(t *testing.T) {
	sample := faceSample(240, 240)
	localizer := NewLocalizer(nil)

	region, err := localizer.Locate(sample)
	if err != nil {
		t.Fatalf("expected detection, got %v", err)
	}

	// The detected window must cover the eye line of the drawn face.
	eyeX, eyeY := 120, 100
	if eyeX < region.X || eyeX >= region.X+region.W || eyeY < region.Y || eyeY >= region.Y+region.H {
		t.Fatalf("region %+v does not cover the face eye line at (%d,%d)", region, eyeX, eyeY)
	}
	if region.W < 24 || region.H < 24 {
		t.Fatalf("region %+v below the smallest ladder window", region)
	}
}

func TestLocateIsDeterministic(t *testing.T) {
	sample := faceSample(240, 240)
	localizer := NewLocalizer(DefaultLadder())

	first, err := localizer.Locate(sample)
	if err != nil {
		t.Fatalf("expected detection, got %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := localizer.Locate(sample)
		if err != nil {
			t.Fatalf("run %d: expected detection, got %v", i, err)
		}
		if again != first {
			t.Fatalf("run %d: region %+v differs from first %+v", i, again, first)
		}
	}
}

func TestLocateReturnsErrNoFaceOnUniformImage(t *testing.T) {
	sample := graySample(200, 200, func(x, y int) uint8 { return 128 })
	localizer := NewLocalizer(nil)

	if _, err := localizer.Locate(sample); !errors.Is(err, ErrNoFace) {
		t.Fatalf("expected ErrNoFace, got %v", err)
	}
}

func TestLocateReturnsErrNoFaceOnNoise(t *testing.T) {
	sample := graySample(200, 200, noiseFill(100, 160, 3))
	localizer := NewLocalizer(nil)

	if _, err := localizer.Locate(sample); !errors.Is(err, ErrNoFace) {
		t.Fatalf("expected ErrNoFace, got %v", err)
	}
}

func TestLocateSkipsStepsLargerThanSample(t *testing.T) {
	sample := graySample(64, 64, func(x, y int) uint8 { return uint8(x * 3) })
	localizer := NewLocalizer([]LadderStep{{ScaleFactor: 1.1, MinNeighbors: 1, MinSize: 128}})

	if _, err := localizer.Locate(sample); !errors.Is(err, ErrNoFace) {
		t.Fatalf("expected ErrNoFace when min size exceeds sample, got %v", err)
	}
}

func TestClusterHitsRequiresMinNeighbors(t *testing.T) {
	hits := []hit{
		{x: 10, y: 10, size: 40, score: 3.0},
		{x: 14, y: 12, size: 40, score: 2.5},
		{x: 12, y: 14, size: 40, score: 2.0},
	}

	if regions := clusterHits(hits, 4); len(regions) != 0 {
		t.Fatalf("expected no region with minNeighbors=4, got %d", len(regions))
	}
	regions := clusterHits(hits, 3)
	if len(regions) != 1 {
		t.Fatalf("expected one region with minNeighbors=3, got %d", len(regions))
	}
	if regions[0].X != 10 || regions[0].Y != 10 {
		t.Fatalf("expected best-scoring seed to represent the cluster, got %+v", regions[0])
	}
}

func TestClusterHitsKeepsSeparatedClusters(t *testing.T) {
	hits := []hit{
		{x: 0, y: 0, size: 30, score: 2.0},
		{x: 4, y: 4, size: 30, score: 1.5},
		{x: 120, y: 120, size: 30, score: 3.0},
		{x: 124, y: 122, size: 30, score: 1.0},
	}

	regions := clusterHits(hits, 2)
	if len(regions) != 2 {
		t.Fatalf("expected two regions, got %d", len(regions))
	}
}

func TestOverlapsRequiresHalfOfSmallerArea(t *testing.T) {
	a := hit{x: 0, y: 0, size: 40}
	if !overlaps(a, hit{x: 10, y: 0, size: 40}) {
		t.Fatal("expected three-quarter horizontal overlap to count")
	}
	if overlaps(a, hit{x: 35, y: 35, size: 40}) {
		t.Fatal("expected corner touch not to count")
	}
	if !overlaps(a, hit{x: 5, y: 5, size: 20}) {
		t.Fatal("expected small window inside large one to count")
	}
}

func TestNextSizeAlwaysAdvances(t *testing.T) {
	if got := nextSize(24, 1.01); got <= 24 {
		t.Fatalf("expected size to advance, got %d", got)
	}
	if got := nextSize(100, 1.2); got != 120 {
		t.Fatalf("expected 120, got %d", got)
	}
}

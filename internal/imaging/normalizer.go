// Package imaging decodes submitted photos into the normalized pixel
// buffer the verification pipeline operates on.
package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"math"
	"strings"

	xdraw "golang.org/x/image/draw"
)

// Dimension bounds for admissible submissions. Anything outside is a
// decode failure, not a quality rejection.
const (
	MinDimension = 32
	MaxDimension = 4096
)

// Processing resolution cap. Larger submissions are downscaled so every
// downstream stage works on a bounded pixel count.
const maxProcessingSide = 1024

// DecodeError reports an unusable payload: malformed bytes, an
// unsupported format, or out-of-bounds dimensions.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode image: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode image: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Sample is the decoded, normalized pixel buffer carried through one
// verification request. It is never mutated after Decode returns.
type Sample struct {
	Width  int
	Height int
	Format string

	// Gray holds row-major Rec.601 luminance, one byte per pixel.
	Gray []uint8

	// Source keeps the normalized color buffer for crops sent to the
	// external judge.
	Source *image.RGBA
}

// At returns the luminance at (x, y). Out-of-range coordinates return 0.
func (s *Sample) At(x, y int) uint8 {
	if x < 0 || y < 0 || x >= s.Width || y >= s.Height {
		return 0
	}
	return s.Gray[y*s.Width+x]
}

// Decode parses raw image bytes (JPEG or PNG) into a Sample.
func Decode(data []byte) (*Sample, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Reason: "empty payload"}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Reason: "malformed or unsupported image data", Err: err}
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < MinDimension || h < MinDimension {
		return nil, &DecodeError{Reason: fmt.Sprintf("image %dx%d below minimum %dx%d", w, h, MinDimension, MinDimension)}
	}
	if w > MaxDimension || h > MaxDimension {
		return nil, &DecodeError{Reason: fmt.Sprintf("image %dx%d above maximum %dx%d", w, h, MaxDimension, MaxDimension)}
	}

	rgba := toRGBA(img)
	if w > maxProcessingSide || h > maxProcessingSide {
		rgba = scaleToFit(rgba, maxProcessingSide, maxProcessingSide)
		w = rgba.Bounds().Dx()
		h = rgba.Bounds().Dy()
	}

	gray := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		row := rgba.Pix[y*rgba.Stride:]
		for x := 0; x < w; x++ {
			r := row[x*4]
			g := row[x*4+1]
			b := row[x*4+2]
			gray[y*w+x] = luminance(r, g, b)
		}
	}

	return &Sample{
		Width:  w,
		Height: h,
		Format: format,
		Gray:   gray,
		Source: rgba,
	}, nil
}

// DecodeBase64 parses a base64 payload, tolerating data URL prefixes.
func DecodeBase64(payload string) (*Sample, error) {
	payload = strings.TrimSpace(payload)
	if idx := strings.Index(payload, ","); idx >= 0 && strings.HasPrefix(payload, "data:") {
		payload = payload[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, &DecodeError{Reason: "invalid base64 payload", Err: err}
	}
	return Decode(data)
}

// CropJPEG encodes the given region of the sample as a JPEG, the format
// the external vision judge accepts.
func CropJPEG(s *Sample, x, y, w, h int) ([]byte, error) {
	rect := image.Rect(x, y, x+w, y+h).Intersect(s.Source.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("crop %d,%d %dx%d outside image bounds", x, y, w, h)
	}
	crop := s.Source.SubImage(rect)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, crop, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}
	return buf.Bytes(), nil
}

func luminance(r, g, b uint8) uint8 {
	// Rec.601 integer weights.
	return uint8((299*int(r) + 587*int(g) + 114*int(b)) / 1000)
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	xdraw.Draw(dst, dst.Bounds(), img, bounds.Min, xdraw.Src)
	return dst
}

// scaleToFit downscales src to fit within maxW x maxH keeping aspect.
// CatmullRom keeps facial detail usable for detection after resizing.
func scaleToFit(src *image.RGBA, maxW, maxH int) *image.RGBA {
	bw := src.Bounds().Dx()
	bh := src.Bounds().Dy()

	scale := math.Min(float64(maxW)/float64(bw), float64(maxH)/float64(bh))
	if scale >= 1.0 {
		return src
	}
	w := int(math.Max(1, math.Round(float64(bw)*scale)))
	h := int(math.Max(1, math.Round(float64(bh)*scale)))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)
	return dst
}

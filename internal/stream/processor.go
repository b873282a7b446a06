// Package stream prepares raw frames and samples for analysis.
package stream

import (
	"image"
	"image/color"

	"github.com/nfnt/resize"
)

// Processor normalizes frames to a fixed resolution and samples to a
// fixed amplitude range. Stateless apart from its configuration.
type Processor struct {
	width    int
	height   int
	contrast float64
}

// NewProcessor returns a processor targeting the given resolution.
func NewProcessor(width, height int) *Processor {
	return &Processor{width: width, height: height, contrast: 1.2}
}

// Video resizes the frame to the target resolution and applies a mild
// contrast boost. A nil frame passes through as nil.
func (p *Processor) Video(frame image.Image) image.Image {
	if frame == nil {
		return nil
	}
	resized := resize.Resize(uint(p.width), uint(p.height), frame, resize.Lanczos3)
	return adjustContrast(resized, p.contrast)
}

// Audio converts samples to float64 normalized to [-1, 1] by peak
// amplitude. Empty input yields nil; an all-zero window stays zero.
func (p *Processor) Audio(samples []int16) []float64 {
	if len(samples) == 0 {
		return nil
	}

	var peak float64
	for _, s := range samples {
		a := float64(s)
		if a < 0 {
			a = -a
		}
		if a > peak {
			peak = a
		}
	}

	out := make([]float64, len(samples))
	if peak == 0 {
		return out
	}
	for i, s := range samples {
		out[i] = float64(s) / peak
	}
	return out
}

// adjustContrast scales each channel away from mid-gray by factor.
func adjustContrast(img image.Image, factor float64) image.Image {
	bounds := img.Bounds()
	out := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			out.SetRGBA(x, y, color.RGBA{
				R: stretch(r, factor),
				G: stretch(g, factor),
				B: stretch(b, factor),
				A: uint8(a >> 8),
			})
		}
	}
	return out
}

func stretch(v uint32, factor float64) uint8 {
	scaled := (float64(v>>8)-128)*factor + 128
	if scaled < 0 {
		return 0
	}
	if scaled > 255 {
		return 255
	}
	return uint8(scaled)
}

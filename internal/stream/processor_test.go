package stream

import (
	"image"
	"image/color"
	"math"
	"testing"
)

func solidImage(w, h int, c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestVideoResizesToTarget(t *testing.T) {
	p := NewProcessor(640, 480)

	out := p.Video(solidImage(1920, 1080, color.RGBA{100, 100, 100, 255}))
	if out == nil {
		t.Fatal("nil output for valid frame")
	}
	b := out.Bounds()
	if b.Dx() != 640 || b.Dy() != 480 {
		t.Errorf("output size %dx%d, want 640x480", b.Dx(), b.Dy())
	}
}

func TestVideoNilFrame(t *testing.T) {
	p := NewProcessor(640, 480)
	if out := p.Video(nil); out != nil {
		t.Error("nil frame should pass through as nil")
	}
}

func TestContrastPushesAwayFromMidGray(t *testing.T) {
	p := NewProcessor(4, 4)

	dark := p.Video(solidImage(4, 4, color.RGBA{50, 50, 50, 255}))
	r, _, _, _ := dark.At(0, 0).RGBA()
	if got := uint8(r >> 8); got >= 50 {
		t.Errorf("dark pixel after contrast = %d, want < 50", got)
	}

	bright := p.Video(solidImage(4, 4, color.RGBA{200, 200, 200, 255}))
	r, _, _, _ = bright.At(0, 0).RGBA()
	if got := uint8(r >> 8); got <= 200 {
		t.Errorf("bright pixel after contrast = %d, want > 200", got)
	}
}

func TestAudioNormalizesByPeak(t *testing.T) {
	p := NewProcessor(640, 480)

	out := p.Audio([]int16{0, 100, -200, 50})
	if len(out) != 4 {
		t.Fatalf("len = %d, want 4", len(out))
	}

	want := []float64{0, 0.5, -1, 0.25}
	for i := range want {
		if math.Abs(out[i]-want[i]) > 1e-9 {
			t.Errorf("sample %d = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestAudioBounds(t *testing.T) {
	p := NewProcessor(640, 480)

	out := p.Audio([]int16{-32768, 32767, 12345, -9876})
	for i, v := range out {
		if v < -1 || v > 1 {
			t.Errorf("sample %d = %v outside [-1, 1]", i, v)
		}
	}
}

func TestAudioEdgeCases(t *testing.T) {
	p := NewProcessor(640, 480)

	if out := p.Audio(nil); out != nil {
		t.Error("nil input should yield nil")
	}
	if out := p.Audio([]int16{}); out != nil {
		t.Error("empty input should yield nil")
	}

	silent := p.Audio([]int16{0, 0, 0})
	for i, v := range silent {
		if v != 0 {
			t.Errorf("silent sample %d = %v, want 0", i, v)
		}
	}
}

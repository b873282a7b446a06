// Package features extracts the statistical features feeding the
// activity rules. All functions are pure; malformed input degrades to
// an empty feature set instead of failing.
package features

import (
	"image"
	"image/color"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// HistogramBins is the number of intensity histogram buckets.
const HistogramBins = 10

// Video holds grayscale intensity statistics for one frame.
type Video struct {
	MeanIntensity float64   `json:"mean_intensity"`
	StdIntensity  float64   `json:"std_intensity"`
	MinIntensity  float64   `json:"min_intensity"`
	MaxIntensity  float64   `json:"max_intensity"`
	Histogram     []float64 `json:"histogram"`
	LeftRightDiff float64   `json:"left_right_diff"`
	TopBottomDiff float64   `json:"top_bottom_diff"`
}

// ExtractVideo computes intensity statistics, a normalized histogram,
// and the half-frame region differences used as a motion proxy.
// ok is false for nil or empty frames.
func ExtractVideo(frame image.Image) (Video, bool) {
	if frame == nil {
		return Video{}, false
	}
	bounds := frame.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return Video{}, false
	}

	intensities := make([]float64, 0, w*h)
	var leftSum, rightSum, topSum, bottomSum float64
	var leftN, rightN, topN, bottomN int

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray := color.GrayModel.Convert(frame.At(x, y)).(color.Gray)
			v := float64(gray.Y)
			intensities = append(intensities, v)

			if x-bounds.Min.X < w/2 {
				leftSum += v
				leftN++
			} else {
				rightSum += v
				rightN++
			}
			if y-bounds.Min.Y < h/2 {
				topSum += v
				topN++
			} else {
				bottomSum += v
				bottomN++
			}
		}
	}

	hist := make([]float64, HistogramBins)
	binWidth := 255.0 / HistogramBins
	for _, v := range intensities {
		bin := int(v / binWidth)
		if bin >= HistogramBins {
			bin = HistogramBins - 1
		}
		hist[bin]++
	}
	total := floats.Sum(hist)
	for i := range hist {
		hist[i] /= total
	}

	return Video{
		MeanIntensity: stat.Mean(intensities, nil),
		StdIntensity:  stat.PopStdDev(intensities, nil),
		MinIntensity:  floats.Min(intensities),
		MaxIntensity:  floats.Max(intensities),
		Histogram:     hist,
		LeftRightDiff: absDiff(regionMean(leftSum, leftN), regionMean(rightSum, rightN)),
		TopBottomDiff: absDiff(regionMean(topSum, topN), regionMean(bottomSum, bottomN)),
	}, true
}

func regionMean(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}

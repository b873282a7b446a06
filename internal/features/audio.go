package features

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Audio holds amplitude statistics for one sample window.
type Audio struct {
	MeanAmplitude    float64 `json:"mean_amplitude"`
	StdAmplitude     float64 `json:"std_amplitude"`
	MaxAmplitude     float64 `json:"max_amplitude"`
	Energy           float64 `json:"energy"`
	ZeroCrossingRate float64 `json:"zero_crossing_rate"`
}

// ExtractAudio computes amplitude statistics, mean-square energy, and
// the zero-crossing rate. ok is false for empty input.
func ExtractAudio(samples []float64) (Audio, bool) {
	if len(samples) == 0 {
		return Audio{}, false
	}

	var maxAbs, energy float64
	crossings := 0
	for i, s := range samples {
		if a := math.Abs(s); a > maxAbs {
			maxAbs = a
		}
		energy += s * s
		// A crossing is a transition between non-negative and negative.
		if i > 0 && math.Signbit(samples[i]) != math.Signbit(samples[i-1]) {
			crossings++
		}
	}

	n := float64(len(samples))
	return Audio{
		MeanAmplitude:    stat.Mean(samples, nil),
		StdAmplitude:     stat.PopStdDev(samples, nil),
		MaxAmplitude:     maxAbs,
		Energy:           energy / n,
		ZeroCrossingRate: float64(crossings) / n,
	}, true
}

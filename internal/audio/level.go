package audio

import "math"

// TargetPeak is -1 dBFS as a linear amplitude (~0.891).
var TargetPeak = float32(math.Pow(10, -1.0/20))

// Peak returns the largest absolute sample value.
func Peak(samples []float32) float32 {
	var peak float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}

// NormalizePeak scales samples in place so that their peak equals target,
// but only when the peak is above it. Quiet audio is never amplified.
// It returns the gain applied (1 when untouched).
func NormalizePeak(samples []float32, target float32) float32 {
	peak := Peak(samples)
	if peak <= target || peak == 0 {
		return 1
	}
	gain := target / peak
	for i := range samples {
		s := samples[i] * gain
		// float rounding can land one ulp above target
		switch {
		case s > target:
			s = target
		case s < -target:
			s = -target
		}
		samples[i] = s
	}
	return gain
}

// Duration returns the length of n samples at rate in seconds.
func Duration(n, rate int) float64 {
	if rate <= 0 {
		return 0
	}
	return float64(n) / float64(rate)
}

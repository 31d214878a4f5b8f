package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestTargetPeak(t *testing.T) {
	assert.InDelta(t, 0.891, TargetPeak, 0.001)
}

func TestPeak(t *testing.T) {
	assert.Equal(t, float32(0), Peak(nil))
	assert.Equal(t, float32(0.75), Peak([]float32{0.1, -0.75, 0.5}))
}

func TestNormalizePeak_ScalesLoudDown(t *testing.T) {
	samples := []float32{1, -0.5, 0.25}
	gain := NormalizePeak(samples, TargetPeak)

	assert.InDelta(t, TargetPeak, gain, 1e-6)
	assert.InDelta(t, TargetPeak, samples[0], 1e-6)
	assert.InDelta(t, -0.5*TargetPeak, samples[1], 1e-6)
	assert.InDelta(t, 0.25*TargetPeak, samples[2], 1e-6)
}

func TestNormalizePeak_NeverAmplifies(t *testing.T) {
	samples := []float32{0.01, -0.02}
	gain := NormalizePeak(samples, TargetPeak)

	assert.Equal(t, float32(1), gain)
	assert.Equal(t, []float32{0.01, -0.02}, samples)
}

func TestNormalizePeak_Properties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		samples := rapid.SliceOfN(rapid.Float32Range(-4, 4), 1, 2000).Draw(rt, "samples")
		before := Peak(samples)

		NormalizePeak(samples, TargetPeak)
		after := Peak(samples)
		require.LessOrEqual(rt, after, TargetPeak)
		if before <= TargetPeak {
			require.Equal(rt, before, after, "quiet audio must be untouched")
		}

		// running it again is a no-op
		snapshot := append([]float32(nil), samples...)
		gain := NormalizePeak(samples, TargetPeak)
		require.Equal(rt, float32(1), gain)
		require.Equal(rt, snapshot, samples)
	})
}

func TestDuration(t *testing.T) {
	assert.InDelta(t, 1.5, Duration(36000, 24000), 1e-9)
	assert.Equal(t, 0.0, Duration(10, 0))
}

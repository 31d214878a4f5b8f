package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/nadzzz/parrot/internal/audio"
	"github.com/nadzzz/parrot/internal/config"
	"github.com/nadzzz/parrot/internal/encoder"
	"github.com/nadzzz/parrot/internal/pipeline"
	"github.com/nadzzz/parrot/internal/tts"
	"github.com/nadzzz/parrot/internal/tts/ttstest"
)

func newPipeline() *pipeline.Pipeline {
	enc := encoder.New(config.EncoderConfig{}, encoder.WithLookPath(func(string) (string, error) {
		return "", errors.New("not found")
	}))
	return pipeline.New(enc)
}

func TestRun_WAV(t *testing.T) {
	p := ttstest.New(tts.ProviderNeural)
	out, err := newPipeline().Run(context.Background(), p, tts.Request{Text: "Hello", Format: "wav"})
	require.NoError(t, err)

	assert.Equal(t, "audio/wav", out.MIMEType)
	assert.Equal(t, "wav", out.Format)
	assert.Equal(t, tts.ProviderNeural, out.Provider)
	assert.Equal(t, 24000, out.SampleRate)
	assert.Greater(t, len(out.Data), audio.WAVHeaderSize)
	assert.InDelta(t, 1.0, out.Duration(), 1e-9)
}

func TestRun_LoudOutputIsNormalized(t *testing.T) {
	p := ttstest.New(tts.ProviderNeural)
	p.Audio = &tts.RawAudio{Samples: ttstest.Tone(4000, 440, 2.5, 16000), SampleRate: 16000}

	out, err := newPipeline().Run(context.Background(), p, tts.Request{Text: "Hello"})
	require.NoError(t, err)

	samples, rate, err := audio.DecodeWAVBytes(out.Data)
	require.NoError(t, err)
	assert.Equal(t, 16000, rate)
	assert.InDelta(t, audio.TargetPeak, audio.Peak(samples), 1.0/32767)
}

func TestRun_SilentOutput(t *testing.T) {
	cases := map[string]*tts.RawAudio{
		"empty":     {Samples: nil, SampleRate: 24000},
		"too short": {Samples: ttstest.Tone(999, 440, 0.5, 24000), SampleRate: 24000},
		"silent":    {Samples: make([]float32, 5000), SampleRate: 24000},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			p := ttstest.New(tts.ProviderSystem)
			p.Audio = raw
			_, err := newPipeline().Run(context.Background(), p, tts.Request{Text: "Hello"})
			require.ErrorIs(t, err, tts.ErrSilentOutput)
			assert.Equal(t, 422, tts.StatusCode(err))
		})
	}
}

func TestRun_BadSampleRate(t *testing.T) {
	p := ttstest.New(tts.ProviderSystem)
	p.Audio = &tts.RawAudio{Samples: ttstest.Tone(2000, 440, 0.5, 24000), SampleRate: 0}

	_, err := newPipeline().Run(context.Background(), p, tts.Request{Text: "Hello"})
	var engineErr *tts.EngineError
	require.ErrorAs(t, err, &engineErr)
}

func TestRun_WrapsUntypedErrors(t *testing.T) {
	p := ttstest.New(tts.ProviderClone)
	p.Err = errors.New("segfault")

	_, err := newPipeline().Run(context.Background(), p, tts.Request{Text: "Hello"})
	var engineErr *tts.EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, tts.ProviderClone, engineErr.Provider)
	assert.Equal(t, 500, tts.StatusCode(err))
}

func TestRun_TypedErrorsPassThrough(t *testing.T) {
	p := ttstest.New(tts.ProviderClone)
	p.Err = &tts.SpeakerError{VoiceID: "x", ExpectedPath: "assets/speakers/x.wav"}

	_, err := newPipeline().Run(context.Background(), p, tts.Request{Text: "Hello"})
	var speakerErr *tts.SpeakerError
	require.ErrorAs(t, err, &speakerErr)
	var engineErr *tts.EngineError
	assert.False(t, errors.As(err, &engineErr))
}

func TestRun_FormatErrors(t *testing.T) {
	p := ttstest.New(tts.ProviderNeural)
	_, err := newPipeline().Run(context.Background(), p, tts.Request{Text: "Hello", Format: "ogg"})
	assert.ErrorIs(t, err, tts.ErrUnsupportedFormat)

	_, err = newPipeline().Run(context.Background(), p, tts.Request{Text: "Hello", Format: "mp3"})
	assert.ErrorIs(t, err, tts.ErrUnsupportedFormat)
	assert.Contains(t, err.Error(), "ffmpeg")
}

func TestValidate_AcceptsAudibleOutput(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(pipeline.MinSamples, 20000).Draw(t, "n")
		amp := rapid.Float64Range(1e-6, 4).Draw(t, "amp")
		samples := make([]float32, n)
		samples[rapid.IntRange(0, n-1).Draw(t, "at")] = float32(amp)

		if err := pipeline.Validate("x", &tts.RawAudio{Samples: samples, SampleRate: 24000}); err != nil {
			t.Fatalf("audible output rejected: %v", err)
		}
	})
}

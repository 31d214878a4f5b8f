// Package pipeline turns a provider's raw output into client-ready audio:
// synthesize, validate, peak-normalize, encode.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/nadzzz/parrot/internal/audio"
	"github.com/nadzzz/parrot/internal/encoder"
	"github.com/nadzzz/parrot/internal/tts"
)

const (
	// MinSamples is the shortest output accepted as speech.
	MinSamples = 1000

	// SilenceFloor is the peak below which output counts as silent.
	SilenceFloor = 1e-7
)

// Encoder is the part of encoder.Encoder the pipeline needs.
type Encoder interface {
	Encode(ctx context.Context, samples []float32, rate int, format string) ([]byte, string, error)
}

// EncodedAudio is the result handed back to a transport.
type EncodedAudio struct {
	Data       []byte
	MIMEType   string
	Format     string
	SampleRate int
	Samples    int
	Provider   string
}

// Duration returns the playback length in seconds.
func (a *EncodedAudio) Duration() float64 {
	return audio.Duration(a.Samples, a.SampleRate)
}

// Pipeline runs one request through a provider and the encoder.
type Pipeline struct {
	encoder Encoder
}

// New creates a Pipeline.
func New(enc Encoder) *Pipeline {
	return &Pipeline{encoder: enc}
}

// Run synthesizes req with provider and returns encoded audio. Typed errors
// from the provider pass through; anything else becomes an EngineError.
func (p *Pipeline) Run(ctx context.Context, provider tts.Provider, req tts.Request) (*EncodedAudio, error) {
	name := provider.Capabilities().Name

	raw, err := provider.Synthesize(ctx, req)
	if err != nil {
		return nil, classify(name, err)
	}
	if err := Validate(name, raw); err != nil {
		return nil, err
	}

	audio.NormalizePeak(raw.Samples, audio.TargetPeak)

	format := encoder.Normalize(req.Format)
	data, mime, err := p.encoder.Encode(ctx, raw.Samples, raw.SampleRate, format)
	if err != nil {
		return nil, err
	}
	return &EncodedAudio{
		Data:       data,
		MIMEType:   mime,
		Format:     format,
		SampleRate: raw.SampleRate,
		Samples:    len(raw.Samples),
		Provider:   name,
	}, nil
}

// Validate rejects output that cannot be played back as speech.
func Validate(provider string, raw *tts.RawAudio) error {
	if raw == nil || len(raw.Samples) == 0 {
		return fmt.Errorf("%s: %w: no samples", provider, tts.ErrSilentOutput)
	}
	if raw.SampleRate <= 0 {
		return &tts.EngineError{Provider: provider, Err: fmt.Errorf("invalid sample rate %d", raw.SampleRate)}
	}
	if n := len(raw.Samples); n < MinSamples {
		return fmt.Errorf("%s: %w: %d samples", provider, tts.ErrSilentOutput, n)
	}
	if peak := audio.Peak(raw.Samples); peak < SilenceFloor {
		return fmt.Errorf("%s: %w: peak %g", provider, tts.ErrSilentOutput, peak)
	}
	return nil
}

func classify(provider string, err error) error {
	var (
		engineErr  *tts.EngineError
		tooLong    *tts.TextTooLongError
		speakerErr *tts.SpeakerError
		formatErr  *tts.FormatError
	)
	switch {
	case errors.As(err, &engineErr),
		errors.As(err, &tooLong),
		errors.As(err, &speakerErr),
		errors.As(err, &formatErr),
		errors.Is(err, tts.ErrInvalidRequest),
		errors.Is(err, tts.ErrSilentOutput),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return &tts.EngineError{Provider: provider, Err: err}
	}
}

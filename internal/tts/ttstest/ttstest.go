// Package ttstest provides an in-memory tts.Provider for tests.
package ttstest

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/nadzzz/parrot/internal/tts"
)

// Provider is a configurable fake backend. Zero fields fall back to sane
// defaults: available, 24 kHz, a half-scale one-second tone.
type Provider struct {
	Name     string
	MaxChars int

	AvailableResult bool
	AvailableErr    error
	PanicOnProbe    bool

	// Audio is returned by Synthesize when set. Each call gets a copy.
	Audio *tts.RawAudio
	Err   error

	VoiceList []tts.Voice
	VoicesErr error

	calls   atomic.Int64
	mu      sync.Mutex
	lastReq tts.Request
}

// New returns an available fake named name.
func New(name string) *Provider {
	return &Provider{Name: name, AvailableResult: true}
}

// Capabilities implements tts.Provider.
func (p *Provider) Capabilities() tts.Capabilities {
	return tts.Capabilities{Name: p.Name, MaxCharsPerRequest: p.MaxChars}
}

// Available implements tts.Provider.
func (p *Provider) Available(context.Context) (bool, error) {
	if p.PanicOnProbe {
		panic("probe exploded")
	}
	return p.AvailableResult, p.AvailableErr
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.RawAudio, error) {
	if err := tts.CheckLength(p.Capabilities(), req.Text); err != nil {
		return nil, err
	}
	p.calls.Add(1)
	p.mu.Lock()
	p.lastReq = req
	p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Audio != nil {
		out := make([]float32, len(p.Audio.Samples))
		copy(out, p.Audio.Samples)
		return &tts.RawAudio{Samples: out, SampleRate: p.Audio.SampleRate}, nil
	}
	return &tts.RawAudio{Samples: Tone(24000, 440, 0.5, 24000), SampleRate: 24000}, nil
}

// Voices implements tts.Provider.
func (p *Provider) Voices(context.Context) ([]tts.Voice, error) {
	return p.VoiceList, p.VoicesErr
}

// Calls returns how many times Synthesize reached the engine.
func (p *Provider) Calls() int { return int(p.calls.Load()) }

// LastRequest returns the most recent request that reached the engine.
func (p *Provider) LastRequest() tts.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastReq
}

// Tone generates n samples of a sine wave with the given peak amplitude.
func Tone(n int, freq, amplitude float64, rate int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

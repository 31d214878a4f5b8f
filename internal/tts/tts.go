// Package tts defines the contract every synthesis backend implements and the
// startup-time registry and routing logic that pick one for a request.
//
// Parrot ships three backends: a neural multi-voice pipeline reached over the
// Wyoming protocol (always required), the operating system's speech command,
// and a voice-cloning model server. Each one turns text into mono float
// samples at whatever rate the engine produces; everything after that
// (validation, normalization, encoding) belongs to the pipeline.
package tts

import (
	"context"
	"strings"
)

// Provider names as they appear in requests, config and the voice catalog.
const (
	ProviderNeural = "kokoro"
	ProviderSystem = "apple_say"
	ProviderClone  = "xtts"
)

// Request is a synthesis request after defaults have been applied.
type Request struct {
	// Text is the input to speak. Never empty once it reaches a provider.
	Text string

	// VoiceID selects a provider-specific voice. Optional.
	VoiceID string

	// LanguageCode is a BCP-47-like tag ("sv-SE", "sv_SE", "ja"). Optional.
	LanguageCode string

	// Speed is a playback multiplier; 1.0 is the engine's natural rate.
	Speed float64

	// ProviderHint names the backend the caller wants. Optional.
	ProviderHint string

	// Format is the requested container ("wav", "mp3", "ogg").
	Format string
}

// RawAudio is what a provider produces: mono samples at the engine's rate.
// The pipeline takes ownership and may rewrite Samples in place.
type RawAudio struct {
	Samples    []float32
	SampleRate int
}

// Voice describes one selectable voice in a provider's catalog.
type Voice struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Lang     string `json:"lang"`
}

// Capabilities is the static metadata a provider advertises.
type Capabilities struct {
	Name               string
	MaxCharsPerRequest int
	SupportsSSML       bool
}

// Provider is the interface every synthesis backend implements.
type Provider interface {
	// Capabilities returns the provider's static metadata.
	Capabilities() Capabilities

	// Available probes whether the backend can serve requests in this
	// process. It is called once at startup.
	Available(ctx context.Context) (bool, error)

	// Synthesize renders text to mono float samples. It blocks for the
	// full inference and must reject text longer than MaxCharsPerRequest
	// before touching the engine.
	Synthesize(ctx context.Context, req Request) (*RawAudio, error)

	// Voices returns the provider's voice catalog.
	Voices(ctx context.Context) ([]Voice, error)
}

// CheckLength enforces a provider's MaxCharsPerRequest. Length is counted in
// runes, not bytes.
func CheckLength(caps Capabilities, text string) error {
	if caps.MaxCharsPerRequest <= 0 {
		return nil
	}
	if n := len([]rune(text)); n > caps.MaxCharsPerRequest {
		return &TextTooLongError{Provider: caps.Name, Limit: caps.MaxCharsPerRequest, Got: n}
	}
	return nil
}

// BaseLanguage returns the lower-cased language token of a locale tag:
// "sv-SE" and "sv_SE" both yield "sv".
func BaseLanguage(code string) string {
	code = strings.TrimSpace(code)
	if i := strings.IndexAny(code, "-_"); i >= 0 {
		code = code[:i]
	}
	return strings.ToLower(code)
}

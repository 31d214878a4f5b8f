// Package neural implements the default provider: a pre-loaded multi-voice
// neural pipeline (Kokoro, Piper) reached over the Wyoming protocol.
//
// The model lives in the server process and is loaded before parrot starts,
// so the adapter is cheap to create; availability is a describe round-trip.
package neural

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nadzzz/parrot/internal/audio"
	"github.com/nadzzz/parrot/internal/config"
	"github.com/nadzzz/parrot/internal/tts"
	"github.com/nadzzz/parrot/internal/wyoming"
)

const defaultMaxChars = 5000

// Provider implements tts.Provider on top of a Wyoming TTS server.
type Provider struct {
	client        *wyoming.Client
	language      string
	defaultVoices []string
	maxChars      int
	probeTimeout  time.Duration
	logger        *slog.Logger

	// The server is not assumed to interleave requests; one synthesis at a time.
	mu sync.Mutex
}

// New creates a neural provider from config.
func New(cfg config.NeuralConfig) *Provider {
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	voices := cfg.Voices
	if len(voices) == 0 {
		voices = []string{config.DefaultVoice}
	}
	probe := cfg.ProbeTimeout
	if probe <= 0 {
		probe = 5 * time.Second
	}
	return &Provider{
		client:        wyoming.NewClient(cfg.Endpoint, cfg.DialTimeout, cfg.Timeout),
		language:      cfg.Language,
		defaultVoices: voices,
		maxChars:      maxChars,
		probeTimeout:  probe,
		logger:        slog.With("component", "provider", "provider", tts.ProviderNeural),
	}
}

// Capabilities implements tts.Provider.
func (p *Provider) Capabilities() tts.Capabilities {
	return tts.Capabilities{Name: tts.ProviderNeural, MaxCharsPerRequest: p.maxChars}
}

// Available reports whether the server answers a describe request.
func (p *Provider) Available(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.probeTimeout)
	defer cancel()
	if _, err := p.client.Describe(ctx); err != nil {
		return false, fmt.Errorf("describe %s: %w", p.client.Addr(), err)
	}
	return true, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.RawAudio, error) {
	if err := tts.CheckLength(p.Capabilities(), req.Text); err != nil {
		return nil, err
	}

	voice := req.VoiceID
	if voice == "" {
		voice = p.defaultVoices[0]
	}
	lang := req.LanguageCode
	if lang == "" {
		lang = p.language
	}

	p.mu.Lock()
	out, err := p.client.Synthesize(ctx, req.Text, voice, lang)
	p.mu.Unlock()
	if err != nil {
		return nil, &tts.EngineError{Provider: tts.ProviderNeural, Err: err}
	}
	if len(out.PCM) == 0 {
		return nil, &tts.EngineError{Provider: tts.ProviderNeural, Err: fmt.Errorf("returned no audio")}
	}

	samples, err := audio.PCMToFloat(out.PCM, out.Width, out.Channels)
	if err != nil {
		return nil, &tts.EngineError{Provider: tts.ProviderNeural, Err: err}
	}

	p.logger.Debug("neural synthesis complete",
		"voice", voice, "samples", len(samples), "rate", out.Rate, "channels", out.Channels)
	return &tts.RawAudio{Samples: samples, SampleRate: out.Rate}, nil
}

// Voices returns the server's advertised voices, or the configured default
// list when the server advertises none.
func (p *Provider) Voices(ctx context.Context) ([]tts.Voice, error) {
	info, err := p.client.Describe(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing %s voices: %w", tts.ProviderNeural, err)
	}

	seen := make(map[string]struct{}, len(info.Voices))
	voices := make([]tts.Voice, 0, len(info.Voices))
	for _, v := range info.Voices {
		if _, dup := seen[v.Name]; dup {
			continue
		}
		seen[v.Name] = struct{}{}
		lang := ""
		if len(v.Languages) > 0 {
			lang = v.Languages[0]
		}
		voices = append(voices, tts.Voice{ID: v.Name, Provider: tts.ProviderNeural, Lang: lang})
	}
	if len(voices) > 0 {
		return voices, nil
	}

	for _, id := range p.defaultVoices {
		voices = append(voices, tts.Voice{ID: id, Provider: tts.ProviderNeural})
	}
	return voices, nil
}

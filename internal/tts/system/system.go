// Package system implements the provider backed by the operating system's
// command-line speech synthesizer (macOS `say`).
package system

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/nadzzz/parrot/internal/audio"
	"github.com/nadzzz/parrot/internal/config"
	"github.com/nadzzz/parrot/internal/tts"
)

const (
	defaultMaxChars = 10000
	baseWPM         = 190
	minWPM          = 80
	maxWPM          = 450
)

// Runner executes the speech command. Tests substitute a fake.
type Runner interface {
	LookPath(name string) (string, error)
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) LookPath(name string) (string, error) { return exec.LookPath(name) }

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w (stderr: %s)", name, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return stdout.Bytes(), nil
}

// Provider implements tts.Provider with the system speech command.
type Provider struct {
	binary       string
	defaultVoice string
	maxChars     int
	runner       Runner
	logger       *slog.Logger

	mu      sync.Mutex
	catalog []tts.Voice // nil until the first successful listing
}

// Option customizes a Provider.
type Option func(*Provider)

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(p *Provider) { p.runner = r }
}

// New creates a system voice provider from config.
func New(cfg config.SystemConfig, opts ...Option) *Provider {
	p := &Provider{
		binary:       cfg.Binary,
		defaultVoice: cfg.DefaultVoice,
		maxChars:     cfg.MaxChars,
		runner:       execRunner{},
		logger:       slog.With("component", "provider", "provider", tts.ProviderSystem),
	}
	if p.binary == "" {
		p.binary = "say"
	}
	if p.defaultVoice == "" {
		p.defaultVoice = "Alex"
	}
	if p.maxChars <= 0 {
		p.maxChars = defaultMaxChars
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Capabilities implements tts.Provider.
func (p *Provider) Capabilities() tts.Capabilities {
	return tts.Capabilities{Name: tts.ProviderSystem, MaxCharsPerRequest: p.maxChars}
}

// Available reports whether the speech command exists and can list voices.
// A successful probe also primes the voice catalog.
func (p *Provider) Available(ctx context.Context) (bool, error) {
	if _, err := p.runner.LookPath(p.binary); err != nil {
		return false, nil
	}
	if _, err := p.Voices(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Voices returns the parsed voice listing. The first successful listing is
// cached for the life of the process; failures are not cached.
func (p *Provider) Voices(ctx context.Context) ([]tts.Voice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.catalog != nil {
		return p.catalog, nil
	}

	out, err := p.runner.Run(ctx, p.binary, "-v", "?")
	if err != nil {
		return nil, fmt.Errorf("listing %s voices: %w", tts.ProviderSystem, err)
	}
	catalog := ParseVoiceListing(string(out))
	if catalog == nil {
		catalog = []tts.Voice{}
	}
	p.catalog = catalog
	p.logger.Debug("system voice catalog loaded", "voices", len(catalog))
	return p.catalog, nil
}

// WordsPerMinute maps a speed multiplier onto the command's rate flag.
func WordsPerMinute(speed float64) int {
	if speed <= 0 || math.IsNaN(speed) {
		speed = 1
	}
	// Clamp before converting; huge speeds overflow int.
	return int(math.Min(maxWPM, math.Max(minWPM, baseWPM*speed)))
}

// Synthesize renders text to a temporary WAV file and reads it back as mono.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.RawAudio, error) {
	if err := tts.CheckLength(p.Capabilities(), req.Text); err != nil {
		return nil, err
	}

	// A missing catalog only weakens language matching.
	catalog, err := p.Voices(ctx)
	if err != nil {
		p.logger.Warn("voice listing failed, using default voice", "error", err)
	}
	voice := ResolveVoice(catalog, req.VoiceID, req.LanguageCode, p.defaultVoice)
	wpm := WordsPerMinute(req.Speed)

	dir, err := os.MkdirTemp("", "parrot-say-*")
	if err != nil {
		return nil, &tts.EngineError{Provider: tts.ProviderSystem, Err: err}
	}
	defer os.RemoveAll(dir)

	// Text goes through a file so input starting with "-" is never read as a flag.
	input := filepath.Join(dir, "input.txt")
	if err := os.WriteFile(input, []byte(req.Text), 0o600); err != nil {
		return nil, &tts.EngineError{Provider: tts.ProviderSystem, Err: err}
	}
	output := filepath.Join(dir, "out.wav")

	args := []string{
		"-v", voice,
		"-r", strconv.Itoa(wpm),
		"--file-format=WAVE",
		"--data-format=LEI16",
		"-o", output,
		"-f", input,
	}
	p.logger.Debug("running speech command", "voice", voice, "wpm", wpm, "text_length", len(req.Text))
	if _, err := p.runner.Run(ctx, p.binary, args...); err != nil {
		return nil, &tts.EngineError{Provider: tts.ProviderSystem, Err: err}
	}

	f, err := os.Open(output)
	if err != nil {
		return nil, &tts.EngineError{Provider: tts.ProviderSystem, Err: fmt.Errorf("reading rendered audio: %w", err)}
	}
	defer f.Close()

	samples, rate, err := audio.DecodeWAV(f)
	if err != nil {
		return nil, &tts.EngineError{Provider: tts.ProviderSystem, Err: err}
	}
	return &tts.RawAudio{Samples: samples, SampleRate: rate}, nil
}

// Package clone implements the voice-cloning provider: an XTTS-style model
// server that speaks either as a reference recording or as one of its
// built-in speakers.
//
// The model is expensive to bring up, so the adapter has an explicit
// lifecycle. It registers cheaply, and Load fetches the built-in speakers on
// first use (or during Warmup).
package clone

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nadzzz/parrot/internal/audio"
	"github.com/nadzzz/parrot/internal/config"
	"github.com/nadzzz/parrot/internal/tts"
)

const (
	defaultMaxChars = 1200
	defaultLanguage = "en"
	warmupLanguage  = "ja"
)

// State is the adapter lifecycle stage.
type State int

const (
	StateRegistered State = iota
	StateLoaded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// speechRequest is the model server's POST /tts body. Exactly one of
// Speaker and SpeakerWAV is set.
type speechRequest struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Speed      float64 `json:"speed"`
	Speaker    string  `json:"speaker,omitempty"`
	SpeakerWAV string  `json:"speaker_wav,omitempty"` // base64 WAV
}

type speakersResponse struct {
	Speakers []string `json:"speakers"`
}

// Provider implements tts.Provider against the clone model server.
type Provider struct {
	enabled     bool
	endpoint    string
	speakersDir string
	maxChars    int
	client      *http.Client
	logger      *slog.Logger

	loads singleflight.Group

	stateMu  sync.RWMutex
	state    State
	builtins []string
	loadErr  error

	// The model server runs one inference at a time.
	inferMu sync.Mutex
}

// New creates a clone provider from config. No network traffic happens
// until Load.
func New(cfg config.CloneConfig) *Provider {
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Provider{
		enabled:     cfg.Enabled,
		endpoint:    strings.TrimRight(cfg.Endpoint, "/"),
		speakersDir: cfg.SpeakersDir,
		maxChars:    maxChars,
		client:      &http.Client{Timeout: timeout},
		logger:      slog.With("component", "provider", "provider", tts.ProviderClone),
	}
}

// Capabilities implements tts.Provider.
func (p *Provider) Capabilities() tts.Capabilities {
	return tts.Capabilities{Name: tts.ProviderClone, MaxCharsPerRequest: p.maxChars}
}

// Available reports whether the adapter is configured. It does not load the
// model.
func (p *Provider) Available(context.Context) (bool, error) {
	return p.enabled && p.endpoint != "", nil
}

// State returns the current lifecycle stage.
func (p *Provider) State() State {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.state
}

// Builtins returns the loaded built-in speaker names, first is the default.
func (p *Provider) Builtins() []string {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return append([]string(nil), p.builtins...)
}

// Load moves the adapter to StateLoaded by fetching the built-in speakers.
// Concurrent callers share one fetch. A failed load leaves StateFailed and
// may be retried.
func (p *Provider) Load(ctx context.Context) error {
	if p.State() == StateLoaded {
		return nil
	}
	_, err, _ := p.loads.Do("load", func() (any, error) {
		if p.State() == StateLoaded {
			return nil, nil
		}
		speakers, err := p.fetchSpeakers(ctx)

		p.stateMu.Lock()
		defer p.stateMu.Unlock()
		if err != nil {
			p.state, p.loadErr = StateFailed, err
			return nil, err
		}
		p.state, p.builtins, p.loadErr = StateLoaded, speakers, nil
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("loading %s model: %w", tts.ProviderClone, err)
	}
	p.logger.Info("clone model loaded", "builtin_speakers", len(p.Builtins()))
	return nil
}

func (p *Provider) fetchSpeakers(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"/speakers", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching speakers: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("speakers returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	var out speakersResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding speakers: %w", err)
	}
	return out.Speakers, nil
}

// Warmup loads the model and runs one short synthesis so the first real
// request does not pay for it. Failures are logged only.
func (p *Provider) Warmup(ctx context.Context) {
	if err := p.Load(ctx); err != nil {
		p.logger.Warn("clone warmup: load failed", "error", err)
		return
	}

	req := speechRequest{Text: "test", Language: warmupLanguage, Speed: 1}
	if refs := p.referenceIDs(); len(refs) > 0 {
		b64, err := p.readReference(p.referencePath(refs[0]))
		if err != nil {
			p.logger.Warn("clone warmup: reading reference failed", "error", err)
			return
		}
		req.SpeakerWAV = b64
	} else if builtins := p.Builtins(); len(builtins) > 0 {
		req.Speaker = builtins[0]
	} else {
		p.logger.Info("clone warmup skipped: no speaker available")
		return
	}

	start := time.Now()
	if _, err := p.infer(ctx, req); err != nil {
		p.logger.Warn("clone warmup synthesis failed", "error", err)
		return
	}
	p.logger.Info("clone warmup complete", "duration", time.Since(start))
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.RawAudio, error) {
	if err := tts.CheckLength(p.Capabilities(), req.Text); err != nil {
		return nil, err
	}
	if err := p.Load(ctx); err != nil {
		return nil, &tts.EngineError{Provider: tts.ProviderClone, Err: err}
	}

	lang := tts.BaseLanguage(req.LanguageCode)
	if lang == "" {
		lang = defaultLanguage
	}
	speed := req.Speed
	if speed <= 0 {
		speed = 1
	}
	body := speechRequest{Text: req.Text, Language: lang, Speed: speed}

	if err := p.resolveSpeaker(req.VoiceID, &body); err != nil {
		return nil, err
	}

	raw, err := p.infer(ctx, body)
	if err != nil {
		return nil, &tts.EngineError{Provider: tts.ProviderClone, Err: err}
	}
	return raw, nil
}

// resolveSpeaker sets the reference audio or built-in speaker on body:
// a reference file named after the voice, then a built-in speaker of that
// name, then the default built-in speaker.
func (p *Provider) resolveSpeaker(voiceID string, body *speechRequest) error {
	expected := filepath.Join(p.speakersDir, "<voice>.wav")
	if voiceID != "" {
		expected = p.referencePath(voiceID)
		if _, err := os.Stat(expected); err == nil {
			b64, err := p.readReference(expected)
			if err != nil {
				return &tts.EngineError{Provider: tts.ProviderClone, Err: err}
			}
			body.SpeakerWAV = b64
			p.logger.Debug("using reference audio", "path", expected, "language", body.Language)
			return nil
		}
	}

	builtins := p.Builtins()
	for _, name := range builtins {
		if name == voiceID {
			body.Speaker = name
			p.logger.Debug("using builtin speaker", "speaker", name, "language", body.Language)
			return nil
		}
	}
	if len(builtins) > 0 {
		body.Speaker = builtins[0]
		p.logger.Debug("using default builtin speaker", "speaker", builtins[0], "language", body.Language)
		return nil
	}
	return &tts.SpeakerError{VoiceID: voiceID, ExpectedPath: expected}
}

func (p *Provider) referencePath(voiceID string) string {
	return filepath.Join(p.speakersDir, filepath.Base(voiceID)+".wav")
}

func (p *Provider) readReference(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading reference audio: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// referenceIDs lists the *.wav stems in the speakers directory, sorted.
func (p *Provider) referenceIDs() []string {
	matches, err := filepath.Glob(filepath.Join(p.speakersDir, "*.wav"))
	if err != nil {
		return nil
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, strings.TrimSuffix(filepath.Base(m), ".wav"))
	}
	sort.Strings(ids)
	return ids
}

func (p *Provider) infer(ctx context.Context, body speechRequest) (*tts.RawAudio, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/tts", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	p.inferMu.Lock()
	defer p.inferMu.Unlock()

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling model server: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := bytes.TrimSpace(data)
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return nil, fmt.Errorf("model server returned %d: %s", resp.StatusCode, msg)
	}

	samples, rate, err := audio.DecodeWAVBytes(data)
	if err != nil {
		return nil, err
	}
	return &tts.RawAudio{Samples: samples, SampleRate: rate}, nil
}

// Voices lists reference recordings plus, once loaded, the built-in
// speakers. It never triggers a load.
func (p *Provider) Voices(context.Context) ([]tts.Voice, error) {
	var voices []tts.Voice
	seen := make(map[string]struct{})
	for _, id := range p.referenceIDs() {
		seen[id] = struct{}{}
		voices = append(voices, tts.Voice{ID: id, Provider: tts.ProviderClone})
	}
	for _, name := range p.Builtins() {
		if _, dup := seen[name]; dup {
			continue
		}
		voices = append(voices, tts.Voice{ID: name, Provider: tts.ProviderClone})
	}
	return voices, nil
}

// LoadError returns the error from the last failed load, if any.
func (p *Provider) LoadError() error {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	if p.state != StateFailed {
		return nil
	}
	return p.loadErr
}

// Status renders the lifecycle stage for the health report, with the load
// error appended once loading has failed.
func (p *Provider) Status() string {
	if err := p.LoadError(); err != nil {
		return StateFailed.String() + ": " + err.Error()
	}
	return p.State().String()
}

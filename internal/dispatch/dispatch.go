// Package dispatch implements request-level orchestration.
//
// The dispatcher receives synthesis requests from transports, applies
// defaults, picks a provider, bounds concurrency and runs the audio
// pipeline. It also aggregates the voice catalogs of every registered
// provider.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/nadzzz/parrot/internal/config"
	"github.com/nadzzz/parrot/internal/metrics"
	"github.com/nadzzz/parrot/internal/pipeline"
	"github.com/nadzzz/parrot/internal/tts"
)

// Options configures a Dispatcher.
type Options struct {
	// MaxConcurrent bounds in-flight syntheses. Values below 1 mean 1.
	MaxConcurrent int

	// DefaultProvider is the provider whose catalog backs the legacy voice list.
	DefaultProvider string

	// Metrics is optional.
	Metrics *metrics.Collector
}

// Dispatcher is the central routing engine.
type Dispatcher struct {
	registry        *tts.Registry
	selector        *tts.Selector
	pipeline        *pipeline.Pipeline
	slots           *semaphore.Weighted
	defaultProvider string
	metrics         *metrics.Collector
}

// New creates a Dispatcher.
func New(registry *tts.Registry, selector *tts.Selector, pipe *pipeline.Pipeline, opts Options) *Dispatcher {
	n := opts.MaxConcurrent
	if n < 1 {
		n = 1
	}
	def := opts.DefaultProvider
	if def == "" {
		def = tts.ProviderNeural
	}
	return &Dispatcher{
		registry:        registry,
		selector:        selector,
		pipeline:        pipe,
		slots:           semaphore.NewWeighted(int64(n)),
		defaultProvider: def,
		metrics:         opts.Metrics,
	}
}

// Speak processes a single synthesis request through the full pipeline.
func (d *Dispatcher) Speak(ctx context.Context, req tts.Request) (*pipeline.EncodedAudio, error) {
	start := time.Now()
	logger := slog.With("request_id", requestID(ctx))

	req = withDefaults(req)
	logger.Info("synthesis started",
		"provider_hint", req.ProviderHint, "voice", req.VoiceID, "language", req.LanguageCode,
		"format", req.Format, "text_length", len(req.Text))

	name, out, err := d.speak(ctx, req, logger)
	took := time.Since(start)
	if d.metrics != nil {
		audioSeconds := 0.0
		if err == nil {
			audioSeconds = out.Duration()
		}
		d.metrics.RecordSynthesis(name, tts.ErrorCode(err), took, audioSeconds)
	}
	if err != nil {
		level := slog.LevelWarn
		if tts.StatusCode(err) >= 500 {
			level = slog.LevelError
		}
		logger.Log(ctx, level, "synthesis failed",
			"provider", name, "code", tts.ErrorCode(err), "error", err, "duration", took)
		return nil, err
	}

	logger.Info("synthesis complete",
		"provider", name, "bytes", len(out.Data), "sample_rate", out.SampleRate,
		"audio_seconds", out.Duration(), "mime", out.MIMEType, "duration", took)
	return out, nil
}

func (d *Dispatcher) speak(ctx context.Context, req tts.Request, logger *slog.Logger) (string, *pipeline.EncodedAudio, error) {
	if err := validate(req); err != nil {
		return "", nil, err
	}

	name, err := d.selector.Select(req.ProviderHint, req.LanguageCode)
	if err != nil {
		return "", nil, err
	}
	provider, ok := d.registry.Get(name)
	if !ok {
		return name, nil, fmt.Errorf("%w: %s", tts.ErrNoProvider, name)
	}

	if err := d.slots.Acquire(ctx, 1); err != nil {
		return name, nil, fmt.Errorf("waiting for a synthesis slot: %w", err)
	}
	defer d.slots.Release(1)
	if d.metrics != nil {
		defer d.metrics.InFlight()()
	}

	logger.Debug("provider selected", "provider", name)
	out, err := d.pipeline.Run(ctx, provider, req)
	return name, out, err
}

// withDefaults fills speed and format for every transport. A zero speed
// means unset. The voice stays empty so each provider applies its own default.
func withDefaults(req tts.Request) tts.Request {
	if req.Speed == 0 {
		req.Speed = 1
	}
	req.Format = strings.ToLower(strings.TrimSpace(req.Format))
	if req.Format == "" {
		req.Format = "wav"
	}
	return req
}

func validate(req tts.Request) error {
	if strings.TrimSpace(req.Text) == "" {
		return fmt.Errorf("%w: input must not be empty", tts.ErrInvalidRequest)
	}
	if req.Speed <= 0 || math.IsNaN(req.Speed) || math.IsInf(req.Speed, 0) {
		return fmt.Errorf("%w: speed must be a positive finite number, got %g", tts.ErrInvalidRequest, req.Speed)
	}
	return nil
}

// VoiceIDs returns the legacy flat voice list: the default provider's
// catalog ids, sorted. It never fails and never returns an empty list.
func (d *Dispatcher) VoiceIDs(ctx context.Context) []string {
	fallback := []string{config.DefaultVoice}

	provider, ok := d.registry.Get(d.defaultProvider)
	if !ok {
		return fallback
	}
	voices, err := provider.Voices(ctx)
	if err != nil {
		slog.Warn("voice catalog failed, falling back to default voice", "provider", d.defaultProvider, "error", err)
		return fallback
	}

	seen := make(map[string]struct{}, len(voices))
	ids := make([]string, 0, len(voices))
	for _, v := range voices {
		if _, dup := seen[v.ID]; dup || v.ID == "" {
			continue
		}
		seen[v.ID] = struct{}{}
		ids = append(ids, v.ID)
	}
	if len(ids) == 0 {
		return fallback
	}
	sort.Strings(ids)
	return ids
}

// RichVoices queries every registered provider concurrently and merges the
// results in registration order. A provider whose catalog fails contributes
// nothing.
func (d *Dispatcher) RichVoices(ctx context.Context) []tts.Voice {
	regs := d.registry.All()
	results := make([][]tts.Voice, len(regs))

	var (
		mu     sync.Mutex
		failed []string
	)
	g, gctx := errgroup.WithContext(ctx)
	for i, reg := range regs {
		g.Go(func() error {
			voices, err := reg.Provider.Voices(gctx)
			if err != nil {
				slog.Warn("voice catalog failed", "provider", reg.Name, "error", err)
				mu.Lock()
				failed = append(failed, reg.Name)
				mu.Unlock()
				return nil
			}
			// Providers may return their cached slice.
			own := make([]tts.Voice, len(voices))
			for j, v := range voices {
				if v.Provider == "" {
					v.Provider = reg.Name
				}
				own[j] = v
			}
			results[i] = own
			return nil
		})
	}
	_ = g.Wait()

	var merged []tts.Voice
	for _, r := range results {
		merged = append(merged, r...)
	}
	if len(failed) > 0 {
		slog.Debug("rich voice catalog merged with gaps", "failed", failed, "voices", len(merged))
	}
	if merged == nil {
		merged = []tts.Voice{}
	}
	return merged
}

type requestIDKey struct{}

// WithRequestID attaches a request id to ctx. Transports call it with the
// id they already have (chi's RequestID middleware, gRPC metadata).
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// requestID returns the id on ctx or mints one.
func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

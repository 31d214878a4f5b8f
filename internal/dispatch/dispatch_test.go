package dispatch

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/parrot/internal/config"
	"github.com/nadzzz/parrot/internal/encoder"
	"github.com/nadzzz/parrot/internal/metrics"
	"github.com/nadzzz/parrot/internal/pipeline"
	"github.com/nadzzz/parrot/internal/tts"
	"github.com/nadzzz/parrot/internal/tts/ttstest"
)

func newDispatcher(t *testing.T, maxConcurrent int, m *metrics.Collector, providers ...tts.Provider) *Dispatcher {
	t.Helper()
	reg := tts.NewRegistry()
	for _, p := range providers {
		require.NoError(t, reg.Register(p.Capabilities().Name, p))
	}
	enc := encoder.New(config.EncoderConfig{}, encoder.WithLookPath(func(string) (string, error) {
		return "", errors.New("not found")
	}))
	return New(reg, tts.NewSelector(reg, tts.DefaultRouting()), pipeline.New(enc),
		Options{MaxConcurrent: maxConcurrent, Metrics: m})
}

func TestSpeak_DefaultProvider(t *testing.T) {
	neural := ttstest.New(tts.ProviderNeural)
	m := metrics.NewCollector()
	d := newDispatcher(t, 2, m, neural)

	out, err := d.Speak(context.Background(), tts.Request{Text: "Hello", VoiceID: "af_heart", Format: "WAV"})
	require.NoError(t, err)
	assert.Equal(t, "audio/wav", out.MIMEType)
	assert.Equal(t, tts.ProviderNeural, out.Provider)

	last := neural.LastRequest()
	assert.Equal(t, 1.0, last.Speed, "speed defaults to 1")
	assert.Equal(t, "wav", last.Format)

	n, err := testutil.GatherAndCount(m.Registry(), "parrot_synth_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSpeak_RoutesByLanguage(t *testing.T) {
	neural := ttstest.New(tts.ProviderNeural)
	system := ttstest.New(tts.ProviderSystem)
	clone := ttstest.New(tts.ProviderClone)
	d := newDispatcher(t, 2, nil, neural, system, clone)

	_, err := d.Speak(context.Background(), tts.Request{Text: "Hej", LanguageCode: "sv-SE"})
	require.NoError(t, err)
	_, err = d.Speak(context.Background(), tts.Request{Text: "Hallo", LanguageCode: "de"})
	require.NoError(t, err)
	_, err = d.Speak(context.Background(), tts.Request{Text: "Hi", ProviderHint: tts.ProviderClone})
	require.NoError(t, err)

	assert.Equal(t, 0, neural.Calls())
	assert.Equal(t, 1, system.Calls())
	assert.Equal(t, 2, clone.Calls())
}

func TestSpeak_InvalidRequest(t *testing.T) {
	neural := ttstest.New(tts.ProviderNeural)
	d := newDispatcher(t, 1, nil, neural)

	_, err := d.Speak(context.Background(), tts.Request{Text: "   "})
	assert.ErrorIs(t, err, tts.ErrInvalidRequest)

	for _, speed := range []float64{-1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err = d.Speak(context.Background(), tts.Request{Text: "Hi", Speed: speed})
		assert.ErrorIs(t, err, tts.ErrInvalidRequest, "speed %g", speed)
	}
	assert.Zero(t, neural.Calls())
}

func TestSpeak_DefaultsApplyToRawWireValues(t *testing.T) {
	neural := ttstest.New(tts.ProviderNeural)
	d := newDispatcher(t, 1, nil, neural)

	_, err := d.Speak(context.Background(), tts.Request{Text: "Hi", Format: "  "})
	require.NoError(t, err)
	assert.Equal(t, 1.0, neural.LastRequest().Speed)
	assert.Equal(t, "wav", neural.LastRequest().Format)

	out, err := d.Speak(context.Background(), tts.Request{Text: "Hi", Speed: 0.5, Format: " WAV "})
	require.NoError(t, err)
	assert.Equal(t, "audio/wav", out.MIMEType)
	assert.Equal(t, 0.5, neural.LastRequest().Speed)
	assert.Equal(t, "wav", neural.LastRequest().Format)
}

func TestSpeak_TooLongNeverReachesEngine(t *testing.T) {
	neural := ttstest.New(tts.ProviderNeural)
	neural.MaxChars = 5000
	d := newDispatcher(t, 1, nil, neural)

	text := make([]byte, 50000)
	for i := range text {
		text[i] = 'a'
	}
	_, err := d.Speak(context.Background(), tts.Request{Text: string(text)})
	require.ErrorIs(t, err, tts.ErrTextTooLong)
	assert.Equal(t, 422, tts.StatusCode(err))
	assert.Zero(t, neural.Calls())
}

func TestSpeak_RecordsFailureMetrics(t *testing.T) {
	clone := ttstest.New(tts.ProviderClone)
	clone.Err = &tts.SpeakerError{VoiceID: "ghost", ExpectedPath: "assets/speakers/ghost.wav"}
	m := metrics.NewCollector()
	d := newDispatcher(t, 1, m, ttstest.New(tts.ProviderNeural), clone)

	_, err := d.Speak(context.Background(), tts.Request{Text: "Hallo", LanguageCode: "de"})
	require.ErrorIs(t, err, tts.ErrUnresolvableSpeaker)

	n, err := testutil.GatherAndCount(m.Registry(), "parrot_synth_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = testutil.GatherAndCount(m.Registry(), "parrot_synth_audio_seconds")
	require.NoError(t, err)
	assert.Zero(t, n)
}

// blockingProvider holds every Synthesize call until release is closed.
type blockingProvider struct {
	*ttstest.Provider
	active, peak atomic.Int64
	release      chan struct{}
}

func (b *blockingProvider) Synthesize(ctx context.Context, req tts.Request) (*tts.RawAudio, error) {
	n := b.active.Add(1)
	defer b.active.Add(-1)
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			break
		}
	}
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.Provider.Synthesize(ctx, req)
}

func TestSpeak_BoundsConcurrency(t *testing.T) {
	bp := &blockingProvider{Provider: ttstest.New(tts.ProviderNeural), release: make(chan struct{})}
	d := newDispatcher(t, 2, nil, bp)

	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Speak(context.Background(), tts.Request{Text: "Hello"})
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool { return bp.active.Load() == 2 }, time.Second, 5*time.Millisecond)
	close(bp.release)
	wg.Wait()

	assert.EqualValues(t, 2, bp.peak.Load())
}

func TestSpeak_CancelledWhileQueued(t *testing.T) {
	bp := &blockingProvider{Provider: ttstest.New(tts.ProviderNeural), release: make(chan struct{})}
	d := newDispatcher(t, 1, nil, bp)
	defer close(bp.release)

	go func() { _, _ = d.Speak(context.Background(), tts.Request{Text: "first"}) }()
	require.Eventually(t, func() bool { return bp.active.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := d.Speak(ctx, tts.Request{Text: "second"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestVoiceIDs(t *testing.T) {
	neural := ttstest.New(tts.ProviderNeural)
	neural.VoiceList = []tts.Voice{{ID: "bf_emma"}, {ID: "af_heart"}, {ID: "bf_emma"}}
	d := newDispatcher(t, 1, nil, neural)

	assert.Equal(t, []string{"af_heart", "bf_emma"}, d.VoiceIDs(context.Background()))
}

func TestVoiceIDs_Fallback(t *testing.T) {
	neural := ttstest.New(tts.ProviderNeural)
	neural.VoicesErr = errors.New("describe failed")
	d := newDispatcher(t, 1, nil, neural)
	assert.Equal(t, []string{config.DefaultVoice}, d.VoiceIDs(context.Background()))

	neural.VoicesErr = nil
	assert.Equal(t, []string{config.DefaultVoice}, d.VoiceIDs(context.Background()), "empty catalog")
}

func TestRichVoices_ToleratesFailingProvider(t *testing.T) {
	neural := ttstest.New(tts.ProviderNeural)
	neural.VoiceList = []tts.Voice{{ID: "af_heart", Provider: tts.ProviderNeural, Lang: "en_US"}}
	system := ttstest.New(tts.ProviderSystem)
	system.VoicesErr = errors.New("say exploded")
	clone := ttstest.New(tts.ProviderClone)
	clone.VoiceList = []tts.Voice{{ID: "narrator"}}
	d := newDispatcher(t, 1, nil, neural, system, clone)

	got := d.RichVoices(context.Background())
	assert.Equal(t, []tts.Voice{
		{ID: "af_heart", Provider: tts.ProviderNeural, Lang: "en_US"},
		{ID: "narrator", Provider: tts.ProviderClone},
	}, got)
	assert.Empty(t, clone.VoiceList[0].Provider, "provider catalogs are not mutated")
}

func TestRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "abc")
	assert.Equal(t, "abc", requestID(ctx))
	assert.Len(t, requestID(context.Background()), 36)
}

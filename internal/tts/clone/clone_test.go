package clone

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/parrot/internal/audio"
	"github.com/nadzzz/parrot/internal/config"
	"github.com/nadzzz/parrot/internal/tts"
	"github.com/nadzzz/parrot/internal/tts/ttstest"
)

type modelServer struct {
	speakers     []string
	failSpeakers atomic.Bool

	speakerCalls atomic.Int64
	ttsCalls     atomic.Int64

	mu   sync.Mutex
	last speechRequest
}

func (m *modelServer) start(t *testing.T) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /speakers", func(w http.ResponseWriter, _ *http.Request) {
		m.speakerCalls.Add(1)
		if m.failSpeakers.Load() {
			http.Error(w, "model not loaded", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(speakersResponse{Speakers: m.speakers})
	})
	mux.HandleFunc("POST /tts", func(w http.ResponseWriter, r *http.Request) {
		m.ttsCalls.Add(1)
		var req speechRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		m.mu.Lock()
		m.last = req
		m.mu.Unlock()
		if req.Text == "explode" {
			http.Error(w, "CUDA out of memory", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(audio.EncodeWAV(ttstest.Tone(2400, 220, 0.5, 24000), 24000))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL
}

func (m *modelServer) lastRequest() speechRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func newProvider(t *testing.T, m *modelServer, dir string) *Provider {
	t.Helper()
	return New(config.CloneConfig{Enabled: true, Endpoint: m.start(t) + "/", SpeakersDir: dir})
}

func writeReference(t *testing.T, dir, id string) []byte {
	t.Helper()
	data := audio.EncodeWAV(ttstest.Tone(1000, 440, 0.3, 16000), 16000)
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".wav"), data, 0o600))
	return data
}

func TestAvailable_DoesNotLoad(t *testing.T) {
	m := &modelServer{speakers: []string{"Ana Florence"}}
	p := newProvider(t, m, t.TempDir())

	ok, err := p.Available(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StateRegistered, p.State())
	assert.Zero(t, m.speakerCalls.Load())

	ok, _ = New(config.CloneConfig{Endpoint: "http://x"}).Available(context.Background())
	assert.False(t, ok, "disabled")
}

func TestLoad_Transitions(t *testing.T) {
	m := &modelServer{speakers: []string{"Ana Florence", "Claribel Dervla"}}
	m.failSpeakers.Store(true)
	p := newProvider(t, m, t.TempDir())
	assert.Equal(t, "registered", p.Status())

	require.Error(t, p.Load(context.Background()))
	assert.Equal(t, StateFailed, p.State())
	require.Error(t, p.LoadError())
	assert.Equal(t, "failed: "+p.LoadError().Error(), p.Status())

	m.failSpeakers.Store(false)
	require.NoError(t, p.Load(context.Background()))
	assert.Equal(t, StateLoaded, p.State())
	assert.Equal(t, []string{"Ana Florence", "Claribel Dervla"}, p.Builtins())
	assert.NoError(t, p.LoadError())
	assert.Equal(t, "loaded", p.Status())

	require.NoError(t, p.Load(context.Background()))
	assert.EqualValues(t, 2, m.speakerCalls.Load(), "a loaded model is not fetched again")
}

func TestLoad_ConcurrentCallersShareOneFetch(t *testing.T) {
	m := &modelServer{speakers: []string{"Ana Florence"}}
	p := newProvider(t, m, t.TempDir())

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.Load(context.Background()))
		}()
	}
	wg.Wait()
	assert.Equal(t, StateLoaded, p.State())
	assert.LessOrEqual(t, m.speakerCalls.Load(), int64(8))
	assert.GreaterOrEqual(t, m.speakerCalls.Load(), int64(1))
}

func TestSynthesize_ReferenceAudio(t *testing.T) {
	dir := t.TempDir()
	ref := writeReference(t, dir, "narrator")
	m := &modelServer{speakers: []string{"Ana Florence"}}
	p := newProvider(t, m, dir)

	raw, err := p.Synthesize(context.Background(), tts.Request{Text: "Hej", VoiceID: "narrator", LanguageCode: "sv-SE"})
	require.NoError(t, err)
	assert.Equal(t, 24000, raw.SampleRate)
	assert.Len(t, raw.Samples, 2400)

	last := m.lastRequest()
	assert.Equal(t, base64.StdEncoding.EncodeToString(ref), last.SpeakerWAV)
	assert.Empty(t, last.Speaker)
	assert.Equal(t, "sv", last.Language)
	assert.Equal(t, 1.0, last.Speed)
}

func TestSynthesize_BuiltinSpeaker(t *testing.T) {
	m := &modelServer{speakers: []string{"Ana Florence", "Claribel Dervla"}}
	p := newProvider(t, m, t.TempDir())

	_, err := p.Synthesize(context.Background(), tts.Request{Text: "Hi", VoiceID: "Claribel Dervla", Speed: 1.2})
	require.NoError(t, err)
	last := m.lastRequest()
	assert.Equal(t, "Claribel Dervla", last.Speaker)
	assert.Equal(t, "en", last.Language, "default language")
	assert.Equal(t, 1.2, last.Speed)

	_, err = p.Synthesize(context.Background(), tts.Request{Text: "Hi", VoiceID: "unknown"})
	require.NoError(t, err)
	assert.Equal(t, "Ana Florence", m.lastRequest().Speaker, "falls back to the default builtin")
}

func TestSynthesize_UnresolvableSpeaker(t *testing.T) {
	dir := t.TempDir()
	m := &modelServer{}
	p := newProvider(t, m, dir)

	_, err := p.Synthesize(context.Background(), tts.Request{Text: "Hi", VoiceID: "ghost"})
	require.ErrorIs(t, err, tts.ErrUnresolvableSpeaker)

	var speakerErr *tts.SpeakerError
	require.ErrorAs(t, err, &speakerErr)
	assert.Equal(t, filepath.Join(dir, "ghost.wav"), speakerErr.ExpectedPath)
	assert.Equal(t, 422, tts.StatusCode(err))
	assert.Zero(t, m.ttsCalls.Load())
}

func TestSynthesize_UnresolvableSpeakerWithoutVoiceNamesDirectory(t *testing.T) {
	dir := t.TempDir()
	m := &modelServer{}
	p := newProvider(t, m, dir)

	_, err := p.Synthesize(context.Background(), tts.Request{Text: "Hi"})
	var speakerErr *tts.SpeakerError
	require.ErrorAs(t, err, &speakerErr)
	assert.Equal(t, filepath.Join(dir, "<voice>.wav"), speakerErr.ExpectedPath)
	assert.Contains(t, err.Error(), dir)
	assert.Zero(t, m.ttsCalls.Load())
}

func TestSynthesize_RejectsLongText(t *testing.T) {
	m := &modelServer{speakers: []string{"Ana Florence"}}
	p := newProvider(t, m, t.TempDir())

	_, err := p.Synthesize(context.Background(), tts.Request{Text: strings.Repeat("あ", 1201)})
	require.ErrorIs(t, err, tts.ErrTextTooLong)
	assert.Zero(t, m.speakerCalls.Load(), "rejected before the model is touched")
}

func TestSynthesize_ModelFailure(t *testing.T) {
	m := &modelServer{speakers: []string{"Ana Florence"}}
	p := newProvider(t, m, t.TempDir())

	_, err := p.Synthesize(context.Background(), tts.Request{Text: "explode"})
	var engineErr *tts.EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Contains(t, err.Error(), "CUDA out of memory")
}

func TestWarmup(t *testing.T) {
	dir := t.TempDir()
	writeReference(t, dir, "b")
	ref := writeReference(t, dir, "a")
	m := &modelServer{speakers: []string{"Ana Florence"}}
	p := newProvider(t, m, dir)

	p.Warmup(context.Background())
	assert.Equal(t, StateLoaded, p.State())
	last := m.lastRequest()
	assert.Equal(t, warmupLanguage, last.Language)
	assert.Equal(t, base64.StdEncoding.EncodeToString(ref), last.SpeakerWAV, "first reference file")
}

func TestWarmup_FailureIsSwallowed(t *testing.T) {
	m := &modelServer{}
	m.failSpeakers.Store(true)
	p := newProvider(t, m, t.TempDir())

	p.Warmup(context.Background())
	assert.Equal(t, StateFailed, p.State())
	assert.Zero(t, m.ttsCalls.Load())
}

func TestVoices(t *testing.T) {
	dir := t.TempDir()
	writeReference(t, dir, "zed")
	writeReference(t, dir, "amy")
	m := &modelServer{speakers: []string{"Ana Florence"}}
	p := newProvider(t, m, dir)

	voices, err := p.Voices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []tts.Voice{
		{ID: "amy", Provider: tts.ProviderClone},
		{ID: "zed", Provider: tts.ProviderClone},
	}, voices, "builtins are not listed before load")

	require.NoError(t, p.Load(context.Background()))
	voices, err = p.Voices(context.Background())
	require.NoError(t, err)
	require.Len(t, voices, 3)
	assert.Equal(t, "Ana Florence", voices[2].ID)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "registered", StateRegistered.String())
	assert.Equal(t, "loaded", StateLoaded.String())
	assert.Equal(t, "failed", StateFailed.String())
}

// Package http implements the HTTP transport for parrot.
//
// The API mirrors the OpenAI speech endpoint so existing clients can point
// at parrot unchanged: POST /v1/audio/speech returns audio bytes, and
// GET /v1/voices lists what can be asked for.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"golang.org/x/time/rate"

	"github.com/nadzzz/parrot/internal/auth"
	"github.com/nadzzz/parrot/internal/dispatch"
	"github.com/nadzzz/parrot/internal/health"
	"github.com/nadzzz/parrot/internal/message"
	"github.com/nadzzz/parrot/internal/transport"
	"github.com/nadzzz/parrot/internal/tts"

	_ "github.com/nadzzz/parrot/docs" // registers swagger docs
)

const maxBodyBytes = 1 << 20

// Options configures the HTTP transport.
type Options struct {
	Port int

	// Auth guards the synthesis route. Nil disables authentication.
	Auth *auth.Authenticator

	// Reporter backs GET /healthz. Nil serves {"ok": true}.
	Reporter *health.Reporter

	// RateLimitRPS caps synthesis requests per second across all callers.
	// Zero disables the limit.
	RateLimitRPS   float64
	RateLimitBurst int
}

// Transport implements transport.Transport over HTTP.
type Transport struct {
	opts   Options
	server *http.Server
}

// New creates a new HTTP transport.
func New(opts Options) *Transport {
	if opts.Auth == nil {
		opts.Auth = auth.New("")
	}
	return &Transport{opts: opts}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "http" }

// Handler builds the router serving svc.
func (t *Transport) Handler(svc transport.Service) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(t.opts.Auth.Middleware)
		if t.opts.RateLimitRPS > 0 {
			r.Use(rateLimit(t.opts.RateLimitRPS, t.opts.RateLimitBurst))
		}
		r.Post("/v1/audio/speech", func(w http.ResponseWriter, r *http.Request) {
			t.handleSpeech(w, r, svc)
		})
	})

	r.Get("/v1/voices", func(w http.ResponseWriter, r *http.Request) {
		t.handleVoices(w, r, svc)
	})
	r.Get("/healthz", t.handleHealth)

	// Swagger UI serves the generated OpenAPI docs.
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	return r
}

// Listen starts the HTTP server and routes incoming requests to svc.
func (t *Transport) Listen(ctx context.Context, svc transport.Service) error {
	t.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", t.opts.Port),
		Handler:           t.Handler(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("http transport listening", "port", t.opts.Port, "auth", t.opts.Auth.Enabled())

	go func() {
		<-ctx.Done()
		slog.Info("http transport shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = t.server.Shutdown(shutdownCtx)
	}()

	if err := t.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

// handleSpeech processes a POST /v1/audio/speech request.
//
// @Summary     Synthesize speech
// @Description Renders text to audio. The provider is chosen from the explicit provider field,
// @Description then from the language (system voice for allow-listed languages, clone model for
// @Description other non-English text), then the default neural pipeline.
// @Tags        speech
// @Accept      json
// @Produce     audio/wav
// @Produce     audio/mpeg
// @Produce     json
// @Param       request  body      message.SpeechRequest  true  "Synthesis request"
// @Param       Authorization  header  string  false  "Bearer token when auth is enabled"
// @Success     200  {file}    binary                 "Encoded audio"
// @Failure     400  {object}  message.ErrorResponse  "Malformed request"
// @Failure     401  {object}  message.ErrorResponse  "Missing or wrong bearer token"
// @Failure     415  {object}  message.ErrorResponse  "Format unsupported in this deployment"
// @Failure     422  {object}  message.ErrorResponse  "No provider, silent output, unknown speaker or text too long"
// @Failure     429  {object}  message.ErrorResponse  "Rate limit exceeded"
// @Failure     500  {object}  message.ErrorResponse  "Engine failure"
// @Router      /v1/audio/speech [post]
func (t *Transport) handleSpeech(w http.ResponseWriter, r *http.Request, svc transport.Service) {
	var req message.SpeechRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid json: %v", tts.ErrInvalidRequest, err))
		return
	}

	ctx := dispatch.WithRequestID(r.Context(), chimiddleware.GetReqID(r.Context()))
	out, err := svc.Speak(ctx, req.ToRequest())
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", out.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Data)))
	w.Header().Set("X-Parrot-Provider", out.Provider)
	w.Header().Set("X-Parrot-Sample-Rate", strconv.Itoa(out.SampleRate))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Data)
}

// handleVoices processes a GET /v1/voices request.
//
// @Summary     List voices
// @Description Without rich, returns the default provider's voice ids (falls back to af_heart).
// @Description With rich=1, returns {id, provider, lang} objects merged across every registered provider.
// @Tags        voices
// @Produce     json
// @Param       rich  query     bool  false  "Return the merged catalog"
// @Success     200   {object}  message.VoiceIDList  "Legacy shape; rich=1 returns message.VoiceList"
// @Router      /v1/voices [get]
func (t *Transport) handleVoices(w http.ResponseWriter, r *http.Request, svc transport.Service) {
	if rich, _ := strconv.ParseBool(r.URL.Query().Get("rich")); rich {
		writeJSON(w, http.StatusOK, message.VoiceList{Voices: svc.RichVoices(r.Context())})
		return
	}
	writeJSON(w, http.StatusOK, message.VoiceIDList{Voices: svc.VoiceIDs(r.Context())})
}

// handleHealth processes a GET /healthz request.
//
// @Summary     Capability report
// @Tags        health
// @Produce     json
// @Success     200  {object}  health.Report
// @Router      /healthz [get]
func (t *Transport) handleHealth(w http.ResponseWriter, r *http.Request) {
	if t.opts.Reporter == nil {
		writeJSON(w, http.StatusOK, health.Report{OK: true, Providers: []string{}})
		return
	}
	writeJSON(w, http.StatusOK, t.opts.Reporter.Report(r.Context()))
}

// Close gracefully shuts down the HTTP server.
func (t *Transport) Close() error {
	if t.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return t.server.Shutdown(ctx)
	}
	return nil
}

func rateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				writeJSON(w, http.StatusTooManyRequests, message.ErrorResponse{
					Error: "too many requests", Code: "rate_limited",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := tts.StatusCode(err)
	if errors.Is(err, context.Canceled) {
		// Client went away; nobody reads the body.
		status = 499
	}
	writeJSON(w, status, message.NewErrorResponse(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Package health reports what this deployment can do and serves the probe
// endpoints.
//
// Docker and Kubernetes poll /healthz and /readyz on a dedicated port;
// Prometheus scrapes /metrics from the same listener.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"sync/atomic"
	"time"
)

// Report is the body of GET /healthz.
type Report struct {
	OK          bool     `json:"ok"`
	Lang        string   `json:"lang"`
	Providers   []string `json:"providers"`
	MP3         bool     `json:"mp3"`
	Accelerator bool     `json:"accelerator"`
	Clone       string   `json:"clone,omitempty"`
}

// Reporter assembles a Report. Each check is independent; a failing check
// reports false.
type Reporter struct {
	lang        string
	providers   func() []string
	mp3         func() bool
	accelerator func() bool
	clone       func() string
}

// NewReporter creates a Reporter. providers lists registered provider names;
// mp3 reports encoder capability.
func NewReporter(lang string, providers func() []string, mp3 func() bool) *Reporter {
	return &Reporter{lang: lang, providers: providers, mp3: mp3, accelerator: DetectAccelerator}
}

// WithCloneStatus reports the clone adapter lifecycle under "clone".
func (r *Reporter) WithCloneStatus(fn func() string) *Reporter {
	r.clone = fn
	return r
}

// Report runs every check.
func (r *Reporter) Report(context.Context) Report {
	providers := safe(r.providers, nil)
	if providers == nil {
		providers = []string{}
	}
	return Report{
		OK:          true,
		Lang:        r.lang,
		Providers:   providers,
		MP3:         safe(r.mp3, false),
		Accelerator: safe(r.accelerator, false),
		Clone:       safe(r.clone, ""),
	}
}

func safe[T any](fn func() T, fallback T) (out T) {
	if fn == nil {
		return fallback
	}
	defer func() {
		if recover() != nil {
			out = fallback
		}
	}()
	return fn()
}

// DetectAccelerator makes a best-effort guess at GPU availability: an NVIDIA
// driver, or Apple silicon (Metal).
func DetectAccelerator() bool {
	if runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" {
		return true
	}
	if _, err := exec.LookPath("nvidia-smi"); err == nil {
		return true
	}
	if _, err := os.Stat("/dev/nvidia0"); err == nil {
		return true
	}
	return false
}

// Server is a lightweight HTTP server that exposes the probe endpoints.
type Server struct {
	port     int
	reporter *Reporter
	metrics  http.Handler
	ready    atomic.Bool
	server   *http.Server
}

// New creates a new health check server. metrics may be nil.
func New(port int, reporter *Reporter, metrics http.Handler) *Server {
	return &Server{port: port, reporter: reporter, metrics: metrics}
}

// SetReady marks the daemon as ready to accept traffic.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Handler returns the probe routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		report := s.reporter.Report(r.Context())
		report.OK = s.ready.Load()
		status := http.StatusOK
		if !report.OK {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

// ListenAndServe starts the health check HTTP server.
// It blocks until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("health server listening", "port", s.port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

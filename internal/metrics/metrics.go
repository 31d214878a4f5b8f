// Package metrics holds the Prometheus collectors for synthesis traffic.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "parrot"

// Collector records synthesis outcomes. Each Collector owns its registry so
// several can coexist in one process (tests).
type Collector struct {
	registry *prometheus.Registry

	requestsTotal      *prometheus.CounterVec
	synthDuration      *prometheus.HistogramVec
	audioSeconds       *prometheus.HistogramVec
	providerRegistered *prometheus.GaugeVec
	inFlight           prometheus.Gauge
}

// NewCollector creates a collector with Go runtime and process metrics.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "synth_requests_total",
				Help:      "Synthesis requests by provider and outcome code.",
			},
			[]string{"provider", "status"},
		),
		synthDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "synth_duration_seconds",
				Help:      "Wall time from dispatch to encoded audio.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),
		audioSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "synth_audio_seconds",
				Help:      "Length of the produced audio.",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"provider"},
		),
		providerRegistered: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "provider_registered",
				Help:      "1 when the provider passed its startup probe.",
			},
			[]string{"provider"},
		),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "synth_in_flight",
			Help:      "Syntheses currently holding a concurrency slot.",
		}),
	}
}

// RecordSynthesis records one finished request. status is tts.ErrorCode of
// the outcome; audioSeconds is ignored unless status is "ok".
func (c *Collector) RecordSynthesis(provider, status string, took time.Duration, audioSeconds float64) {
	if provider == "" {
		provider = "none"
	}
	c.requestsTotal.WithLabelValues(provider, status).Inc()
	c.synthDuration.WithLabelValues(provider).Observe(took.Seconds())
	if status == "ok" {
		c.audioSeconds.WithLabelValues(provider).Observe(audioSeconds)
	}
}

// SetProviderRegistered publishes the startup probe result.
func (c *Collector) SetProviderRegistered(provider string, ok bool) {
	v := 0.0
	if ok {
		v = 1
	}
	c.providerRegistered.WithLabelValues(provider).Set(v)
}

// InFlight tracks a request holding a concurrency slot; call the returned
// func when it is released.
func (c *Collector) InFlight() func() {
	c.inFlight.Inc()
	return c.inFlight.Dec
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

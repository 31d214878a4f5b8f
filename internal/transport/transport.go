// Package transport defines the interface for pluggable inbound transports.
//
// Each transport (HTTP, gRPC) implements this interface and serves the
// synthesis Service. The service doesn't care how requests arrive; it
// only works with the Transport contract.
package transport

import (
	"context"

	"github.com/nadzzz/parrot/internal/pipeline"
	"github.com/nadzzz/parrot/internal/tts"
)

// Service is what a transport exposes. The dispatcher implements it.
type Service interface {
	// Speak synthesizes one request.
	Speak(ctx context.Context, req tts.Request) (*pipeline.EncodedAudio, error)

	// VoiceIDs returns the legacy flat voice list. Never empty.
	VoiceIDs(ctx context.Context) []string

	// RichVoices returns the merged catalog of all registered providers.
	RichVoices(ctx context.Context) []tts.Voice
}

// Transport is the interface that every transport adapter must implement.
type Transport interface {
	// Name returns the transport identifier (e.g., "grpc", "http").
	Name() string

	// Listen starts accepting requests and serves them from svc.
	// It blocks until the context is cancelled.
	Listen(ctx context.Context, svc Service) error

	// Close gracefully shuts down the transport, draining in-flight work.
	Close() error
}

// Package message defines the wire types shared by the parrot transports.
//
// Field names follow the OpenAI speech API so existing clients keep working.
package message

import (
	"encoding/base64"
	"strings"

	"github.com/nadzzz/parrot/internal/tts"
)

// SpeechRequest is the body of POST /v1/audio/speech and of the gRPC
// Synthesize call.
type SpeechRequest struct {
	// Input is the text to synthesize.
	Input string `json:"input"`

	// Voice is a provider-specific voice id. The neural provider uses
	// af_heart when it is empty.
	Voice string `json:"voice,omitempty"`

	// Language is a BCP-47-like tag ("sv-SE") used for routing and voice
	// resolution.
	Language string `json:"language,omitempty"`

	// Speed is a playback multiplier. Nil or zero means 1.0.
	Speed *float64 `json:"speed,omitempty"`

	// Provider forces a backend when it is registered.
	Provider string `json:"provider,omitempty"`

	// Format is wav, mp3 or ogg. Anything else yields wav.
	Format string `json:"format,omitempty"`

	// Model and SampleRate are accepted for API parity and ignored.
	Model      string `json:"model,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
}

// ToRequest converts the wire request into a provider request. Defaults
// and validation belong to the dispatcher; a nil speed stays zero.
func (r *SpeechRequest) ToRequest() tts.Request {
	req := tts.Request{
		Text:         r.Input,
		VoiceID:      strings.TrimSpace(r.Voice),
		LanguageCode: strings.TrimSpace(r.Language),
		ProviderHint: strings.TrimSpace(r.Provider),
		Format:       r.Format,
	}
	if r.Speed != nil {
		req.Speed = *r.Speed
	}
	return req
}

// SpeechResponse carries synthesized audio over transports that cannot
// stream raw bytes (gRPC with the JSON codec).
type SpeechResponse struct {
	// Audio is the encoded file, base64.
	Audio string `json:"audio"`

	// ContentType is the MIME type of Audio.
	ContentType string `json:"content_type"`

	Format          string  `json:"format"`
	Provider        string  `json:"provider"`
	SampleRate      int     `json:"sample_rate"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// SetAudioBytes base64-encodes raw audio bytes into Audio.
func (r *SpeechResponse) SetAudioBytes(audio []byte) {
	if len(audio) > 0 {
		r.Audio = base64.StdEncoding.EncodeToString(audio)
	}
}

// AudioBytes decodes Audio.
func (r *SpeechResponse) AudioBytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(r.Audio)
}

// VoicesRequest selects the catalog shape.
type VoicesRequest struct {
	Rich bool `json:"rich,omitempty"`
}

// VoiceIDList is the legacy catalog shape: {"voices": ["af_heart", ...]}.
type VoiceIDList struct {
	Voices []string `json:"voices"`
}

// VoiceList is the rich catalog shape merged across providers.
type VoiceList struct {
	Voices []tts.Voice `json:"voices"`
}

// ErrorResponse is the JSON body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// NewErrorResponse builds an ErrorResponse from a synthesis-path error.
func NewErrorResponse(err error) ErrorResponse {
	return ErrorResponse{Error: err.Error(), Code: tts.ErrorCode(err)}
}

package tts

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidRequest marks a request that is malformed before any routing.
	ErrInvalidRequest = errors.New("invalid synthesis request")

	// ErrUnauthorized marks a missing or wrong credential.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNoProvider is returned when routing lands on a provider that is not
	// registered in this process.
	ErrNoProvider = errors.New("no suitable provider")

	// ErrNoDefaultProvider aborts startup when the neural pipeline is missing.
	ErrNoDefaultProvider = errors.New("default provider unavailable")

	// ErrTextTooLong is wrapped by TextTooLongError.
	ErrTextTooLong = errors.New("text exceeds provider limit")

	// ErrSilentOutput is returned when an engine succeeds but yields no
	// usable audio.
	ErrSilentOutput = errors.New("empty or silent output")

	// ErrUnresolvableSpeaker is wrapped by SpeakerError.
	ErrUnresolvableSpeaker = errors.New("no speaker resolvable")

	// ErrUnsupportedFormat is wrapped by FormatError.
	ErrUnsupportedFormat = errors.New("format unsupported")
)

// EngineError is an adapter-level failure of the underlying model or tool.
type EngineError struct {
	Provider string
	Err      error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s synthesis failed: %v", e.Provider, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// TextTooLongError reports a request rejected by CheckLength.
type TextTooLongError struct {
	Provider string
	Limit    int
	Got      int
}

func (e *TextTooLongError) Error() string {
	return fmt.Sprintf("%s accepts at most %d characters, got %d", e.Provider, e.Limit, e.Got)
}

func (e *TextTooLongError) Unwrap() error { return ErrTextTooLong }

// SpeakerError reports that the clone backend could map the request to
// neither a reference file nor a built-in speaker.
type SpeakerError struct {
	VoiceID      string
	ExpectedPath string
}

func (e *SpeakerError) Error() string {
	switch {
	case e.ExpectedPath == "":
		return "no speaker resolvable: provide a voice with a reference sample or pick a built-in speaker"
	case e.VoiceID == "":
		return fmt.Sprintf("no speaker resolvable: no voice given and no built-in speakers; place reference audio at %s",
			e.ExpectedPath)
	}
	return fmt.Sprintf("no speaker resolvable for voice %q: expected reference audio at %s or a built-in speaker name",
		e.VoiceID, e.ExpectedPath)
}

func (e *SpeakerError) Unwrap() error { return ErrUnresolvableSpeaker }

// FormatError reports an output format this deployment cannot produce.
// Missing names the absent capability, if any.
type FormatError struct {
	Format  string
	Missing string
	Err     error
}

func (e *FormatError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s export failed (ensure %s is installed and accessible): %v", e.Format, e.Missing, e.Err)
	case e.Missing != "":
		return fmt.Sprintf("%s requires %s installed and on PATH", e.Format, e.Missing)
	default:
		return fmt.Sprintf("%s not supported", e.Format)
	}
}

func (e *FormatError) Unwrap() error { return ErrUnsupportedFormat }

// StatusCode maps an error from the synthesis path to an HTTP status.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrNoProvider),
		errors.Is(err, ErrSilentOutput),
		errors.Is(err, ErrUnresolvableSpeaker),
		errors.Is(err, ErrTextTooLong):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode is a short machine-readable name for err, used in JSON bodies
// and metric labels.
func ErrorCode(err error) string {
	var engineErr *EngineError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, ErrNoProvider):
		return "no_provider"
	case errors.Is(err, ErrSilentOutput):
		return "silent_output"
	case errors.Is(err, ErrUnresolvableSpeaker):
		return "unresolvable_speaker"
	case errors.Is(err, ErrTextTooLong):
		return "text_too_long"
	case errors.As(err, &engineErr):
		return "engine_failure"
	default:
		return "internal"
	}
}

// Package encoder turns normalized mono samples into the container a client
// asked for. WAV is produced in-process and is the canonical intermediate;
// MP3 is transcoded from it by ffmpeg.
package encoder

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/nadzzz/parrot/internal/audio"
	"github.com/nadzzz/parrot/internal/config"
	"github.com/nadzzz/parrot/internal/tts"
)

// Output formats.
const (
	FormatWAV = "wav"
	FormatMP3 = "mp3"
	FormatOGG = "ogg"
)

// MIME types per format.
const (
	MIMEWAV = "audio/wav"
	MIMEMP3 = "audio/mpeg"
)

// Transcoder runs an external tool with stdin and returns its stdout.
type Transcoder func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)

// Encoder encodes samples to a requested format.
type Encoder struct {
	ffmpeg    string
	bitrate   string
	lookPath  func(string) (string, error)
	transcode Transcoder
	logger    *slog.Logger
}

// Option customizes an Encoder.
type Option func(*Encoder)

// WithLookPath replaces the PATH lookup used to find ffmpeg.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(e *Encoder) { e.lookPath = fn }
}

// WithTranscoder replaces the ffmpeg process runner.
func WithTranscoder(t Transcoder) Option {
	return func(e *Encoder) { e.transcode = t }
}

// New creates an Encoder from config.
func New(cfg config.EncoderConfig, opts ...Option) *Encoder {
	e := &Encoder{
		ffmpeg:    cfg.FFmpeg,
		bitrate:   cfg.MP3Bitrate,
		lookPath:  exec.LookPath,
		transcode: runProcess,
		logger:    slog.With("component", "encoder"),
	}
	if e.ffmpeg == "" {
		e.ffmpeg = "ffmpeg"
	}
	if e.bitrate == "" {
		e.bitrate = "192k"
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Normalize lower-cases a requested format. Anything other than mp3 and ogg
// means WAV.
func Normalize(format string) string {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case FormatMP3, FormatOGG:
		return f
	default:
		return FormatWAV
	}
}

// MP3Capable reports whether ffmpeg can be found.
func (e *Encoder) MP3Capable() bool {
	_, err := e.lookPath(e.ffmpeg)
	return err == nil
}

// Encode renders samples at rate into format. The WAV intermediate keeps the
// source rate; nothing is resampled.
func (e *Encoder) Encode(ctx context.Context, samples []float32, rate int, format string) ([]byte, string, error) {
	wav := audio.EncodeWAV(samples, rate)

	switch Normalize(format) {
	case FormatMP3:
		data, err := e.mp3(ctx, wav)
		if err != nil {
			return nil, "", err
		}
		return data, MIMEMP3, nil
	case FormatOGG:
		return nil, "", &tts.FormatError{Format: "OGG"}
	default:
		return wav, MIMEWAV, nil
	}
}

func (e *Encoder) mp3(ctx context.Context, wav []byte) ([]byte, error) {
	path, err := e.lookPath(e.ffmpeg)
	if err != nil {
		return nil, &tts.FormatError{Format: "MP3", Missing: "ffmpeg"}
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "wav", "-i", "pipe:0",
		"-codec:a", "libmp3lame", "-b:a", e.bitrate,
		"-f", "mp3", "pipe:1",
	}
	out, err := e.transcode(ctx, wav, path, args...)
	if err != nil {
		e.logger.Warn("mp3 transcode failed", "error", err)
		return nil, &tts.FormatError{Format: "MP3", Missing: "ffmpeg", Err: err}
	}
	if len(out) == 0 {
		return nil, &tts.FormatError{Format: "MP3", Missing: "ffmpeg", Err: fmt.Errorf("ffmpeg produced no output")}
	}
	return out, nil
}

func runProcess(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return stdout.Bytes(), nil
}

// Package audio holds the sample-level primitives shared by the providers and
// the pipeline: the canonical 16-bit PCM WAV container, PCM conversions,
// channel mixdown and peak measurement.
//
// The canonical buffer everywhere in parrot is mono []float32 in [-1, 1] at
// the rate the engine produced. Nothing in this package resamples.
package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVHeaderSize is the size of the canonical RIFF/WAVE header.
const WAVHeaderSize = 44

// EncodeWAV wraps mono float samples in a 16-bit PCM WAV container at
// sampleRate.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	return pcmToWAV(FloatToPCM16(samples), sampleRate, 1, 2)
}

// pcmToWAV wraps raw little-endian PCM data in a WAV container.
func pcmToWAV(pcm []byte, sampleRate, channels, bytesPerSample int) []byte {
	dataLen := len(pcm)
	fileLen := 36 + dataLen // 44-byte header minus the 8-byte RIFF preamble

	buf := &bytes.Buffer{}
	buf.Grow(WAVHeaderSize + dataLen)

	// RIFF header
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(fileLen))
	buf.WriteString("WAVE")

	// fmt subchunk
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))         // subchunk1 size
	_ = binary.Write(buf, binary.LittleEndian, uint16(1))          // audio format (PCM)
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))   // channels
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate)) // sample rate
	byteRate := sampleRate * channels * bytesPerSample
	_ = binary.Write(buf, binary.LittleEndian, uint32(byteRate)) // byte rate
	blockAlign := channels * bytesPerSample
	_ = binary.Write(buf, binary.LittleEndian, uint16(blockAlign))       // block align
	_ = binary.Write(buf, binary.LittleEndian, uint16(bytesPerSample*8)) // bits per sample

	// data subchunk
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(pcm)

	return buf.Bytes()
}

// DecodeWAV reads an integer PCM WAV stream and returns mono float samples
// (multi-channel input is mixed down) and the stream's sample rate.
func DecodeWAV(r io.ReadSeeker) ([]float32, int, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		if err := d.Err(); err != nil {
			return nil, 0, fmt.Errorf("reading wav header: %w", err)
		}
		return nil, 0, fmt.Errorf("not a valid wav stream")
	}
	if d.WavAudioFormat != 1 {
		return nil, 0, fmt.Errorf("unsupported wav encoding %d (want integer PCM)", d.WavAudioFormat)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("reading wav samples: %w", err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 {
		return nil, 0, fmt.Errorf("wav stream has no sample rate")
	}

	return intBufferToMono(buf), buf.Format.SampleRate, nil
}

// DecodeWAVBytes is DecodeWAV over an in-memory file.
func DecodeWAVBytes(data []byte) ([]float32, int, error) {
	return DecodeWAV(bytes.NewReader(data))
}

func intBufferToMono(buf *goaudio.IntBuffer) []float32 {
	depth := buf.SourceBitDepth
	if depth <= 0 {
		depth = 16
	}
	full := float64(int64(1)<<(depth-1) - 1)

	interleaved := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		f := float64(v)
		if depth == 8 {
			// 8-bit WAV is unsigned.
			f -= 128
		}
		interleaved[i] = clamp(float32(f / full))
	}
	return Mixdown(interleaved, buf.Format.NumChannels)
}

// FloatToPCM16 converts float samples to 16-bit little-endian PCM, clipping
// anything outside [-1, 1].
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int16(math.Round(float64(clamp(s)) * math.MaxInt16))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// PCMToFloat converts little-endian integer PCM of the given sample width
// (1, 2 or 4 bytes) to float samples, then mixes channels down to mono.
func PCMToFloat(pcm []byte, width, channels int) ([]float32, error) {
	if width != 1 && width != 2 && width != 4 {
		return nil, fmt.Errorf("unsupported sample width %d", width)
	}
	if channels < 1 {
		channels = 1
	}
	n := len(pcm) / width
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		b := pcm[i*width:]
		switch width {
		case 1:
			out[i] = float32(int(b[0])-128) / math.MaxInt8
		case 2:
			out[i] = float32(int16(binary.LittleEndian.Uint16(b))) / math.MaxInt16
		case 4:
			out[i] = float32(float64(int32(binary.LittleEndian.Uint32(b))) / math.MaxInt32)
		}
		out[i] = clamp(out[i])
	}
	return Mixdown(out, channels), nil
}

// Mixdown averages interleaved frames into a mono signal. A trailing partial
// frame is dropped.
func Mixdown(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	mono := make([]float32, frames)
	for f := 0; f < frames; f++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += interleaved[f*channels+c]
		}
		mono[f] = sum / float32(channels)
	}
	return mono
}

func clamp(s float32) float32 {
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	default:
		return s
	}
}

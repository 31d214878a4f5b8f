// Package wyoming is a minimal client for the Wyoming protocol spoken by
// local neural TTS servers (Piper, Kokoro wrappers, ...).
//
// Each event on the wire is:
//
//	{"type": "...", "data_length": N, "payload_length": M}\n
//	<N bytes of JSON data>      (optional; older servers inline "data" in the header)
//	<M bytes of binary payload> (optional)
package wyoming

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"
)

// Event types used by the TTS subset of the protocol.
const (
	TypeDescribe   = "describe"
	TypeInfo       = "info"
	TypeSynthesize = "synthesize"
	TypeAudioStart = "audio-start"
	TypeAudioChunk = "audio-chunk"
	TypeAudioStop  = "audio-stop"
	TypeError      = "error"
)

// maxHeaderLine bounds a single header line.
const maxHeaderLine = 1 << 20

// Event is one protocol message.
type Event struct {
	Type    string
	Data    map[string]any
	Payload []byte
}

type header struct {
	Type          string         `json:"type"`
	Version       string         `json:"version,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	DataLength    int            `json:"data_length,omitempty"`
	PayloadLength int            `json:"payload_length,omitempty"`
}

// WriteEvent encodes evt onto w.
func WriteEvent(w io.Writer, evt Event) error {
	h := header{Type: evt.Type, Version: "1.0.0", PayloadLength: len(evt.Payload)}

	var data []byte
	if len(evt.Data) > 0 {
		var err error
		if data, err = json.Marshal(evt.Data); err != nil {
			return fmt.Errorf("marshalling event data: %w", err)
		}
		h.DataLength = len(data)
	}

	line, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshalling event header: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(line) + 1 + len(data) + len(evt.Payload))
	buf.Write(line)
	buf.WriteByte('\n')
	buf.Write(data)
	buf.Write(evt.Payload)
	_, err = w.Write(buf.Bytes())
	return err
}

// ReadEvent decodes the next event from r.
func ReadEvent(r *bufio.Reader) (*Event, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	var h header
	if err := json.Unmarshal(line, &h); err != nil {
		return nil, fmt.Errorf("invalid wyoming header %q: %w", truncate(line, 80), err)
	}
	if h.Type == "" {
		return nil, fmt.Errorf("wyoming header without type: %q", truncate(line, 80))
	}

	evt := &Event{Type: h.Type, Data: h.Data}

	if h.DataLength > 0 {
		raw := make([]byte, h.DataLength)
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, fmt.Errorf("reading data: %w", err)
		}
		extra := map[string]any{}
		if err := json.Unmarshal(raw, &extra); err != nil {
			return nil, fmt.Errorf("unmarshalling data: %w", err)
		}
		if evt.Data == nil {
			evt.Data = extra
		} else {
			for k, v := range extra {
				evt.Data[k] = v
			}
		}
	}

	if h.PayloadLength > 0 {
		evt.Payload = make([]byte, h.PayloadLength)
		if _, err := io.ReadFull(r, evt.Payload); err != nil {
			return nil, fmt.Errorf("reading payload: %w", err)
		}
	}

	return evt, nil
}

func readLine(r *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			return nil, err
		}
		line = append(line, chunk...)
		if len(line) > maxHeaderLine {
			return nil, fmt.Errorf("header line exceeds %d bytes", maxHeaderLine)
		}
		if !isPrefix {
			return line, nil
		}
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// VoiceInfo is one voice advertised by a server.
type VoiceInfo struct {
	Name      string
	Languages []string
}

// Info is the subset of a server's "info" reply parrot uses.
type Info struct {
	Voices []VoiceInfo
}

// Audio is the raw output of one synthesize round-trip.
type Audio struct {
	PCM      []byte
	Rate     int
	Width    int
	Channels int
}

// Client talks to one Wyoming server. Connections are per call.
type Client struct {
	addr        string
	dialTimeout time.Duration
	ioTimeout   time.Duration
}

// NewClient creates a client for addr ("host:port"; tcp:// is accepted).
// ioTimeout bounds a call when ctx carries no deadline.
func NewClient(addr string, dialTimeout, ioTimeout time.Duration) *Client {
	addr = strings.TrimPrefix(addr, "tcp://")
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	if ioTimeout <= 0 {
		ioTimeout = 60 * time.Second
	}
	return &Client{addr: addr, dialTimeout: dialTimeout, ioTimeout: ioTimeout}
}

// Addr returns the server address.
func (c *Client) Addr() string { return c.addr }

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	if c.addr == "" {
		return nil, fmt.Errorf("no wyoming endpoint configured")
	}
	dialer := net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", c.addr, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(c.ioTimeout))
	}

	// Unblock reads when ctx is cancelled mid-call.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })
	return &ctxConn{Conn: conn, stop: stop}, nil
}

type ctxConn struct {
	net.Conn
	stop func() bool
}

func (c *ctxConn) Close() error {
	c.stop()
	return c.Conn.Close()
}

// Describe asks the server which voices it offers.
func (c *Client) Describe(ctx context.Context) (*Info, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := WriteEvent(conn, Event{Type: TypeDescribe}); err != nil {
		return nil, fmt.Errorf("sending describe: %w", err)
	}

	r := bufio.NewReader(conn)
	for {
		evt, err := ReadEvent(r)
		if err != nil {
			return nil, fmt.Errorf("reading info: %w", err)
		}
		if evt.Type != TypeInfo {
			slog.Debug("wyoming: skipping event while waiting for info", "type", evt.Type)
			continue
		}
		return parseInfo(evt.Data), nil
	}
}

func parseInfo(data map[string]any) *Info {
	info := &Info{}
	programs, _ := data["tts"].([]any)
	for _, p := range programs {
		prog, _ := p.(map[string]any)
		voices, _ := prog["voices"].([]any)
		for _, v := range voices {
			vm, _ := v.(map[string]any)
			name, _ := vm["name"].(string)
			if name == "" {
				continue
			}
			vi := VoiceInfo{Name: name}
			langs, _ := vm["languages"].([]any)
			for _, l := range langs {
				if s, ok := l.(string); ok {
					vi.Languages = append(vi.Languages, s)
				}
			}
			info.Voices = append(info.Voices, vi)
		}
	}
	return info
}

// Synthesize renders text with the named voice and returns the raw PCM.
// language is optional.
func (c *Client) Synthesize(ctx context.Context, text, voice, language string) (*Audio, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	voiceData := map[string]any{}
	if voice != "" {
		voiceData["name"] = voice
	}
	if language != "" {
		voiceData["language"] = language
	}
	data := map[string]any{"text": text}
	if len(voiceData) > 0 {
		data["voice"] = voiceData
	}
	if err := WriteEvent(conn, Event{Type: TypeSynthesize, Data: data}); err != nil {
		return nil, fmt.Errorf("sending synthesize event: %w", err)
	}

	out := &Audio{Rate: 22050, Width: 2, Channels: 1}
	var pcm bytes.Buffer
	r := bufio.NewReader(conn)

	// audio-start -> audio-chunk* -> audio-stop
	for {
		evt, err := ReadEvent(r)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("reading wyoming event: %w", err)
		}

		switch evt.Type {
		case TypeAudioStart, TypeAudioChunk:
			applyFormat(out, evt.Data)
			if len(evt.Payload) > 0 {
				pcm.Write(evt.Payload)
			}
		case TypeAudioStop:
			out.PCM = pcm.Bytes()
			return out, nil
		case TypeError:
			msg := "unknown error"
			if t, ok := evt.Data["text"].(string); ok && t != "" {
				msg = t
			}
			return nil, fmt.Errorf("server error: %s", msg)
		default:
			slog.Debug("wyoming: unknown event", "type", evt.Type)
		}
	}
}

func applyFormat(a *Audio, data map[string]any) {
	if v, ok := data["rate"].(float64); ok && v > 0 {
		a.Rate = int(v)
	}
	if v, ok := data["width"].(float64); ok && v > 0 {
		a.Width = int(v)
	}
	if v, ok := data["channels"].(float64); ok && v > 0 {
		a.Channels = int(v)
	}
}

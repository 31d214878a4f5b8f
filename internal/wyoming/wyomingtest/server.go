// Package wyomingtest runs an in-process Wyoming TTS server for tests.
package wyomingtest

import (
	"bufio"
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/nadzzz/parrot/internal/wyoming"
)

// Server answers describe and synthesize events with canned responses.
type Server struct {
	// Voices are advertised in the info reply: name -> languages.
	Voices map[string][]string

	// PCM is streamed back for every synthesize request, split into
	// ChunkSize-byte chunks.
	PCM       []byte
	ChunkSize int
	Rate      int
	Width     int
	Channels  int

	// ErrorText, when set, answers synthesize with an error event.
	ErrorText string

	listener net.Listener
	wg       sync.WaitGroup

	synths  atomic.Int64
	mu      sync.Mutex
	lastReq map[string]any
}

// Start listens on a loopback port and registers cleanup with t.
func (s *Server) Start(t testing.TB) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("wyomingtest: listen: %v", err)
	}
	s.listener = lis
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.Close)
	return lis.Addr().String()
}

// Close stops the server.
func (s *Server) Close() {
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
}

// Synthesized returns the number of synthesize events handled.
func (s *Server) Synthesized() int { return int(s.synths.Load()) }

// LastSynthesize returns the data of the most recent synthesize event.
func (s *Server) LastSynthesize() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReq
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			s.handle(conn)
		}()
	}
}

func (s *Server) handle(conn net.Conn) {
	evt, err := wyoming.ReadEvent(bufio.NewReader(conn))
	if err != nil {
		return
	}

	switch evt.Type {
	case wyoming.TypeDescribe:
		voices := make([]any, 0, len(s.Voices))
		for name, langs := range s.Voices {
			ls := make([]any, len(langs))
			for i, l := range langs {
				ls[i] = l
			}
			voices = append(voices, map[string]any{"name": name, "languages": ls})
		}
		_ = wyoming.WriteEvent(conn, wyoming.Event{Type: wyoming.TypeInfo, Data: map[string]any{
			"tts": []any{map[string]any{"name": "fake", "voices": voices}},
		}})

	case wyoming.TypeSynthesize:
		s.synths.Add(1)
		s.mu.Lock()
		s.lastReq = evt.Data
		s.mu.Unlock()

		if s.ErrorText != "" {
			_ = wyoming.WriteEvent(conn, wyoming.Event{Type: wyoming.TypeError, Data: map[string]any{"text": s.ErrorText}})
			return
		}

		format := map[string]any{"rate": s.or(s.Rate, 22050), "width": s.or(s.Width, 2), "channels": s.or(s.Channels, 1)}
		_ = wyoming.WriteEvent(conn, wyoming.Event{Type: wyoming.TypeAudioStart, Data: format})
		chunk := s.or(s.ChunkSize, 1024)
		for off := 0; off < len(s.PCM); off += chunk {
			end := min(off+chunk, len(s.PCM))
			_ = wyoming.WriteEvent(conn, wyoming.Event{Type: wyoming.TypeAudioChunk, Data: format, Payload: s.PCM[off:end]})
		}
		_ = wyoming.WriteEvent(conn, wyoming.Event{Type: wyoming.TypeAudioStop})
	}
}

func (s *Server) or(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

package grpc

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/nadzzz/parrot/internal/message"
)

// CodecName is the content-subtype parrot messages are exchanged with:
// application/grpc+json.
const CodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

// Client calls parrot.v1.Speech on a connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Synthesize calls parrot.v1.Speech/Synthesize.
func (c *Client) Synthesize(ctx context.Context, req *message.SpeechRequest, opts ...grpc.CallOption) (*message.SpeechResponse, error) {
	out := new(message.SpeechResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, SynthesizeMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ListVoices calls parrot.v1.Speech/ListVoices.
func (c *Client) ListVoices(ctx context.Context, req *message.VoicesRequest, opts ...grpc.CallOption) (*message.VoiceList, error) {
	out := new(message.VoiceList)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, ListVoicesMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

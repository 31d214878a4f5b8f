// Package grpc implements the gRPC transport for parrot.
//
// The service is parrot.v1.Speech with two unary methods, Synthesize and
// ListVoices. Messages travel with the "json" content-subtype so that the
// same wire types back both HTTP and gRPC. The standard grpc.health.v1
// service reports one status per registered provider.
package grpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/nadzzz/parrot/internal/auth"
	"github.com/nadzzz/parrot/internal/dispatch"
	"github.com/nadzzz/parrot/internal/message"
	"github.com/nadzzz/parrot/internal/transport"
	"github.com/nadzzz/parrot/internal/tts"
)

const (
	serviceName = "parrot.v1.Speech"

	// SynthesizeMethod is the full method name of the synthesis call.
	SynthesizeMethod = "/" + serviceName + "/Synthesize"
	// ListVoicesMethod is the full method name of the catalog call.
	ListVoicesMethod = "/" + serviceName + "/ListVoices"
)

// Options configures the gRPC transport.
type Options struct {
	Port int

	// Auth guards Synthesize. Nil disables authentication.
	Auth *auth.Authenticator

	// Providers are reported SERVING on the health service, each under its
	// own service name, alongside the overall "" status.
	Providers []string
}

// Transport implements transport.Transport over gRPC.
type Transport struct {
	opts   Options
	server *grpc.Server
	health *health.Server
}

// New creates a new gRPC transport.
func New(opts Options) *Transport {
	if opts.Auth == nil {
		opts.Auth = auth.New("")
	}
	return &Transport{opts: opts}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "grpc" }

// Listen starts the gRPC server and routes incoming requests to svc.
func (t *Transport) Listen(ctx context.Context, svc transport.Service) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", t.opts.Port))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	slog.Info("grpc transport listening", "port", t.opts.Port, "auth", t.opts.Auth.Enabled())
	return t.Serve(ctx, lis, svc)
}

// Serve runs the server on lis until ctx is cancelled.
func (t *Transport) Serve(ctx context.Context, lis net.Listener, svc transport.Service) error {
	t.server = grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			logInterceptor,
			t.opts.Auth.UnaryInterceptor(SynthesizeMethod),
		),
	)
	t.server.RegisterService(&serviceDesc, &speechServer{svc: svc})

	t.health = health.NewServer()
	t.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	t.health.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	for _, name := range t.opts.Providers {
		t.health.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)
	}
	healthpb.RegisterHealthServer(t.server, t.health)

	go func() {
		<-ctx.Done()
		slog.Info("grpc transport shutting down")
		t.health.Shutdown()
		t.server.GracefulStop()
	}()

	if err := t.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// Close gracefully stops the gRPC server.
func (t *Transport) Close() error {
	if t.health != nil {
		t.health.Shutdown()
	}
	if t.server != nil {
		t.server.GracefulStop()
	}
	return nil
}

// SpeechServer is the server API of parrot.v1.Speech.
type SpeechServer interface {
	Synthesize(context.Context, *message.SpeechRequest) (*message.SpeechResponse, error)
	ListVoices(context.Context, *message.VoicesRequest) (*message.VoiceList, error)
}

type speechServer struct {
	svc transport.Service
}

func (s *speechServer) Synthesize(ctx context.Context, req *message.SpeechRequest) (*message.SpeechResponse, error) {
	ctx = dispatch.WithRequestID(ctx, firstMetadata(ctx, "x-request-id"))
	out, err := s.svc.Speak(ctx, req.ToRequest())
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &message.SpeechResponse{
		ContentType:     out.MIMEType,
		Format:          out.Format,
		Provider:        out.Provider,
		SampleRate:      out.SampleRate,
		DurationSeconds: out.Duration(),
	}
	resp.SetAudioBytes(out.Data)
	return resp, nil
}

// ListVoices returns the merged catalog when Rich is set. Otherwise only
// the ids of the legacy list are filled in.
func (s *speechServer) ListVoices(ctx context.Context, req *message.VoicesRequest) (*message.VoiceList, error) {
	if req.Rich {
		return &message.VoiceList{Voices: s.svc.RichVoices(ctx)}, nil
	}
	ids := s.svc.VoiceIDs(ctx)
	voices := make([]tts.Voice, len(ids))
	for i, id := range ids {
		voices[i] = tts.Voice{ID: id}
	}
	return &message.VoiceList{Voices: voices}, nil
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*SpeechServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Synthesize", Handler: synthesizeHandler},
		{MethodName: "ListVoices", Handler: listVoicesHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "parrot/v1/speech.proto",
}

func synthesizeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(message.SpeechRequest)
	if err := dec(in); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	if interceptor == nil {
		return srv.(SpeechServer).Synthesize(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SynthesizeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SpeechServer).Synthesize(ctx, req.(*message.SpeechRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listVoicesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(message.VoicesRequest)
	if err := dec(in); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	if interceptor == nil {
		return srv.(SpeechServer).ListVoices(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListVoicesMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SpeechServer).ListVoices(ctx, req.(*message.VoicesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// toStatus maps a synthesis error onto a gRPC status.
func toStatus(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	var code codes.Code
	switch tts.StatusCode(err) {
	case 401:
		code = codes.Unauthenticated
	case 400:
		code = codes.InvalidArgument
	case 415:
		code = codes.Unimplemented
	case 422:
		code = codes.FailedPrecondition
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

func logInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	slog.Debug("grpc call", "method", info.FullMethod, "code", status.Code(err).String(), "took", time.Since(start))
	return resp, err
}

func firstMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

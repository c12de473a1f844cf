package engine

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ashureev/eduvane/internal/domain"
	"github.com/ashureev/eduvane/internal/pipeline"
)

// EngineServer is the server-side handler set for the Engine service.
type EngineServer interface {
	Respond(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Classify(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EngineServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Respond", Handler: unaryHandler(respondMethod, EngineServer.Respond)},
		{MethodName: "Classify", Handler: unaryHandler(classifyMethod, EngineServer.Classify)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "eduvane/engine/v1/engine.proto",
}

type methodFunc func(EngineServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call methodFunc) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(EngineServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(EngineServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Server adapts a pipeline.Responder to the Engine service.
type Server struct {
	responder pipeline.Responder
	logger    *slog.Logger
}

// NewServer creates an Engine service implementation.
func NewServer(responder pipeline.Responder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{responder: responder, logger: logger}
}

var _ EngineServer = (*Server)(nil)

// Respond implements EngineServer.
func (s *Server) Respond(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req domain.ReasoningRequest
	if err := decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	resp, err := s.responder.Respond(ctx, req)
	if err != nil {
		s.logger.Error("engine: respond failed", "user_id", req.UserID, "session_id", req.SessionID, "error", err)
		return nil, status.FromContextError(err).Err()
	}
	out, err := encode(resp)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// Classify implements EngineServer.
func (s *Server) Classify(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req domain.ReasoningRequest
	if err := decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	res, err := s.responder.Classify(ctx, req)
	if err != nil {
		return nil, status.FromContextError(err).Err()
	}
	out, err := encode(res)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// sharedSecretInterceptor rejects Engine calls without the shared secret.
// Health checks are left open.
func sharedSecretInterceptor(secret string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if secret == "" || !strings.HasPrefix(info.FullMethod, "/"+ServiceName+"/") {
			return handler(ctx, req)
		}
		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get(SharedSecretHeader)
		if len(values) == 0 || subtle.ConstantTimeCompare([]byte(values[0]), []byte(secret)) != 1 {
			return nil, status.Error(codes.Unauthenticated, "invalid shared secret")
		}
		return handler(ctx, req)
	}
}

// NewGRPCServer builds a grpc.Server exposing the Engine and health services.
func NewGRPCServer(responder pipeline.Responder, sharedSecret string, logger *slog.Logger) *grpc.Server {
	gs := grpc.NewServer(
		grpc.MaxRecvMsgSize(maxMessageBytes),
		grpc.MaxSendMsgSize(maxMessageBytes),
		grpc.UnaryInterceptor(sharedSecretInterceptor(sharedSecret)),
	)
	gs.RegisterService(&serviceDesc, NewServer(responder, logger))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	return gs
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ashureev/eduvane/internal/domain"
	"github.com/ashureev/eduvane/internal/pipeline"
)

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
)

// GrpcClientConfig holds configuration for the remote engine client.
type GrpcClientConfig struct {
	Address          string
	SharedSecret     string
	ConnectTimeout   time.Duration
	RequestTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultGrpcClientConfig returns default configuration for addr.
func DefaultGrpcClientConfig(addr string) GrpcClientConfig {
	return GrpcClientConfig{
		Address:          addr,
		ConnectTimeout:   5 * time.Second,
		RequestTimeout:   90 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// GrpcClient is a pipeline.Responder backed by a remote engine.
type GrpcClient struct {
	conn    *grpc.ClientConn
	cfg     GrpcClientConfig
	logger  *slog.Logger
	ownConn bool
}

var _ pipeline.Responder = (*GrpcClient)(nil)

// Dial connects to a remote engine and waits until the connection is ready.
func Dial(cfg GrpcClientConfig, logger *slog.Logger, opts ...grpc.DialOption) (*GrpcClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.KeepaliveTime,
			Timeout:             cfg.KeepaliveTimeout,
			PermitWithoutStream: false,
		}),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxMessageBytes),
			grpc.MaxCallSendMsgSize(maxMessageBytes),
		),
	}
	dialOpts = append(dialOpts, opts...)

	conn, err := grpc.NewClient(cfg.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to engine at %s: %w", cfg.Address, err)
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("engine at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to remote engine", "address", cfg.Address)
	c := NewGrpcClient(conn, cfg, logger)
	c.ownConn = true
	return c, nil
}

// NewGrpcClient wraps an existing connection.
func NewGrpcClient(conn *grpc.ClientConn, cfg GrpcClientConfig, logger *slog.Logger) *GrpcClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &GrpcClient{conn: conn, cfg: cfg, logger: logger}
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Close closes the connection when the client owns it.
func (c *GrpcClient) Close() {
	if c.conn != nil && c.ownConn {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("failed to close gRPC connection", "error", err)
		}
	}
}

// Health checks the remote engine's serving status.
func (c *GrpcClient) Health(ctx context.Context) error {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("engine not serving: %s", resp.GetStatus())
	}
	return nil
}

func (c *GrpcClient) invoke(ctx context.Context, method string, req, resp any) error {
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}
	if c.cfg.SharedSecret != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, SharedSecretHeader, c.cfg.SharedSecret)
	}
	in, err := encode(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return fmt.Errorf("engine %s: %w", method, err)
	}
	return decode(out, resp)
}

// Respond implements pipeline.Responder.
func (c *GrpcClient) Respond(ctx context.Context, req domain.ReasoningRequest) (domain.ReasoningResponse, error) {
	var resp domain.ReasoningResponse
	if err := c.invoke(ctx, respondMethod, req, &resp); err != nil {
		c.logger.Warn("remote respond failed", "user_id", req.UserID, "session_id", req.SessionID, "error", err)
		return domain.ReasoningResponse{}, err
	}
	return resp, nil
}

// Classify implements pipeline.Responder.
func (c *GrpcClient) Classify(ctx context.Context, req domain.ReasoningRequest) (domain.IntentResult, error) {
	var res domain.IntentResult
	if err := c.invoke(ctx, classifyMethod, req, &res); err != nil {
		return domain.IntentResult{}, err
	}
	return res, nil
}

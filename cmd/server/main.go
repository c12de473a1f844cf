// Eduvane - homework review and practice gateway
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/eduvane/internal/api"
	"github.com/ashureev/eduvane/internal/config"
	"github.com/ashureev/eduvane/internal/engine"
	"github.com/ashureev/eduvane/internal/gateway"
	"github.com/ashureev/eduvane/internal/identity"
	"github.com/ashureev/eduvane/internal/middleware"
	"github.com/ashureev/eduvane/internal/pipeline"
	"github.com/ashureev/eduvane/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.Auth.DevMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	kvStore, err := openKV(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize key-value store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := kvStore.Close(); closeErr != nil {
			slog.Error("Failed to close key-value store", "error", closeErr)
		}
	}()

	repo, err := openRepository(cfg, kvStore, logger)
	if err != nil {
		slog.Error("Failed to initialize history store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()
	if err := repo.Ping(ctx); err != nil {
		slog.Error("History store health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("History store connected")
	store.StartRetentionWorker(ctx, repo, cfg.HistoryRetention, logger)

	providers, err := openProviders(ctx, cfg, logger)
	if err != nil {
		slog.Error("Failed to initialize providers", "error", err)
		os.Exit(1)
	}
	defer providers.Close()

	orchestrator := newOrchestrator(cfg, kvStore, providers, logger)

	// The gateway delegates to a remote engine when one is configured.
	var responder pipeline.Responder = orchestrator
	if cfg.Engine.Addr != "" {
		clientCfg := engine.DefaultGrpcClientConfig(cfg.Engine.Addr)
		clientCfg.SharedSecret = cfg.Engine.SharedSecret
		client, err := engine.Dial(clientCfg, logger)
		if err != nil {
			slog.Error("Failed to connect to reasoning engine", "address", cfg.Engine.Addr, "error", err)
			os.Exit(1)
		}
		defer client.Close()
		responder = client
		slog.Info("Using remote reasoning engine", "address", cfg.Engine.Addr)
	}

	if cfg.Engine.ListenAddr != "" {
		lis, err := net.Listen("tcp", cfg.Engine.ListenAddr)
		if err != nil {
			slog.Error("Failed to listen for engine gRPC", "address", cfg.Engine.ListenAddr, "error", err)
			os.Exit(1)
		}
		grpcSrv := engine.NewGRPCServer(orchestrator, cfg.Engine.SharedSecret, logger)
		go func() {
			slog.Info("Engine gRPC listening", "addr", cfg.Engine.ListenAddr)
			if err := grpcSrv.Serve(lis); err != nil {
				slog.Error("Engine gRPC server failed", "error", err)
			}
		}()
		defer grpcSrv.GracefulStop()
	}

	conversationLogger, err := gateway.NewConversationLogger(gateway.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := conversationLogger.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	guard := newGuard(cfg, providers, logger)
	svc := gateway.NewService(responder, guard, repo, gateway.Config{
		HistoryWindow: cfg.HistoryWindow,
		RecentWindow:  cfg.RecentWindow,
	}, conversationLogger, logger)

	overrides := identity.NewRoleOverrides(kvStore, 0)
	resolver := identity.NewResolver(cfg.Auth.JWTSecret, overrides, cfg.Auth.DevMode, logger)
	if cfg.Auth.JWTSecret == "" {
		slog.Warn("AUTH_JWT_SECRET not set, bearer tokens will be rejected and only guests are served")
	}

	// Initialize handlers.
	apiHandler := api.NewHandler(svc, overrides, repo, logger)
	wsHandler := api.NewWebSocketHandler(svc, cfg.CORSOrigins, cfg.MaxBodyBytes, logger)
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	defer rateLimiter.Stop()

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	r.Use(resolver.Middleware)
	// Bearer users are throttled per user, guests per client IP.
	r.Use(rateLimiter.Handler(identity.RateLimitKey))

	apiHandler.RegisterRoutes(r)
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket connections are long-lived.
		IdleTimeout:  120 * time.Second,
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/eduvane/internal/config"
	"github.com/ashureev/eduvane/internal/intent"
	"github.com/ashureev/eduvane/internal/kv"
	"github.com/ashureev/eduvane/internal/perception"
	"github.com/ashureev/eduvane/internal/pipeline"
	"github.com/ashureev/eduvane/internal/provider"
	"github.com/ashureev/eduvane/internal/realize"
	"github.com/ashureev/eduvane/internal/reasoning"
	"github.com/ashureev/eduvane/internal/store"
)

const (
	classifyTimeout     = 8 * time.Second
	perceptionTimeout   = 20 * time.Second
	reasoningTimeout    = 30 * time.Second
	memorySweepInterval = time.Minute
	sessionMemoryTTL    = 24 * time.Hour
)

func openKV(ctx context.Context, cfg *config.Config) (kv.Store, error) {
	if cfg.Redis.Addr == "" {
		slog.Info("Using in-process key-value store")
		m := kv.NewMemory()
		m.StartSweeper(ctx, memorySweepInterval)
		return m, nil
	}
	r, err := kv.NewRedis(ctx, kv.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("Using Redis key-value store", "addr", cfg.Redis.Addr)
	return r, nil
}

// openRepository pairs SQLite with the key-value history as fallback. When
// SQLite cannot be opened the key-value history serves alone.
func openRepository(cfg *config.Config, kvStore kv.Store, logger *slog.Logger) (*store.Fallback, error) {
	secondary := store.NewKVStore(kvStore, cfg.SessionTTL)
	primary, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		logger.Warn("SQLite unavailable, using key-value history only", "path", cfg.DBPath, "error", err)
		return store.NewFallback(nil, secondary, logger), nil
	}
	return store.NewFallback(primary, secondary, logger), nil
}

// providerSet holds the configured model backends. Any field may be nil.
type providerSet struct {
	model     provider.Generator
	reasoning provider.Generator
	realizer  provider.Generator
	vision    *perception.VisionExtractor
}

func (p *providerSet) Close() {
	if p.vision != nil {
		if err := p.vision.Close(); err != nil {
			slog.Warn("Failed to close vision client", "error", err)
		}
	}
}

func modelName(gen provider.Generator) string {
	if g, ok := gen.(*provider.Gemini); ok {
		return g.Model()
	}
	return ""
}

func openProviders(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*providerSet, error) {
	p := &providerSet{}

	if cfg.Gemini.APIKey != "" {
		g, err := provider.NewGemini(ctx, provider.GeminiConfig{APIKey: cfg.Gemini.APIKey, Model: cfg.Gemini.Model})
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		p.model = g
		p.reasoning = g
		if cfg.Gemini.ReasoningModel != cfg.Gemini.Model {
			r, err := provider.NewGemini(ctx, provider.GeminiConfig{APIKey: cfg.Gemini.APIKey, Model: cfg.Gemini.ReasoningModel})
			if err != nil {
				return nil, fmt.Errorf("gemini reasoning: %w", err)
			}
			p.reasoning = r
		}
		logger.Info("Gemini provider ready", "model", g.Model(), "reasoning_model", modelName(p.reasoning))
	} else {
		logger.Warn("GEMINI_API_KEY not set, interpretation uses heuristics and grading is unavailable")
	}

	switch cfg.Realization.Provider {
	case config.ProviderGemini:
		if p.model != nil {
			p.realizer = p.model
		}
	default:
		if cfg.Realization.APIKey != "" {
			p.realizer = provider.NewOpenAICompatible(provider.OpenAIConfig{
				BaseURL: cfg.Realization.BaseURL,
				APIKey:  cfg.Realization.APIKey,
				Model:   cfg.Realization.Model,
			})
		}
	}

	if cfg.Vision.Enabled {
		creds := cfg.Vision.CredentialsJSON
		if creds == "" {
			creds = cfg.Vision.CredentialsFile
		}
		v, err := perception.NewVisionExtractor(ctx, perception.VisionClientOptions(creds)...)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Warn("Cloud Vision unavailable, OCR falls back to the model", "error", err)
			}
		} else {
			p.vision = v
		}
	}
	return p, nil
}

func newOrchestrator(cfg *config.Config, kvStore kv.Store, p *providerSet, logger *slog.Logger) *pipeline.Orchestrator {
	var chain perception.Chain
	if p.vision != nil {
		chain = append(chain, p.vision)
	}
	if p.model != nil {
		chain = append(chain, perception.NewModelExtractor(p.model))
	}
	var extractor perception.Extractor
	if len(chain) > 0 {
		extractor = chain
	}

	return pipeline.NewOrchestrator(
		intent.NewClassifier(p.model, classifyTimeout, logger),
		perception.NewStage(extractor, perceptionTimeout, logger),
		reasoning.NewEngine(p.reasoning, reasoningTimeout, logger),
		pipeline.NewMemory(kvStore, max(sessionMemoryTTL, cfg.SessionTTL)),
		logger,
	)
}

func newGuard(cfg *config.Config, p *providerSet, logger *slog.Logger) *realize.Guard {
	return realize.NewGuard(p.realizer, realize.Config{
		Enabled:      cfg.Realization.Enabled,
		Timeout:      cfg.Realization.Timeout,
		RecentWindow: cfg.RecentWindow,
	}, logger)
}

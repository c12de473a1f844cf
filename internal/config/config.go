// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileEnv names the optional YAML file whose keys mirror the environment variables.
const FileEnv = "EDUVANE_CONFIG_FILE"

// Config holds all application configuration.
type Config struct {
	Port             string
	CORSOrigins      []string
	DBPath           string
	HistoryWindow    int
	RecentWindow     int
	SessionTTL       time.Duration
	HistoryRetention time.Duration
	MaxBodyBytes     int64
	RateLimit        RateLimitConfig
	ConversationLog  ConversationLogConfig
	Realization      RealizationConfig
	Gemini           GeminiConfig
	Vision           VisionConfig
	Redis            RedisConfig
	Auth             AuthConfig
	Engine           EngineConfig
}

// RateLimitConfig bounds requests per user.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// RealizationConfig configures the linguistic realization guard and its provider.
type RealizationConfig struct {
	Enabled  bool
	Timeout  time.Duration
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
}

// GeminiConfig configures the model used for interpretation, reasoning and OCR fallback.
type GeminiConfig struct {
	APIKey         string
	Model          string
	ReasoningModel string
}

// VisionConfig configures Cloud Vision OCR.
type VisionConfig struct {
	Enabled         bool
	CredentialsFile string
	CredentialsJSON string
}

// RedisConfig selects the shared key-value store. Empty Addr means in-process memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSecret string
	DevMode   bool
}

// EngineConfig configures the gRPC reasoning boundary.
type EngineConfig struct {
	Addr         string
	ListenAddr   string
	SharedSecret string
}

// Realization providers.
const (
	ProviderOpenAICompatible = "openai_compatible"
	ProviderGemini           = "gemini"
)

// Load reads configuration from the optional YAML file and environment variables.
// Environment variables take precedence over file values.
func Load() (*Config, error) {
	src, err := newSource(os.Getenv(FileEnv))
	if err != nil {
		return nil, err
	}

	queueSize := src.getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:             src.getEnv("PORT", "8080"),
		CORSOrigins:      splitList(src.getEnv("CORS_ORIGINS", "http://localhost:5173")),
		DBPath:           src.getEnv("DB_PATH", "./data/eduvane.db"),
		HistoryWindow:    src.getEnvInt("HISTORY_WINDOW", 12),
		RecentWindow:     src.getEnvInt("RECENT_OUTPUTS_WINDOW", 8),
		SessionTTL:       src.getEnvDuration("SESSION_TTL", 24*time.Hour),
		HistoryRetention: src.getEnvDuration("HISTORY_RETENTION", 0),
		MaxBodyBytes:     int64(src.getEnvInt("MAX_REQUEST_BODY_BYTES", 8<<20)),
		RateLimit: RateLimitConfig{
			Requests: src.getEnvInt("RATE_LIMIT_REQUESTS", 120),
			Window:   src.getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       src.getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           src.getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: src.getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    src.getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
		},
		Realization: RealizationConfig{
			Enabled:  src.getEnvBool("LINGUISTIC_REALIZATION_ENABLED", true),
			Timeout:  time.Duration(src.getEnvInt("LINGUISTIC_REALIZATION_TIMEOUT_MS", 500)) * time.Millisecond,
			Provider: src.getEnv("REALIZATION_PROVIDER", ProviderOpenAICompatible),
			Model:    src.getEnv("REALIZATION_MODEL", "gpt-4o-mini"),
			BaseURL:  src.getEnv("REALIZATION_API_BASE_URL", "https://api.openai.com/v1"),
			APIKey:   src.getEnv("REALIZATION_API_KEY", ""),
		},
		Gemini: GeminiConfig{
			APIKey:         src.getEnv("GEMINI_API_KEY", ""),
			Model:          src.getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			ReasoningModel: src.getEnv("GEMINI_REASONING_MODEL", ""),
		},
		Vision: VisionConfig{
			Enabled:         src.getEnvBool("VISION_OCR_ENABLED", false),
			CredentialsFile: src.getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
			CredentialsJSON: src.getEnv("GOOGLE_APPLICATION_CREDENTIALS_JSON", ""),
		},
		Redis: RedisConfig{
			Addr:     src.getEnv("REDIS_ADDR", ""),
			Password: src.getEnv("REDIS_PASSWORD", ""),
			DB:       src.getEnvInt("REDIS_DB", 0),
			Prefix:   src.getEnv("REDIS_PREFIX", "eduvane:"),
		},
		Auth: AuthConfig{
			JWTSecret: src.getEnv("AUTH_JWT_SECRET", ""),
			DevMode:   src.getEnvBool("DEV_MODE", false),
		},
		Engine: EngineConfig{
			Addr:         src.getEnv("ENGINE_ADDR", ""),
			ListenAddr:   src.getEnv("ENGINE_LISTEN_ADDR", ""),
			SharedSecret: src.getEnv("ENGINE_SHARED_SECRET", ""),
		},
	}
	if cfg.Gemini.ReasoningModel == "" {
		cfg.Gemini.ReasoningModel = cfg.Gemini.Model
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return errors.New("DB_PATH cannot be empty")
	}
	if c.HistoryWindow <= 0 {
		return errors.New("HISTORY_WINDOW must be > 0")
	}
	if c.RecentWindow <= 0 {
		return errors.New("RECENT_OUTPUTS_WINDOW must be > 0")
	}
	if c.HistoryRetention < 0 {
		return errors.New("HISTORY_RETENTION cannot be negative")
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("MAX_REQUEST_BODY_BYTES must be > 0")
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	if c.ConversationLog.Dir == "" {
		return errors.New("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return errors.New("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	switch c.Realization.Provider {
	case ProviderOpenAICompatible, ProviderGemini:
	default:
		return fmt.Errorf("REALIZATION_PROVIDER %q is not supported", c.Realization.Provider)
	}
	if c.Engine.ListenAddr != "" && c.Engine.SharedSecret == "" {
		return errors.New("ENGINE_SHARED_SECRET is required when ENGINE_LISTEN_ADDR is set")
	}
	return nil
}

// source resolves keys from the environment first, then the YAML file.
type source struct {
	file map[string]string
}

func newSource(path string) (*source, error) {
	s := &source{file: map[string]string{}}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	for k, v := range raw {
		if v == nil {
			continue
		}
		s.file[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return s, nil
}

func (s *source) lookup(key string) (string, bool) {
	if value, ok := os.LookupEnv(key); ok {
		return value, true
	}
	value, ok := s.file[key]
	return value, ok
}

func (s *source) getEnv(key, fallback string) string {
	if value, ok := s.lookup(key); ok {
		return value
	}
	return fallback
}

func (s *source) getEnvBool(key string, fallback bool) bool {
	value, ok := s.lookup(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func (s *source) getEnvInt(key string, fallback int) int {
	value, ok := s.lookup(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func (s *source) getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := s.lookup(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

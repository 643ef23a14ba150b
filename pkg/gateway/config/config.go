package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CompletionProvider selects the reply generation backend.
type CompletionProvider string

const (
	ProviderOpenAI CompletionProvider = "openai"
	ProviderGemini CompletionProvider = "gemini"
)

type Config struct {
	Addr string

	// Provider credentials. OpenAIAPIKey is always required: transcription
	// and synthesis run there even when completions go to Gemini.
	OpenAIAPIKey string
	OpenAIBaseURL string
	GeminiAPIKey string

	CompletionProvider CompletionProvider
	CompletionModel    string

	MaxBodyBytes int64

	// Pipeline bounds.
	MinAudioBytes int
	MaxTTSChars   int
	ProviderCallTimeout time.Duration
	ChunkPause          time.Duration

	// Retention.
	SessionTTL    time.Duration
	MessageTTL    time.Duration
	SweepInterval time.Duration

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Stream endpoint.
	StreamPingInterval   time.Duration
	StreamWriteTimeout   time.Duration
	StreamMaxDuration    time.Duration

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	HandlerTimeout      time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("CAMARERO_ADDR", ":8080"),
		OpenAIAPIKey:        strings.TrimSpace(os.Getenv("CAMARERO_OPENAI_API_KEY")),
		OpenAIBaseURL:       envOr("CAMARERO_OPENAI_BASE_URL", "https://api.openai.com/v1"),
		GeminiAPIKey:        strings.TrimSpace(os.Getenv("CAMARERO_GEMINI_API_KEY")),
		CompletionProvider:  CompletionProvider(envOr("CAMARERO_COMPLETION_PROVIDER", string(ProviderOpenAI))),
		CompletionModel:     envOr("CAMARERO_COMPLETION_MODEL", ""),
		MaxBodyBytes:        envInt64Or("CAMARERO_MAX_BODY_BYTES", 8<<20), // 8 MiB
		MinAudioBytes:       envIntOr("CAMARERO_MIN_AUDIO_BYTES", 1000),
		MaxTTSChars:         envIntOr("CAMARERO_MAX_TTS_CHARS", 4000),
		ProviderCallTimeout: envDurationOr("CAMARERO_PROVIDER_TIMEOUT", 30*time.Second),
		ChunkPause:          envDurationOr("CAMARERO_CHUNK_PAUSE", 300*time.Millisecond),
		SessionTTL:          envDurationOr("CAMARERO_SESSION_TTL", time.Hour),
		MessageTTL:          envDurationOr("CAMARERO_MESSAGE_TTL", 2*time.Minute),
		SweepInterval:       envDurationOr("CAMARERO_SWEEP_INTERVAL", 30*time.Second),
		CORSAllowedOrigins:  make(map[string]struct{}),
		StreamPingInterval:  envDurationOr("CAMARERO_STREAM_PING_INTERVAL", 30*time.Second),
		StreamWriteTimeout:  envDurationOr("CAMARERO_STREAM_WRITE_TIMEOUT", 5*time.Second),
		StreamMaxDuration:   envDurationOr("CAMARERO_STREAM_MAX_DURATION", 2*time.Hour),
		ReadHeaderTimeout:   envDurationOr("CAMARERO_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:         envDurationOr("CAMARERO_READ_TIMEOUT", 30*time.Second),
		HandlerTimeout:      envDurationOr("CAMARERO_TOTAL_REQUEST_TIMEOUT", 2*time.Minute),
		ShutdownGracePeriod: envDurationOr("CAMARERO_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	for _, origin := range splitCSV(os.Getenv("CAMARERO_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	switch cfg.CompletionProvider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return Config{}, fmt.Errorf("CAMARERO_COMPLETION_PROVIDER must be one of openai|gemini")
	}

	if cfg.OpenAIAPIKey == "" {
		return Config{}, fmt.Errorf("CAMARERO_OPENAI_API_KEY must be set")
	}
	if cfg.CompletionProvider == ProviderGemini && cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("CAMARERO_GEMINI_API_KEY must be set when CAMARERO_COMPLETION_PROVIDER=gemini")
	}
	if strings.TrimSpace(cfg.OpenAIBaseURL) == "" {
		return Config{}, fmt.Errorf("CAMARERO_OPENAI_BASE_URL must not be empty")
	}

	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("CAMARERO_MAX_BODY_BYTES must be > 0")
	}
	if cfg.MinAudioBytes <= 0 {
		return Config{}, fmt.Errorf("CAMARERO_MIN_AUDIO_BYTES must be > 0")
	}
	if cfg.MaxTTSChars <= 0 {
		return Config{}, fmt.Errorf("CAMARERO_MAX_TTS_CHARS must be > 0")
	}
	if cfg.ProviderCallTimeout <= 0 {
		return Config{}, fmt.Errorf("CAMARERO_PROVIDER_TIMEOUT must be > 0")
	}
	if cfg.ChunkPause < 0 {
		return Config{}, fmt.Errorf("CAMARERO_CHUNK_PAUSE must be >= 0")
	}
	if cfg.SessionTTL <= 0 {
		return Config{}, fmt.Errorf("CAMARERO_SESSION_TTL must be > 0")
	}
	if cfg.MessageTTL <= 0 {
		return Config{}, fmt.Errorf("CAMARERO_MESSAGE_TTL must be > 0")
	}
	if cfg.SweepInterval <= 0 {
		return Config{}, fmt.Errorf("CAMARERO_SWEEP_INTERVAL must be > 0")
	}
	if cfg.MessageTTL >= cfg.SessionTTL {
		return Config{}, fmt.Errorf("CAMARERO_MESSAGE_TTL must be < CAMARERO_SESSION_TTL")
	}
	if cfg.StreamPingInterval <= 0 {
		return Config{}, fmt.Errorf("CAMARERO_STREAM_PING_INTERVAL must be > 0")
	}
	if cfg.StreamWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("CAMARERO_STREAM_WRITE_TIMEOUT must be > 0")
	}
	if cfg.StreamMaxDuration <= 0 {
		return Config{}, fmt.Errorf("CAMARERO_STREAM_MAX_DURATION must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("CAMARERO_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("CAMARERO_READ_TIMEOUT must be > 0")
	}
	if cfg.HandlerTimeout <= 0 {
		return Config{}, fmt.Errorf("CAMARERO_TOTAL_REQUEST_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("CAMARERO_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

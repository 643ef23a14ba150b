package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/camarero-ai/camarero/pkg/gateway/config"
	"github.com/camarero-ai/camarero/pkg/gateway/lifecycle"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK                 bool     `json:"ok"`
		CompletionProvider string   `json:"completion_provider"`
		Issues             []string `json:"issues,omitempty"`
	}

	if h.Lifecycle.IsDraining() {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(readyResp{
			OK:                 false,
			CompletionProvider: string(h.Config.CompletionProvider),
			Issues:             []string{"draining"},
		})
		return
	}

	issues := make([]string, 0, 4)

	switch h.Config.CompletionProvider {
	case config.ProviderOpenAI, config.ProviderGemini:
	default:
		issues = append(issues, "invalid completion_provider")
	}
	if h.Config.OpenAIAPIKey == "" {
		issues = append(issues, "openai api key not configured")
	}
	if h.Config.CompletionProvider == config.ProviderGemini && h.Config.GeminiAPIKey == "" {
		issues = append(issues, "completion_provider=gemini but no gemini api key configured")
	}
	if h.Config.MaxBodyBytes <= 0 {
		issues = append(issues, "max_body_bytes must be > 0")
	}
	if h.Config.MinAudioBytes <= 0 {
		issues = append(issues, "min_audio_bytes must be > 0")
	}
	if h.Config.MaxTTSChars <= 0 {
		issues = append(issues, "max_tts_chars must be > 0")
	}
	if h.Config.ProviderCallTimeout <= 0 {
		issues = append(issues, "provider call timeout must be > 0")
	}
	if h.Config.SessionTTL <= 0 || h.Config.MessageTTL <= 0 || h.Config.SweepInterval <= 0 {
		issues = append(issues, "retention windows must be > 0")
	}
	if h.Config.MessageTTL >= h.Config.SessionTTL {
		issues = append(issues, "message ttl must be < session ttl")
	}
	if h.Config.StreamPingInterval <= 0 || h.Config.StreamWriteTimeout <= 0 || h.Config.StreamMaxDuration <= 0 {
		issues = append(issues, "stream timeouts must be > 0")
	}
	if h.Config.ReadHeaderTimeout <= 0 || h.Config.ReadTimeout <= 0 || h.Config.HandlerTimeout <= 0 {
		issues = append(issues, "timeouts must be > 0")
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:                 ok,
		CompletionProvider: string(h.Config.CompletionProvider),
		Issues:             issues,
	})
}

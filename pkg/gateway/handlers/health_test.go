package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/camarero-ai/camarero/pkg/gateway/config"
	"github.com/camarero-ai/camarero/pkg/gateway/lifecycle"
)

func validConfig() config.Config {
	return config.Config{
		OpenAIAPIKey:       "sk-test",
		CompletionProvider: config.ProviderOpenAI,

		MaxBodyBytes:        1,
		MinAudioBytes:       1,
		MaxTTSChars:         1,
		ProviderCallTimeout: time.Second,
		SessionTTL:          time.Hour,
		MessageTTL:          time.Minute,
		SweepInterval:       time.Second,
		StreamPingInterval:  time.Second,
		StreamWriteTimeout:  time.Second,
		StreamMaxDuration:   time.Minute,
		ReadHeaderTimeout:   time.Second,
		ReadTimeout:         time.Second,
		HandlerTimeout:      time.Second,
	}
}

func TestReadyHandler_Ready(t *testing.T) {
	h := ReadyHandler{Config: validConfig()}

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestReadyHandler_MissingGeminiKey_NotReady(t *testing.T) {
	cfg := validConfig()
	cfg.CompletionProvider = config.ProviderGemini
	h := ReadyHandler{Config: cfg}

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ok, _ := resp["ok"].(bool); ok {
		t.Fatalf("expected ok=false, got ok=true")
	}
}

func TestReadyHandler_DrainingReturns503(t *testing.T) {
	lc := &lifecycle.Lifecycle{}
	lc.SetDraining(true)
	h := ReadyHandler{Config: validConfig(), Lifecycle: lc}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestHealthHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	HealthHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
}

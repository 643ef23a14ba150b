package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/camarero-ai/camarero/pkg/gateway/config"
	"github.com/camarero-ai/camarero/pkg/session"
)

type fixedTranscriber string

func (f fixedTranscriber) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	return string(f), nil
}

type fixedCompleter string

func (f fixedCompleter) Complete(ctx context.Context, system string, history []session.Turn, utterance string) (string, error) {
	return string(f), nil
}

type fixedSynthesizer []byte

func (f fixedSynthesizer) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	return []byte(f), nil
}

type noPrompts struct{}

func (noPrompts) SystemPrompt(language string) string { return "" }

func testConfig() config.Config {
	return config.Config{
		OpenAIAPIKey:       "sk-test",
		CompletionProvider: config.ProviderOpenAI,

		MaxBodyBytes:        8 << 20,
		MinAudioBytes:       1000,
		MaxTTSChars:         4000,
		ProviderCallTimeout: time.Second,
		SessionTTL:          time.Hour,
		MessageTTL:          time.Minute,
		SweepInterval:       time.Second,
		CORSAllowedOrigins:  map[string]struct{}{},
		StreamPingInterval:  time.Second,
		StreamWriteTimeout:  time.Second,
		StreamMaxDuration:   time.Minute,
		ReadHeaderTimeout:   time.Second,
		ReadTimeout:         time.Second,
		HandlerTimeout:      time.Minute,
	}
}

func testServer(t *testing.T) *Server {
	t.Helper()
	store := session.NewStore(session.DefaultStoreConfig(), nil)
	t.Cleanup(store.Close)

	pcfg := session.DefaultPipelineConfig()
	pcfg.ChunkPause = time.Millisecond
	pipeline := &session.Pipeline{
		Transcriber: fixedTranscriber("quiero patatas bravas"),
		Completer:   fixedCompleter("marchando una de bravas"),
		Synthesizer: fixedSynthesizer("mp3-bytes"),
		Prompts:     noPrompts{},
		Config:      pcfg,
	}

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return New(testConfig(), store, pipeline, logger)
}

func TestServer_Healthz(t *testing.T) {
	s := testServer(t)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID header")
	}
}

func TestServer_TranscribeThenPoll(t *testing.T) {
	s := testServer(t)
	h := s.Handler()

	audio := base64.StdEncoding.EncodeToString(make([]byte, 1500))
	body, _ := json.Marshal(map[string]any{
		"clientId": "kiosk-9",
		"action":   "transcribe",
		"language": "es",
		"data":     map[string]any{"audio": audio},
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/session/action", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("action status=%d body=%q", rr.Code, rr.Body.String())
	}

	var action struct {
		ResponseID string `json:"responseId"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &action); err != nil {
		t.Fatalf("unmarshal action: %v", err)
	}
	if action.ResponseID == "" {
		t.Fatalf("empty responseId in %q", rr.Body.String())
	}

	// The second half of the turn runs asynchronously and lands in the
	// outbox. Poll until the audio response shows up.
	deadline := time.Now().Add(2 * time.Second)
	for {
		prr := httptest.NewRecorder()
		h.ServeHTTP(prr, httptest.NewRequest(http.MethodGet, "/session/poll?clientId=kiosk-9&lastTimestamp=0", nil))
		if prr.Code != http.StatusOK {
			t.Fatalf("poll status=%d body=%q", prr.Code, prr.Body.String())
		}
		var msgs []session.Message
		if err := json.Unmarshal(prr.Body.Bytes(), &msgs); err != nil {
			t.Fatalf("unmarshal poll: %v", err)
		}
		for _, m := range msgs {
			if m.Event == session.EventAudioResponse {
				if m.Data["responseId"] != action.ResponseID {
					t.Fatalf("audio responseId = %v, want %v", m.Data["responseId"], action.ResponseID)
				}
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("no audio_response delivered; last poll = %+v", msgs)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServer_UnknownRoute404(t *testing.T) {
	s := testServer(t)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/does-not-exist", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/camarero-ai/camarero/pkg/session"
)

type fakeTranscriber struct{ text string }

func (f fakeTranscriber) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	return f.text, nil
}

type fakeCompleter struct{ reply string }

func (f fakeCompleter) Complete(ctx context.Context, system string, history []session.Turn, utterance string) (string, error) {
	return f.reply, nil
}

type fakeSynthesizer struct{ audio []byte }

func (f fakeSynthesizer) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	return f.audio, nil
}

type fakePrompts struct{}

func (fakePrompts) SystemPrompt(language string) string { return "eres un camarero" }

func newTestHandler(t *testing.T, transcript string) (*ActionHandler, *session.Store) {
	t.Helper()
	store := session.NewStore(session.DefaultStoreConfig(), nil)
	t.Cleanup(store.Close)
	cfg := session.DefaultPipelineConfig()
	cfg.ChunkPause = time.Millisecond
	return &ActionHandler{
		Store: store,
		Pipeline: &session.Pipeline{
			Transcriber: fakeTranscriber{text: transcript},
			Completer:   fakeCompleter{reply: "marchando"},
			Synthesizer: fakeSynthesizer{audio: []byte("mp3")},
			Prompts:     fakePrompts{},
			Config:      cfg,
		},
		MaxBodyBytes: 8 << 20,
	}, store
}

func postAction(t *testing.T, h *ActionHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/session/action", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestActionHandler_Ping(t *testing.T) {
	h, _ := newTestHandler(t, "")
	rr := postAction(t, h, `{"clientId":"kiosk-1","action":"ping"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ok, _ := resp["success"].(bool); !ok {
		t.Fatalf("success=%v", resp["success"])
	}
	if ts, _ := resp["timestamp"].(float64); ts <= 0 {
		t.Fatalf("timestamp=%v", resp["timestamp"])
	}
}

func TestActionHandler_MalformedJSON(t *testing.T) {
	h, _ := newTestHandler(t, "")
	rr := postAction(t, h, `{not json`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestActionHandler_MissingClientID(t *testing.T) {
	h, _ := newTestHandler(t, "")
	rr := postAction(t, h, `{"action":"ping"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestActionHandler_UnknownAction(t *testing.T) {
	h, _ := newTestHandler(t, "")
	rr := postAction(t, h, `{"clientId":"kiosk-1","action":"dance"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestActionHandler_MethodNotAllowed(t *testing.T) {
	h, _ := newTestHandler(t, "")
	req := httptest.NewRequest(http.MethodGet, "/session/action", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestActionHandler_TranscribeFlow(t *testing.T) {
	h, store := newTestHandler(t, "quiero patatas bravas")

	audio := base64.StdEncoding.EncodeToString(make([]byte, 1500))
	body, _ := json.Marshal(map[string]any{
		"clientId": "kiosk-1",
		"action":   "transcribe",
		"language": "es",
		"data":     map[string]any{"audio": audio},
	})
	rr := postAction(t, h, string(body))

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	var resp transcribeResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Success || resp.Ignored {
		t.Fatalf("resp=%+v", resp)
	}
	if resp.TranscribedText != "quiero patatas bravas" || resp.ResponseID == "" {
		t.Fatalf("resp=%+v", resp)
	}

	sess, ok := store.Lookup("kiosk-1")
	if !ok {
		t.Fatal("session not created")
	}
	deadline := time.Now().Add(2 * time.Second)
	for sess.Processing() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	var sawChunk, sawAudio bool
	for _, m := range sess.Outbox.ReadSince(0) {
		switch m.Event {
		case session.EventResponseChunk:
			sawChunk = true
		case session.EventAudioResponse:
			sawAudio = true
			if m.Data["responseId"] != resp.ResponseID {
				t.Errorf("audio responseId = %v, want %v", m.Data["responseId"], resp.ResponseID)
			}
		}
	}
	if !sawChunk || !sawAudio {
		t.Fatalf("chunk=%v audio=%v, want both delivered", sawChunk, sawAudio)
	}
}

func TestActionHandler_TranscribeRejectsBadBase64(t *testing.T) {
	h, _ := newTestHandler(t, "hola")
	rr := postAction(t, h, `{"clientId":"kiosk-1","action":"transcribe","data":{"audio":"!!!not-base64"}}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestActionHandler_TranscribeRequiresAudio(t *testing.T) {
	h, _ := newTestHandler(t, "hola")
	rr := postAction(t, h, `{"clientId":"kiosk-1","action":"transcribe"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestActionHandler_InterruptAppendsMessage(t *testing.T) {
	h, store := newTestHandler(t, "")
	rr := postAction(t, h, `{"clientId":"kiosk-1","action":"interrupt"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}

	sess, _ := store.Lookup("kiosk-1")
	msgs := sess.Outbox.ReadSince(0)
	if last := msgs[len(msgs)-1]; last.Event != session.EventInterrupted {
		t.Fatalf("last event = %s, want interrupted", last.Event)
	}
}

func TestActionHandler_ResetStateAppendsMessage(t *testing.T) {
	h, store := newTestHandler(t, "")
	rr := postAction(t, h, `{"clientId":"kiosk-1","action":"reset_state"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}

	sess, _ := store.Lookup("kiosk-1")
	msgs := sess.Outbox.ReadSince(0)
	if last := msgs[len(msgs)-1]; last.Event != session.EventStateReset {
		t.Fatalf("last event = %s, want state_reset", last.Event)
	}
}

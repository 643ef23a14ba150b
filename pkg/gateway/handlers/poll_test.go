package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/camarero-ai/camarero/pkg/session"
)

func pollOnce(t *testing.T, h *PollHandler, clientID string, cursor int64) []session.Message {
	t.Helper()
	url := fmt.Sprintf("/session/poll?clientId=%s&lastTimestamp=%d", clientID, cursor)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, url, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	var msgs []session.Message
	if err := json.Unmarshal(rr.Body.Bytes(), &msgs); err != nil {
		t.Fatalf("unmarshal: %v (%q)", err, rr.Body.String())
	}
	return msgs
}

func TestPollHandler_FirstContactDeliversConnected(t *testing.T) {
	store := session.NewStore(session.DefaultStoreConfig(), nil)
	t.Cleanup(store.Close)
	h := &PollHandler{Store: store}

	msgs := pollOnce(t, h, "kiosk-1", 0)
	if len(msgs) != 1 || msgs[0].Event != session.EventConnected {
		t.Fatalf("messages = %+v, want single connected", msgs)
	}
}

func TestPollHandler_CursorAdvances(t *testing.T) {
	store := session.NewStore(session.DefaultStoreConfig(), nil)
	t.Cleanup(store.Close)
	h := &PollHandler{Store: store}

	sess := store.Get("kiosk-1")
	sess.Outbox.Append(session.EventResponseChunk, map[string]any{"text": "hola"})

	first := pollOnce(t, h, "kiosk-1", 0)
	if len(first) != 2 {
		t.Fatalf("initial poll = %d messages, want 2", len(first))
	}

	cursor := first[len(first)-1].Timestamp
	if again := pollOnce(t, h, "kiosk-1", cursor); len(again) != 0 {
		t.Fatalf("poll past cursor = %+v, want empty", again)
	}

	// Same cursor twice: at-least-once, same answer.
	a := pollOnce(t, h, "kiosk-1", first[0].Timestamp)
	b := pollOnce(t, h, "kiosk-1", first[0].Timestamp)
	if len(a) != 1 || len(b) != 1 || a[0].ID != b[0].ID {
		t.Fatalf("repeat poll differs: %+v vs %+v", a, b)
	}
}

func TestPollHandler_MissingClientID(t *testing.T) {
	store := session.NewStore(session.DefaultStoreConfig(), nil)
	t.Cleanup(store.Close)
	h := &PollHandler{Store: store}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/session/poll", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestPollHandler_BadCursor(t *testing.T) {
	store := session.NewStore(session.DefaultStoreConfig(), nil)
	t.Cleanup(store.Close)
	h := &PollHandler{Store: store}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/session/poll?clientId=k&lastTimestamp=abc", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

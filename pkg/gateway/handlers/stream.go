package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/camarero-ai/camarero/pkg/core"
	"github.com/camarero-ai/camarero/pkg/gateway/config"
	"github.com/camarero-ai/camarero/pkg/session"
)

// StreamHandler serves GET /session/stream: a WebSocket that mirrors the
// poll endpoint. The backlog past lastTimestamp is sent on connect and new
// messages are pushed as they are appended. Delivery stays at-least-once
// with the same strictly-greater cursor contract, so a client can fall back
// to polling at any moment without losing or double-counting messages.
type StreamHandler struct {
	Config config.Config
	Store  *session.Store
	Logger *slog.Logger
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, core.NewInvalidRequestError("method not allowed"))
		return
	}

	clientID := strings.TrimSpace(r.URL.Query().Get("clientId"))
	if clientID == "" {
		writeInvalidRequest(w, r, "clientId is required", "clientId")
		return
	}

	cursor := int64(0)
	if raw := strings.TrimSpace(r.URL.Query().Get("lastTimestamp")); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			writeInvalidRequest(w, r, "lastTimestamp must be a non-negative integer", "lastTimestamp")
			return
		}
		cursor = n
	}

	if !h.originAllowed(r) {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("origin is not allowed", "Origin"))
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sess := h.Store.Get(clientID)
	notify, unsubscribe := sess.Outbox.Subscribe()
	defer unsubscribe()

	// Reader goroutine: the client sends nothing meaningful, but reading is
	// required to process control frames and notice the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log := h.logger().With("client_id", clientID)
	pingTicker := time.NewTicker(h.Config.StreamPingInterval)
	defer pingTicker.Stop()
	deadline := time.NewTimer(h.Config.StreamMaxDuration)
	defer deadline.Stop()

	// Backlog first, then push on every append.
	cursor, err = h.flush(conn, sess, cursor)
	if err != nil {
		return
	}

	for {
		select {
		case <-closed:
			return
		case <-deadline.C:
			log.Debug("stream reached max duration")
			h.writeClose(conn, websocket.CloseNormalClosure, "session stream expired")
			return
		case <-pingTicker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.Config.StreamWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-notify:
			cursor, err = h.flush(conn, sess, cursor)
			if err != nil {
				return
			}
		}
	}
}

func (h *StreamHandler) flush(conn *websocket.Conn, sess *session.Session, cursor int64) (int64, error) {
	for _, msg := range sess.Outbox.ReadSince(cursor) {
		_ = conn.SetWriteDeadline(time.Now().Add(h.Config.StreamWriteTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			return cursor, err
		}
		cursor = msg.Timestamp
	}
	return cursor, nil
}

func (h *StreamHandler) writeClose(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.SetWriteDeadline(time.Now().Add(h.Config.StreamWriteTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
}

func (h *StreamHandler) originAllowed(r *http.Request) bool {
	if len(h.Config.CORSAllowedOrigins) == 0 {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}

func (h *StreamHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

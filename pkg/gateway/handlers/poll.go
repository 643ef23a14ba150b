package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/camarero-ai/camarero/pkg/core"
	"github.com/camarero-ai/camarero/pkg/session"
)

// PollHandler serves GET /session/poll. It returns every outbox message
// with a timestamp strictly greater than lastTimestamp, in order; polling
// again with the same cursor returns the same messages.
type PollHandler struct {
	Store *session.Store
}

func (h *PollHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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

	// First contact through poll still creates the session, so a freshly
	// started client sees its connected message.
	sess := h.Store.Get(clientID)

	msgs := sess.Outbox.ReadSince(cursor)
	if msgs == nil {
		msgs = []session.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

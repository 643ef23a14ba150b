package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/camarero-ai/camarero/pkg/core"
	"github.com/camarero-ai/camarero/pkg/session"
)

// Actions a client can post to /session/action.
const (
	ActionPing       = "ping"
	ActionTranscribe = "transcribe"
	ActionInterrupt  = "interrupt"
	ActionResetState = "reset_state"
)

type actionRequest struct {
	ClientID string      `json:"clientId"`
	Action   string      `json:"action"`
	Language string      `json:"language,omitempty"`
	Data     *actionData `json:"data,omitempty"`
}

type actionData struct {
	// Audio is the captured blob, base64-encoded.
	Audio string `json:"audio,omitempty"`
	// LastText is the client's previous transcript, used for duplicate
	// screening.
	LastText string `json:"lastText,omitempty"`
	// ConversationHistory seeds a restored conversation on reconnect.
	ConversationHistory []session.Turn `json:"conversationHistory,omitempty"`
}

type transcribeResponse struct {
	Success         bool   `json:"success"`
	TranscribedText string `json:"transcribedText,omitempty"`
	ResponseID      string `json:"responseId,omitempty"`
	Ignored         bool   `json:"ignored,omitempty"`
	Reason          string `json:"reason,omitempty"`
	Interrupted     bool   `json:"interrupted,omitempty"`
}

// ActionHandler serves POST /session/action, the single command endpoint
// clients use for ping, transcribe, interrupt, and reset_state.
type ActionHandler struct {
	Store        *session.Store
	Pipeline     *session.Pipeline
	MaxBodyBytes int64
	Logger       *slog.Logger
}

func (h *ActionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, core.NewInvalidRequestError("method not allowed"))
		return
	}

	body := io.LimitReader(r.Body, h.MaxBodyBytes+1)
	var req actionRequest
	dec := json.NewDecoder(body)
	if err := dec.Decode(&req); err != nil {
		writeInvalidRequest(w, r, "malformed JSON body", "")
		return
	}

	req.ClientID = strings.TrimSpace(req.ClientID)
	if req.ClientID == "" {
		writeInvalidRequest(w, r, "clientId is required", "clientId")
		return
	}

	sess := h.Store.Get(req.ClientID)
	sess.SetLanguage(req.Language)

	switch req.Action {
	case ActionPing:
		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"timestamp": time.Now().UnixMilli(),
		})

	case ActionTranscribe:
		h.handleTranscribe(w, r, sess, req)

	case ActionInterrupt:
		sess.Interrupt()
		sess.Outbox.Append(session.EventInterrupted, nil)
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	case ActionResetState:
		sess.ResetState()
		sess.Outbox.Append(session.EventStateReset, nil)
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	default:
		writeInvalidRequest(w, r, "unknown action", "action")
	}
}

func (h *ActionHandler) handleTranscribe(w http.ResponseWriter, r *http.Request, sess *session.Session, req actionRequest) {
	if req.Data == nil || strings.TrimSpace(req.Data.Audio) == "" {
		writeInvalidRequest(w, r, "transcribe requires data.audio", "data.audio")
		return
	}

	audio, err := base64.StdEncoding.DecodeString(req.Data.Audio)
	if err != nil {
		writeInvalidRequest(w, r, "data.audio is not valid base64", "data.audio")
		return
	}

	sess.SeedHistory(req.Data.ConversationHistory)

	res, err := h.Pipeline.HandleAudio(r.Context(), sess, audio, req.Data.LastText)
	if err != nil {
		var coreErr *core.Error
		if errors.As(err, &coreErr) && coreErr.Silent() {
			writeJSON(w, http.StatusOK, transcribeResponse{Success: true, Ignored: true})
			return
		}
		writeError(w, r, err)
		return
	}

	if !res.Ignored || res.Reason != session.ReasonAudioTooSmall {
		h.Store.Touch(sess.ClientID)
	}

	writeJSON(w, http.StatusOK, transcribeResponse{
		Success:         true,
		TranscribedText: res.Text,
		ResponseID:      res.ResponseID,
		Ignored:         res.Ignored,
		Reason:          res.Reason,
		Interrupted:     res.Interrupted,
	})
}

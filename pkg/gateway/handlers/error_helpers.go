package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/camarero-ai/camarero/pkg/core"
	"github.com/camarero-ai/camarero/pkg/gateway/apierror"
	"github.com/camarero-ai/camarero/pkg/gateway/mw"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	coreErr, status := apierror.FromError(err, reqID)
	writeJSON(w, status, apierror.Envelope{Error: coreErr})
}

func writeInvalidRequest(w http.ResponseWriter, r *http.Request, message, param string) {
	writeError(w, r, core.NewInvalidRequestErrorWithParam(message, param))
}

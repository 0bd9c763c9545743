package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

func (h *handlers) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("httpapi: encode response failed", zap.Error(err))
	}
}

func (h *handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

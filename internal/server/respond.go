package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Error("write response failed", zap.Error(err))
	}
}

// jsonError writes an error response. Details ride along only outside
// production.
func (s *Server) jsonError(w http.ResponseWriter, message string, status int, details ...any) {
	body := map[string]any{"error": message}
	if !s.production && len(details) > 0 {
		body["details"] = details[0]
	}
	writeJSON(w, status, body)
}

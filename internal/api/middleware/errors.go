package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// errorBody matches the API error payload: {"status": <code>, "message": <text>}.
type errorBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorBody{Status: status, Message: msg}); err != nil {
		slog.Error("failed to encode middleware error response", "error", err)
	}
}

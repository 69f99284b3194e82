package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// envelope wraps every successful JSON response: {"data": ...}.
type envelope struct {
	Data any `json:"data"`
}

// errorResponse is the error payload. Status always mirrors the HTTP status
// code of the response.
type errorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response with the given status code and data payload.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Data: data}); err != nil {
		slog.Error("failed to encode json response", "error", err)
	}
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Status: status, Message: msg}); err != nil {
		slog.Error("failed to encode json error response", "error", err)
	}
}

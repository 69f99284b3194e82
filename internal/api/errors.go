package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/AppleHolic/recording-studio-api/internal/audio"
	"github.com/AppleHolic/recording-studio-api/internal/corpus"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// kindStatus translates corpus error kinds to HTTP status codes. Kinds not
// listed are server errors.
var kindStatus = map[corpus.Kind]int{
	corpus.KindInvalidClassification: http.StatusBadRequest,
	corpus.KindOutOfRange:            http.StatusBadRequest,
	corpus.KindUnknownKey:            http.StatusNotFound,
	corpus.KindNoAudio:               http.StatusNotFound,
	corpus.KindInvalidAudio:          http.StatusUnprocessableEntity,
}

// statusFor returns the HTTP status for err.
func statusFor(err error) int {
	if errors.Is(err, audio.ErrUnsupported) {
		return http.StatusUnprocessableEntity
	}
	if status, ok := kindStatus[corpus.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// writeFailure logs err and writes it as an error payload. Messages of
// server errors are not exposed to the client.
func writeFailure(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	attrs := []any{
		"op", op,
		"status", status,
		"error", err,
		"request_id", chimw.GetReqID(r.Context()),
	}

	msg := err.Error()
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", attrs...)
		msg = "internal error"
	} else {
		slog.Warn("request rejected", attrs...)
	}
	writeError(w, status, msg)
}

// invalidAudio builds the error returned for uploads that are not WAV data.
func invalidAudio(key, msg string) error {
	return &corpus.Error{Kind: corpus.KindInvalidAudio, Key: key, Msg: msg}
}

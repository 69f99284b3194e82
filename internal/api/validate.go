package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/AppleHolic/recording-studio-api/internal/corpus"
	"github.com/AppleHolic/recording-studio-api/internal/journal"
)

const (
	minSampleRate   = 8000
	maxSampleRate   = 192000
	maxHistoryLimit = 500
)

// validateWAVHeader checks the RIFF/WAVE magic of an uploaded take. It
// returns an error message, or "" when the header is acceptable.
func validateWAVHeader(data []byte) string {
	if len(data) < 12 {
		return "file too small to be a valid WAV"
	}
	if string(data[0:4]) != "RIFF" {
		return "invalid WAV file: missing RIFF header"
	}
	if string(data[8:12]) != "WAVE" {
		return "invalid WAV file: missing WAVE format identifier"
	}
	return ""
}

// parseClassification reads the type query parameter. Missing means all.
func parseClassification(r *http.Request) (corpus.Classification, error) {
	raw := r.URL.Query().Get("type")
	if raw == "" {
		return corpus.All, nil
	}
	return corpus.ParseClassification(raw)
}

// parsePage reads the zero-based page query parameter. Missing means 0.
func parsePage(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("page"))
	if raw == "" {
		return 0, nil
	}
	page, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &corpus.Error{Kind: corpus.KindOutOfRange, Msg: fmt.Sprintf("invalid page %q", raw)}
	}
	return page, nil
}

// parseSampleRate reads the sr query parameter, falling back to def.
func parseSampleRate(r *http.Request, def int) (int, string) {
	raw := strings.TrimSpace(r.URL.Query().Get("sr"))
	if raw == "" {
		return def, ""
	}
	sr, err := strconv.Atoi(raw)
	if err != nil || sr < minSampleRate || sr > maxSampleRate {
		return 0, fmt.Sprintf("sr must be an integer between %d and %d", minSampleRate, maxSampleRate)
	}
	return sr, ""
}

// parseHistoryLimit reads the limit query parameter for journal history.
func parseHistoryLimit(r *http.Request) (int, string) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return journal.DefaultHistoryLimit, ""
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxHistoryLimit {
		return 0, fmt.Sprintf("limit must be an integer between 1 and %d", maxHistoryLimit)
	}
	return limit, ""
}

// parseBool accepts the usual truthy query values.
func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

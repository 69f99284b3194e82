package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AppleHolic/recording-studio-api/internal/api/middleware"
	"github.com/AppleHolic/recording-studio-api/internal/audio"
	"github.com/AppleHolic/recording-studio-api/internal/corpus"
	"github.com/AppleHolic/recording-studio-api/internal/journal"
	"github.com/go-chi/chi/v5"
)

// journalTimeout bounds journal writes made on behalf of a request.
const journalTimeout = 3 * time.Second

// audioResponse describes one audio file of a prompt. Data is base64 in
// JSON and only present on single-item fetches.
type audioResponse struct {
	Filename string `json:"filename"`
	Data     []byte `json:"data,omitempty"`
}

// recordResponse is the JSON view of a prompt.
type recordResponse struct {
	Key      string         `json:"key"`
	Text     string         `json:"text"`
	Wave     *audioResponse `json:"wave"`
	Recorded *audioResponse `json:"recorded"`
}

type pageResponse struct {
	Type      corpus.Classification `json:"type"`
	Page      int                   `json:"page"`
	PageCount int                   `json:"page_count"`
	PageSize  int                   `json:"page_size"`
	Total     int                   `json:"total"`
	Items     []recordResponse      `json:"items"`
}

func toAudioResponse(a *corpus.Audio) *audioResponse {
	if a == nil {
		return nil
	}
	return &audioResponse{Filename: filepath.Base(a.Path), Data: a.Data}
}

func toRecordResponse(it corpus.Item) recordResponse {
	return recordResponse{
		Key:      it.Key,
		Text:     it.Text,
		Wave:     toAudioResponse(it.Reference),
		Recorded: toAudioResponse(it.Recorded),
	}
}

// handleListRecords returns one page of prompts without audio bytes.
// Query params: type (all, recorded, unrecorded), page (zero-based).
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	c, err := parseClassification(r)
	if err != nil {
		writeFailure(w, r, "list records", err)
		return
	}
	page, err := parsePage(r)
	if err != nil {
		writeFailure(w, r, "list records", err)
		return
	}

	items, err := s.corpus.Page(c, page)
	if err != nil {
		writeFailure(w, r, "list records", err)
		return
	}
	total, err := s.corpus.Count(c)
	if err != nil {
		writeFailure(w, r, "list records", err)
		return
	}
	pages, err := s.corpus.PageCount(c)
	if err != nil {
		writeFailure(w, r, "list records", err)
		return
	}

	resp := pageResponse{
		Type:      c,
		Page:      page,
		PageCount: pages,
		PageSize:  s.corpus.PageSize(),
		Total:     total,
		Items:     make([]recordResponse, 0, len(items)),
	}
	for _, it := range items {
		resp.Items = append(resp.Items, toRecordResponse(it))
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleCountRecords returns the size and page count of a classification.
func (s *Server) handleCountRecords(w http.ResponseWriter, r *http.Request) {
	c, err := parseClassification(r)
	if err != nil {
		writeFailure(w, r, "count records", err)
		return
	}
	count, err := s.corpus.Count(c)
	if err != nil {
		writeFailure(w, r, "count records", err)
		return
	}
	pages, err := s.corpus.PageCount(c)
	if err != nil {
		writeFailure(w, r, "count records", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"type":       c,
		"count":      count,
		"page_count": pages,
		"page_size":  s.corpus.PageSize(),
	})
}

// handleListKeys returns every key of a classification in list order.
func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	c, err := parseClassification(r)
	if err != nil {
		writeFailure(w, r, "list keys", err)
		return
	}
	keys, err := s.corpus.TypeList(c)
	if err != nil {
		writeFailure(w, r, "list keys", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"type": c,
		"keys": keys,
	})
}

// handleGetRecord returns a prompt with its audio bytes.
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	item, err := s.corpus.Item(key, true)
	if err != nil {
		writeFailure(w, r, "get record", err)
		return
	}

	writeJSON(w, http.StatusOK, toRecordResponse(item))
}

// handleUploadTake stores a recorded take for a prompt. The audio is taken
// from the multipart field "file" or, for any other content type, from the
// raw request body.
func (s *Server) handleUploadTake(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	limit := s.cfg.MaxUploadBytes()

	r.Body = http.MaxBytesReader(w, r.Body, limit)

	data, err := readUpload(r, limit)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			slog.Warn("upload take: body too large", "key", key, "limit_bytes", limit)
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		slog.Warn("upload take: unreadable body", "key", key, "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if len(data) == 0 {
		writeFailure(w, r, "upload take", invalidAudio(key, "empty audio upload"))
		return
	}
	if msg := validateWAVHeader(data); msg != "" {
		writeFailure(w, r, "upload take", invalidAudio(key, msg))
		return
	}

	path, err := s.corpus.WriteRecorded(key, data)
	if err != nil {
		writeFailure(w, r, "upload take", err)
		return
	}

	s.appendEvent(r, key, journal.ActionRecorded, int64(len(data)))
	slog.Info("take uploaded", "key", key, "bytes", len(data), "path", path)

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "ok"})
}

// readUpload returns the uploaded audio bytes.
func readUpload(r *http.Request, limit int64) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if !strings.HasPrefix(mediaType, "multipart/") {
		return io.ReadAll(r.Body)
	}

	if err := r.ParseMultipartForm(limit); err != nil {
		return nil, err
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, errors.New("file field is required")
	}
	defer file.Close()
	return io.ReadAll(file)
}

// handleDeleteTake removes the recorded take of a prompt.
func (s *Server) handleDeleteTake(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	if err := s.corpus.RemoveRecorded(key); err != nil {
		writeFailure(w, r, "delete take", err)
		return
	}

	s.appendEvent(r, key, journal.ActionRemoved, 0)
	slog.Info("take deleted", "key", key)

	w.WriteHeader(http.StatusNoContent)
}

// handleDownloadAudio serves the reference ("wave") or recorded audio of a
// prompt as a WAV attachment, converted to 16-bit PCM at the requested
// sample rate. raw=1 serves the stored file untouched.
func (s *Server) handleDownloadAudio(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	src, err := corpus.ParseSource(chi.URLParam(r, "type"))
	if err != nil {
		writeFailure(w, r, "download audio", err)
		return
	}
	rate, msg := parseSampleRate(r, s.cfg.SampleRate)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	path, err := s.corpus.AudioPath(key, src)
	if err != nil {
		writeFailure(w, r, "download audio", err)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		writeFailure(w, r, "download audio", err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeFailure(w, r, "download audio", err)
		return
	}

	filename := key + ".wav"
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))

	if parseBool(r.URL.Query().Get("raw")) {
		// ServeContent handles Range requests for seeking support.
		http.ServeContent(w, r, filename, info.ModTime(), f)
		return
	}

	raw, err := io.ReadAll(f)
	if err != nil {
		writeFailure(w, r, "download audio", err)
		return
	}
	converted, err := audio.Convert(raw, rate)
	if err != nil {
		w.Header().Del("Content-Disposition")
		writeFailure(w, r, "download audio", err)
		return
	}

	http.ServeContent(w, r, filename, info.ModTime(), bytes.NewReader(converted))
}

// handleTakeHistory returns the journal entries of a prompt, newest first.
func (s *Server) handleTakeHistory(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	limit, msg := parseHistoryLimit(r)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if _, err := s.corpus.Item(key, false); err != nil {
		writeFailure(w, r, "take history", err)
		return
	}

	events := []journal.Event{}
	if s.journal != nil {
		var err error
		if events, err = s.journal.History(r.Context(), key, limit); err != nil {
			writeFailure(w, r, "take history", err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"key":    key,
		"events": events,
	})
}

// appendEvent writes a take event to the journal. Failures are logged and
// never fail the request; the files on disk are authoritative.
func (s *Server) appendEvent(r *http.Request, key string, action journal.Action, size int64) {
	if s.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), journalTimeout)
	defer cancel()

	ev := journal.NewEvent(key, action, size, middleware.ClientIP(r))
	if err := s.journal.Append(ctx, ev); err != nil {
		slog.Error("journal append failed", "key", key, "action", action, "error", err)
	}
}

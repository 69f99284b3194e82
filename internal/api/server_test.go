package api

import (
	"bytes"
	"encoding/json"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/AppleHolic/recording-studio-api/internal/audio"
	"github.com/AppleHolic/recording-studio-api/internal/config"
	"github.com/AppleHolic/recording-studio-api/internal/corpus"
	"github.com/AppleHolic/recording-studio-api/internal/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	srv     *Server
	root    string
	wave    []byte
	journal *journal.SQLiteStore
}

// testWAV returns a short 16 kHz mono tone.
func testWAV(t *testing.T) []byte {
	t.Helper()
	samples := make([]int, 1600)
	for i := range samples {
		samples[i] = int(6000 * math.Sin(2*math.Pi*220*float64(i)/16000))
	}
	data, err := audio.EncodePCM16(&audio.Clip{SampleRate: 16000, Channels: 1, BitDepth: 16, Samples: samples})
	require.NoError(t, err)
	return data
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

// newTestEnv builds texts/{a,b,c}.txt, waves/a.wav and recorded/b.wav.
func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	root := t.TempDir()
	wave := testWAV(t)

	writeFile(t, filepath.Join(root, "texts", "a.txt"), []byte("first prompt\n"))
	writeFile(t, filepath.Join(root, "texts", "b.txt"), []byte("second prompt"))
	writeFile(t, filepath.Join(root, "texts", "c.txt"), []byte("third prompt"))
	writeFile(t, filepath.Join(root, "waves", "a.wav"), wave)
	writeFile(t, filepath.Join(root, "recorded", "b.wav"), wave)

	cfg := &config.Config{
		MasterDir:   root,
		PageSize:    10,
		SampleRate:  44100,
		MaxUploadMB: 20,
		CORSOrigins: "*",
		LogLevel:    "info",
		LogFormat:   "text",
	}
	if mutate != nil {
		mutate(cfg)
	}

	ix, err := corpus.Open(root, corpus.WithPageSize(cfg.PageSize))
	require.NoError(t, err)
	store, err := journal.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	srv := NewServer(ix, store, cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("studio_prompts_total 3\n"))
	}))
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, root: root, wave: wave, journal: store}
}

func (e *testEnv) do(t *testing.T, method, target string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	e.srv.ServeHTTP(rr, req)
	return rr
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, dst), string(env.Data))
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int) errorResponse {
	t.Helper()
	require.Equal(t, status, rr.Code, rr.Body.String())
	var body errorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	require.Equal(t, status, body.Status, "payload status")
	require.NotEmpty(t, body.Message)
	return body
}

func (e *testEnv) keys(t *testing.T, typ string) []string {
	t.Helper()
	rr := e.do(t, http.MethodGet, "/api/v1/record/keys?type="+typ, nil, "")
	require.Equal(t, http.StatusOK, rr.Code, "keys %s", typ)
	var out struct {
		Keys []string `json:"keys"`
	}
	decodeData(t, rr, &out)
	return out.Keys
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/api/v1/health", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)

	var out map[string]any
	decodeData(t, rr, &out)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, float64(3), out["prompts"])
	assert.Equal(t, float64(1), out["recorded"])
	assert.Equal(t, float64(2), out["unrecorded"])
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestListRecords(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/api/v1/record?type=all&page=0", nil, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var page pageResponse
	decodeData(t, rr, &page)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 1, page.PageCount)
	assert.Equal(t, 10, page.PageSize)
	require.Len(t, page.Items, 3)

	a := page.Items[0]
	assert.Equal(t, "a", a.Key)
	assert.Equal(t, "first prompt", a.Text)
	require.NotNil(t, a.Wave)
	assert.Equal(t, "a.wav", a.Wave.Filename)
	assert.Empty(t, a.Wave.Data, "list pages carry no audio bytes")
	assert.Nil(t, a.Recorded)
	assert.NotNil(t, page.Items[1].Recorded)
}

func TestListRecords_Defaults(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/api/v1/record", nil, "")
	var page pageResponse
	decodeData(t, rr, &page)
	assert.Equal(t, corpus.All, page.Type)
	assert.Zero(t, page.Page)
	assert.Len(t, page.Items, 3)
}

func TestListRecords_Errors(t *testing.T) {
	env := newTestEnv(t, nil)

	expectError(t, env.do(t, http.MethodGet, "/api/v1/record?type=bogus", nil, ""), http.StatusBadRequest)
	expectError(t, env.do(t, http.MethodGet, "/api/v1/record?page=1", nil, ""), http.StatusBadRequest)
	expectError(t, env.do(t, http.MethodGet, "/api/v1/record?page=-1", nil, ""), http.StatusBadRequest)
	expectError(t, env.do(t, http.MethodGet, "/api/v1/record?page=x", nil, ""), http.StatusBadRequest)
}

func TestListRecords_PartialLastPage(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.PageSize = 2 })

	rr := env.do(t, http.MethodGet, "/api/v1/record?type=all&page=1", nil, "")
	require.Equal(t, http.StatusOK, rr.Code, "trailing page must be reachable")

	var page pageResponse
	decodeData(t, rr, &page)
	assert.Equal(t, 2, page.PageCount)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "c", page.Items[0].Key)
}

func TestListRecords_EmptyClassification(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, k := range []string{"a", "c"} {
		rr := env.do(t, http.MethodPut, "/api/v1/record/"+k, env.wave, "audio/wav")
		require.Equal(t, http.StatusAccepted, rr.Code, "upload %s", k)
	}

	rr := env.do(t, http.MethodGet, "/api/v1/record?type=unrecorded", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)

	var page pageResponse
	decodeData(t, rr, &page)
	assert.Zero(t, page.Total)
	assert.Equal(t, 1, page.PageCount, "an empty classification has one empty page")
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)

	var count map[string]any
	decodeData(t, env.do(t, http.MethodGet, "/api/v1/record/count?type=unrecorded", nil, ""), &count)
	assert.Equal(t, float64(0), count["count"])
	assert.Equal(t, float64(1), count["page_count"])

	expectError(t, env.do(t, http.MethodGet, "/api/v1/record?type=unrecorded&page=1", nil, ""), http.StatusBadRequest)
}

func TestCountAndKeys(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.PageSize = 2 })

	var count map[string]any
	decodeData(t, env.do(t, http.MethodGet, "/api/v1/record/count?type=unrec", nil, ""), &count)
	assert.Equal(t, "unrecorded", count["type"])
	assert.Equal(t, float64(2), count["count"])
	assert.Equal(t, float64(1), count["page_count"])

	assert.Equal(t, []string{"a", "b", "c"}, env.keys(t, "all"))
	assert.Equal(t, []string{"b"}, env.keys(t, "RECORDED"))
	assert.Equal(t, []string{"a", "c"}, env.keys(t, "unrecorded"))

	expectError(t, env.do(t, http.MethodGet, "/api/v1/record/keys?type=nope", nil, ""), http.StatusBadRequest)
}

func TestGetRecord(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/api/v1/record/a", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)

	var item recordResponse
	decodeData(t, rr, &item)
	assert.Equal(t, "a", item.Key)
	assert.Equal(t, "first prompt", item.Text)
	require.NotNil(t, item.Wave)
	assert.Equal(t, env.wave, item.Wave.Data)
	assert.Nil(t, item.Recorded)

	expectError(t, env.do(t, http.MethodGet, "/api/v1/record/zzz", nil, ""), http.StatusNotFound)
}

func TestUploadTake_RawBody(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPut, "/api/v1/record/c", env.wave, "audio/wav")
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	var out map[string]string
	decodeData(t, rr, &out)
	assert.Equal(t, "ok", out["status"])

	assert.Equal(t, []string{"c", "b"}, env.keys(t, "recorded"), "newest take first")
	assert.Equal(t, []string{"a"}, env.keys(t, "unrecorded"))

	stored, err := os.ReadFile(filepath.Join(env.root, "recorded", "c.wav"))
	require.NoError(t, err)
	assert.Equal(t, env.wave, stored)

	var item recordResponse
	decodeData(t, env.do(t, http.MethodGet, "/api/v1/record/c", nil, ""), &item)
	require.NotNil(t, item.Recorded)
	assert.Equal(t, env.wave, item.Recorded.Data)
}

func TestUploadTake_Multipart(t *testing.T) {
	env := newTestEnv(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "take.wav")
	require.NoError(t, err)
	_, err = fw.Write(env.wave)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rr := env.do(t, http.MethodPost, "/api/v1/record/a", buf.Bytes(), mw.FormDataContentType())
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	assert.Equal(t, []string{"a", "b"}, env.keys(t, "recorded"))
}

func TestUploadTake_MultipartMissingField(t *testing.T) {
	env := newTestEnv(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("name", "take"))
	require.NoError(t, mw.Close())

	rr := env.do(t, http.MethodPost, "/api/v1/record/a", buf.Bytes(), mw.FormDataContentType())
	body := expectError(t, rr, http.StatusBadRequest)
	assert.Equal(t, "file field is required", body.Message)
}

func TestUploadTake_Rejections(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.MaxUploadMB = 1 })

	expectError(t, env.do(t, http.MethodPut, "/api/v1/record/c", []byte{}, "audio/wav"), http.StatusUnprocessableEntity)
	expectError(t, env.do(t, http.MethodPut, "/api/v1/record/c", []byte("ID3 this is an mp3 file"), "audio/wav"), http.StatusUnprocessableEntity)
	expectError(t, env.do(t, http.MethodPut, "/api/v1/record/nope", env.wave, "audio/wav"), http.StatusNotFound)

	big := make([]byte, 1<<20+512)
	copy(big, env.wave[:12])
	expectError(t, env.do(t, http.MethodPut, "/api/v1/record/c", big, "audio/wav"), http.StatusRequestEntityTooLarge)

	assert.Equal(t, []string{"b"}, env.keys(t, "recorded"), "rejected uploads must not change the index")
}

func TestDeleteTake(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodDelete, "/api/v1/record/b", nil, "")
	require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

	_, err := os.Stat(filepath.Join(env.root, "recorded", "b.wav"))
	assert.True(t, os.IsNotExist(err), "take file should be removed, stat err = %v", err)
	assert.Equal(t, []string{"a", "b", "c"}, env.keys(t, "unrecorded"))
	assert.Empty(t, env.keys(t, "recorded"))

	expectError(t, env.do(t, http.MethodDelete, "/api/v1/record/b", nil, ""), http.StatusNotFound)
}

func TestDownloadAudio(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/api/v1/record/a/wave", nil, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "audio/wav", rr.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=a.wav", rr.Header().Get("Content-Disposition"))

	clip, err := audio.Decode(bytes.NewReader(rr.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 44100, clip.SampleRate)
	assert.Equal(t, 16, clip.BitDepth)
	assert.Equal(t, 4410, clip.Frames())
}

func TestDownloadAudio_SampleRateAndRaw(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/api/v1/record/b/recorded?sr=8000", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	clip, err := audio.Decode(bytes.NewReader(rr.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 8000, clip.SampleRate)

	rr = env.do(t, http.MethodGet, "/api/v1/record/b/recorded?raw=1", nil, "")
	assert.Equal(t, env.wave, rr.Body.Bytes(), "raw download returns the stored bytes")
}

func TestDownloadAudio_Errors(t *testing.T) {
	env := newTestEnv(t, nil)

	expectError(t, env.do(t, http.MethodGet, "/api/v1/record/a/recorded", nil, ""), http.StatusNotFound)
	expectError(t, env.do(t, http.MethodGet, "/api/v1/record/c/wave", nil, ""), http.StatusNotFound)
	expectError(t, env.do(t, http.MethodGet, "/api/v1/record/zzz/wave", nil, ""), http.StatusNotFound)
	expectError(t, env.do(t, http.MethodGet, "/api/v1/record/a/mp3", nil, ""), http.StatusBadRequest)
	expectError(t, env.do(t, http.MethodGet, "/api/v1/record/a/wave?sr=12", nil, ""), http.StatusBadRequest)

	// A take with a WAV header but no decodable PCM data.
	junk := append([]byte("RIFF\x04\x00\x00\x00WAVE"), bytes.Repeat([]byte{0xff}, 32)...)
	require.Equal(t, http.StatusAccepted, env.do(t, http.MethodPut, "/api/v1/record/c", junk, "audio/wav").Code)

	rr := env.do(t, http.MethodGet, "/api/v1/record/c/recorded", nil, "")
	expectError(t, rr, http.StatusUnprocessableEntity)
	assert.Empty(t, rr.Header().Get("Content-Disposition"), "no attachment header on error")
}

func TestTakeHistory(t *testing.T) {
	env := newTestEnv(t, nil)

	env.do(t, http.MethodPut, "/api/v1/record/c", env.wave, "audio/wav")
	env.do(t, http.MethodDelete, "/api/v1/record/c", nil, "")

	rr := env.do(t, http.MethodGet, "/api/v1/record/c/history", nil, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var out struct {
		Key    string          `json:"key"`
		Events []journal.Event `json:"events"`
	}
	decodeData(t, rr, &out)
	require.Len(t, out.Events, 2)
	assert.Equal(t, journal.ActionRemoved, out.Events[0].Action)
	assert.Equal(t, journal.ActionRecorded, out.Events[1].Action)
	assert.Equal(t, int64(len(env.wave)), out.Events[1].Size)

	decodeData(t, env.do(t, http.MethodGet, "/api/v1/record/c/history?limit=1", nil, ""), &out)
	assert.Len(t, out.Events, 1)

	expectError(t, env.do(t, http.MethodGet, "/api/v1/record/zzz/history", nil, ""), http.StatusNotFound)
	expectError(t, env.do(t, http.MethodGet, "/api/v1/record/c/history?limit=-2", nil, ""), http.StatusBadRequest)
}

func TestTakeHistory_NoJournal(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "texts", "a.txt"), []byte("x"))
	ix, err := corpus.Open(root)
	require.NoError(t, err)
	srv := NewServer(ix, nil, &config.Config{SampleRate: 44100, MaxUploadMB: 1}, nil)

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/record/a/history", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"events":[]`)

	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code, "/metrics is absent without a handler")
}

func TestMetricsRoute(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "studio_prompts_total")
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.RateLimit = 1 })

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/health", nil, "").Code, "request %d", i)
	}
	expectError(t, env.do(t, http.MethodGet, "/api/v1/health", nil, ""), http.StatusTooManyRequests)

	// The metrics endpoint sits outside the limited API group.
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/metrics", nil, "").Code)
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, nil)
	expectError(t, env.do(t, http.MethodGet, "/api/v2/record", nil, ""), http.StatusNotFound)
	expectError(t, env.do(t, http.MethodPatch, "/api/v1/record/a", nil, ""), http.StatusMethodNotAllowed)
}

package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-narrator/internal/audio"
	"github.com/loqalabs/loqa-narrator/internal/config"
	"github.com/loqalabs/loqa-narrator/internal/eventstore"
	"github.com/loqalabs/loqa-narrator/internal/pipeline"
	"github.com/loqalabs/loqa-narrator/internal/tts"
	"github.com/loqalabs/loqa-narrator/internal/workspace"
)

type countingSynth struct {
	next  tts.Synthesizer
	err   error
	calls atomic.Int32
}

func (c *countingSynth) Name() string { return "counting" }

func (c *countingSynth) Synthesize(ctx context.Context, req tts.SynthRequest) ([]byte, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.next.Synthesize(ctx, req)
}

type fixture struct {
	handler http.Handler
	synth   *countingSynth
	scratch string
	static  string
}

func newFixture(t *testing.T, synthErr error) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	base := t.TempDir()
	scratch := filepath.Join(base, "scratch")
	static := filepath.Join(base, "static")

	root := workspace.NewRoot(scratch, static, logger)
	require.NoError(t, root.Bootstrap())

	store, err := eventstore.Open(context.Background(), config.EventStoreConfig{
		Path:          filepath.Join(base, "jobs.db"),
		RetentionMode: "session",
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	synth := &countingSynth{next: tts.NewMockSynth(8000, 0.1), err: synthErr}
	orchestrator := pipeline.New(pipeline.Config{MaxSegmentLength: 14}, synth, store, logger)
	srv := NewServer(ServerOptions{
		Orchestrator: orchestrator,
		Root:         root,
		Store:        store,
		StaticDir:    static,
		MaxUploadMB:  1,
		Logger:       logger,
	})
	return &fixture{handler: srv.Routes(), synth: synth, scratch: scratch, static: static}
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) assertScratchEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func jsonRequest(t *testing.T, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/generate-audiobook", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func uploadRequest(t *testing.T, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/upload-file", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Detail
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGenerateSingleFile(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, jsonRequest(t, map[string]any{
		"text":    "Hello there. General Kenobi",
		"api_key": "sk-test",
		"voice":   "nova",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=merged_audio.wav", rec.Header().Get("Content-Disposition"))
	assert.NotEmpty(t, rec.Header().Get(JobIDHeader))
	assert.EqualValues(t, 2, f.synth.calls.Load())

	clip, err := audio.Decode(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Greater(t, clip.Duration(), 0.0)
	f.assertScratchEmpty(t)
}

func TestGenerateBundlesWhenCeilingIsSmall(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, jsonRequest(t, map[string]any{
		"text":         "Alpha beta. Gamma delta. Epsilon zeta",
		"max_duration": 1.5,
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=audiobook_parts.zip", rec.Header().Get("Content-Disposition"))
	assert.EqualValues(t, 3, f.synth.calls.Load())
	f.assertScratchEmpty(t)
}

func TestGenerateRejectsBadInput(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, jsonRequest(t, map[string]any{"text": "Hi", "max_duration": 0}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, detail(t, rec), "max_duration")

	rec = f.do(t, jsonRequest(t, map[string]any{"text": "   "}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/generate-audiobook", strings.NewReader("{"))
	rec = f.do(t, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.EqualValues(t, 0, f.synth.calls.Load())
	f.assertScratchEmpty(t)
}

func TestGeneratePropagatesUpstreamStatus(t *testing.T) {
	f := newFixture(t, &tts.UpstreamError{Status: http.StatusUnauthorized, Message: "OpenAI API error: invalid key"})
	rec := f.do(t, jsonRequest(t, map[string]any{"text": "One. Two. Three"}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "OpenAI API error: invalid key", detail(t, rec))
	assert.EqualValues(t, 1, f.synth.calls.Load())
	f.assertScratchEmpty(t)
}

func TestGenerateTransportFailure(t *testing.T) {
	f := newFixture(t, &tts.TransportError{Message: "request failed"})
	rec := f.do(t, jsonRequest(t, map[string]any{"text": "One"}))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	f.assertScratchEmpty(t)
}

func TestUploadRejectsUnsupportedFormat(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, uploadRequest(t, "book.docx", []byte("PK..."), nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, detail(t, rec), "Only .txt, .epub and .pdf files are supported")
	assert.EqualValues(t, 0, f.synth.calls.Load())
}

func TestUploadPlainText(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, uploadRequest(t, "story.txt", []byte("Once upon. A time"), map[string]string{
		"api_key": "sk-test",
		"voice":   "echo",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "attachment; filename=merged_audio.wav", rec.Header().Get("Content-Disposition"))
	assert.EqualValues(t, 2, f.synth.calls.Load())
	f.assertScratchEmpty(t)
}

func TestUploadRejectsBadMaxDuration(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, uploadRequest(t, "story.txt", []byte("Hi"), map[string]string{"max_duration": "soon"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, uploadRequest(t, "story.txt", []byte("Hi"), map[string]string{"max_duration": "-3"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.EqualValues(t, 0, f.synth.calls.Load())
}

func TestJobEvents(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, jsonRequest(t, map[string]any{"text": "Hello"}))
	require.Equal(t, http.StatusOK, rec.Code)
	jobID := rec.Header().Get(JobIDHeader)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/jobs/"+jobID+"/events", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		JobID  string `json:"job_id"`
		Events []struct {
			Type string `json:"type"`
		} `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, jobID, body.JobID)
	require.NotEmpty(t, body.Events)
	assert.Equal(t, "started", body.Events[0].Type)
	assert.Equal(t, "completed", body.Events[len(body.Events)-1].Type)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/jobs/unknown/events", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaticFiles(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(f.static, "index.html"), []byte("<h1>narrator</h1>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(f.static, "app.js"), []byte("console.log(1)"), 0o644))

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "narrator")

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/static/app.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "console.log")
}

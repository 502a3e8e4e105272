package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/loqalabs/loqa-narrator/internal/eventstore"
	"github.com/loqalabs/loqa-narrator/internal/extract"
	"github.com/loqalabs/loqa-narrator/internal/pipeline"
	"github.com/loqalabs/loqa-narrator/internal/workspace"
)

// JobIDHeader carries the job id on every narration response.
const JobIDHeader = "X-Job-ID"

var errBadMaxDuration = errors.New("max_duration must be a positive number of seconds")

// Server serves the narration HTTP surface.
type Server struct {
	orchestrator       *pipeline.Orchestrator
	root               *workspace.Root
	store              *eventstore.Store
	staticDir          string
	maxUploadBytes     int64
	defaultMaxDuration float64
	metrics            http.Handler
	ready              func() bool
	logger             *slog.Logger
}

// ServerOptions wires a Server. Store, Metrics and Ready are optional.
type ServerOptions struct {
	Orchestrator       *pipeline.Orchestrator
	Root               *workspace.Root
	Store              *eventstore.Store
	StaticDir          string
	MaxUploadMB        int
	DefaultMaxDuration float64
	Metrics            http.Handler
	Ready              func() bool
	Logger             *slog.Logger
}

func NewServer(opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxUpload := int64(opts.MaxUploadMB) << 20
	if maxUpload <= 0 {
		maxUpload = 64 << 20
	}
	ready := opts.Ready
	if ready == nil {
		ready = func() bool { return true }
	}
	return &Server{
		orchestrator:       opts.Orchestrator,
		root:               opts.Root,
		store:              opts.Store,
		staticDir:          opts.StaticDir,
		maxUploadBytes:     maxUpload,
		defaultMaxDuration: opts.DefaultMaxDuration,
		metrics:            opts.Metrics,
		ready:              ready,
		logger:             logger.With(slog.String("component", "http")),
	}
}

// Routes registers every endpoint on a new mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /generate-audiobook", s.handleGenerate)
	mux.HandleFunc("POST /upload-file", s.handleUpload)
	mux.HandleFunc("GET /jobs/{id}/events", s.handleJobEvents)
	mux.HandleFunc("GET /health", s.handleStatus)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	if s.staticDir != "" {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(s.staticDir))))
		mux.HandleFunc("GET /{$}", s.handleIndex)
	}
	return mux
}

type generateRequest struct {
	Text        string   `json:"text"`
	APIKey      string   `json:"api_key"`
	Voice       string   `json:"voice"`
	MaxDuration *float64 `json:"max_duration"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body generateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxUploadBytes))
	if err := dec.Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	maxDuration, err := s.resolveMaxDuration(body.MaxDuration)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	s.narrate(w, r, pipeline.Request{
		Text:        body.Text,
		Credential:  body.APIKey,
		Voice:       body.Voice,
		MaxDuration: maxDuration,
		Source:      "inline",
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("invalid upload: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	// Reject the extension before anything is read or synthesized.
	if _, err := extract.FormatFromFilename(header.Filename); err != nil {
		writeError(w, err)
		return
	}

	var raw *float64
	if v := strings.TrimSpace(r.FormValue("max_duration")); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeDetail(w, http.StatusBadRequest, errBadMaxDuration.Error())
			return
		}
		raw = &parsed
	}
	maxDuration, err := s.resolveMaxDuration(raw)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("read upload: %v", err))
		return
	}
	text, err := extract.File(header.Filename, content)
	if err != nil {
		s.logger.Warn("extraction failed",
			slog.String("filename", header.Filename),
			slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	s.logger.Info("upload received",
		slog.String("filename", header.Filename),
		slog.String("size", humanize.Bytes(uint64(len(content)))))

	s.narrate(w, r, pipeline.Request{
		Text:        text,
		Credential:  r.FormValue("api_key"),
		Voice:       r.FormValue("voice"),
		MaxDuration: maxDuration,
		Source:      filepath.Base(header.Filename),
	})
}

func (s *Server) resolveMaxDuration(v *float64) (float64, error) {
	if v == nil {
		return s.defaultMaxDuration, nil
	}
	if *v <= 0 {
		return 0, errBadMaxDuration
	}
	return *v, nil
}

// narrate runs the pipeline in a fresh scratch dir and streams the
// deliverable. The scratch dir is removed once the response is written.
func (s *Server) narrate(w http.ResponseWriter, r *http.Request, req pipeline.Request) {
	req.JobID = uuid.NewString()
	w.Header().Set(JobIDHeader, req.JobID)

	dir, err := s.root.New("job")
	if err != nil {
		s.logger.Error("scratch dir unavailable", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	defer dir.Close()

	res, err := s.orchestrator.Run(r.Context(), dir.Path(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	f, err := os.Open(res.Deliverable.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", res.Deliverable.MIMEType)
	w.Header().Set("Content-Disposition", "attachment; filename="+res.Deliverable.Filename)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		s.logger.Warn("response write failed",
			slog.String("job_id", req.JobID),
			slog.String("error", err.Error()))
	}
}

type jobEvent struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt string          `json:"created_at,omitempty"`
}

func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.store == nil {
		writeDetail(w, http.StatusNotFound, "job history is disabled")
		return
	}
	events, err := s.store.ListJobEvents(r.Context(), id, 1000)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(events) == 0 {
		writeDetail(w, http.StatusNotFound, fmt.Sprintf("job %s not found", id))
		return
	}
	out := make([]jobEvent, len(events))
	for i, e := range events {
		out[i] = jobEvent{Type: e.Type}
		if json.Valid(e.Payload) {
			out[i].Payload = e.Payload
		}
		if !e.CreatedAt.IsZero() {
			out[i].CreatedAt = e.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00")
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": id, "events": out})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(s.staticDir, "index.html"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.ready() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func writeError(w http.ResponseWriter, err error) {
	writeDetail(w, pipeline.StatusFor(err), pipeline.Message(err))
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

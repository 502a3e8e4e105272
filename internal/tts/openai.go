package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	openAIBaseURL     = "https://api.openai.com/v1"
	openAITTSEndpoint = "/audio/speech"

	// ModelTTS1 is the OpenAI TTS model optimized for speed.
	ModelTTS1 = "tts-1"

	// FormatMP3 is the response format requested by default.
	FormatMP3 = "mp3"

	// VoiceAlloy is the OpenAI default voice.
	VoiceAlloy = "alloy"

	defaultOpenAITimeout = 2 * time.Minute
	maxErrorBody         = 64 << 10
)

// OpenAIService implements Synthesizer against the OpenAI speech endpoint.
type OpenAIService struct {
	apiKey  string
	baseURL string
	model   string
	format  string
	client  *http.Client
	logger  *slog.Logger
}

// OpenAIOption configures the OpenAI TTS service.
type OpenAIOption func(*OpenAIService)

// WithOpenAIBaseURL sets a custom base URL (for testing or proxies).
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(s *OpenAIService) {
		if url != "" {
			s.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithOpenAIClient sets a custom HTTP client.
func WithOpenAIClient(client *http.Client) OpenAIOption {
	return func(s *OpenAIService) {
		if client != nil {
			s.client = client
		}
	}
}

// WithOpenAIModel sets the TTS model to use.
func WithOpenAIModel(model string) OpenAIOption {
	return func(s *OpenAIService) {
		if model != "" {
			s.model = model
		}
	}
}

// WithOpenAIFormat sets the requested response_format.
func WithOpenAIFormat(format string) OpenAIOption {
	return func(s *OpenAIService) {
		if format != "" {
			s.format = format
		}
	}
}

// WithOpenAILogger sets the logger.
func WithOpenAILogger(logger *slog.Logger) OpenAIOption {
	return func(s *OpenAIService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewOpenAI creates an OpenAI TTS service. apiKey is used only when a request
// carries no credential of its own.
func NewOpenAI(apiKey string, opts ...OpenAIOption) *OpenAIService {
	s := &OpenAIService{
		apiKey:  apiKey,
		baseURL: openAIBaseURL,
		model:   ModelTTS1,
		format:  FormatMP3,
		client: &http.Client{
			Timeout:   defaultOpenAITimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "tts.openai"))
	return s
}

// Name returns the provider identifier.
func (s *OpenAIService) Name() string { return "openai" }

type openAIRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format,omitempty"`
}

// Synthesize issues one speech request and returns the complete audio body.
func (s *OpenAIService) Synthesize(ctx context.Context, req SynthRequest) ([]byte, error) {
	if req.Text == "" {
		return nil, ErrEmptyText
	}
	voice := req.Voice
	if voice == "" {
		voice = VoiceAlloy
	}
	key := req.Credential
	if key == "" {
		key = s.apiKey
	}

	body, err := json.Marshal(openAIRequest{
		Model:          s.model,
		Input:          req.Text,
		Voice:          voice,
		ResponseFormat: s.format,
	})
	if err != nil {
		return nil, &TransportError{Message: "marshal request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+openAITTSEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Message: "create request", Cause: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &UpstreamError{
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("OpenAI API error: %s", strings.TrimSpace(string(detail))),
		}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Message: "read response", Cause: err}
	}
	s.logger.Debug("segment synthesized",
		slog.Int("chars", len([]rune(req.Text))),
		slog.String("voice", voice),
		slog.String("size", humanize.Bytes(uint64(len(audio)))),
		slog.Duration("latency", time.Since(start)))
	return audio, nil
}

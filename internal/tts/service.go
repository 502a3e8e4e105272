package tts

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/loqalabs/loqa-narrator/internal/config"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// New builds the synthesizer selected by cfg.Mode.
func New(cfg config.SynthesisConfig, logger *slog.Logger) (Synthesizer, error) {
	switch cfg.Mode {
	case "openai", "":
		opts := []OpenAIOption{
			WithOpenAIBaseURL(cfg.BaseURL),
			WithOpenAIModel(cfg.Model),
			WithOpenAIFormat(cfg.ResponseFormat),
			WithOpenAILogger(logger),
		}
		if cfg.TimeoutMS > 0 {
			opts = append(opts, WithOpenAIClient(&http.Client{
				Timeout:   time.Duration(cfg.TimeoutMS) * time.Millisecond,
				Transport: otelhttp.NewTransport(http.DefaultTransport),
			}))
		}
		return NewOpenAI(cfg.APIKey, opts...), nil
	case "exec":
		return NewExecSynth(cfg.Command, cfg.Model)
	case "mock":
		return NewMockSynth(cfg.MockSampleRate, cfg.MockCharSecs), nil
	default:
		return nil, fmt.Errorf("unknown synthesis mode %q", cfg.Mode)
	}
}

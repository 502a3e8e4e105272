package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	TraceExporter  string `yaml:"trace_exporter"` // none, stdout, otlp
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind        string `yaml:"bind"`
	Port        int    `yaml:"port"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Synthesis   SynthesisConfig  `yaml:"synthesis"`
	Segmenter   SegmenterConfig  `yaml:"segmenter"`
	Assembler   AssemblerConfig  `yaml:"assembler"`
	Workspace   WorkspaceConfig  `yaml:"workspace"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Bus         BusConfig        `yaml:"bus"`
}

type SynthesisConfig struct {
	Mode           string  `yaml:"mode"` // openai, exec, mock
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	ResponseFormat string  `yaml:"response_format"`
	APIKey         string  `yaml:"api_key"`
	Command        string  `yaml:"command"`
	TimeoutMS      int     `yaml:"timeout_ms"`
	CallsPerMinute int     `yaml:"calls_per_minute"`
	DefaultVoice   string  `yaml:"default_voice"`
	MockSampleRate int     `yaml:"mock_sample_rate"`
	MockCharSecs   float64 `yaml:"mock_seconds_per_char"`
}

type SegmenterConfig struct {
	MaxLength int `yaml:"max_length"`
}

type AssemblerConfig struct {
	DefaultMaxDuration float64 `yaml:"default_max_duration_s"`
}

type WorkspaceConfig struct {
	Root      string `yaml:"root"`
	StaticDir string `yaml:"static_dir"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxJobs       int    `yaml:"max_jobs"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-narrator",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind:        "0.0.0.0",
			Port:        8000,
			MaxUploadMB: 64,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			TraceExporter:  "none",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Synthesis: SynthesisConfig{
			Mode:           "openai",
			BaseURL:        "https://api.openai.com/v1",
			Model:          "tts-1",
			ResponseFormat: "mp3",
			TimeoutMS:      120000,
			CallsPerMinute: 50,
			DefaultVoice:   "alloy",
			MockSampleRate: 24000,
			MockCharSecs:   0.06,
		},
		Segmenter: SegmenterConfig{
			MaxLength: 4000,
		},
		Workspace: WorkspaceConfig{
			Root:      "./data/scratch",
			StaticDir: "./static",
		},
		EventStore: EventStoreConfig{
			Path:          "./data/narrator-jobs.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxJobs:       10000,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "NARRATOR_RUNTIME_NAME")
	overrideString(&cfg.Environment, "NARRATOR_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "NARRATOR_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "NARRATOR_HTTP_PORT")
	overrideInt(&cfg.HTTP.MaxUploadMB, "NARRATOR_HTTP_MAX_UPLOAD_MB")
	overrideString(&cfg.Telemetry.LogLevel, "NARRATOR_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.TraceExporter, "NARRATOR_TELEMETRY_TRACE_EXPORTER")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "NARRATOR_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "NARRATOR_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "NARRATOR_TELEMETRY_PROMETHEUS_BIND")
	overrideString(&cfg.Synthesis.Mode, "NARRATOR_SYNTHESIS_MODE")
	overrideString(&cfg.Synthesis.BaseURL, "NARRATOR_SYNTHESIS_BASE_URL")
	overrideString(&cfg.Synthesis.Model, "NARRATOR_SYNTHESIS_MODEL")
	overrideString(&cfg.Synthesis.ResponseFormat, "NARRATOR_SYNTHESIS_RESPONSE_FORMAT")
	overrideString(&cfg.Synthesis.APIKey, "OPENAI_API_KEY")
	overrideString(&cfg.Synthesis.APIKey, "NARRATOR_SYNTHESIS_API_KEY")
	overrideString(&cfg.Synthesis.Command, "NARRATOR_SYNTHESIS_COMMAND")
	overrideInt(&cfg.Synthesis.TimeoutMS, "NARRATOR_SYNTHESIS_TIMEOUT_MS")
	overrideInt(&cfg.Synthesis.CallsPerMinute, "NARRATOR_SYNTHESIS_CALLS_PER_MINUTE")
	overrideString(&cfg.Synthesis.DefaultVoice, "NARRATOR_SYNTHESIS_DEFAULT_VOICE")
	overrideInt(&cfg.Synthesis.MockSampleRate, "NARRATOR_SYNTHESIS_MOCK_SAMPLE_RATE")
	overrideFloat(&cfg.Synthesis.MockCharSecs, "NARRATOR_SYNTHESIS_MOCK_SECONDS_PER_CHAR")
	overrideInt(&cfg.Segmenter.MaxLength, "NARRATOR_SEGMENTER_MAX_LENGTH")
	overrideFloat(&cfg.Assembler.DefaultMaxDuration, "NARRATOR_ASSEMBLER_DEFAULT_MAX_DURATION_S")
	overrideString(&cfg.Workspace.Root, "NARRATOR_WORKSPACE_ROOT")
	overrideString(&cfg.Workspace.StaticDir, "NARRATOR_WORKSPACE_STATIC_DIR")
	overrideString(&cfg.EventStore.Path, "NARRATOR_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "NARRATOR_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "NARRATOR_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxJobs, "NARRATOR_EVENT_STORE_MAX_JOBS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "NARRATOR_EVENT_STORE_VACUUM_ON_START")
	overrideBool(&cfg.Bus.Enabled, "NARRATOR_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "NARRATOR_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "NARRATOR_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "NARRATOR_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "NARRATOR_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "NARRATOR_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "NARRATOR_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "NARRATOR_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "NARRATOR_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "NARRATOR_BUS_CONNECT_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.HTTP.MaxUploadMB <= 0 {
		return errors.New("http.max_upload_mb must be positive")
	}
	switch cfg.Telemetry.TraceExporter {
	case "none", "stdout":
	case "otlp":
		if cfg.Telemetry.OTLPEndpoint == "" {
			return errors.New("telemetry.otlp_endpoint must be set when trace_exporter=otlp")
		}
	default:
		return errors.New("telemetry.trace_exporter must be one of none|stdout|otlp")
	}
	switch cfg.Synthesis.Mode {
	case "openai":
		if cfg.Synthesis.BaseURL == "" {
			return errors.New("synthesis.base_url must be set when mode=openai")
		}
		if cfg.Synthesis.Model == "" {
			return errors.New("synthesis.model must be set when mode=openai")
		}
	case "exec":
		if cfg.Synthesis.Command == "" {
			return errors.New("synthesis.command must be set when mode=exec")
		}
	case "mock":
		if cfg.Synthesis.MockSampleRate <= 0 {
			return errors.New("synthesis.mock_sample_rate must be positive")
		}
	default:
		return errors.New("synthesis.mode must be one of openai|exec|mock")
	}
	if cfg.Synthesis.TimeoutMS < 0 {
		return errors.New("synthesis.timeout_ms must be >= 0")
	}
	if cfg.Synthesis.CallsPerMinute < 0 {
		return errors.New("synthesis.calls_per_minute must be >= 0")
	}
	if cfg.Segmenter.MaxLength <= 0 {
		return errors.New("segmenter.max_length must be positive")
	}
	if cfg.Assembler.DefaultMaxDuration < 0 {
		return errors.New("assembler.default_max_duration_s must be >= 0")
	}
	if cfg.Workspace.Root == "" {
		return errors.New("workspace.root must not be empty")
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	return nil
}

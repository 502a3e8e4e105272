package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/loqalabs/loqa-narrator/internal/bus"
	"github.com/loqalabs/loqa-narrator/internal/config"
	"github.com/loqalabs/loqa-narrator/internal/eventstore"
	"github.com/loqalabs/loqa-narrator/internal/natsserver"
	"github.com/loqalabs/loqa-narrator/internal/pipeline"
	"github.com/loqalabs/loqa-narrator/internal/tts"
	"github.com/loqalabs/loqa-narrator/internal/workspace"
)

type Runtime struct {
	cfg           config.Config
	logger        *slog.Logger
	httpServer    *http.Server
	metricsServer *http.Server
	tracerClose   func(context.Context) error
	store         *eventstore.Store
	broker        *natsserver.Broker
	bus           *bus.Client
	ready         atomic.Bool
	wg            sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	root := workspace.NewRoot(r.cfg.Workspace.Root, r.cfg.Workspace.StaticDir, r.logger)
	if err := root.Bootstrap(); err != nil {
		return fmt.Errorf("failed to bootstrap workspace: %w", err)
	}

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}
	r.store = store
	defer r.store.Close()

	reporters := pipeline.Reporters{store}
	defer r.stopBus()
	if busClient, err := r.startBus(ctx); err != nil {
		return err
	} else if busClient != nil {
		reporters = append(reporters, busClient)
	}

	synth, err := tts.New(r.cfg.Synthesis, r.logger)
	if err != nil {
		return fmt.Errorf("failed to create synthesizer: %w", err)
	}
	r.logger.Info("synthesizer ready", slog.String("mode", synth.Name()))

	orchestrator := pipeline.New(pipeline.Config{
		MaxSegmentLength: r.cfg.Segmenter.MaxLength,
		CallsPerMinute:   r.cfg.Synthesis.CallsPerMinute,
		DefaultVoice:     r.cfg.Synthesis.DefaultVoice,
	}, synth, reporters, r.logger)

	srv := NewServer(ServerOptions{
		Orchestrator:       orchestrator,
		Root:               root,
		Store:              store,
		StaticDir:          r.cfg.Workspace.StaticDir,
		MaxUploadMB:        r.cfg.HTTP.MaxUploadMB,
		DefaultMaxDuration: r.cfg.Assembler.DefaultMaxDuration,
		Metrics:            metricsHandler,
		Ready:              r.ready.Load,
		Logger:             r.logger,
	})

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(srv.Routes(), "narratord"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.serve(r.httpServer, "http server failed")

	if metricsHandler != nil && r.cfg.Telemetry.PrometheusBind != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		r.metricsServer = &http.Server{
			Addr:              r.cfg.Telemetry.PrometheusBind,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		r.serve(r.metricsServer, "metrics server failed")
	}

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	for _, s := range []*http.Server{r.httpServer, r.metricsServer} {
		if s == nil {
			continue
		}
		if err := s.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) serve(s *http.Server, failure string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error(failure, slog.String("addr", s.Addr), slog.String("error", err.Error()))
		}
	}()
}

// startBus brings up the embedded broker and the client when the bus is
// enabled. It returns a nil client otherwise.
func (r *Runtime) startBus(ctx context.Context) (*bus.Client, error) {
	if !r.cfg.Bus.Enabled {
		return nil, nil
	}
	broker, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to start embedded NATS: %w", err)
	}
	r.broker = broker

	busCfg := r.cfg.Bus
	if url := broker.ClientURL(); url != "" {
		busCfg.Servers = []string{url}
	}
	client, err := bus.Connect(ctx, busCfg, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	r.bus = client
	if err := client.EnsureJobStream(); err != nil {
		r.logger.Warn("job events will not be retained", slog.String("error", err.Error()))
	}
	return client, nil
}

func (r *Runtime) stopBus() {
	if r.bus != nil {
		r.bus.Close()
	}
	r.broker.Shutdown()
}

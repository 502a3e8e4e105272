// Package natsserver runs an in-process NATS broker with JetStream so job
// events can be published and retained without an external deployment.
package natsserver

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/loqalabs/loqa-narrator/internal/config"
	"github.com/nats-io/nats-server/v2/server"
)

const (
	brokerName   = "narratord"
	listenHost   = "127.0.0.1"
	readyTimeout = 5 * time.Second
)

// ErrNotReady is returned when the broker does not accept connections within
// the readiness window.
var ErrNotReady = errors.New("embedded broker did not accept connections")

// Broker is a running embedded NATS server. A nil *Broker is valid and means
// no broker was started.
type Broker struct {
	srv    *server.Server
	logger *slog.Logger
}

// Start launches the broker described by cfg. It returns nil when the bus is
// disabled or points at an external deployment.
func Start(cfg config.BusConfig, logger *slog.Logger) (*Broker, error) {
	if !cfg.Enabled || !cfg.Embedded {
		return nil, nil
	}
	if cfg.StoreDir != "" {
		if err := os.MkdirAll(cfg.StoreDir, 0o755); err != nil {
			return nil, fmt.Errorf("create broker store: %w", err)
		}
	}

	srv, err := server.NewServer(brokerOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("create embedded broker: %w", err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(readyTimeout) {
		srv.Shutdown()
		return nil, fmt.Errorf("%w within %s", ErrNotReady, readyTimeout)
	}

	logger = logger.With(slog.String("component", "broker"))
	logger.Info("embedded broker ready",
		slog.String("url", srv.ClientURL()),
		slog.String("store_dir", cfg.StoreDir),
		slog.Bool("auth", cfg.Username != "" || cfg.Token != ""))
	return &Broker{srv: srv, logger: logger}, nil
}

// brokerOptions listens on loopback only and requires the same credentials
// the bus client presents.
func brokerOptions(cfg config.BusConfig) *server.Options {
	opts := &server.Options{
		ServerName: brokerName,
		Host:       listenHost,
		Port:       cfg.Port,
		JetStream:  true,
		StoreDir:   cfg.StoreDir,
		NoSigs:     true,
		NoLog:      true,
	}
	switch {
	case cfg.Token != "":
		opts.Authorization = cfg.Token
	case cfg.Username != "":
		opts.Username = cfg.Username
		opts.Password = cfg.Password
	}
	return opts
}

// ClientURL is the address the bus client dials. Empty for a nil broker.
func (b *Broker) ClientURL() string {
	if b == nil || b.srv == nil {
		return ""
	}
	return b.srv.ClientURL()
}

// Shutdown stops the broker and waits for it to exit.
func (b *Broker) Shutdown() {
	if b == nil || b.srv == nil {
		return
	}
	b.logger.Info("stopping embedded broker")
	b.srv.Shutdown()
	b.srv.WaitForShutdown()
}

// Package service hosts the ops-only HTTP surface: a healthz endpoint and
// the prometheus metrics exposition. The engine itself never operates
// over the network.
package service

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/ethereum/go-ethereum/log"

	"github.com/runweave/runweave/metrics"
)

const (
	HealthzHost = "127.0.0.1"
	HealthzPort = "8080"

	MetricsHost = "127.0.0.1"
	MetricsPort = "7300"
)

type Service struct {
	Healthz *HealthzServer
	Metrics *MetricsServer
}

func New() *Service {
	return &Service{
		Healthz: &HealthzServer{},
		Metrics: &MetricsServer{},
	}
}

func (s *Service) Start(ctx context.Context) {
	go func() {
		addr := net.JoinHostPort(HealthzHost, HealthzPort)
		log.Debug("starting healthz server", "addr", addr)
		if err := s.Healthz.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("error starting healthz server", "err", err)
			metrics.RecordError("healthz_server")
		}
	}()

	go func() {
		addr := net.JoinHostPort(MetricsHost, MetricsPort)
		log.Debug("starting metrics server", "addr", addr)
		if err := s.Metrics.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("error starting metrics server", "err", err)
			metrics.RecordError("metrics_server")
		}
	}()
}

func (s *Service) Shutdown() {
	_ = s.Healthz.Shutdown()
	_ = s.Metrics.Shutdown()
}

package server

import (
	"context"
	"sync"

	"github.com/marmos91/dittocat/internal/logger"
	"github.com/marmos91/dittocat/pkg/gc"
	"github.com/marmos91/dittocat/pkg/metrics"
	"github.com/marmos91/dittocat/pkg/source"
)

type pollerService struct {
	poller *source.Poller
}

// PollerService runs source availability polling.
func PollerService(p *source.Poller) Service {
	return &pollerService{poller: p}
}

func (s *pollerService) Name() string { return "poller" }

func (s *pollerService) Start(ctx context.Context) error {
	s.poller.Start(ctx)
	return nil
}

func (s *pollerService) Stop(context.Context) error {
	s.poller.Stop()
	return nil
}

type collectorService struct {
	collector *gc.Collector
}

// CollectorService runs periodic garbage collection of stored content.
func CollectorService(c *gc.Collector) Service {
	return &collectorService{collector: c}
}

func (s *collectorService) Name() string { return "gc" }

func (s *collectorService) Start(context.Context) error {
	s.collector.Start()
	return nil
}

func (s *collectorService) Stop(ctx context.Context) error {
	return s.collector.Stop(ctx)
}

// metricsService runs the blocking metrics server in its own goroutine.
type metricsService struct {
	server *metrics.Server

	cancel context.CancelFunc
	done   chan error
	once   sync.Once
}

// MetricsService exposes the Prometheus endpoint.
func MetricsService(srv *metrics.Server) Service {
	return &metricsService{server: srv}
}

func (s *metricsService) Name() string { return "metrics" }

func (s *metricsService) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan error, 1)
	go func() {
		err := s.server.Start(ctx)
		if err != nil {
			logger.Error("Metrics server error: %v", err)
		}
		s.done <- err
	}()
	return nil
}

func (s *metricsService) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	var err error
	s.once.Do(func() {
		s.cancel()
		select {
		case err = <-s.done:
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}

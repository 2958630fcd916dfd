package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittocat/internal/logger"
	"github.com/marmos91/dittocat/pkg/adapter"
)

// DefaultShutdownTimeout bounds the whole shutdown sequence.
const DefaultShutdownTimeout = 30 * time.Second

// Service is a background component running alongside the adapters: the
// source poller, the garbage collector, the metrics endpoint.
//
// Start must not block. Stop must be idempotent.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// CatalogServer manages the lifecycle of the ingest adapters and
// background services of one catalog framework.
//
// Lifecycle:
//  1. Creation: New() with the framework as ingester
//  2. Registration: AddAdapter() and AddService()
//  3. Startup: Serve() starts services, then adapters
//  4. Shutdown: Context cancellation or an adapter failure stops adapters
//     in reverse order, then services in reverse order
//
// Thread safety:
// CatalogServer is safe for concurrent use. Serve() may only be called
// once per server instance.
//
// Example usage:
//
//	srv := server.New(fw)
//	srv.AddService(server.PollerService(fw.Poller()))
//	srv.AddAdapter(monitor)
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := srv.Serve(ctx); err != nil && err != context.Canceled {
//	    log.Fatal(err)
//	}
type CatalogServer struct {
	ingester adapter.Ingester

	// mu protects adapters, services and served
	mu       sync.RWMutex
	adapters []adapter.Adapter
	services []Service
	served   bool

	shutdownTimeout time.Duration
}

// Option configures a CatalogServer.
type Option func(*CatalogServer)

// WithShutdownTimeout bounds the stop sequence. Zero keeps the default.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *CatalogServer) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// New creates a server whose adapters ingest into ingester.
//
// Panics if ingester is nil (indicates programmer error).
func New(ingester adapter.Ingester, opts ...Option) *CatalogServer {
	if ingester == nil {
		panic("ingester cannot be nil")
	}

	s := &CatalogServer{
		ingester:        ingester,
		adapters:        make([]adapter.Adapter, 0, 4),
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddAdapter registers an adapter and injects the ingester into it.
//
// Returns an error if an adapter with the same name is already registered
// or if Serve() has been called.
func (s *CatalogServer) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		return fmt.Errorf("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		return fmt.Errorf("cannot add adapter after Serve() has been called")
	}
	for _, existing := range s.adapters {
		if existing.Name() == a.Name() {
			return fmt.Errorf("adapter %s already registered", a.Name())
		}
	}

	a.SetIngester(s.ingester)
	s.adapters = append(s.adapters, a)

	logger.Info("Registered adapter %s", a.Name())
	return nil
}

// AddService registers a background service. Services start in
// registration order before any adapter.
func (s *CatalogServer) AddService(svc Service) error {
	if svc == nil {
		return fmt.Errorf("service cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		return fmt.Errorf("cannot add service after Serve() has been called")
	}
	s.services = append(s.services, svc)
	return nil
}

// Serve starts every service and adapter and blocks until the context is
// cancelled or an adapter fails.
//
// Shutdown behavior:
//   - Adapters receive Stop() in reverse registration order
//   - Serve waits for every adapter goroutine to return
//   - Services are then stopped in reverse registration order
//   - The whole sequence is bounded by the shutdown timeout
//
// Returns:
//   - ctx.Err() if shutdown was triggered by context cancellation
//   - error if a service failed to start or an adapter failed
func (s *CatalogServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return fmt.Errorf("Serve() has already been called on this server instance")
	}
	s.served = true
	if len(s.adapters) == 0 && len(s.services) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("nothing to serve; register an adapter or a service first")
	}
	adapters := append([]adapter.Adapter(nil), s.adapters...)
	services := append([]Service(nil), s.services...)
	s.mu.Unlock()

	logger.Info("Starting catalog server with %d adapter(s) and %d service(s)",
		len(adapters), len(services))

	// ========================================================================
	// Step 1: Start services
	// ========================================================================

	for i, svc := range services {
		if err := svc.Start(ctx); err != nil {
			logger.Error("Service %s failed to start: %v", svc.Name(), err)
			s.stopServices(services[:i])
			return fmt.Errorf("%s service error: %w", svc.Name(), err)
		}
		logger.Debug("Service %s started", svc.Name())
	}

	// ========================================================================
	// Step 2: Start adapters
	// ========================================================================

	// Buffered so failing adapters never block
	errChan := make(chan adapterError, len(adapters))
	var wg sync.WaitGroup

	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			name := a.Name()
			logger.Info("Starting adapter %s", name)

			if err := a.Serve(ctx); err != nil {
				if !errors.Is(err, context.Canceled) && ctx.Err() == nil {
					logger.Error("Adapter %s failed: %v", name, err)
					errChan <- adapterError{name: name, err: err}
				} else {
					logger.Debug("Adapter %s stopped gracefully", name)
				}
			} else {
				logger.Info("Adapter %s stopped", name)
			}
		}(adp)
	}

	// ========================================================================
	// Step 3: Wait for shutdown
	// ========================================================================

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		shutdownErr = ctx.Err()

	case adapterErr := <-errChan:
		logger.Error("Adapter %s failed: %v - initiating shutdown", adapterErr.name, adapterErr.err)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.name, adapterErr.err)
	}

	// ========================================================================
	// Step 4: Stop adapters, then services
	// ========================================================================

	s.stopAllAdapters(adapters)

	logger.Debug("Waiting for all adapters to complete shutdown")
	wg.Wait()

	s.stopServices(services)

	logger.Info("Catalog server stopped gracefully")
	return shutdownErr
}

// adapterError pairs an adapter name with its error.
type adapterError struct {
	name string
	err  error
}

// stopAllAdapters signals every adapter to stop, in reverse registration
// order.
func (s *CatalogServer) stopAllAdapters(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	logger.Info("Initiating graceful shutdown of %d adapter(s)", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		if err := adp.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping adapter %s: %v", adp.Name(), err)
		} else {
			logger.Debug("Adapter %s stop signal sent", adp.Name())
		}
	}
}

// stopServices stops services in reverse registration order.
func (s *CatalogServer) stopServices(services []Service) {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	for i := len(services) - 1; i >= 0; i-- {
		svc := services[i]
		if err := svc.Stop(ctx); err != nil {
			logger.Error("Error stopping service %s: %v", svc.Name(), err)
		} else {
			logger.Debug("Service %s stopped", svc.Name())
		}
	}
}

// Adapters returns a snapshot of the registered adapters.
func (s *CatalogServer) Adapters() []adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}

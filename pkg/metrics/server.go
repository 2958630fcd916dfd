package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmos91/dittocat/internal/logger"
	"github.com/marmos91/dittocat/pkg/catalog"
)

// DefaultPort is the metrics port used when none is configured.
const DefaultPort = 9090

// SourceStatusFunc reports the sources the catalog knows about, local
// catalog first.
type SourceStatusFunc func(ctx context.Context) ([]catalog.SourceDescriptor, error)

// Server is the operational HTTP endpoint of a running catalog.
//
// Endpoints:
//   - GET /metrics: Prometheus exposition
//   - GET /healthz: liveness, always "ok"
//   - GET /sources: source availability as JSON, 503 when any source is down
type Server struct {
	server *http.Server
	port   int

	mu      sync.RWMutex
	sources SourceStatusFunc

	shutdownOnce sync.Once
}

// ServerConfig configures the metrics HTTP server.
type ServerConfig struct {
	// Port to listen on. Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
}

// NewServer creates a stopped server. Call Start to serve.
func NewServer(config ServerConfig) *Server {
	if config.Port <= 0 {
		config.Port = DefaultPort
	}

	s := &Server{port: config.Port}

	mux := http.NewServeMux()
	if reg := GetRegistry(); reg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
	} else {
		mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "metrics collection is disabled", http.StatusServiceUnavailable)
		})
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/sources", s.handleSources)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// SetSourceStatus installs the function backing /sources. Until it is set
// the endpoint answers 503.
func (s *Server) SetSourceStatus(fn SourceStatusFunc) {
	s.mu.Lock()
	s.sources = fn
	s.mu.Unlock()
}

type sourceStatus struct {
	ID            string     `json:"id"`
	Title         string     `json:"title,omitempty"`
	Available     bool       `json:"available"`
	LastAvailable *time.Time `json:"last_available,omitempty"`
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	fn := s.sources
	s.mu.RUnlock()

	if fn == nil {
		http.Error(w, "catalog not ready", http.StatusServiceUnavailable)
		return
	}

	descriptors, err := fn(r.Context())
	if err != nil {
		logger.Warn("Source status request failed: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	out := make([]sourceStatus, 0, len(descriptors))
	for _, d := range descriptors {
		entry := sourceStatus{ID: d.ID, Title: d.Title, Available: d.Available}
		if !d.LastAvailable.IsZero() {
			t := d.LastAvailable.UTC()
			entry.LastAvailable = &t
		}
		if !d.Available {
			status = http.StatusServiceUnavailable
		}
		out = append(out, entry)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(out); err != nil {
		logger.Debug("Writing source status failed: %v", err)
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
//
// Returns:
//   - nil after a graceful shutdown
//   - error if the listener fails or shutdown times out
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("Metrics server listening on port %d", s.port)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// ctx is already done, so shutdown gets a fresh deadline
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("metrics server failed: %w", err)
	}
}

// Stop shuts the server down. Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if serr := s.server.Shutdown(ctx); serr != nil {
			err = fmt.Errorf("metrics server shutdown error: %w", serr)
			return
		}
		logger.Info("Metrics server stopped")
	})
	return err
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Port returns the configured TCP port.
func (s *Server) Port() int {
	return s.port
}

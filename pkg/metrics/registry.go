// Package metrics provides Prometheus metrics for the catalog framework,
// its storage provider, the federation strategy, the content collector and
// the S3 content store.
//
// All metrics are optional. Constructors return nil when the registry has
// not been initialized, and every component falls back to its no-op.
//
// Usage:
//
//	metrics.InitRegistry()
//
//	m := metrics.NewCatalogMetrics()
//	fw, err := framework.New(cfg, reg, framework.WithMetrics(m))
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// registry is written once by InitRegistry and read everywhere else.
	registry     *prometheus.Registry
	registryOnce sync.Once

	// sets holds the collector set built for each metrics family, so a
	// constructor called twice returns the already registered collectors.
	setsMu sync.Mutex
	sets   = make(map[string]any)
)

// InitRegistry creates the catalog's Prometheus registry with the Go
// runtime and process collectors attached. Later calls do nothing.
//
// Until it runs, GetRegistry returns nil and every constructor returns a
// nil collector set.
func InitRegistry() {
	registryOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registry = reg
	})
}

// GetRegistry returns the catalog registry, or nil when metrics are off.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has run.
func IsEnabled() bool {
	return GetRegistry() != nil
}

// shared returns the collector set registered under family, building it
// against the catalog registry on first use.
//
// Returns:
//   - the set and true, or the zero value and false when metrics are off
func shared[T any](family string, build func(prometheus.Registerer) T) (T, bool) {
	var zero T
	reg := GetRegistry()
	if reg == nil {
		return zero, false
	}

	setsMu.Lock()
	defer setsMu.Unlock()

	if set, ok := sets[family]; ok {
		return set.(T), true
	}
	set := build(reg)
	sets[family] = set
	return set, true
}

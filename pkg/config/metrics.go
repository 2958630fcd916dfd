package config

import (
	"github.com/marmos91/dittocat/internal/logger"
	"github.com/marmos91/dittocat/pkg/metrics"
	contentS3 "github.com/marmos91/dittocat/pkg/store/content/s3"
)

// MetricsResult contains the initialized metrics server and collectors.
//
// Every field is nil when metrics are disabled; consumers treat nil as
// no-op.
type MetricsResult struct {
	Server  *metrics.Server
	Catalog metrics.CatalogMetrics
	S3      contentS3.S3Metrics
}

// InitializeMetrics initializes the metrics registry and creates the
// metrics server and collectors.
//
// InitRegistry must run before any NewXxxMetrics constructor, which
// return nil otherwise.
//
// Parameters:
//   - cfg: Complete configuration
//
// Returns:
//   - *MetricsResult: Server and collectors, nil fields when disabled
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		logger.Debug("Metrics collection disabled")
		return &MetricsResult{}
	}

	metrics.InitRegistry()

	result := &MetricsResult{
		Server: metrics.NewServer(metrics.ServerConfig{
			Port: cfg.Metrics.Port,
		}),
		Catalog: metrics.NewCatalogMetrics(),
		S3:      metrics.NewS3Metrics(),
	}

	logger.Info("Metrics enabled on port %d", cfg.Metrics.Port)
	return result
}

package framework

import (
	"time"

	"github.com/marmos91/dittocat/pkg/catalog"
)

// Operation names used in logs and metrics.
const (
	opCreate        = "create"
	opCreateStorage = "create_storage"
	opUpdate        = "update"
	opUpdateStorage = "update_storage"
	opDelete        = "delete"
	opQuery         = "query"
	opResource      = "resource"
	opSourceInfo    = "source_info"
	opTransform     = "transform"
)

// Metrics receives framework observations.
//
// This interface is optional - without it the framework records nothing.
// pkg/metrics provides the Prometheus implementation.
type Metrics interface {
	// ObserveOperation records one entry point call. outcome is "success"
	// or the error kind.
	ObserveOperation(operation, outcome string, d time.Duration)

	// ObserveProcessingDetails records how many per-source failures a
	// response carried.
	ObserveProcessingDetails(operation string, n int)

	// ObserveStaged records bytes staged for ingest.
	ObserveStaged(bytes int64)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, string, time.Duration) {}
func (noopMetrics) ObserveProcessingDetails(string, int)           {}
func (noopMetrics) ObserveStaged(int64)                            {}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	return catalog.KindOf(err).String()
}

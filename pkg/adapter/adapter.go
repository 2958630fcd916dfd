package adapter

import (
	"context"

	"github.com/marmos91/dittocat/pkg/catalog"
)

// Ingester is the part of the catalog framework inbound adapters use.
// *framework.CatalogFramework implements it.
type Ingester interface {
	CreateStorage(ctx context.Context, req *catalog.CreateStorageRequest) (*catalog.CreateResponse, error)
	UpdateStorage(ctx context.Context, req *catalog.UpdateStorageRequest) (*catalog.UpdateResponse, error)
}

// Adapter is an inbound endpoint feeding the catalog, managed by the
// server.
//
// Lifecycle:
//  1. Creation: Adapter is created with its own configuration
//  2. Injection: SetIngester() provides the framework
//  3. Startup: Serve() runs the adapter and blocks until shutdown
//  4. Shutdown: Stop() initiates graceful shutdown with timeout
//
// Thread safety:
// Implementations must be safe for concurrent use. SetIngester() is called
// once before Serve(), but Stop() may be called concurrently with Serve().
type Adapter interface {
	// Serve runs the adapter and blocks until the context is cancelled or
	// an unrecoverable error occurs.
	//
	// Returns:
	//   - nil on graceful shutdown
	//   - context.Canceled if cancelled via context
	//   - error if startup fails
	Serve(ctx context.Context) error

	// SetIngester injects the framework. Called exactly once before Serve().
	SetIngester(ing Ingester)

	// Stop initiates graceful shutdown. It must be idempotent and safe to
	// call concurrently with Serve().
	Stop(ctx context.Context) error

	// Name returns the adapter's name for logging and metrics. Constant for
	// the lifecycle of the adapter.
	Name() string
}

package catalog

import (
	"context"
	"net/url"
	"sort"
	"time"
)

// ContentType is a kind of record a source holds.
type ContentType struct {
	Name      string
	Version   string
	Namespace string
}

// Describable carries the descriptive fields of a source.
type Describable interface {
	ID() string
	Title() string
	Version() string
	Description() string
}

// Source is anything the framework can query.
type Source interface {
	Describable

	// IsAvailable probes the source. It may block and should honour ctx.
	IsAvailable(ctx context.Context) bool

	ContentTypes(ctx context.Context) []ContentType

	Query(ctx context.Context, req *QueryRequest) (*QueryResponse, error)
}

// Writer is the write half of a catalog.
type Writer interface {
	Create(ctx context.Context, req *CreateRequest) (*CreateResponse, error)
	Update(ctx context.Context, req *UpdateRequest) (*UpdateResponse, error)
	Delete(ctx context.Context, req *DeleteRequest) (*DeleteResponse, error)
}

// RemoteSource is a source living outside this process that can also serve
// resource bytes.
type RemoteSource interface {
	Source

	Retrieve(ctx context.Context, uri *url.URL, props Properties) (*ResourceResponse, error)

	// SupportedSchemes lists the resource URI schemes Retrieve accepts.
	SupportedSchemes() []string

	// Options lists retrieval options available for the metacard.
	Options(m *Metacard) []string
}

// FederatedSource is a remote, read-only, queryable catalog. Security
// attributes restrict which subjects may query it; none means everyone.
type FederatedSource interface {
	RemoteSource

	SecurityAttributes() map[string][]string
}

// ConnectedSource is a remote read-only source included in every default
// scope query.
type ConnectedSource interface {
	RemoteSource
}

// CatalogStore is a remote catalog taking part in distributed writes.
type CatalogStore interface {
	FederatedSource
	Writer
}

// CatalogProvider is the local read/write catalog.
type CatalogProvider interface {
	Source
	Writer

	// MaskID makes the provider report id as its own, so local results
	// carry the framework's identity.
	MaskID(id string)
}

// StorageProvider holds content for the local catalog. Create, Update and
// Delete stage changes under the request's transaction id; nothing is
// visible until Commit, and Rollback discards the staged changes.
type StorageProvider interface {
	Create(ctx context.Context, req *CreateStorageRequest) (*CreateStorageResponse, error)
	Read(ctx context.Context, req *ReadStorageRequest) (*ReadStorageResponse, error)
	Update(ctx context.Context, req *UpdateStorageRequest) (*UpdateStorageResponse, error)
	Delete(ctx context.Context, req *DeleteStorageRequest) (*DeleteStorageResponse, error)
	Commit(ctx context.Context, req StorageRequest) error
	Rollback(ctx context.Context, req StorageRequest) error
	IsAvailable(ctx context.Context) bool
}

// SourceDescriptor is a point-in-time summary of a source returned by
// GetSourceInfo.
type SourceDescriptor struct {
	ID            string
	Title         string
	Version       string
	Description   string
	ContentTypes  []ContentType
	Available     bool
	LastAvailable time.Time
}

// UnionContentTypes merges content type sets, dropping duplicates and
// sorting by name then version.
func UnionContentTypes(sets ...[]ContentType) []ContentType {
	seen := make(map[ContentType]struct{})
	out := make([]ContentType, 0)
	for _, set := range sets {
		for _, ct := range set {
			if _, dup := seen[ct]; dup {
				continue
			}
			seen[ct] = struct{}{}
			out = append(out, ct)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Version < out[j].Version
	})
	return out
}

// Package plugin defines the capability interfaces the catalog framework
// calls around every operation, and the two chain runners that invoke them.
//
// A plugin may implement any number of capabilities; Set.Register sorts a
// plugin into every chain it qualifies for. Plugins receive the in-flight
// request or response and return the (possibly transformed) value, or fail
// with one of two recognised errors:
//
//   - StopProcessing: the operation must be aborted. Policy and access
//     plugins veto with it; pre/post plugins may use it too.
//   - anything else: an execution failure. Pre/post chains log it and carry
//     on with the last good value; policy and access chains abort.
package plugin

import (
	"context"

	"github.com/marmos91/dittocat/pkg/catalog"
)

// Named is optionally implemented by plugins to appear by name in logs.
type Named interface {
	Name() string
}

// PolicyResponse is a policy plugin's contribution: requirements on the item
// being processed and on the operation as a whole.
type PolicyResponse struct {
	ItemPolicy      catalog.PolicyMap
	OperationPolicy catalog.PolicyMap
}

// PolicyPlugin computes security requirements. It never changes the request.
type PolicyPlugin interface {
	CreatePolicy(ctx context.Context, input *catalog.Metacard, props catalog.Properties) (PolicyResponse, error)
	UpdatePolicy(ctx context.Context, input *catalog.Metacard, props catalog.Properties) (PolicyResponse, error)
	DeletePolicy(ctx context.Context, metacards []*catalog.Metacard, props catalog.Properties) (PolicyResponse, error)
	DeletedPolicy(ctx context.Context, deleted *catalog.Metacard, props catalog.Properties) (PolicyResponse, error)
	QueryPolicy(ctx context.Context, query catalog.Query, props catalog.Properties) (PolicyResponse, error)
	ResultPolicy(ctx context.Context, result *catalog.Result, props catalog.Properties) (PolicyResponse, error)
	ResourcePolicy(ctx context.Context, req *catalog.ResourceRequest) (PolicyResponse, error)
	ResourceResponsePolicy(ctx context.Context, resp *catalog.ResourceResponse, m *catalog.Metacard) (PolicyResponse, error)
}

// AccessPlugin enforces the policy computed by policy plugins. It may
// filter or veto.
type AccessPlugin interface {
	PreCreate(ctx context.Context, req *catalog.CreateRequest) (*catalog.CreateRequest, error)
	PreUpdate(ctx context.Context, req *catalog.UpdateRequest, existing map[string]*catalog.Metacard) (*catalog.UpdateRequest, error)
	PreDelete(ctx context.Context, req *catalog.DeleteRequest) (*catalog.DeleteRequest, error)
	PostDelete(ctx context.Context, resp *catalog.DeleteResponse) (*catalog.DeleteResponse, error)
	PreQuery(ctx context.Context, req *catalog.QueryRequest) (*catalog.QueryRequest, error)
	PostQuery(ctx context.Context, resp *catalog.QueryResponse) (*catalog.QueryResponse, error)
	PreResource(ctx context.Context, req *catalog.ResourceRequest) (*catalog.ResourceRequest, error)
	PostResource(ctx context.Context, resp *catalog.ResourceResponse, m *catalog.Metacard) (*catalog.ResourceResponse, error)
}

type PreIngestPlugin interface {
	ProcessCreate(ctx context.Context, req *catalog.CreateRequest) (*catalog.CreateRequest, error)
	ProcessUpdate(ctx context.Context, req *catalog.UpdateRequest) (*catalog.UpdateRequest, error)
	ProcessDelete(ctx context.Context, req *catalog.DeleteRequest) (*catalog.DeleteRequest, error)
}

type PostIngestPlugin interface {
	ProcessCreated(ctx context.Context, resp *catalog.CreateResponse) (*catalog.CreateResponse, error)
	ProcessUpdated(ctx context.Context, resp *catalog.UpdateResponse) (*catalog.UpdateResponse, error)
	ProcessDeleted(ctx context.Context, resp *catalog.DeleteResponse) (*catalog.DeleteResponse, error)
}

type PreQueryPlugin interface {
	ProcessQuery(ctx context.Context, req *catalog.QueryRequest) (*catalog.QueryRequest, error)
}

type PostQueryPlugin interface {
	ProcessQueryResponse(ctx context.Context, resp *catalog.QueryResponse) (*catalog.QueryResponse, error)
}

// PreFederatedQueryPlugin runs once per source a query is sent to.
type PreFederatedQueryPlugin interface {
	ProcessFederatedQuery(ctx context.Context, src catalog.Source, req *catalog.QueryRequest) (*catalog.QueryRequest, error)
}

// PostFederatedQueryPlugin runs on each source's response before merging.
type PostFederatedQueryPlugin interface {
	ProcessFederatedResponse(ctx context.Context, resp *catalog.QueryResponse) (*catalog.QueryResponse, error)
}

type PreResourcePlugin interface {
	ProcessResourceRequest(ctx context.Context, req *catalog.ResourceRequest) (*catalog.ResourceRequest, error)
}

type PostResourcePlugin interface {
	ProcessResourceResponse(ctx context.Context, resp *catalog.ResourceResponse) (*catalog.ResourceResponse, error)
}

type PreCreateStoragePlugin interface {
	ProcessCreateStorage(ctx context.Context, req *catalog.CreateStorageRequest) (*catalog.CreateStorageRequest, error)
}

type PostCreateStoragePlugin interface {
	ProcessCreateStorageResponse(ctx context.Context, resp *catalog.CreateStorageResponse) (*catalog.CreateStorageResponse, error)
}

type PreUpdateStoragePlugin interface {
	ProcessUpdateStorage(ctx context.Context, req *catalog.UpdateStorageRequest) (*catalog.UpdateStorageRequest, error)
}

type PostUpdateStoragePlugin interface {
	ProcessUpdateStorageResponse(ctx context.Context, resp *catalog.UpdateStorageResponse) (*catalog.UpdateStorageResponse, error)
}

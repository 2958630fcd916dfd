package plugin

import (
	"context"

	"github.com/marmos91/dittocat/pkg/catalog"
)

// BasePolicy returns empty responses for every hook. Embed it to implement
// only the hooks a policy cares about.
type BasePolicy struct{}

func (BasePolicy) CreatePolicy(context.Context, *catalog.Metacard, catalog.Properties) (PolicyResponse, error) {
	return PolicyResponse{}, nil
}

func (BasePolicy) UpdatePolicy(context.Context, *catalog.Metacard, catalog.Properties) (PolicyResponse, error) {
	return PolicyResponse{}, nil
}

func (BasePolicy) DeletePolicy(context.Context, []*catalog.Metacard, catalog.Properties) (PolicyResponse, error) {
	return PolicyResponse{}, nil
}

func (BasePolicy) DeletedPolicy(context.Context, *catalog.Metacard, catalog.Properties) (PolicyResponse, error) {
	return PolicyResponse{}, nil
}

func (BasePolicy) QueryPolicy(context.Context, catalog.Query, catalog.Properties) (PolicyResponse, error) {
	return PolicyResponse{}, nil
}

func (BasePolicy) ResultPolicy(context.Context, *catalog.Result, catalog.Properties) (PolicyResponse, error) {
	return PolicyResponse{}, nil
}

func (BasePolicy) ResourcePolicy(context.Context, *catalog.ResourceRequest) (PolicyResponse, error) {
	return PolicyResponse{}, nil
}

func (BasePolicy) ResourceResponsePolicy(context.Context, *catalog.ResourceResponse, *catalog.Metacard) (PolicyResponse, error) {
	return PolicyResponse{}, nil
}

// BaseAccess passes every request and response through unchanged.
type BaseAccess struct{}

func (BaseAccess) PreCreate(_ context.Context, req *catalog.CreateRequest) (*catalog.CreateRequest, error) {
	return req, nil
}

func (BaseAccess) PreUpdate(_ context.Context, req *catalog.UpdateRequest, _ map[string]*catalog.Metacard) (*catalog.UpdateRequest, error) {
	return req, nil
}

func (BaseAccess) PreDelete(_ context.Context, req *catalog.DeleteRequest) (*catalog.DeleteRequest, error) {
	return req, nil
}

func (BaseAccess) PostDelete(_ context.Context, resp *catalog.DeleteResponse) (*catalog.DeleteResponse, error) {
	return resp, nil
}

func (BaseAccess) PreQuery(_ context.Context, req *catalog.QueryRequest) (*catalog.QueryRequest, error) {
	return req, nil
}

func (BaseAccess) PostQuery(_ context.Context, resp *catalog.QueryResponse) (*catalog.QueryResponse, error) {
	return resp, nil
}

func (BaseAccess) PreResource(_ context.Context, req *catalog.ResourceRequest) (*catalog.ResourceRequest, error) {
	return req, nil
}

func (BaseAccess) PostResource(_ context.Context, resp *catalog.ResourceResponse, _ *catalog.Metacard) (*catalog.ResourceResponse, error) {
	return resp, nil
}

// BaseIngest passes requests and responses through unchanged. It satisfies
// both PreIngestPlugin and PostIngestPlugin.
type BaseIngest struct{}

func (BaseIngest) ProcessCreate(_ context.Context, req *catalog.CreateRequest) (*catalog.CreateRequest, error) {
	return req, nil
}

func (BaseIngest) ProcessUpdate(_ context.Context, req *catalog.UpdateRequest) (*catalog.UpdateRequest, error) {
	return req, nil
}

func (BaseIngest) ProcessDelete(_ context.Context, req *catalog.DeleteRequest) (*catalog.DeleteRequest, error) {
	return req, nil
}

func (BaseIngest) ProcessCreated(_ context.Context, resp *catalog.CreateResponse) (*catalog.CreateResponse, error) {
	return resp, nil
}

func (BaseIngest) ProcessUpdated(_ context.Context, resp *catalog.UpdateResponse) (*catalog.UpdateResponse, error) {
	return resp, nil
}

func (BaseIngest) ProcessDeleted(_ context.Context, resp *catalog.DeleteResponse) (*catalog.DeleteResponse, error) {
	return resp, nil
}

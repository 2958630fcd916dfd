package framework

import (
	"fmt"

	"github.com/marmos91/dittocat/pkg/catalog"
)

// ============================================================================
// Request validation
// ============================================================================

func structural(class catalog.ErrorClass, format string, args ...any) error {
	return catalog.NewError(class, catalog.KindStructural, fmt.Sprintf(format, args...), nil)
}

func validateCreateRequest(req *catalog.CreateRequest) error {
	if req == nil {
		return structural(catalog.ClassIngest, "create request is nil")
	}
	if len(req.Metacards) == 0 {
		return structural(catalog.ClassIngest, "create request has no metacards")
	}
	for i, m := range req.Metacards {
		if m == nil {
			return structural(catalog.ClassIngest, "create request metacard %d is nil", i)
		}
	}
	return nil
}

func validateUpdateRequest(req *catalog.UpdateRequest) error {
	if req == nil {
		return structural(catalog.ClassIngest, "update request is nil")
	}
	if req.AttributeName == "" {
		return structural(catalog.ClassIngest, "update request has no attribute name")
	}
	if len(req.Updates) == 0 {
		return structural(catalog.ClassIngest, "update request has no updates")
	}
	for i, u := range req.Updates {
		if u.Key == "" || u.Metacard == nil {
			return structural(catalog.ClassIngest, "update %d needs a key and a metacard", i)
		}
	}
	return nil
}

func validateDeleteRequest(req *catalog.DeleteRequest) error {
	if req == nil {
		return structural(catalog.ClassIngest, "delete request is nil")
	}
	if req.AttributeName == "" {
		return structural(catalog.ClassIngest, "delete request has no attribute name")
	}
	if len(req.Values) == 0 {
		return structural(catalog.ClassIngest, "delete request has no values")
	}
	return nil
}

// validateContentItems checks the items of a storage request. requireID is
// set for updates, where every item must name the metacard it replaces.
func validateContentItems(items []*catalog.ContentItem, requireID bool) error {
	if len(items) == 0 {
		return structural(catalog.ClassIngest, "storage request has no content items")
	}
	for i, item := range items {
		switch {
		case item == nil:
			return structural(catalog.ClassIngest, "content item %d is nil", i)
		case item.Source == nil:
			return structural(catalog.ClassIngest, "content item %d has no content", i)
		case requireID && item.ID == "":
			return structural(catalog.ClassIngest, "content item %d has no metacard id", i)
		case item.Qualifier != "" && item.ID == "":
			return structural(catalog.ClassIngest, "derived content item %d has no metacard id", i)
		}
	}
	return nil
}

func validateQueryRequest(req *catalog.QueryRequest) error {
	if req == nil {
		return catalog.QueryError(catalog.KindUnsupported, "query request is nil", nil)
	}
	if req.Query.Filter == nil {
		return catalog.QueryError(catalog.KindUnsupported, "query has no filter", nil)
	}
	return nil
}

// ============================================================================
// Response normalization
// ============================================================================
//
// Every validateFix function is idempotent: applied to its own output it
// changes nothing.

func validateFixCreateResponse(resp *catalog.CreateResponse, req *catalog.CreateRequest) *catalog.CreateResponse {
	if resp == nil {
		resp = &catalog.CreateResponse{}
	}
	if resp.Request == nil {
		wrapped := *resp
		wrapped.Request = req
		resp = &wrapped
	}
	if resp.Created == nil {
		resp.Created = []*catalog.Metacard{}
	}
	if req != nil {
		resp.Properties.MergeMissing(req.Properties)
	}
	return resp
}

func validateFixUpdateResponse(resp *catalog.UpdateResponse, req *catalog.UpdateRequest) *catalog.UpdateResponse {
	if resp == nil {
		resp = &catalog.UpdateResponse{}
	}
	if resp.Request == nil {
		wrapped := *resp
		wrapped.Request = req
		resp = &wrapped
	}
	if resp.Updated == nil {
		resp.Updated = []catalog.UpdatePair{}
	}
	if req != nil {
		resp.Properties.MergeMissing(req.Properties)
	}
	return resp
}

func validateFixDeleteResponse(resp *catalog.DeleteResponse, req *catalog.DeleteRequest) *catalog.DeleteResponse {
	if resp == nil {
		resp = &catalog.DeleteResponse{}
	}
	if resp.Request == nil {
		wrapped := *resp
		wrapped.Request = req
		resp = &wrapped
	}
	if resp.Deleted == nil {
		resp.Deleted = []*catalog.Metacard{}
	}
	if req != nil {
		resp.Properties.MergeMissing(req.Properties)
	}
	return resp
}

// validateFixQueryResponse drops results without a metacard and makes sure
// the response points back at req. A nil response is an error: the
// strategy owes the caller an answer.
func validateFixQueryResponse(resp *catalog.QueryResponse, req *catalog.QueryRequest) (*catalog.QueryResponse, error) {
	if resp == nil {
		return nil, catalog.FederationError(catalog.KindInternal, "query produced no response", nil)
	}
	if resp.Request == nil {
		wrapped := *resp
		wrapped.Request = req
		resp = &wrapped
	}

	results := make([]*catalog.Result, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r != nil && r.Metacard != nil {
			results = append(results, r)
		}
	}
	if resp.Results == nil || len(results) != len(resp.Results) {
		resp.Results = results
	}
	if resp.Details == nil {
		resp.Details = []catalog.ProcessingDetails{}
	}
	if req != nil {
		resp.Properties.MergeMissing(req.Properties)
	}
	return resp, nil
}

func validateFixResourceResponse(resp *catalog.ResourceResponse, req *catalog.ResourceRequest) *catalog.ResourceResponse {
	if resp.Request == nil {
		wrapped := *resp
		wrapped.Request = req
		resp = &wrapped
	}
	if req != nil {
		resp.Properties.MergeMissing(req.Properties)
	}
	return resp
}

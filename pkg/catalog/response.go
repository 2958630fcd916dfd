package catalog

import "io"

type CreateResponse struct {
	Request          *CreateRequest
	Created          []*Metacard
	Properties       Properties
	ProcessingErrors []ProcessingDetails
}

// UpdatePair holds a stored metacard and the value that replaced it.
type UpdatePair struct {
	Old *Metacard
	New *Metacard
}

type UpdateResponse struct {
	Request          *UpdateRequest
	Updated          []UpdatePair
	Properties       Properties
	ProcessingErrors []ProcessingDetails
}

type DeleteResponse struct {
	Request          *DeleteRequest
	Deleted          []*Metacard
	Properties       Properties
	ProcessingErrors []ProcessingDetails
}

// Result is one query hit.
type Result struct {
	Metacard       *Metacard
	RelevanceScore float64
	Distance       float64
}

type QueryResponse struct {
	Request    *QueryRequest
	Results    []*Result
	Hits       int64
	Properties Properties
	Details    []ProcessingDetails
}

// Metacards returns the result metacards in order.
func (r *QueryResponse) Metacards() []*Metacard {
	out := make([]*Metacard, 0, len(r.Results))
	for _, res := range r.Results {
		out = append(out, res.Metacard)
	}
	return out
}

// Resource is a retrieved byte stream. Size is -1 when unknown. The caller
// owns Body and must close it.
type Resource struct {
	Name      string
	MimeType  string
	Size      int64
	Qualifier string
	Body      io.ReadCloser
}

type ResourceResponse struct {
	Request    *ResourceRequest
	Resource   *Resource
	Properties Properties
}

type SourceInfoResponse struct {
	Request *SourceInfoRequest
	Sources []SourceDescriptor
}

type CreateStorageResponse struct {
	Request          *CreateStorageRequest
	Created          []*ContentItem
	Properties       Properties
	ProcessingErrors []ProcessingDetails
}

type UpdateStorageResponse struct {
	Request          *UpdateStorageRequest
	Updated          []*ContentItem
	Properties       Properties
	ProcessingErrors []ProcessingDetails
}

type DeleteStorageResponse struct {
	Request    *DeleteStorageRequest
	Deleted    []*ContentItem
	Properties Properties
}

type ReadStorageResponse struct {
	Request    *ReadStorageRequest
	Item       *ContentItem
	Properties Properties
}

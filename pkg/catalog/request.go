package catalog

import (
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dittocat/pkg/filter"
)

// Request is implemented by every operation request.
type Request interface {
	// Props exposes the request's operation context.
	Props() *Properties
	// Destinations returns the explicit source or store ids targeted.
	Destinations() []string
}

// ============================================================================
// Query
// ============================================================================

// SortRelevance sorts by relevance score instead of an attribute.
const SortRelevance = "RELEVANCE"

// DefaultPageSize applies when a query leaves PageSize at zero.
const DefaultPageSize = 10

type SortBy struct {
	Attribute  string
	Descending bool
}

// Query is a filter plus paging and ordering. StartIndex is 1-based.
type Query struct {
	Filter             filter.Filter
	StartIndex         int
	PageSize           int
	Sort               []SortBy
	RequestsTotalCount bool
	Timeout            time.Duration
}

// NewQuery returns a query for the first page of f ordered by relevance.
func NewQuery(f filter.Filter) Query {
	return Query{
		Filter:     f,
		StartIndex: 1,
		PageSize:   DefaultPageSize,
		Sort:       []SortBy{{Attribute: SortRelevance, Descending: true}},
	}
}

// Normalized fills zero paging fields with defaults.
func (q Query) Normalized() Query {
	if q.StartIndex < 1 {
		q.StartIndex = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	if q.Filter == nil {
		q.Filter = filter.Include
	}
	return q
}

type QueryRequest struct {
	Properties Properties
	Query      Query
	Enterprise bool
	SourceIDs  []string
}

func (r *QueryRequest) Props() *Properties     { return &r.Properties }
func (r *QueryRequest) Destinations() []string { return r.SourceIDs }

// ============================================================================
// Create / Update / Delete
// ============================================================================

type CreateRequest struct {
	Properties Properties
	Metacards  []*Metacard
	StoreIDs   []string
}

func (r *CreateRequest) Props() *Properties     { return &r.Properties }
func (r *CreateRequest) Destinations() []string { return r.StoreIDs }

// Update pairs the value identifying a stored metacard (matched against the
// request's AttributeName) with its replacement.
type Update struct {
	Key      string
	Metacard *Metacard
}

type UpdateRequest struct {
	Properties    Properties
	AttributeName string
	Updates       []Update
	StoreIDs      []string
}

// NewUpdateRequestByID builds an update keyed by metacard id.
func NewUpdateRequestByID(metacards ...*Metacard) *UpdateRequest {
	req := &UpdateRequest{AttributeName: AttrID}
	for _, m := range metacards {
		req.Updates = append(req.Updates, Update{Key: m.ID(), Metacard: m})
	}
	return req
}

func (r *UpdateRequest) Props() *Properties     { return &r.Properties }
func (r *UpdateRequest) Destinations() []string { return r.StoreIDs }

type DeleteRequest struct {
	Properties    Properties
	AttributeName string
	Values        []string
	StoreIDs      []string
}

// NewDeleteRequestByID builds a delete keyed by metacard id.
func NewDeleteRequestByID(ids ...string) *DeleteRequest {
	return &DeleteRequest{AttributeName: AttrID, Values: ids}
}

func (r *DeleteRequest) Props() *Properties     { return &r.Properties }
func (r *DeleteRequest) Destinations() []string { return r.StoreIDs }

// ============================================================================
// Storage
// ============================================================================

// StorageRequest identifies a storage transaction.
type StorageRequest interface {
	TransactionID() string
}

type CreateStorageRequest struct {
	ID           string
	Properties   Properties
	ContentItems []*ContentItem
	StoreIDs     []string
}

func NewCreateStorageRequest(items ...*ContentItem) *CreateStorageRequest {
	return &CreateStorageRequest{ID: uuid.NewString(), ContentItems: items}
}

func (r *CreateStorageRequest) Props() *Properties     { return &r.Properties }
func (r *CreateStorageRequest) Destinations() []string { return r.StoreIDs }
func (r *CreateStorageRequest) TransactionID() string  { return r.ID }

type UpdateStorageRequest struct {
	ID           string
	Properties   Properties
	ContentItems []*ContentItem
	StoreIDs     []string
}

func NewUpdateStorageRequest(items ...*ContentItem) *UpdateStorageRequest {
	return &UpdateStorageRequest{ID: uuid.NewString(), ContentItems: items}
}

func (r *UpdateStorageRequest) Props() *Properties     { return &r.Properties }
func (r *UpdateStorageRequest) Destinations() []string { return r.StoreIDs }
func (r *UpdateStorageRequest) TransactionID() string  { return r.ID }

type DeleteStorageRequest struct {
	ID         string
	Properties Properties
	Metacards  []*Metacard
}

func NewDeleteStorageRequest(metacards ...*Metacard) *DeleteStorageRequest {
	return &DeleteStorageRequest{ID: uuid.NewString(), Metacards: metacards}
}

func (r *DeleteStorageRequest) TransactionID() string { return r.ID }

type ReadStorageRequest struct {
	Properties  Properties
	ResourceURI *url.URL
}

// ============================================================================
// Resource / source info
// ============================================================================

// Attribute names a ResourceRequest can be resolved by.
const (
	ResourceByID  = AttrID
	ResourceByURI = AttrResourceURI
)

// ResourceRequest asks for the bytes behind a metacard. Value is a string
// metacard id for ResourceByID or a *url.URL for ResourceByURI.
type ResourceRequest struct {
	Properties    Properties
	AttributeName string
	Value         any
}

func NewResourceRequestByID(id string) *ResourceRequest {
	return &ResourceRequest{AttributeName: ResourceByID, Value: id}
}

func NewResourceRequestByURI(u *url.URL) *ResourceRequest {
	return &ResourceRequest{AttributeName: ResourceByURI, Value: u}
}

func (r *ResourceRequest) Props() *Properties     { return &r.Properties }
func (r *ResourceRequest) Destinations() []string { return nil }

type SourceInfoRequest struct {
	Enterprise bool
	SourceIDs  []string
}

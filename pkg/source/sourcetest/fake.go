// Package sourcetest provides an in-memory catalog store for tests. It
// satisfies every source capability the framework consumes.
package sourcetest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittocat/pkg/catalog"
)

// Source is a configurable fake. The zero value is not usable; call New.
type Source struct {
	id    string
	types []catalog.ContentType

	available atomic.Bool

	mu        sync.Mutex
	metacards map[string]*catalog.Metacard
	order     []string
	security  map[string][]string
	resources map[string][]byte

	// QueryErr, when set, is returned by Query.
	QueryErr error
	// WriteErr, when set, is returned by Create, Update and Delete.
	WriteErr error
	// Delay is slept (honouring ctx) before Query returns.
	Delay time.Duration
	// PanicOnProbe makes IsAvailable panic.
	PanicOnProbe bool

	queries atomic.Int64
	creates atomic.Int64
	updates atomic.Int64
	deletes atomic.Int64
}

// New returns an available source with the given id and content types.
func New(id string, types ...string) *Source {
	s := &Source{
		id:        id,
		metacards: make(map[string]*catalog.Metacard),
		resources: make(map[string][]byte),
	}
	for _, t := range types {
		s.types = append(s.types, catalog.ContentType{Name: t, Version: "1"})
	}
	s.available.Store(true)
	return s
}

func (s *Source) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Source) Title() string       { return s.ID() }
func (s *Source) Version() string     { return "test" }
func (s *Source) Description() string { return "fake source " + s.ID() }

func (s *Source) SetAvailable(v bool) { s.available.Store(v) }

func (s *Source) IsAvailable(context.Context) bool {
	if s.PanicOnProbe {
		panic("probe exploded")
	}
	return s.available.Load()
}

func (s *Source) ContentTypes(context.Context) []catalog.ContentType {
	return append([]catalog.ContentType(nil), s.types...)
}

// SetSecurity sets the attributes a subject needs to query this source.
func (s *Source) SetSecurity(attrs map[string][]string) {
	s.mu.Lock()
	s.security = attrs
	s.mu.Unlock()
}

func (s *Source) SecurityAttributes() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.security
}

// Add stores copies of metacards as if they had been ingested.
func (s *Source) Add(metacards ...*catalog.Metacard) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range metacards {
		s.put(m)
	}
}

func (s *Source) put(m *catalog.Metacard) {
	c := m.Copy()
	c.SetSourceID(s.id)
	if _, ok := s.metacards[c.ID()]; !ok {
		s.order = append(s.order, c.ID())
	}
	s.metacards[c.ID()] = c
}

// AddResource makes Retrieve serve data for uri.
func (s *Source) AddResource(uri string, data []byte) {
	s.mu.Lock()
	s.resources[uri] = data
	s.mu.Unlock()
}

func (s *Source) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.metacards)
}

func (s *Source) Get(id string) *catalog.Metacard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metacards[id].Copy()
}

func (s *Source) Queries() int64 { return s.queries.Load() }
func (s *Source) Creates() int64 { return s.creates.Load() }
func (s *Source) Updates() int64 { return s.updates.Load() }
func (s *Source) Deletes() int64 { return s.deletes.Load() }

func (s *Source) Query(ctx context.Context, req *catalog.QueryRequest) (*catalog.QueryResponse, error) {
	s.queries.Add(1)
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.QueryErr != nil {
		return nil, s.QueryErr
	}

	s.mu.Lock()
	candidates := make([]*catalog.Metacard, 0, len(s.order))
	for _, id := range s.order {
		candidates = append(candidates, s.metacards[id].Copy())
	}
	s.mu.Unlock()

	results, hits := catalog.Evaluate(req.Query, candidates)
	return &catalog.QueryResponse{Request: req, Results: results, Hits: hits}, nil
}

func (s *Source) Create(_ context.Context, req *catalog.CreateRequest) (*catalog.CreateResponse, error) {
	s.creates.Add(1)
	if s.WriteErr != nil {
		return nil, s.WriteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	created := make([]*catalog.Metacard, 0, len(req.Metacards))
	for _, m := range req.Metacards {
		if m.ID() == "" {
			m.SetID(catalog.NewID())
		}
		s.put(m)
		created = append(created, s.metacards[m.ID()].Copy())
	}
	return &catalog.CreateResponse{Request: req, Created: created}, nil
}

func (s *Source) Update(_ context.Context, req *catalog.UpdateRequest) (*catalog.UpdateResponse, error) {
	s.updates.Add(1)
	if s.WriteErr != nil {
		return nil, s.WriteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var updated []catalog.UpdatePair
	for _, u := range req.Updates {
		old := s.find(req.AttributeName, u.Key)
		if old == nil {
			continue
		}
		next := u.Metacard.Copy()
		next.SetID(old.ID())
		s.put(next)
		updated = append(updated, catalog.UpdatePair{Old: old.Copy(), New: s.metacards[old.ID()].Copy()})
	}
	return &catalog.UpdateResponse{Request: req, Updated: updated}, nil
}

func (s *Source) Delete(_ context.Context, req *catalog.DeleteRequest) (*catalog.DeleteResponse, error) {
	s.deletes.Add(1)
	if s.WriteErr != nil {
		return nil, s.WriteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := make([]*catalog.Metacard, 0, len(req.Values))
	for _, v := range req.Values {
		m := s.find(req.AttributeName, v)
		if m == nil {
			continue
		}
		delete(s.metacards, m.ID())
		for i, id := range s.order {
			if id == m.ID() {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
		deleted = append(deleted, m)
	}
	return &catalog.DeleteResponse{Request: req, Deleted: deleted}, nil
}

func (s *Source) find(attr, key string) *catalog.Metacard {
	if attr == "" || attr == catalog.AttrID {
		return s.metacards[key]
	}
	for _, id := range s.order {
		m := s.metacards[id]
		if m.String(attr) == key {
			return m
		}
	}
	return nil
}

func (s *Source) Retrieve(_ context.Context, uri *url.URL, _ catalog.Properties) (*catalog.ResourceResponse, error) {
	s.mu.Lock()
	data, ok := s.resources[uri.String()]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", uri, ErrNoResource)
	}
	return &catalog.ResourceResponse{
		Resource: &catalog.Resource{
			Name:     uri.String(),
			MimeType: "application/octet-stream",
			Size:     int64(len(data)),
			Body:     io.NopCloser(strings.NewReader(string(data))),
		},
	}, nil
}

func (s *Source) SupportedSchemes() []string { return []string{"http", "https", "content"} }

func (s *Source) Options(*catalog.Metacard) []string { return []string{"download"} }

func (s *Source) MaskID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	for _, m := range s.metacards {
		m.SetSourceID(id)
	}
}

// ErrNoResource is returned by Retrieve for unknown URIs.
var ErrNoResource = errors.New("no such resource")

var (
	_ catalog.CatalogStore    = (*Source)(nil)
	_ catalog.CatalogProvider = (*Source)(nil)
	_ catalog.ConnectedSource = (*Source)(nil)
)

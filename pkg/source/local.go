package source

import (
	"context"
	"fmt"
	"net/url"

	"github.com/marmos91/dittocat/pkg/catalog"
)

// LocalCatalog is a catalog living in this process: a memory or badger
// provider.
type LocalCatalog interface {
	catalog.Source
	catalog.Writer
}

// LocalStore exposes an in-process catalog as a catalog store, so extra
// catalogs can take part in federation and distributed writes. It serves
// no resources.
type LocalStore struct {
	LocalCatalog
	security map[string][]string
}

// NewLocalStore wraps c. security restricts which subjects may query the
// store; nil means everyone.
func NewLocalStore(c LocalCatalog, security map[string][]string) *LocalStore {
	return &LocalStore{LocalCatalog: c, security: security}
}

func (s *LocalStore) SecurityAttributes() map[string][]string {
	out := make(map[string][]string, len(s.security))
	for k, v := range s.security {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func (s *LocalStore) SupportedSchemes() []string { return nil }

func (s *LocalStore) Options(*catalog.Metacard) []string { return nil }

func (s *LocalStore) Retrieve(_ context.Context, uri *url.URL, _ catalog.Properties) (*catalog.ResourceResponse, error) {
	return nil, fmt.Errorf("store %s does not serve resources (%s)", s.ID(), uri)
}

var _ catalog.CatalogStore = (*LocalStore)(nil)

package registry

import (
	"github.com/marmos91/dittocat/pkg/catalog"
)

// Permits reports whether subject may query src. A source without
// security attributes is open to everyone.
func Permits(subject *catalog.Subject, src catalog.FederatedSource) bool {
	if isNil(src) {
		return false
	}
	return subject.Permits(src.SecurityAttributes())
}

// PermittedFederatedSources splits the federated sources into those the
// subject may query and those it may not, both ordered by id.
func (r *Registry) PermittedFederatedSources(subject *catalog.Subject) (permitted, denied []catalog.FederatedSource) {
	for _, src := range r.FederatedSources() {
		if Permits(subject, src) {
			permitted = append(permitted, src)
		} else {
			denied = append(denied, src)
		}
	}
	return permitted, denied
}

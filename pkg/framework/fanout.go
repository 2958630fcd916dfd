package framework

import (
	"fmt"

	"github.com/marmos91/dittocat/internal/logger"
	"github.com/marmos91/dittocat/pkg/catalog"
)

// ============================================================================
// Fanout proxy
// ============================================================================
//
// A fanout framework answers every query from all of its sources and
// reports itself as the only source. Writes are rejected before any work
// is done (see errFanoutWrite).

// fanoutScope forces req to enterprise scope. Explicit source ids other
// than the framework's own are unknown to a fanout proxy's clients.
func (f *CatalogFramework) fanoutScope(req *catalog.QueryRequest) error {
	for _, id := range req.SourceIDs {
		if !f.isLocalID(id) {
			return catalog.QueryError(catalog.KindNotFound, fmt.Sprintf("unknown source: %s", id), nil)
		}
	}
	if !req.Enterprise {
		logger.Debug("Fanout proxy widens query to enterprise scope")
	}
	req.Enterprise = true
	req.SourceIDs = nil
	return nil
}

// renameSources returns resp with every result and detail attributed to
// the framework. Metacards are copied before their source id changes, so
// values cached by a source stay untouched.
func (f *CatalogFramework) renameSources(resp *catalog.QueryResponse) *catalog.QueryResponse {
	renamed := *resp

	renamed.Results = make([]*catalog.Result, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r == nil || r.Metacard == nil {
			continue
		}
		out := *r
		if r.Metacard.SourceID() != f.config.ID {
			out.Metacard = r.Metacard.Copy()
			out.Metacard.SetSourceID(f.config.ID)
		}
		renamed.Results = append(renamed.Results, &out)
	}

	details := make([]catalog.ProcessingDetails, 0, len(resp.Details))
	for _, d := range resp.Details {
		d.SourceID = f.config.ID
		details = append(details, d)
	}
	renamed.Details = catalog.MergeDetails(nil, details)

	return &renamed
}

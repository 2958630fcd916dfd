package catalog

import (
	"errors"
	"sort"
)

// ProcessingDetails records a failure local to one source or store. It is
// attached to a response and never raised on its own.
type ProcessingDetails struct {
	SourceID string
	Err      error
	Message  string
}

func (d ProcessingDetails) String() string {
	switch {
	case d.Message != "" && d.Err != nil:
		return d.SourceID + ": " + d.Message + ": " + d.Err.Error()
	case d.Err != nil:
		return d.SourceID + ": " + d.Err.Error()
	}
	return d.SourceID + ": " + d.Message
}

// Markers carried in ProcessingDetails.Err.
var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrSourceNotFound    = errors.New("source id is not found")
	ErrStoreNotFound     = errors.New("catalog store does not exist")
)

// UnavailableDetails records a source skipped because it is down or not
// permitted.
func UnavailableDetails(sourceID string) ProcessingDetails {
	return ProcessingDetails{SourceID: sourceID, Err: ErrSourceUnavailable, Message: "source is unavailable"}
}

// NotFoundDetails records an explicit source id nothing is registered for.
func NotFoundDetails(sourceID string) ProcessingDetails {
	return ProcessingDetails{SourceID: sourceID, Err: ErrSourceNotFound, Message: "source id is not found"}
}

// MergeDetails returns the union of a and b without duplicate
// (source, message, error) entries, ordered by source id.
func MergeDetails(a, b []ProcessingDetails) []ProcessingDetails {
	type key struct{ source, msg, err string }
	seen := make(map[key]struct{}, len(a)+len(b))
	out := make([]ProcessingDetails, 0, len(a)+len(b))
	for _, d := range append(append([]ProcessingDetails(nil), a...), b...) {
		k := key{d.SourceID, d.Message, ""}
		if d.Err != nil {
			k.err = d.Err.Error()
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

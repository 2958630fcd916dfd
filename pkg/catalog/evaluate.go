package catalog

import (
	"sort"

	"github.com/marmos91/dittocat/pkg/filter"
)

// Evaluate runs q against candidates in memory: it keeps the metacards
// matching the filter, orders them by the query's sort policy and slices
// the requested page. hits is the number of matches before paging.
// Candidates are not copied.
func Evaluate(q Query, candidates []*Metacard) (results []*Result, hits int64) {
	q = q.Normalized()

	matched := make([]*Result, 0)
	for _, m := range candidates {
		if m == nil || !q.Filter.Match(m) {
			continue
		}
		matched = append(matched, &Result{Metacard: m, RelevanceScore: 1})
	}
	SortResults(matched, q.Sort)

	hits = int64(len(matched))
	return Page(matched, q.StartIndex, q.PageSize), hits
}

// SortResults orders results in place by the given sort keys. Relevance
// sorts by score; any other key sorts by the first value of that attribute
// with missing values last.
func SortResults(results []*Result, by []SortBy) {
	if len(by) == 0 {
		return
	}
	sort.SliceStable(results, func(i, j int) bool {
		for _, s := range by {
			c := compareResults(results[i], results[j], s.Attribute)
			if c == 0 {
				continue
			}
			if s.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compareResults(a, b *Result, attr string) int {
	if attr == "" || attr == SortRelevance {
		switch {
		case a.RelevanceScore < b.RelevanceScore:
			return -1
		case a.RelevanceScore > b.RelevanceScore:
			return 1
		}
		return 0
	}
	av, bv := firstValue(a.Metacard, attr), firstValue(b.Metacard, attr)
	switch {
	case av == nil && bv == nil:
		return 0
	case av == nil:
		return 1
	case bv == nil:
		return -1
	}
	return filter.Compare(av, bv)
}

func firstValue(m *Metacard, attr string) any {
	if m == nil {
		return nil
	}
	values := m.Values(attr)
	if len(values) == 0 {
		return nil
	}
	return values[0]
}

// Page returns results[start-1 : start-1+size] clamped to the slice. start
// is 1-based.
func Page(results []*Result, start, size int) []*Result {
	if start < 1 {
		start = 1
	}
	from := start - 1
	if from >= len(results) {
		return []*Result{}
	}
	to := len(results)
	if size > 0 && from+size < to {
		to = from + size
	}
	return results[from:to]
}

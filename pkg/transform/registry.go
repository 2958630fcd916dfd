package transform

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/marmos91/dittocat/pkg/mime"
)

type rankedInput struct {
	t     InputTransformer
	rank  int
	order int
}

// Registry holds every transformer known to the framework.
//
// Thread Safety: Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	inputs    []rankedInput
	metacards map[string]MetacardTransformer
	responses map[string]ResponseTransformer
	next      int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		metacards: make(map[string]MetacardTransformer),
		responses: make(map[string]ResponseTransformer),
	}
}

// NewDefaultRegistry creates a registry holding the built-in transformers.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.RegisterInput(JSONInput{}, 10)
	r.RegisterInput(YAMLInput{}, 10)
	r.RegisterInput(MarkdownInput{}, 10)
	r.RegisterInput(XMLInput{}, 10)
	r.RegisterInput(FallbackInput{}, 0)

	for _, t := range []MetacardTransformer{JSONMetacard{}, YAMLMetacard{}, CBORMetacard{}} {
		_ = r.RegisterMetacard(t)
	}
	for _, t := range []ResponseTransformer{JSONResponse{}, YAMLResponse{}} {
		_ = r.RegisterResponse(t)
	}
	return r
}

// RegisterInput adds an input transformer. Higher ranks are preferred
// among equally specific matches.
func (r *Registry) RegisterInput(t InputTransformer, rank int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs = append(r.inputs, rankedInput{t: t, rank: rank, order: r.next})
	r.next++
}

func (r *Registry) RegisterMetacard(t MetacardTransformer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.metacards[t.ID()]; dup {
		return fmt.Errorf("metacard transformer %q already registered", t.ID())
	}
	r.metacards[t.ID()] = t
	return nil
}

func (r *Registry) RegisterResponse(t ResponseTransformer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.responses[t.ID()]; dup {
		return fmt.Errorf("response transformer %q already registered", t.ID())
	}
	r.responses[t.ID()] = t
	return nil
}

// Metacard returns the metacard transformer with the given id.
func (r *Registry) Metacard(id string) (MetacardTransformer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.metacards[id]
	return t, ok
}

// Response returns the response transformer with the given id.
func (r *Registry) Response(id string) (ResponseTransformer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.responses[id]
	return t, ok
}

// MetacardIDs lists the registered metacard transformer ids, sorted.
func (r *Registry) MetacardIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.metacards))
	for id := range r.metacards {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Match specificity, most specific first.
const (
	matchExact = iota
	matchBase
	matchWildcardSubtype
	matchAny
	noMatch
)

// FindMatches returns the input transformers able to handle mimeType in
// preference order: exact match including parameters, base type match,
// "type/*", then "*/*". Ties are broken by rank, then registration order.
func (r *Registry) FindMatches(mimeType string) []InputTransformer {
	r.mu.RLock()
	candidates := append([]rankedInput(nil), r.inputs...)
	r.mu.RUnlock()

	type scored struct {
		rankedInput
		score int
	}
	var matches []scored
	for _, c := range candidates {
		best := noMatch
		for _, declared := range c.t.MimeTypes() {
			if s := specificity(declared, mimeType); s < best {
				best = s
			}
		}
		if best != noMatch {
			matches = append(matches, scored{c, best})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.score != b.score {
			return a.score < b.score
		}
		if a.rank != b.rank {
			return a.rank > b.rank
		}
		return a.order < b.order
	})

	out := make([]InputTransformer, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.t)
	}
	return out
}

func specificity(declared, requested string) int {
	declared = strings.ToLower(strings.ReplaceAll(declared, " ", ""))
	full := strings.ToLower(strings.ReplaceAll(requested, " ", ""))
	base := mime.Base(requested)

	switch {
	case declared == "*/*":
		return matchAny
	case declared == full && strings.Contains(full, ";"):
		return matchExact
	case declared == base:
		return matchBase
	}
	if major, ok := strings.CutSuffix(declared, "/*"); ok {
		if strings.HasPrefix(base, major+"/") {
			return matchWildcardSubtype
		}
	}
	return noMatch
}

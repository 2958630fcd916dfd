package catalog

import "sort"

// PolicyMap maps a security attribute name to the values required for it.
type PolicyMap map[string][]string

// Merge adds every value of other into p, keeping values unique and sorted.
// It returns p, allocating it when nil.
func (p PolicyMap) Merge(other map[string][]string) PolicyMap {
	if p == nil {
		p = make(PolicyMap, len(other))
	}
	for key, values := range other {
		seen := make(map[string]struct{}, len(p[key])+len(values))
		merged := make([]string, 0, len(p[key])+len(values))
		for _, v := range append(append([]string(nil), p[key]...), values...) {
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			merged = append(merged, v)
		}
		sort.Strings(merged)
		p[key] = merged
	}
	return p
}

func (p PolicyMap) Clone() PolicyMap {
	if p == nil {
		return nil
	}
	c := make(PolicyMap, len(p))
	for k, v := range p {
		c[k] = append([]string(nil), v...)
	}
	return c
}

// Subject is the caller on whose behalf an operation runs.
type Subject struct {
	Name       string
	Attributes map[string][]string
}

// Permits reports whether the subject satisfies every entry of required:
// for each key the subject must hold all listed values. An empty
// requirement permits everyone, including a nil subject.
func (s *Subject) Permits(required map[string][]string) bool {
	if len(required) == 0 {
		return true
	}
	if s == nil {
		return false
	}
	for key, values := range required {
		held := make(map[string]struct{}, len(s.Attributes[key]))
		for _, v := range s.Attributes[key] {
			held[v] = struct{}{}
		}
		for _, v := range values {
			if _, ok := held[v]; !ok {
				return false
			}
		}
	}
	return true
}

// Package record holds the record semantics shared by the catalog provider
// implementations: descriptive fields, lifecycle timestamps and key lookup.
package record

import (
	"sort"
	"sync"
	"time"

	"github.com/marmos91/dittocat/pkg/catalog"
)

// Info is the descriptive part of a provider. The id can be masked at
// runtime, so it is guarded.
type Info struct {
	mu          sync.RWMutex
	id          string
	title       string
	version     string
	description string
}

func NewInfo(id, title, version, description string) *Info {
	if title == "" {
		title = id
	}
	return &Info{id: id, title: title, version: version, description: description}
}

func (i *Info) ID() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.id
}

func (i *Info) SetID(id string) {
	i.mu.Lock()
	i.id = id
	i.mu.Unlock()
}

func (i *Info) Title() string       { return i.title }
func (i *Info) Version() string     { return i.version }
func (i *Info) Description() string { return i.description }

// StampCreated prepares a metacard for its first write: it assigns an id
// when missing and sets both metacard lifecycle dates.
func StampCreated(m *catalog.Metacard, now time.Time) {
	if m.ID() == "" {
		m.SetID(catalog.NewID())
	}
	if len(m.Values(catalog.AttrMetacardCreated)) == 0 {
		m.SetAttribute(catalog.AttrMetacardCreated, now)
	}
	m.SetAttribute(catalog.AttrMetacardModified, now)
}

// StampUpdated prepares next to replace old: it keeps the stored id and
// creation date and refreshes the modification date.
func StampUpdated(next, old *catalog.Metacard, now time.Time) {
	next.SetID(old.ID())
	if created := old.Values(catalog.AttrMetacardCreated); len(created) > 0 {
		next.SetAttribute(catalog.AttrMetacardCreated, created...)
	}
	next.SetAttribute(catalog.AttrMetacardModified, now)
}

// Matches reports whether m is identified by key under attr. An empty attr
// means the metacard id.
func Matches(m *catalog.Metacard, attr, key string) bool {
	if attr == "" || attr == catalog.AttrID {
		return m.ID() == key
	}
	for _, v := range m.Values(attr) {
		if s, ok := v.(string); ok && s == key {
			return true
		}
	}
	return m.String(attr) == key
}

// ContentTypes collects the distinct content types of metacards.
func ContentTypes(metacards []*catalog.Metacard) []catalog.ContentType {
	seen := make(map[catalog.ContentType]struct{})
	for _, m := range metacards {
		name := m.String(catalog.AttrContentType)
		if name == "" {
			continue
		}
		seen[catalog.ContentType{Name: name, Version: m.String(catalog.AttrContentTypeVersion)}] = struct{}{}
	}
	out := make([]catalog.ContentType, 0, len(seen))
	for ct := range seen {
		out = append(out, ct)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Version < out[j].Version
	})
	return out
}

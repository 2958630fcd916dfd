package catalog

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Metacard is a catalog record: a typed attribute map describing an item,
// optionally pointing at binary content through its resource URI.
//
// A Metacard is not safe for concurrent mutation. Pipeline stages mutate it
// in sequence; providers keep their own copies (see Copy) so persisted state
// is never touched by callers.
type Metacard struct {
	typ      *MetacardType
	sourceID string
	attrs    map[string]*Attribute
}

// NewMetacard creates an empty metacard of the given type, or of the default
// type when t is nil.
func NewMetacard(t *MetacardType) *Metacard {
	if t == nil {
		t = DefaultMetacardType()
	}
	return &Metacard{
		typ:   t,
		attrs: make(map[string]*Attribute),
	}
}

// NewID returns a fresh metacard identifier (a UUID without hyphens).
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (m *Metacard) Type() *MetacardType {
	return m.typ
}

// SetType replaces the metacard type. Attribute values are kept.
func (m *Metacard) SetType(t *MetacardType) {
	if t != nil {
		m.typ = t
	}
}

func (m *Metacard) SourceID() string {
	return m.sourceID
}

func (m *Metacard) SetSourceID(id string) {
	m.sourceID = id
}

func (m *Metacard) ID() string {
	return m.String(AttrID)
}

func (m *Metacard) SetID(id string) {
	m.SetAttribute(AttrID, id)
}

func (m *Metacard) Title() string {
	return m.String(AttrTitle)
}

// Attribute returns the named attribute or nil. The returned value shares
// nothing with the metacard.
func (m *Metacard) Attribute(name string) *Attribute {
	a, ok := m.attrs[name]
	if !ok {
		return nil
	}
	return &Attribute{Name: a.Name, Values: copyValues(a.Values)}
}

// Values implements filter.Record.
func (m *Metacard) Values(name string) []any {
	a, ok := m.attrs[name]
	if !ok {
		return nil
	}
	return a.Values
}

// SetAttribute replaces the named attribute. Calling it without values, or
// with a single nil value, removes the attribute.
func (m *Metacard) SetAttribute(name string, values ...any) {
	if len(values) == 0 || (len(values) == 1 && values[0] == nil) {
		delete(m.attrs, name)
		return
	}
	m.attrs[name] = &Attribute{Name: name, Values: copyValues(values)}
}

// AttributeNames returns the names of all set attributes, sorted.
func (m *Metacard) AttributeNames() []string {
	names := make([]string, 0, len(m.attrs))
	for name := range m.attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String returns the first value of the attribute rendered as text.
func (m *Metacard) String(name string) string {
	a, ok := m.attrs[name]
	if !ok || len(a.Values) == 0 || a.Values[0] == nil {
		return ""
	}
	switch v := a.Values[0].(type) {
	case string:
		return v
	case *url.URL:
		return v.String()
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// ResourceURI parses the resource-uri attribute. It returns nil when the
// attribute is missing or unparsable.
func (m *Metacard) ResourceURI() *url.URL {
	raw := m.String(AttrResourceURI)
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	return u
}

func (m *Metacard) SetResourceURI(u *url.URL) {
	if u == nil {
		m.SetAttribute(AttrResourceURI)
		return
	}
	m.SetAttribute(AttrResourceURI, u.String())
}

// Tags returns the metacard-tags values.
func (m *Metacard) Tags() []string {
	var tags []string
	for _, v := range m.Values(AttrTags) {
		if s, ok := v.(string); ok {
			tags = append(tags, s)
		}
	}
	return tags
}

// Security returns the metacard's security attribute, or nil.
func (m *Metacard) Security() PolicyMap {
	a, ok := m.attrs[AttrSecurity]
	if !ok || len(a.Values) == 0 {
		return nil
	}
	switch v := a.Values[0].(type) {
	case PolicyMap:
		return v.Clone()
	case map[string][]string:
		return PolicyMap(v).Clone()
	}
	return nil
}

func (m *Metacard) SetSecurity(p PolicyMap) {
	m.SetAttribute(AttrSecurity, p.Clone())
}

// Copy returns a deep copy sharing only the (immutable) type.
func (m *Metacard) Copy() *Metacard {
	if m == nil {
		return nil
	}
	c := &Metacard{
		typ:      m.typ,
		sourceID: m.sourceID,
		attrs:    make(map[string]*Attribute, len(m.attrs)),
	}
	for name, a := range m.attrs {
		c.attrs[name] = &Attribute{Name: a.Name, Values: copyValues(a.Values)}
	}
	return c
}

func copyValues(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		switch val := v.(type) {
		case []byte:
			out[i] = append([]byte(nil), val...)
		case PolicyMap:
			out[i] = val.Clone()
		case map[string][]string:
			out[i] = PolicyMap(val).Clone()
		case *url.URL:
			u := *val
			out[i] = &u
		default:
			out[i] = v
		}
	}
	return out
}

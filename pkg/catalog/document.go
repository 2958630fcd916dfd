package catalog

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"time"
)

// Document is the portable form of a metacard used by transformers and
// persistent providers. Single values are stored as scalars, multi-valued
// attributes as lists.
type Document struct {
	ID         string         `json:"id" yaml:"id" cbor:"id"`
	Type       string         `json:"type,omitempty" yaml:"type,omitempty" cbor:"type,omitempty"`
	SourceID   string         `json:"source,omitempty" yaml:"source,omitempty" cbor:"source,omitempty"`
	Attributes map[string]any `json:"attributes" yaml:"attributes" cbor:"attributes"`
}

// ToDocument converts m. When textTimes is set, dates become RFC 3339
// strings, URLs strings, and binary values base64 text so the document
// survives text encodings.
func ToDocument(m *Metacard, textTimes bool) Document {
	doc := Document{
		ID:         m.ID(),
		Type:       m.Type().Name(),
		SourceID:   m.SourceID(),
		Attributes: make(map[string]any, len(m.attrs)),
	}
	for _, name := range m.AttributeNames() {
		if name == AttrID {
			continue
		}
		values := m.attrs[name].Values
		out := make([]any, 0, len(values))
		for _, v := range values {
			out = append(out, portable(v, textTimes))
		}
		d, known := m.Type().Descriptor(name)
		if len(out) == 1 && (!known || !d.MultiValued) {
			doc.Attributes[name] = out[0]
		} else {
			doc.Attributes[name] = out
		}
	}
	return doc
}

func portable(v any, text bool) any {
	switch val := v.(type) {
	case PolicyMap:
		return map[string][]string(val.Clone())
	case *url.URL:
		return val.String()
	case time.Time:
		if text {
			return val.UTC().Format(time.RFC3339Nano)
		}
		return val.UTC()
	case []byte:
		if text {
			return base64.StdEncoding.EncodeToString(val)
		}
		return append([]byte(nil), val...)
	}
	return v
}

// TypeLookup resolves a metacard type by name. It returns nil for unknown
// names.
type TypeLookup func(name string) *MetacardType

// FromDocument rebuilds a metacard. Values of declared attributes are
// coerced to their format; undeclared attributes keep their decoded values.
func FromDocument(doc Document, lookup TypeLookup) (*Metacard, error) {
	var typ *MetacardType
	if lookup != nil && doc.Type != "" {
		typ = lookup(doc.Type)
	}
	m := NewMetacard(typ)
	m.SetSourceID(doc.SourceID)

	names := make([]string, 0, len(doc.Attributes))
	for name := range doc.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		raw := doc.Attributes[name]
		if name == AttrSecurity {
			if pm, ok := ToPolicyMap(raw); ok {
				m.SetSecurity(pm)
				continue
			}
			return nil, fmt.Errorf("attribute %s: not a policy map", name)
		}

		var values []any
		switch list := raw.(type) {
		case []any:
			values = list
		case []string:
			for _, s := range list {
				values = append(values, s)
			}
		default:
			values = []any{raw}
		}

		d, known := m.Type().Descriptor(name)
		if known {
			for i, v := range values {
				cv, err := CoerceValue(d.Format, v)
				if err != nil {
					return nil, fmt.Errorf("attribute %s: %w", name, err)
				}
				values[i] = cv
			}
		}
		m.SetAttribute(name, values...)
	}
	if doc.ID != "" {
		m.SetID(doc.ID)
	}
	return m, nil
}

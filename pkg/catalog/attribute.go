package catalog

import (
	"sort"
	"sync"
)

// Core attribute names.
const (
	AttrID                  = "id"
	AttrTitle               = "title"
	AttrDescription         = "description"
	AttrCreated             = "created"
	AttrModified            = "modified"
	AttrEffective           = "effective"
	AttrExpiration          = "expiration"
	AttrMetadata            = "metadata"
	AttrContentType         = "content-type"
	AttrContentTypeVersion  = "content-type-version"
	AttrResourceURI         = "resource-uri"
	AttrResourceSize        = "resource-size"
	AttrResourceDownloadURL = "resource-download-url"
	AttrDerivedResourceURI  = "derived-resource-uri"
	AttrChecksum            = "checksum"
	AttrChecksumAlgorithm   = "checksum-algorithm"
	AttrTags                = "metacard-tags"
	AttrSecurity            = "security"
	AttrPointOfContact      = "point-of-contact"
	AttrValidationErrors    = "validation-errors"
	AttrValidationWarnings  = "validation-warnings"
	AttrMetacardCreated     = "metacard.created"
	AttrMetacardModified    = "metacard.modified"
)

// DefaultTag marks metacards describing a resource. Metacards without tags
// are treated as resources too.
const DefaultTag = "resource"

// AttributeFormat is the declared type of an attribute's values.
type AttributeFormat int

const (
	FormatString AttributeFormat = iota
	FormatBoolean
	FormatDate
	FormatShort
	FormatInteger
	FormatLong
	FormatFloat
	FormatDouble
	FormatGeometry
	FormatBinary
	FormatXML
	FormatObject
)

var formatNames = map[AttributeFormat]string{
	FormatString:   "STRING",
	FormatBoolean:  "BOOLEAN",
	FormatDate:     "DATE",
	FormatShort:    "SHORT",
	FormatInteger:  "INTEGER",
	FormatLong:     "LONG",
	FormatFloat:    "FLOAT",
	FormatDouble:   "DOUBLE",
	FormatGeometry: "GEOMETRY",
	FormatBinary:   "BINARY",
	FormatXML:      "XML",
	FormatObject:   "OBJECT",
}

func (f AttributeFormat) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseAttributeFormat maps a format name back to its value.
func ParseAttributeFormat(name string) (AttributeFormat, bool) {
	for f, n := range formatNames {
		if n == name {
			return f, true
		}
	}
	return FormatString, false
}

// AttributeDescriptor declares one attribute of a MetacardType.
type AttributeDescriptor struct {
	Name        string
	Format      AttributeFormat
	MultiValued bool
	Indexed     bool
	Stored      bool
}

// Attribute is a named, possibly multi-valued, attribute value.
type Attribute struct {
	Name   string
	Values []any
}

// Value returns the first value or nil.
func (a *Attribute) Value() any {
	if a == nil || len(a.Values) == 0 {
		return nil
	}
	return a.Values[0]
}

// MetacardType names the attributes a metacard may carry and their formats.
// A type is immutable once built; attribute injectors derive new types with
// With.
type MetacardType struct {
	name        string
	descriptors map[string]AttributeDescriptor
}

// NewMetacardType builds a type from descriptors. Later descriptors with a
// duplicate name replace earlier ones.
func NewMetacardType(name string, descriptors ...AttributeDescriptor) *MetacardType {
	t := &MetacardType{
		name:        name,
		descriptors: make(map[string]AttributeDescriptor, len(descriptors)),
	}
	for _, d := range descriptors {
		t.descriptors[d.Name] = d
	}
	return t
}

func (t *MetacardType) Name() string {
	return t.name
}

// Descriptor returns the descriptor for name.
func (t *MetacardType) Descriptor(name string) (AttributeDescriptor, bool) {
	d, ok := t.descriptors[name]
	return d, ok
}

// Descriptors returns every descriptor sorted by name.
func (t *MetacardType) Descriptors() []AttributeDescriptor {
	out := make([]AttributeDescriptor, 0, len(t.descriptors))
	for _, d := range t.descriptors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// With returns a new type with the same name and the extra descriptors.
func (t *MetacardType) With(extra ...AttributeDescriptor) *MetacardType {
	all := make([]AttributeDescriptor, 0, len(t.descriptors)+len(extra))
	for _, d := range t.descriptors {
		all = append(all, d)
	}
	all = append(all, extra...)
	return NewMetacardType(t.name, all...)
}

var (
	defaultTypeOnce sync.Once
	defaultType     *MetacardType
)

// DefaultMetacardTypeName names the type used when none is given.
const DefaultMetacardTypeName = "catalog.metacard"

// DefaultMetacardType returns the shared core metacard type.
func DefaultMetacardType() *MetacardType {
	defaultTypeOnce.Do(func() {
		str := func(name string) AttributeDescriptor {
			return AttributeDescriptor{Name: name, Format: FormatString, Indexed: true, Stored: true}
		}
		date := func(name string) AttributeDescriptor {
			return AttributeDescriptor{Name: name, Format: FormatDate, Indexed: true, Stored: true}
		}
		defaultType = NewMetacardType(DefaultMetacardTypeName,
			str(AttrID),
			str(AttrTitle),
			str(AttrDescription),
			date(AttrCreated),
			date(AttrModified),
			date(AttrEffective),
			date(AttrExpiration),
			date(AttrMetacardCreated),
			date(AttrMetacardModified),
			AttributeDescriptor{Name: AttrMetadata, Format: FormatXML, Indexed: true, Stored: true},
			str(AttrContentType),
			str(AttrContentTypeVersion),
			str(AttrResourceURI),
			str(AttrResourceSize),
			str(AttrResourceDownloadURL),
			AttributeDescriptor{Name: AttrDerivedResourceURI, Format: FormatString, MultiValued: true, Stored: true},
			str(AttrChecksum),
			str(AttrChecksumAlgorithm),
			AttributeDescriptor{Name: AttrTags, Format: FormatString, MultiValued: true, Indexed: true, Stored: true},
			AttributeDescriptor{Name: AttrSecurity, Format: FormatObject, Stored: true},
			str(AttrPointOfContact),
			AttributeDescriptor{Name: AttrValidationErrors, Format: FormatString, MultiValued: true, Indexed: true, Stored: true},
			AttributeDescriptor{Name: AttrValidationWarnings, Format: FormatString, MultiValued: true, Indexed: true, Stored: true},
		)
	})
	return defaultType
}

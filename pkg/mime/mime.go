// Package mime resolves the MIME type of ingested content and keeps file
// names safe to stage on disk.
//
// Resolution runs in a fixed order, each stage consulted only while the
// type is still unknown (empty or application/octet-stream):
//
//  1. the type supplied with the content
//  2. the file extension (configured mappings, then built-in ones)
//  3. content sniffing of the first bytes
//  4. the shape of the first non-blank line: "<" means XML, "{" or "["
//     means JSON. Sniffed plain text and newline-delimited JSON are still
//     subject to this stage.
//
// When every stage fails the type stays application/octet-stream.
package mime

import (
	"bufio"
	"bytes"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	Default = "application/octet-stream"
	XML     = "text/xml"
	JSON    = "application/json"

	// DefaultFilename is used when a name sanitizes to nothing.
	DefaultFilename = "file"

	// SniffLen is how many leading bytes content sniffing looks at.
	SniffLen = 3072
)

var builtin = map[string]string{
	".json":     JSON,
	".geojson":  "application/geo+json",
	".xml":      XML,
	".yaml":     "application/yaml",
	".yml":      "application/yaml",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".txt":      "text/plain",
	".csv":      "text/csv",
	".pdf":      "application/pdf",
	".png":      "image/png",
	".jpg":      "image/jpeg",
	".jpeg":     "image/jpeg",
	".tif":      "image/tiff",
	".tiff":     "image/tiff",
	".nitf":     "image/nitf",
	".ntf":      "image/nitf",
	".zip":      "application/zip",
	".html":     "text/html",
	".htm":      "text/html",
	".svg":      "image/svg+xml",
	".js":       "application/javascript",
}

var preferredExtension = map[string]string{
	JSON:               ".json",
	XML:                ".xml",
	"application/xml":  ".xml",
	"application/yaml": ".yaml",
	"text/yaml":        ".yaml",
	"text/markdown":    ".md",
	"text/plain":       ".txt",
	"image/nitf":       ".nitf",
}

var unsafeTypes = map[string]struct{}{
	"text/html":              {},
	"application/xhtml+xml":  {},
	"image/svg+xml":          {},
	"application/javascript": {},
	"text/javascript":        {},
}

// Resolver resolves MIME types with optional extension mappings layered
// over the built-in table.
type Resolver struct {
	mappings map[string]string
}

// NewResolver creates a resolver. Keys of mappings are file extensions
// with or without the leading dot.
func NewResolver(mappings map[string]string) *Resolver {
	r := &Resolver{mappings: make(map[string]string, len(mappings))}
	for ext, typ := range mappings {
		r.mappings[normalizeExt(ext)] = typ
	}
	return r
}

// Resolve returns the MIME type for content named filename whose first
// bytes are head. explicit is the type supplied by the client, if any.
func (r *Resolver) Resolve(explicit, filename string, head []byte) string {
	if !unknown(explicit) {
		return explicit
	}
	if typ := r.ForExtension(path.Ext(filename)); !unknown(typ) {
		return typ
	}
	detected := ""
	if len(head) > 0 {
		detected = mimetype.Detect(head).String()
		if !unknown(detected) && !textual(detected) {
			return detected
		}
	}
	if typ := shapeOf(head); typ != "" {
		return typ
	}
	if !unknown(detected) {
		return detected
	}
	return Default
}

// ForExtension maps a file extension to a MIME type, or "" when unknown.
func (r *Resolver) ForExtension(ext string) string {
	ext = normalizeExt(ext)
	if ext == "" {
		return ""
	}
	if typ, ok := r.mappings[ext]; ok {
		return typ
	}
	if typ, ok := builtin[ext]; ok {
		return typ
	}
	return ""
}

// ExtensionFor returns the usual file extension (with dot) for a MIME
// type, or "" when none is known.
func (r *Resolver) ExtensionFor(mimeType string) string {
	base := Base(mimeType)
	exts := make([]string, 0, len(r.mappings))
	for ext := range r.mappings {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	for _, ext := range exts {
		if Base(r.mappings[ext]) == base {
			return ext
		}
	}
	if ext, ok := preferredExtension[base]; ok {
		return ext
	}
	if m := mimetype.Lookup(base); m != nil {
		return m.Extension()
	}
	return ""
}

// FixExtension appends the extension matching mimeType to filename when
// the name has none, or only the generic ".bin".
func (r *Resolver) FixExtension(filename, mimeType string) string {
	if unknown(mimeType) {
		return filename
	}
	ext := path.Ext(filename)
	if ext != "" && !strings.EqualFold(ext, ".bin") {
		return filename
	}
	want := r.ExtensionFor(mimeType)
	if want == "" {
		return filename
	}
	return strings.TrimSuffix(filename, ext) + want
}

// IsUnsafe reports whether content of this type could run script in a
// browser that later serves it.
func IsUnsafe(mimeType string) bool {
	_, bad := unsafeTypes[Base(mimeType)]
	return bad
}

// Base strips parameters and lowercases a MIME type.
func Base(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._ -]`)

// SanitizeFilename reduces name to a plain file name: directories are
// dropped, characters outside [A-Za-z0-9._ -] become "_" and leading dots
// are removed.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(strings.TrimSpace(name), ".")
	if name == "" || name == "/" {
		return DefaultFilename
	}
	return name
}

// textual reports whether a sniffed type is only a guess at line-oriented
// text, which the shape stage may refine.
func textual(mimeType string) bool {
	switch Base(mimeType) {
	case "text/plain", "application/x-ndjson":
		return true
	}
	return false
}

func unknown(mimeType string) bool {
	base := Base(mimeType)
	return base == "" || base == Default
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func shapeOf(head []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(head))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "<"):
			return XML
		case strings.HasPrefix(line, "{"), strings.HasPrefix(line, "["):
			return JSON
		}
		return ""
	}
	return ""
}

package mime

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	r := NewResolver(map[string]string{"ntf2": "image/nitf"})

	tests := []struct {
		name     string
		explicit string
		filename string
		head     []byte
		want     string
	}{
		{name: "explicit wins", explicit: "application/pdf", filename: "a.json", want: "application/pdf"},
		{name: "octet-stream is not explicit", explicit: Default, filename: "a.json", want: JSON},
		{name: "custom mapping", filename: "scene.NTF2", want: "image/nitf"},
		{name: "builtin mapping", filename: "notes.md", want: "text/markdown"},
		{name: "sniffed png", filename: "blob", head: []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR"), want: "image/png"},
		{name: "xml shape", filename: "blob", head: []byte("\n\n  <record><title>x</title></record>"), want: XML},
		{name: "json shape", filename: "blob", head: []byte("  \n[1, 2"), want: JSON},
		{name: "json lines shape", filename: "blob", head: []byte("{\"a\": 1}\n{\"a\": 2}\n"), want: JSON},
		{name: "plain text stays", filename: "blob", head: []byte("hello world"), want: "text/plain; charset=utf-8"},
		{name: "nothing known", filename: "blob", want: Default},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Resolve(tt.explicit, tt.filename, tt.head)
			if strings.HasSuffix(tt.name, "shape") {
				assert.Equal(t, tt.want, Base(got))
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"report.pdf":           "report.pdf",
		"../../etc/passwd":     "passwd",
		`C:\temp\evil name.js`: "evil name.js",
		"..hidden":             "hidden",
		"a<b>|c?.txt":          "a_b__c_.txt",
		"":                     DefaultFilename,
		"...":                  DefaultFilename,
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeFilename(in), "input %q", in)
	}
}

func TestFixExtension(t *testing.T) {
	r := NewResolver(nil)
	assert.Equal(t, "data.json", r.FixExtension("data", JSON))
	assert.Equal(t, "data.xml", r.FixExtension("data.bin", "text/xml; charset=utf-8"))
	assert.Equal(t, "data.txt", r.FixExtension("data.txt", JSON))
	assert.Equal(t, "data", r.FixExtension("data", Default))
	assert.Equal(t, "image.png", r.FixExtension("image", "image/png"))
}

func TestIsUnsafe(t *testing.T) {
	for _, typ := range []string{"text/html", "TEXT/HTML; charset=utf-8", "image/svg+xml", "application/javascript", "text/javascript", "application/xhtml+xml"} {
		assert.True(t, IsUnsafe(typ), typ)
	}
	for _, typ := range []string{"text/plain", JSON, XML, Default} {
		assert.False(t, IsUnsafe(typ), typ)
	}
}

func TestTextual(t *testing.T) {
	assert.True(t, textual("text/plain; charset=utf-8"))
	assert.True(t, textual("application/x-ndjson"))
	assert.False(t, textual(JSON))
	assert.False(t, textual("image/png"))
}

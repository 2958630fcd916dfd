package transform

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/marmos91/dittocat/internal/codec"
	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func ids(ts []InputTransformer) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.ID())
	}
	return out
}

type stubInput struct {
	id    string
	types []string
}

func (s stubInput) ID() string          { return s.id }
func (s stubInput) MimeTypes() []string { return s.types }
func (s stubInput) Transform(context.Context, io.Reader, Input) (*catalog.Metacard, error) {
	return nil, nil
}

func TestFindMatchesOrdering(t *testing.T) {
	r := NewRegistry()
	r.RegisterInput(stubInput{"any", []string{"*/*"}}, 100)
	r.RegisterInput(stubInput{"text-wild", []string{"text/*"}}, 0)
	r.RegisterInput(stubInput{"xml-low", []string{"text/xml"}}, 1)
	r.RegisterInput(stubInput{"xml-high", []string{"text/xml"}}, 5)
	r.RegisterInput(stubInput{"xml-utf8", []string{"text/xml;charset=utf-8"}}, 0)
	r.RegisterInput(stubInput{"json", []string{"application/json"}}, 0)

	assert.Equal(t,
		[]string{"xml-utf8", "xml-high", "xml-low", "text-wild", "any"},
		ids(r.FindMatches("text/xml; charset=utf-8")))
	assert.Equal(t,
		[]string{"xml-high", "xml-low", "text-wild", "any"},
		ids(r.FindMatches("TEXT/XML")))
	assert.Equal(t, []string{"any"}, ids(r.FindMatches("image/png")))
}

func TestDefaultRegistry(t *testing.T) {
	r := NewDefaultRegistry()
	assert.Equal(t, []string{"json", "fallback"}, ids(r.FindMatches("application/json")))
	assert.Equal(t, []string{"cbor", "json", "yaml"}, r.MetacardIDs())
	_, ok := r.Response("json")
	assert.True(t, ok)
	_, ok = r.Metacard("xml")
	assert.False(t, ok)
	assert.Error(t, r.RegisterMetacard(JSONMetacard{}))
}

func TestJSONInput(t *testing.T) {
	src := `{
		// comments are allowed
		"title": "Survey",
		"created": "2024-05-01T10:00:00Z",
		"metacard-tags": ["resource", "survey"],
		"security": {"role": ["analyst"]},
		"extra": 3,
	}`
	m, err := JSONInput{}.Transform(context.Background(), strings.NewReader(src), Input{ID: "given"})
	require.NoError(t, err)
	assert.Equal(t, "given", m.ID())
	assert.Equal(t, "Survey", m.Title())
	assert.Equal(t, []string{"resource", "survey"}, m.Tags())
	assert.Equal(t, catalog.PolicyMap{"role": {"analyst"}}, m.Security())
	assert.Equal(t, "2024-05-01T10:00:00Z", m.String(catalog.AttrCreated))
	assert.Equal(t, []any{float64(3)}, m.Values("extra"))

	_, err = JSONInput{}.Transform(context.Background(), strings.NewReader("not json"), Input{})
	assert.Error(t, err)
}

func TestJSONInputDocumentForm(t *testing.T) {
	src := `{"id": "doc-1", "attributes": {"title": "From document"}}`
	m, err := JSONInput{}.Transform(context.Background(), strings.NewReader(src), Input{})
	require.NoError(t, err)
	assert.Equal(t, "doc-1", m.ID())
	assert.Equal(t, "From document", m.Title())
}

func TestYAMLInput(t *testing.T) {
	src := "title: Field notes\ndescription: collected\n"
	m, err := YAMLInput{}.Transform(context.Background(), strings.NewReader(src), Input{})
	require.NoError(t, err)
	assert.Equal(t, "Field notes", m.Title())
	assert.Equal(t, "collected", m.String(catalog.AttrDescription))
}

func TestMarkdownInput(t *testing.T) {
	src := "---\npoint-of-contact: ops@example.com\n---\n# Launch *plan*\n\nThe first paragraph\nspans lines.\n\n## Later\n"
	m, err := MarkdownInput{}.Transform(context.Background(), strings.NewReader(src), Input{ID: "md"})
	require.NoError(t, err)
	assert.Equal(t, "Launch plan", m.Title())
	assert.Equal(t, "The first paragraph spans lines.", m.String(catalog.AttrDescription))
	assert.Equal(t, "ops@example.com", m.String(catalog.AttrPointOfContact))
	assert.Equal(t, src, m.String(catalog.AttrMetadata))
}

func TestXMLInput(t *testing.T) {
	src := `<?xml version="1.0"?><record><meta><title> Harbor survey </title></meta></record>`
	m, err := XMLInput{}.Transform(context.Background(), strings.NewReader(src), Input{})
	require.NoError(t, err)
	assert.Equal(t, "Harbor survey", m.Title())
	assert.Equal(t, "record", m.String(catalog.AttrContentType))
	assert.Equal(t, src, m.String(catalog.AttrMetadata))

	m, err = XMLInput{}.Transform(context.Background(), strings.NewReader("<empty/>"), Input{})
	require.NoError(t, err)
	assert.Equal(t, "empty", m.Title())

	_, err = XMLInput{}.Transform(context.Background(), strings.NewReader("<open>"), Input{})
	assert.Error(t, err)
}

func TestFallbackInput(t *testing.T) {
	m, err := FallbackInput{}.Transform(context.Background(), strings.NewReader("\x00\x01"), Input{ID: "x", Filename: "blob.dat"})
	require.NoError(t, err)
	assert.Equal(t, "x", m.ID())
	assert.Equal(t, "blob.dat", m.Title())
}

func sample() *catalog.Metacard {
	m := catalog.NewMetacard(nil)
	m.SetID("m1")
	m.SetAttribute(catalog.AttrTitle, "Sample")
	return m
}

func TestMetacardTransformers(t *testing.T) {
	ctx := context.Background()

	out, err := JSONMetacard{}.Transform(ctx, sample(), map[string]any{ArgPretty: true})
	require.NoError(t, err)
	assert.Equal(t, "application/json", out.MimeType)
	var doc catalog.Document
	require.NoError(t, json.Unmarshal(out.Data, &doc))
	assert.Equal(t, "m1", doc.ID)
	assert.Equal(t, "Sample", doc.Attributes[catalog.AttrTitle])

	out, err = YAMLMetacard{}.Transform(ctx, sample(), nil)
	require.NoError(t, err)
	doc = catalog.Document{}
	require.NoError(t, yaml.Unmarshal(out.Data, &doc))
	assert.Equal(t, "Sample", doc.Attributes[catalog.AttrTitle])

	out, err = CBORMetacard{}.Transform(ctx, sample(), nil)
	require.NoError(t, err)
	doc = catalog.Document{}
	require.NoError(t, codec.Unmarshal(out.Data, &doc))
	assert.Equal(t, "m1", doc.ID)

	_, err = JSONMetacard{}.Transform(ctx, nil, nil)
	assert.ErrorIs(t, err, ErrNoInput)
}

func TestResponseTransformers(t *testing.T) {
	resp := &catalog.QueryResponse{
		Hits:    1,
		Results: []*catalog.Result{{Metacard: sample(), RelevanceScore: 0.5}},
		Details: []catalog.ProcessingDetails{catalog.UnavailableDetails("remote")},
	}

	out, err := JSONResponse{}.Transform(context.Background(), resp, nil)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out.Data, &decoded))
	assert.Equal(t, float64(1), decoded["hits"])
	assert.Len(t, decoded["results"], 1)
	assert.Len(t, decoded["details"], 1)

	out, err = YAMLResponse{}.Transform(context.Background(), resp, nil)
	require.NoError(t, err)
	assert.Contains(t, string(out.Data), "hits: 1")
}

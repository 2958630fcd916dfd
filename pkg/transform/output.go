package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/marmos91/dittocat/internal/codec"
	"github.com/marmos91/dittocat/pkg/catalog"
	"gopkg.in/yaml.v3"
)

// ArgPretty, when true, indents JSON output.
const ArgPretty = "pretty"

// responseDocument is the rendered form of a query response.
type responseDocument struct {
	Hits    int64             `json:"hits" yaml:"hits"`
	Results []resultDocument  `json:"results" yaml:"results"`
	Details []detailsDocument `json:"details,omitempty" yaml:"details,omitempty"`
}

type resultDocument struct {
	Relevance float64          `json:"relevance" yaml:"relevance"`
	Metacard  catalog.Document `json:"metacard" yaml:"metacard"`
}

type detailsDocument struct {
	Source  string `json:"source" yaml:"source"`
	Message string `json:"message" yaml:"message"`
}

func toResponseDocument(resp *catalog.QueryResponse) responseDocument {
	doc := responseDocument{Hits: resp.Hits, Results: make([]resultDocument, 0, len(resp.Results))}
	for _, r := range resp.Results {
		if r == nil || r.Metacard == nil {
			continue
		}
		doc.Results = append(doc.Results, resultDocument{
			Relevance: r.RelevanceScore,
			Metacard:  catalog.ToDocument(r.Metacard, true),
		})
	}
	for _, d := range resp.Details {
		doc.Details = append(doc.Details, detailsDocument{Source: d.SourceID, Message: d.String()})
	}
	return doc
}

func pretty(args map[string]any) bool {
	v, _ := args[ArgPretty].(bool)
	return v
}

func encodeJSON(v any, indent bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ============================================================================
// Metacard transformers
// ============================================================================

type JSONMetacard struct{}

func (JSONMetacard) ID() string { return "json" }

func (JSONMetacard) Transform(_ context.Context, m *catalog.Metacard, args map[string]any) (*catalog.BinaryContent, error) {
	if m == nil {
		return nil, ErrNoInput
	}
	data, err := encodeJSON(catalog.ToDocument(m, true), pretty(args))
	if err != nil {
		return nil, fmt.Errorf("encode metacard: %w", err)
	}
	return &catalog.BinaryContent{MimeType: "application/json", Data: data}, nil
}

type YAMLMetacard struct{}

func (YAMLMetacard) ID() string { return "yaml" }

func (YAMLMetacard) Transform(_ context.Context, m *catalog.Metacard, _ map[string]any) (*catalog.BinaryContent, error) {
	if m == nil {
		return nil, ErrNoInput
	}
	data, err := yaml.Marshal(catalog.ToDocument(m, true))
	if err != nil {
		return nil, fmt.Errorf("encode metacard: %w", err)
	}
	return &catalog.BinaryContent{MimeType: "application/yaml", Data: data}, nil
}

// CBORMetacard renders the deterministic binary form. Dates keep their
// native encoding.
type CBORMetacard struct{}

func (CBORMetacard) ID() string { return "cbor" }

func (CBORMetacard) Transform(_ context.Context, m *catalog.Metacard, _ map[string]any) (*catalog.BinaryContent, error) {
	if m == nil {
		return nil, ErrNoInput
	}
	data, err := codec.Marshal(catalog.ToDocument(m, false))
	if err != nil {
		return nil, fmt.Errorf("encode metacard: %w", err)
	}
	return &catalog.BinaryContent{MimeType: "application/cbor", Data: data}, nil
}

// ============================================================================
// Response transformers
// ============================================================================

type JSONResponse struct{}

func (JSONResponse) ID() string { return "json" }

func (JSONResponse) Transform(_ context.Context, resp *catalog.QueryResponse, args map[string]any) (*catalog.BinaryContent, error) {
	if resp == nil {
		return nil, ErrNoInput
	}
	data, err := encodeJSON(toResponseDocument(resp), pretty(args))
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return &catalog.BinaryContent{MimeType: "application/json", Data: data}, nil
}

type YAMLResponse struct{}

func (YAMLResponse) ID() string { return "yaml" }

func (YAMLResponse) Transform(_ context.Context, resp *catalog.QueryResponse, _ map[string]any) (*catalog.BinaryContent, error) {
	if resp == nil {
		return nil, ErrNoInput
	}
	data, err := yaml.Marshal(toResponseDocument(resp))
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return &catalog.BinaryContent{MimeType: "application/yaml", Data: data}, nil
}

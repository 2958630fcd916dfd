package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/tidwall/jsonc"
	"github.com/yuin/goldmark"
	gm_ast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

// maxInputSize bounds how much of a stream an input transformer reads.
const maxInputSize = 64 << 20

func readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxInputSize+1))
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	if len(data) > maxInputSize {
		return nil, fmt.Errorf("content exceeds %d bytes", maxInputSize)
	}
	return data, nil
}

// fromMap builds a metacard from decoded key/value content. A map with an
// "attributes" object is read as a Document; any other map is read as a
// flat attribute set.
func fromMap(raw map[string]any, in Input) (*catalog.Metacard, error) {
	doc := catalog.Document{}
	if attrs, ok := raw["attributes"].(map[string]any); ok {
		doc.Attributes = attrs
		doc.ID, _ = raw["id"].(string)
		doc.Type, _ = raw["type"].(string)
	} else {
		doc.Attributes = make(map[string]any, len(raw))
		for k, v := range raw {
			if k == catalog.AttrID {
				doc.ID, _ = v.(string)
				continue
			}
			doc.Attributes[k] = v
		}
	}

	m, err := catalog.FromDocument(doc, nil)
	if err != nil {
		return nil, err
	}
	if in.ID != "" {
		m.SetID(in.ID)
	}
	return m, nil
}

// ============================================================================
// JSON
// ============================================================================

// JSONInput reads a JSON object (comments allowed) as metacard attributes.
type JSONInput struct{}

func (JSONInput) ID() string { return "json" }

func (JSONInput) MimeTypes() []string {
	return []string{"application/json", "text/json", "application/geo+json"}
}

func (JSONInput) Transform(_ context.Context, r io.Reader, in Input) (*catalog.Metacard, error) {
	data, err := readAll(r)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return fromMap(raw, in)
}

// ============================================================================
// YAML
// ============================================================================

// YAMLInput reads a YAML mapping as metacard attributes.
type YAMLInput struct{}

func (YAMLInput) ID() string { return "yaml" }

func (YAMLInput) MimeTypes() []string {
	return []string{"application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml"}
}

func (YAMLInput) Transform(_ context.Context, r io.Reader, in Input) (*catalog.Metacard, error) {
	data, err := readAll(r)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("decode yaml: %w", ErrNoInput)
	}
	return fromMap(raw, in)
}

// ============================================================================
// Markdown
// ============================================================================

// MarkdownInput takes the title from the first heading, the description
// from the first paragraph, and extra attributes from YAML front matter.
// The document itself becomes the metadata attribute.
type MarkdownInput struct{}

func (MarkdownInput) ID() string { return "markdown" }

func (MarkdownInput) MimeTypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

func (MarkdownInput) Transform(_ context.Context, r io.Reader, in Input) (*catalog.Metacard, error) {
	data, err := readAll(r)
	if err != nil {
		return nil, err
	}

	front, body := splitFrontMatter(data)
	m, err := fromMap(front, in)
	if err != nil {
		return nil, fmt.Errorf("front matter: %w", err)
	}

	title, lead := markdownTitleAndLead(body)
	if title != "" && m.Title() == "" {
		m.SetAttribute(catalog.AttrTitle, title)
	}
	if lead != "" && m.String(catalog.AttrDescription) == "" {
		m.SetAttribute(catalog.AttrDescription, lead)
	}
	m.SetAttribute(catalog.AttrMetadata, string(data))
	return m, nil
}

// splitFrontMatter separates a leading "---" YAML block from the body. On
// any parse problem the whole input is treated as body.
func splitFrontMatter(data []byte) (map[string]any, []byte) {
	trimmed := bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	rest, ok := bytes.CutPrefix(trimmed, []byte("---\n"))
	if !ok {
		return map[string]any{}, data
	}
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return map[string]any{}, data
	}

	var front map[string]any
	if err := yaml.Unmarshal(rest[:end], &front); err != nil || front == nil {
		return map[string]any{}, data
	}
	body := rest[end+len("\n---"):]
	body = bytes.TrimLeft(body, "\r\n")
	return front, body
}

func markdownTitleAndLead(src []byte) (title, lead string) {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	_ = gm_ast.Walk(doc, func(n gm_ast.Node, entering bool) (gm_ast.WalkStatus, error) {
		if !entering {
			return gm_ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *gm_ast.Heading:
			if title == "" {
				title = nodeText(node, src)
			}
			return gm_ast.WalkSkipChildren, nil
		case *gm_ast.Paragraph:
			if lead == "" {
				lead = nodeText(node, src)
			}
			return gm_ast.WalkSkipChildren, nil
		}
		return gm_ast.WalkContinue, nil
	})
	return title, lead
}

func nodeText(n gm_ast.Node, src []byte) string {
	var b strings.Builder
	_ = gm_ast.Walk(n, func(c gm_ast.Node, entering bool) (gm_ast.WalkStatus, error) {
		if !entering {
			return gm_ast.WalkContinue, nil
		}
		if t, ok := c.(*gm_ast.Text); ok {
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		}
		return gm_ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// ============================================================================
// XML
// ============================================================================

// XMLInput keeps the document as metadata and takes the title from the
// first <title> element, falling back to the root element name.
type XMLInput struct{}

func (XMLInput) ID() string { return "xml" }

func (XMLInput) MimeTypes() []string {
	return []string{"text/xml", "application/xml"}
}

func (XMLInput) Transform(_ context.Context, r io.Reader, in Input) (*catalog.Metacard, error) {
	data, err := readAll(r)
	if err != nil {
		return nil, err
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	var root, title string
	inTitle := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if root == "" {
				root = t.Name.Local
			}
			inTitle = title == "" && strings.EqualFold(t.Name.Local, "title")
		case xml.EndElement:
			inTitle = false
		case xml.CharData:
			if inTitle {
				title += string(t)
			}
		}
	}
	if root == "" {
		return nil, fmt.Errorf("decode xml: %w", ErrNoInput)
	}

	m := catalog.NewMetacard(nil)
	if in.ID != "" {
		m.SetID(in.ID)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = root
	}
	m.SetAttribute(catalog.AttrTitle, title)
	m.SetAttribute(catalog.AttrContentType, root)
	m.SetAttribute(catalog.AttrMetadata, string(data))
	return m, nil
}

// ============================================================================
// Fallback
// ============================================================================

// FallbackInput accepts anything and describes it by file name only.
type FallbackInput struct{}

func (FallbackInput) ID() string { return "fallback" }

func (FallbackInput) MimeTypes() []string { return []string{"*/*"} }

func (FallbackInput) Transform(_ context.Context, r io.Reader, in Input) (*catalog.Metacard, error) {
	if _, err := io.Copy(io.Discard, io.LimitReader(r, maxInputSize)); err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	m := catalog.NewMetacard(nil)
	if in.ID != "" {
		m.SetID(in.ID)
	}
	if in.Filename != "" {
		m.SetAttribute(catalog.AttrTitle, in.Filename)
	}
	return m, nil
}

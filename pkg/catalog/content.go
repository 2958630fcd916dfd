package catalog

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
)

// ContentScheme is the URI scheme of content held by the storage provider.
const ContentScheme = "content"

// DefaultMimeType is used when nothing better can be determined.
const DefaultMimeType = "application/octet-stream"

// ByteSource opens a fresh stream over some bytes. Every call must return
// an independent reader positioned at the start.
type ByteSource interface {
	Open() (io.ReadCloser, error)
}

// BytesSource serves an in-memory buffer.
type BytesSource []byte

func (b BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

// FileSource serves a file on disk.
type FileSource string

func (f FileSource) Open() (io.ReadCloser, error) {
	return os.Open(string(f))
}

// ReaderSource wraps a single-use reader. Open fails after the first call.
type ReaderSource struct {
	r    io.Reader
	used bool
}

func NewReaderSource(r io.Reader) *ReaderSource {
	return &ReaderSource{r: r}
}

func (s *ReaderSource) Open() (io.ReadCloser, error) {
	if s.used || s.r == nil {
		return nil, fmt.Errorf("byte source already consumed")
	}
	s.used = true
	if rc, ok := s.r.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(s.r), nil
}

// ContentItem is a binary payload paired with the metacard describing it.
type ContentItem struct {
	// ID is the id of the metacard the content belongs to.
	ID string
	// Qualifier distinguishes derived content (thumbnails, overviews)
	// from the primary product, which has an empty qualifier.
	Qualifier string
	Filename  string
	MimeType  string
	Size      int64
	Metacard  *Metacard
	Source    ByteSource
}

// URI returns content:<id> or content:<id>#<qualifier>.
func (c *ContentItem) URI() string {
	return ContentURI(c.ID, c.Qualifier)
}

// Open opens the item's bytes.
func (c *ContentItem) Open() (io.ReadCloser, error) {
	if c.Source == nil {
		return nil, fmt.Errorf("content item %s has no byte source", c.ID)
	}
	return c.Source.Open()
}

func ContentURI(id, qualifier string) string {
	if qualifier == "" {
		return ContentScheme + ":" + id
	}
	return ContentScheme + ":" + id + "#" + qualifier
}

// ParseContentURI splits a content URI into id and qualifier.
func ParseContentURI(u *url.URL) (id, qualifier string, err error) {
	if u == nil || u.Scheme != ContentScheme {
		return "", "", fmt.Errorf("not a %s URI: %v", ContentScheme, u)
	}
	id = u.Opaque
	if id == "" {
		id = strings.TrimPrefix(u.Path, "/")
	}
	if id == "" {
		return "", "", fmt.Errorf("content URI %s has no id", u)
	}
	return id, u.Fragment, nil
}

// BinaryContent is the output of a transformer.
type BinaryContent struct {
	MimeType string
	Data     []byte
}

func (b *BinaryContent) Reader() io.Reader {
	return bytes.NewReader(b.Data)
}

func (b *BinaryContent) Size() int64 {
	return int64(len(b.Data))
}

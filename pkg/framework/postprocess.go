package framework

import (
	"net/url"
	"strings"

	"github.com/marmos91/dittocat/pkg/catalog"
)

// QueryResponsePostProcessor adjusts public query responses after every
// plugin ran.
type QueryResponsePostProcessor interface {
	Process(resp *catalog.QueryResponse)
}

// DownloadURLPostProcessor gives every result with a resource a
// resource-download-url attribute of the form
// <base>/sources/<source id>/<metacard id>.
type DownloadURLPostProcessor struct {
	base string
}

// NewDownloadURLPostProcessor returns a processor building URLs below
// baseURL. An empty base URL disables it.
func NewDownloadURLPostProcessor(baseURL string) *DownloadURLPostProcessor {
	return &DownloadURLPostProcessor{base: strings.TrimRight(baseURL, "/")}
}

// Process sets the URL on copies of the result metacards; the values a
// source handed back are never written to.
func (p *DownloadURLPostProcessor) Process(resp *catalog.QueryResponse) {
	if p == nil || p.base == "" || resp == nil {
		return
	}
	results := make([]*catalog.Result, len(resp.Results))
	for i, r := range resp.Results {
		results[i] = r
		if r == nil || r.Metacard == nil || r.Metacard.ResourceURI() == nil {
			continue
		}
		out := *r
		out.Metacard = r.Metacard.Copy()
		out.Metacard.SetAttribute(catalog.AttrResourceDownloadURL,
			p.base+"/sources/"+url.PathEscape(out.Metacard.SourceID())+"/"+url.PathEscape(out.Metacard.ID()))
		results[i] = &out
	}
	resp.Results = results
}

package framework

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/dittocat/pkg/catalog"
)

// TransformMetacard renders m with the metacard transformer registered as
// transformerID.
func (f *CatalogFramework) TransformMetacard(ctx context.Context, m *catalog.Metacard, transformerID string, args map[string]any) (out *catalog.BinaryContent, err error) {
	defer f.observe(opTransform, catalog.ClassTransform, time.Now(), &err)

	if m == nil {
		return nil, structural(catalog.ClassTransform, "no metacard to transform")
	}
	t, ok := f.transformers.Metacard(transformerID)
	if !ok {
		return nil, structural(catalog.ClassTransform, "unknown metacard transformer %q", transformerID)
	}

	out, err = t.Transform(ctx, m, args)
	if err != nil {
		return nil, catalog.TransformError(catalog.KindStructural, fmt.Sprintf("metacard transformer %s failed", transformerID), err)
	}
	return out, nil
}

// TransformResponse renders a query response with the response transformer
// registered as transformerID.
func (f *CatalogFramework) TransformResponse(ctx context.Context, resp *catalog.QueryResponse, transformerID string, args map[string]any) (out *catalog.BinaryContent, err error) {
	defer f.observe(opTransform, catalog.ClassTransform, time.Now(), &err)

	if resp == nil {
		return nil, structural(catalog.ClassTransform, "no query response to transform")
	}
	t, ok := f.transformers.Response(transformerID)
	if !ok {
		return nil, structural(catalog.ClassTransform, "unknown response transformer %q", transformerID)
	}

	out, err = t.Transform(ctx, resp, args)
	if err != nil {
		return nil, catalog.TransformError(catalog.KindStructural, fmt.Sprintf("response transformer %s failed", transformerID), err)
	}
	return out, nil
}

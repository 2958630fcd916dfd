package framework

import (
	"context"
	"io"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittocat/pkg/catalog"
)

func readBody(t *testing.T, resp *catalog.ResourceResponse) string {
	t.Helper()
	require.NotNil(t, resp.Resource)
	defer resp.Resource.Body.Close()
	data, err := io.ReadAll(resp.Resource.Body)
	require.NoError(t, err)
	return string(data)
}

func storeProduct(t *testing.T, fx *fixture) {
	t.Helper()
	_, err := fx.fw.CreateStorage(context.Background(), catalog.NewCreateStorageRequest(
		&catalog.ContentItem{ID: "prod", Filename: "product.txt", Source: catalog.BytesSource("full product")},
		&catalog.ContentItem{ID: "prod", Qualifier: "preview", Filename: "preview.txt", Source: catalog.BytesSource("preview")},
	))
	require.NoError(t, err)
}

// ============================================================================
// Local resources
// ============================================================================

func TestGetLocalResourceByID(t *testing.T) {
	fx := newFixture(t, Config{}, nil)
	storeProduct(t, fx)
	ctx := context.Background()

	resp, err := fx.fw.GetLocalResource(ctx, catalog.NewResourceRequestByID("prod"))
	require.NoError(t, err)
	assert.Equal(t, "full product", readBody(t, resp))
	require.NotNil(t, resp.Properties.Metacard)
	assert.Equal(t, "prod", resp.Properties.Metacard.ID())
	assert.NotNil(t, resp.Request)

	resp, err = fx.fw.GetResource(ctx, catalog.NewResourceRequestByID("prod"), testID)
	require.NoError(t, err)
	assert.Equal(t, "full product", readBody(t, resp))
}

func TestGetLocalResourceByURIWithQualifier(t *testing.T) {
	fx := newFixture(t, Config{}, nil)
	storeProduct(t, fx)

	u, err := url.Parse("content:prod#preview")
	require.NoError(t, err)

	resp, err := fx.fw.GetLocalResource(context.Background(), catalog.NewResourceRequestByURI(u))
	require.NoError(t, err)
	assert.Equal(t, "preview", readBody(t, resp))
	assert.Equal(t, "preview", resp.Properties.Qualifier)
}

func TestGetResourceFailures(t *testing.T) {
	fx := newFixture(t, Config{}, nil)
	ctx := context.Background()

	_, err := fx.fw.GetLocalResource(ctx, catalog.NewResourceRequestByID("missing"))
	requireKind(t, err, catalog.ClassResource, catalog.KindNotFound)

	_, err = fx.fw.GetResource(ctx, catalog.NewResourceRequestByID("missing"), "")
	requireKind(t, err, catalog.ClassResource, catalog.KindNotFound)

	_, err = fx.fw.GetLocalResource(ctx, &catalog.ResourceRequest{AttributeName: catalog.AttrTitle, Value: "x"})
	requireKind(t, err, catalog.ClassResource, catalog.KindUnsupported)

	_, err = fx.fw.GetLocalResource(ctx, nil)
	requireKind(t, err, catalog.ClassResource, catalog.KindStructural)

	ftp := newMetacard("ftp", "Elsewhere")
	ftp.SetAttribute(catalog.AttrResourceURI, "ftp://files.example/data.bin")
	_, err = fx.fw.Create(ctx, &catalog.CreateRequest{Metacards: []*catalog.Metacard{ftp}})
	require.NoError(t, err)

	_, err = fx.fw.GetLocalResource(ctx, catalog.NewResourceRequestByID("ftp"))
	requireKind(t, err, catalog.ClassResource, catalog.KindUnsupported)
}

func TestLocalResourceOptions(t *testing.T) {
	fx := newFixture(t, Config{}, nil)
	storeProduct(t, fx)
	ctx := context.Background()

	options, err := fx.fw.GetLocalResourceOptions(ctx, "prod")
	require.NoError(t, err)
	assert.Equal(t, []string{"preview"}, options)

	_, err = fx.fw.GetResourceOptions(ctx, "prod", "")
	requireKind(t, err, catalog.ClassResource, catalog.KindNotFound)
}

// ============================================================================
// Remote resources
// ============================================================================

func TestGetRemoteResource(t *testing.T) {
	fx := newFixture(t, Config{}, nil)
	ctx := context.Background()

	remote := newMetacard("alpha-1", "Remote")
	remote.SetAttribute(catalog.AttrResourceURI, "https://alpha.example/files/1.bin")
	alpha := federated(t, fx, "alpha", remote)
	alpha.AddResource("https://alpha.example/files/1.bin", []byte("remote bytes"))

	resp, err := fx.fw.GetResource(ctx, catalog.NewResourceRequestByID("alpha-1"), "alpha")
	require.NoError(t, err)
	assert.Equal(t, "remote bytes", readBody(t, resp))
	assert.Equal(t, "alpha", resp.Properties.Metacard.SourceID())

	resp, err = fx.fw.GetEnterpriseResource(ctx, catalog.NewResourceRequestByID("alpha-1"))
	require.NoError(t, err)
	assert.Equal(t, "remote bytes", readBody(t, resp))

	options, err := fx.fw.GetResourceOptions(ctx, "alpha-1", "alpha")
	require.NoError(t, err)
	assert.Equal(t, []string{"download"}, options)

	_, err = fx.fw.GetLocalResource(ctx, catalog.NewResourceRequestByID("alpha-1"))
	requireKind(t, err, catalog.ClassResource, catalog.KindNotFound)
}

func TestFanoutResourceIsEnterprise(t *testing.T) {
	fx := newFixture(t, Config{Fanout: true}, nil)

	remote := newMetacard("alpha-1", "Remote")
	remote.SetAttribute(catalog.AttrResourceURI, "https://alpha.example/files/1.bin")
	alpha := federated(t, fx, "alpha", remote)
	alpha.AddResource("https://alpha.example/files/1.bin", []byte("remote bytes"))

	resp, err := fx.fw.GetLocalResource(context.Background(), catalog.NewResourceRequestByID("alpha-1"))
	require.NoError(t, err)
	assert.Equal(t, "remote bytes", readBody(t, resp))
}

// ============================================================================
// Transformation
// ============================================================================

func TestTransformMetacard(t *testing.T) {
	fx := newFixture(t, Config{}, nil)
	ctx := context.Background()

	out, err := fx.fw.TransformMetacard(ctx, newMetacard("a", "Alpha"), "json", nil)
	require.NoError(t, err)
	data, err := io.ReadAll(out.Reader())
	require.NoError(t, err)
	assert.Contains(t, string(data), "Alpha")

	_, err = fx.fw.TransformMetacard(ctx, newMetacard("a", "Alpha"), "nope", nil)
	requireKind(t, err, catalog.ClassTransform, catalog.KindStructural)

	_, err = fx.fw.TransformMetacard(ctx, nil, "json", nil)
	requireKind(t, err, catalog.ClassTransform, catalog.KindStructural)
}

func TestTransformResponse(t *testing.T) {
	fx := newFixture(t, Config{}, nil)
	ctx := context.Background()
	_, err := fx.fw.Create(ctx, &catalog.CreateRequest{Metacards: []*catalog.Metacard{newMetacard("a", "Alpha")}})
	require.NoError(t, err)

	resp, err := fx.fw.Query(ctx, includeAll())
	require.NoError(t, err)

	out, err := fx.fw.TransformResponse(ctx, resp, "yaml", nil)
	require.NoError(t, err)
	assert.Positive(t, out.Size())

	_, err = fx.fw.TransformResponse(ctx, resp, "nope", nil)
	requireKind(t, err, catalog.ClassTransform, catalog.KindStructural)
}

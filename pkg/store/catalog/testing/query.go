package testing

import (
	"context"
	"testing"

	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/filter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunQueryTests executes query tests.
func (suite *StoreTestSuite) RunQueryTests(t *testing.T) {
	t.Run("Query_Empty", suite.testQueryEmpty)
	t.Run("Query_Filter", suite.testQueryFilter)
	t.Run("Query_Paging", suite.testQueryPaging)
	t.Run("Query_SortByAttribute", suite.testQuerySortByAttribute)
	t.Run("Query_CancelledContext", suite.testQueryCancelledContext)
}

// RunSourceTests executes the descriptive and availability tests.
func (suite *StoreTestSuite) RunSourceTests(t *testing.T) {
	t.Run("Describe", suite.testDescribe)
	t.Run("IsAvailable", suite.testIsAvailable)
	t.Run("ContentTypes", suite.testContentTypes)
	t.Run("MaskID", suite.testMaskID)
}

// ============================================================================
// Query
// ============================================================================

func (suite *StoreTestSuite) testQueryEmpty(t *testing.T) {
	p := suite.NewStore()

	resp := queryAll(t, p, catalog.NewQuery(filter.Include))
	assert.Empty(t, resp.Results)
	assert.Zero(t, resp.Hits)
}

func (suite *StoreTestSuite) testQueryFilter(t *testing.T) {
	p := suite.NewStore()
	mustCreate(t, p,
		newMetacard("a", "alpha report"),
		newMetacard("b", "beta summary"),
		newMetacard("c", "gamma report"),
	)

	resp := queryAll(t, p, catalog.NewQuery(filter.Like(catalog.AttrTitle, "*report")))
	assert.ElementsMatch(t, []string{"a", "c"}, ids(resp.Results))
	assert.Equal(t, int64(2), resp.Hits)

	resp = queryAll(t, p, catalog.NewQuery(filter.AllOf(
		filter.Like(catalog.AttrTitle, "*report"),
		filter.Not(filter.Equal(catalog.AttrID, "a")),
	)))
	assert.Equal(t, []string{"c"}, ids(resp.Results))

	for _, r := range resp.Results {
		assert.Equal(t, p.ID(), r.Metacard.SourceID())
	}
}

func (suite *StoreTestSuite) testQueryPaging(t *testing.T) {
	p := suite.NewStore()
	for _, id := range []string{"e", "b", "d", "a", "c"} {
		mustCreate(t, p, newMetacard(id, "title-"+id))
	}

	q := catalog.NewQuery(filter.Include)
	q.Sort = []catalog.SortBy{{Attribute: catalog.AttrTitle}}
	q.StartIndex = 2
	q.PageSize = 2

	resp := queryAll(t, p, q)
	assert.Equal(t, []string{"b", "c"}, ids(resp.Results))
	assert.Equal(t, int64(5), resp.Hits, "hits count every match, not the page")

	q.StartIndex = 5
	resp = queryAll(t, p, q)
	assert.Equal(t, []string{"e"}, ids(resp.Results))

	q.StartIndex = 9
	resp = queryAll(t, p, q)
	assert.Empty(t, resp.Results)
}

func (suite *StoreTestSuite) testQuerySortByAttribute(t *testing.T) {
	p := suite.NewStore()
	mustCreate(t, p,
		newMetacard("1", "charlie"),
		newMetacard("2", "alpha"),
		newMetacard("3", "bravo"),
	)

	q := catalog.NewQuery(filter.Include)
	q.Sort = []catalog.SortBy{{Attribute: catalog.AttrTitle, Descending: true}}

	resp := queryAll(t, p, q)
	assert.Equal(t, []string{"1", "3", "2"}, ids(resp.Results))
}

func (suite *StoreTestSuite) testQueryCancelledContext(t *testing.T) {
	p := suite.NewStore()
	mustCreate(t, p, newMetacard("a", "alpha"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Query(ctx, &catalog.QueryRequest{Query: catalog.NewQuery(filter.Include)})
	assert.ErrorIs(t, err, context.Canceled)
}

// ============================================================================
// Source
// ============================================================================

func (suite *StoreTestSuite) testDescribe(t *testing.T) {
	p := suite.NewStore()

	assert.NotEmpty(t, p.ID())
	assert.NotEmpty(t, p.Title())
}

func (suite *StoreTestSuite) testIsAvailable(t *testing.T) {
	p := suite.NewStore()
	assert.True(t, p.IsAvailable(testContext()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, p.IsAvailable(ctx))
}

func (suite *StoreTestSuite) testContentTypes(t *testing.T) {
	p := suite.NewStore()
	assert.Empty(t, p.ContentTypes(testContext()))

	a := newMetacard("a", "a")
	a.SetAttribute(catalog.AttrContentType, "report")
	a.SetAttribute(catalog.AttrContentTypeVersion, "2")
	b := newMetacard("b", "b")
	b.SetAttribute(catalog.AttrContentType, "image")
	c := newMetacard("c", "c")
	c.SetAttribute(catalog.AttrContentType, "report")
	c.SetAttribute(catalog.AttrContentTypeVersion, "2")
	mustCreate(t, p, a, b, c)

	assert.Equal(t, []catalog.ContentType{
		{Name: "image"},
		{Name: "report", Version: "2"},
	}, p.ContentTypes(testContext()))
}

func (suite *StoreTestSuite) testMaskID(t *testing.T) {
	p := suite.NewStore()
	mustCreate(t, p, newMetacard("a", "alpha"))

	p.MaskID("framework")
	assert.Equal(t, "framework", p.ID())

	resp := queryAll(t, p, catalog.NewQuery(filter.Include))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "framework", resp.Results[0].Metacard.SourceID())

	created := mustCreate(t, p, newMetacard("b", "bravo"))
	assert.Equal(t, "framework", created[0].SourceID())
}

package testing

import (
	"testing"

	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/filter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunWriteTests executes create, update and delete tests.
func (suite *StoreTestSuite) RunWriteTests(t *testing.T) {
	t.Run("Create_AssignsID", suite.testCreateAssignsID)
	t.Run("Create_KeepsID", suite.testCreateKeepsID)
	t.Run("Create_StoresCopy", suite.testCreateStoresCopy)
	t.Run("Create_Overwrites", suite.testCreateOverwrites)
	t.Run("Create_PreservesValues", suite.testCreatePreservesValues)
	t.Run("Update_ByID", suite.testUpdateByID)
	t.Run("Update_ByAttribute", suite.testUpdateByAttribute)
	t.Run("Update_MissingSkipped", suite.testUpdateMissingSkipped)
	t.Run("Delete_ByID", suite.testDeleteByID)
	t.Run("Delete_ByAttribute", suite.testDeleteByAttribute)
	t.Run("Delete_MissingSkipped", suite.testDeleteMissingSkipped)
}

// ============================================================================
// Create
// ============================================================================

func (suite *StoreTestSuite) testCreateAssignsID(t *testing.T) {
	p := suite.NewStore()

	created := mustCreate(t, p, newMetacard("", "untitled"))
	id := created[0].ID()
	assert.NotEmpty(t, id)
	assert.NotContains(t, id, "-")
	assert.Equal(t, p.ID(), created[0].SourceID())
	assert.NotEmpty(t, created[0].Values(catalog.AttrMetacardCreated))
	assert.NotEmpty(t, created[0].Values(catalog.AttrMetacardModified))

	resp := queryAll(t, p, catalog.NewQuery(filter.Equal(catalog.AttrID, id)))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "untitled", resp.Results[0].Metacard.Title())
}

func (suite *StoreTestSuite) testCreateKeepsID(t *testing.T) {
	p := suite.NewStore()

	created := mustCreate(t, p, newMetacard("abc", "one"), newMetacard("def", "two"))
	assert.Equal(t, "abc", created[0].ID())
	assert.Equal(t, "def", created[1].ID())
}

func (suite *StoreTestSuite) testCreateStoresCopy(t *testing.T) {
	p := suite.NewStore()

	in := newMetacard("abc", "original")
	created := mustCreate(t, p, in)

	in.SetAttribute(catalog.AttrTitle, "mutated input")
	created[0].SetAttribute(catalog.AttrTitle, "mutated output")

	resp := queryAll(t, p, catalog.NewQuery(filter.Include))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "original", resp.Results[0].Metacard.Title())

	resp.Results[0].Metacard.SetAttribute(catalog.AttrTitle, "mutated result")
	again := queryAll(t, p, catalog.NewQuery(filter.Include))
	assert.Equal(t, "original", again.Results[0].Metacard.Title())
}

func (suite *StoreTestSuite) testCreateOverwrites(t *testing.T) {
	p := suite.NewStore()

	mustCreate(t, p, newMetacard("abc", "first"))
	mustCreate(t, p, newMetacard("abc", "second"))

	resp := queryAll(t, p, catalog.NewQuery(filter.Include))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "second", resp.Results[0].Metacard.Title())
}

func (suite *StoreTestSuite) testCreatePreservesValues(t *testing.T) {
	p := suite.NewStore()

	m := newMetacard("abc", "values")
	m.SetAttribute(catalog.AttrTags, "resource", "extra")
	m.SetAttribute(catalog.AttrResourceURI, "content:abc")
	m.SetAttribute("custom", "anything")
	m.SetSecurity(catalog.PolicyMap{"clearance": {"secret"}})
	mustCreate(t, p, m)

	resp := queryAll(t, p, catalog.NewQuery(filter.Equal(catalog.AttrID, "abc")))
	require.Len(t, resp.Results, 1)
	got := resp.Results[0].Metacard

	assert.Equal(t, []string{"resource", "extra"}, got.Tags())
	assert.Equal(t, "content:abc", got.ResourceURI().String())
	assert.Equal(t, "anything", got.String("custom"))
	assert.Equal(t, catalog.PolicyMap{"clearance": {"secret"}}, got.Security())
}

// ============================================================================
// Update
// ============================================================================

func (suite *StoreTestSuite) testUpdateByID(t *testing.T) {
	p := suite.NewStore()
	created := mustCreate(t, p, newMetacard("abc", "before"))
	createdAt := created[0].Values(catalog.AttrMetacardCreated)

	next := newMetacard("ignored", "after")
	req := &catalog.UpdateRequest{
		AttributeName: catalog.AttrID,
		Updates:       []catalog.Update{{Key: "abc", Metacard: next}},
	}
	resp, err := p.Update(testContext(), req)
	require.NoError(t, err)
	assert.Same(t, req, resp.Request)
	require.Len(t, resp.Updated, 1)

	pair := resp.Updated[0]
	assert.Equal(t, "before", pair.Old.Title())
	assert.Equal(t, "after", pair.New.Title())
	assert.Equal(t, "abc", pair.New.ID(), "the stored id survives the update")
	assert.Equal(t, createdAt, pair.New.Values(catalog.AttrMetacardCreated))

	result := queryAll(t, p, catalog.NewQuery(filter.Include))
	require.Len(t, result.Results, 1)
	assert.Equal(t, "after", result.Results[0].Metacard.Title())
}

func (suite *StoreTestSuite) testUpdateByAttribute(t *testing.T) {
	p := suite.NewStore()

	m := newMetacard("abc", "before")
	m.SetAttribute(catalog.AttrResourceURI, "http://example.com/a")
	mustCreate(t, p, m, newMetacard("other", "untouched"))

	resp, err := p.Update(testContext(), &catalog.UpdateRequest{
		AttributeName: catalog.AttrResourceURI,
		Updates:       []catalog.Update{{Key: "http://example.com/a", Metacard: newMetacard("", "after")}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Updated, 1)
	assert.Equal(t, "abc", resp.Updated[0].New.ID())

	result := queryAll(t, p, catalog.NewQuery(filter.Equal(catalog.AttrTitle, "untouched")))
	assert.Len(t, result.Results, 1)
}

func (suite *StoreTestSuite) testUpdateMissingSkipped(t *testing.T) {
	p := suite.NewStore()
	mustCreate(t, p, newMetacard("abc", "before"))

	resp, err := p.Update(testContext(), &catalog.UpdateRequest{
		AttributeName: catalog.AttrID,
		Updates: []catalog.Update{
			{Key: "missing", Metacard: newMetacard("", "x")},
			{Key: "abc", Metacard: newMetacard("", "after")},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Updated, 1)
	assert.Equal(t, "abc", resp.Updated[0].New.ID())
}

// ============================================================================
// Delete
// ============================================================================

func (suite *StoreTestSuite) testDeleteByID(t *testing.T) {
	p := suite.NewStore()
	mustCreate(t, p, newMetacard("abc", "one"), newMetacard("def", "two"))

	req := catalog.NewDeleteRequestByID("abc")
	resp, err := p.Delete(testContext(), req)
	require.NoError(t, err)
	assert.Same(t, req, resp.Request)
	require.Len(t, resp.Deleted, 1)
	assert.Equal(t, "one", resp.Deleted[0].Title())
	assert.Equal(t, p.ID(), resp.Deleted[0].SourceID())

	result := queryAll(t, p, catalog.NewQuery(filter.Include))
	assert.Equal(t, []string{"def"}, ids(result.Results))
}

func (suite *StoreTestSuite) testDeleteByAttribute(t *testing.T) {
	p := suite.NewStore()
	m := newMetacard("abc", "one")
	m.SetAttribute(catalog.AttrResourceURI, "http://example.com/a")
	mustCreate(t, p, m)

	resp, err := p.Delete(testContext(), &catalog.DeleteRequest{
		AttributeName: catalog.AttrResourceURI,
		Values:        []string{"http://example.com/a"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Deleted, 1)
	assert.Equal(t, "abc", resp.Deleted[0].ID())
}

func (suite *StoreTestSuite) testDeleteMissingSkipped(t *testing.T) {
	p := suite.NewStore()
	mustCreate(t, p, newMetacard("abc", "one"))

	resp, err := p.Delete(testContext(), catalog.NewDeleteRequestByID("missing", "abc"))
	require.NoError(t, err)
	require.NotNil(t, resp.Deleted)
	assert.Len(t, resp.Deleted, 1)

	resp, err = p.Delete(testContext(), catalog.NewDeleteRequestByID("abc"))
	require.NoError(t, err)
	require.NotNil(t, resp.Deleted)
	assert.Empty(t, resp.Deleted)
}

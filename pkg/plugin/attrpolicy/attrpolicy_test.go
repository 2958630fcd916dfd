package attrpolicy

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/filter"
	"github.com/marmos91/dittocat/pkg/framework"
	"github.com/marmos91/dittocat/pkg/plugin"
	"github.com/marmos91/dittocat/pkg/registry"
	"github.com/marmos91/dittocat/pkg/store/catalog/memory"
)

var testConfig = Config{
	Attributes: map[string]string{"classification": "clearance", "releasability": "country"},
	Properties: map[string]string{"project": "project"},
}

func metacard(id string, attrs map[string][]any) *catalog.Metacard {
	m := catalog.NewMetacard(nil)
	m.SetID(id)
	m.SetAttribute(catalog.AttrTitle, id)
	for name, values := range attrs {
		m.SetAttribute(name, values...)
	}
	return m
}

func TestPolicyFromAttributes(t *testing.T) {
	p := NewPolicy(testConfig)
	m := metacard("a", map[string][]any{
		"classification": {"secret"},
		"releasability":  {"usa", "gbr", "usa"},
	})

	resp, err := p.CreatePolicy(context.Background(), m, catalog.Properties{})
	require.NoError(t, err)

	assert.Equal(t, catalog.PolicyMap{
		"clearance": {"secret"},
		"country":   {"gbr", "usa"},
	}, resp.ItemPolicy)
	assert.Nil(t, resp.OperationPolicy)
}

func TestPolicyFromProperties(t *testing.T) {
	p := NewPolicy(testConfig)
	var props catalog.Properties
	props.Set("project", "apollo")
	props.Set("unrelated", "x")

	resp, err := p.QueryPolicy(context.Background(), catalog.NewQuery(filter.Include), props)
	require.NoError(t, err)

	assert.Equal(t, catalog.PolicyMap{"project": {"apollo"}}, resp.OperationPolicy)
}

func TestDeletePolicyUnionsMetacards(t *testing.T) {
	p := NewPolicy(testConfig)
	metacards := []*catalog.Metacard{
		metacard("a", map[string][]any{"classification": {"secret"}}),
		metacard("b", map[string][]any{"classification": {"restricted"}}),
		metacard("c", nil),
	}

	resp, err := p.DeletePolicy(context.Background(), metacards, catalog.Properties{})
	require.NoError(t, err)

	assert.Equal(t, catalog.PolicyMap{"clearance": {"restricted", "secret"}}, resp.OperationPolicy)
}

func TestAccessPostQueryFiltersResults(t *testing.T) {
	open := metacard("open", nil)
	secret := metacard("secret", nil)
	secret.SetSecurity(catalog.PolicyMap{"clearance": {"secret"}})

	resp := &catalog.QueryResponse{
		Results: []*catalog.Result{{Metacard: open}, {Metacard: secret}},
		Hits:    2,
	}

	out, err := NewAccess().PostQuery(context.Background(), resp)
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "open", out.Results[0].Metacard.ID())
	assert.Equal(t, int64(1), out.Hits)
}

func TestAccessPreCreateVetoes(t *testing.T) {
	req := &catalog.CreateRequest{}
	req.Properties.OperationSecurity = catalog.PolicyMap{"project": {"apollo"}}

	_, err := NewAccess().PreCreate(context.Background(), req)
	assert.True(t, plugin.IsStopProcessing(err))

	req.Properties.Subject = &catalog.Subject{Name: "ops", Attributes: map[string][]string{"project": {"apollo", "gemini"}}}
	out, err := NewAccess().PreCreate(context.Background(), req)
	require.NoError(t, err)
	assert.Same(t, req, out)
}

func TestAttributeAccessThroughFramework(t *testing.T) {
	ctx := context.Background()

	provider, err := memory.NewMemoryCatalogProvider(ctx, memory.MemoryCatalogProviderConfig{ID: "provider"})
	require.NoError(t, err)
	reg := registry.NewRegistry()
	reg.SetCatalogProviders(provider)

	var set plugin.Set
	set.Register(NewPolicy(testConfig))
	set.Register(NewAccess())
	fw, err := framework.New(framework.Config{ID: "ddf"}, reg, framework.WithPlugins(set))
	require.NoError(t, err)

	_, err = fw.Create(ctx, &catalog.CreateRequest{Metacards: []*catalog.Metacard{
		metacard("open", nil),
		metacard("secret", map[string][]any{"classification": {"secret"}}),
	}})
	require.NoError(t, err)

	query := func(subject *catalog.Subject) []string {
		req := &catalog.QueryRequest{Query: catalog.NewQuery(filter.Include)}
		req.Properties.Subject = subject
		resp, err := fw.Query(ctx, req)
		require.NoError(t, err)
		ids := make([]string, 0, len(resp.Results))
		for _, r := range resp.Results {
			ids = append(ids, r.Metacard.ID())
		}
		sort.Strings(ids)
		return ids
	}

	assert.Equal(t, []string{"open"}, query(nil))
	assert.Equal(t, []string{"open", "secret"}, query(&catalog.Subject{
		Name:       "analyst",
		Attributes: map[string][]string{"clearance": {"secret"}},
	}))

	projectReq := &catalog.CreateRequest{Metacards: []*catalog.Metacard{metacard("apollo-1", nil)}}
	projectReq.Properties.Set("project", "apollo")
	_, err = fw.Create(ctx, projectReq)
	require.Error(t, err)
	assert.Equal(t, catalog.KindPolicyVeto, catalog.KindOf(err))
}

package framework

import (
	"context"

	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/plugin"
)

// runPolicy asks every policy plugin and merges the answers. Any plugin
// error is a veto of class.
func (f *CatalogFramework) runPolicy(ctx context.Context, class catalog.ErrorClass, chain string, call func(context.Context, plugin.PolicyPlugin) (plugin.PolicyResponse, error)) (plugin.PolicyResponse, error) {
	if len(f.plugins.Policy) == 0 {
		return plugin.PolicyResponse{}, nil
	}
	responses, err := plugin.RunPolicies(ctx, chain, f.plugins.Policy, call)
	if err != nil {
		return plugin.PolicyResponse{}, chainError(class, chain+" policy", err)
	}
	return plugin.MergePolicies(responses), nil
}

func applyItemPolicy(m *catalog.Metacard, policy catalog.PolicyMap) {
	if m == nil || len(policy) == 0 {
		return
	}
	m.SetSecurity(m.Security().Merge(policy))
}

func applyOperationPolicy(props *catalog.Properties, policy catalog.PolicyMap) {
	if len(policy) == 0 {
		return
	}
	props.OperationSecurity = props.OperationSecurity.Merge(policy)
}

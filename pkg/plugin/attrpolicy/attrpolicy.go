// Package attrpolicy derives security requirements from metacard
// attributes and request properties, and enforces them against the
// requesting subject.
//
// Two plugins are provided:
//   - Policy: a policy plugin filling item and operation policy maps
//   - Access: an access plugin vetoing operations and dropping results the
//     subject does not satisfy
//
// Register both to get attribute based access control.
package attrpolicy

import (
	"context"
	"fmt"
	"sort"

	"github.com/marmos91/dittocat/internal/logger"
	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/plugin"
)

// Config maps names to policy keys.
type Config struct {
	// Attributes maps metacard attribute names to the policy key their
	// values are required under. Example: classification: clearance.
	Attributes map[string]string `mapstructure:"attributes"`

	// Properties maps request property extensions to the policy key of the
	// operation policy.
	Properties map[string]string `mapstructure:"properties"`
}

// ============================================================================
// Policy
// ============================================================================

// Policy computes requirements from configured attributes. It never
// changes requests.
type Policy struct {
	plugin.BasePolicy
	config Config
}

func NewPolicy(config Config) *Policy {
	return &Policy{config: config}
}

func (p *Policy) Name() string { return "attribute-policy" }

func (p *Policy) CreatePolicy(_ context.Context, m *catalog.Metacard, props catalog.Properties) (plugin.PolicyResponse, error) {
	return plugin.PolicyResponse{ItemPolicy: p.itemPolicy(m), OperationPolicy: p.operationPolicy(props)}, nil
}

func (p *Policy) UpdatePolicy(_ context.Context, m *catalog.Metacard, props catalog.Properties) (plugin.PolicyResponse, error) {
	return plugin.PolicyResponse{ItemPolicy: p.itemPolicy(m), OperationPolicy: p.operationPolicy(props)}, nil
}

// DeletePolicy requires the union of the policies of every metacard being
// deleted from the operation.
func (p *Policy) DeletePolicy(_ context.Context, metacards []*catalog.Metacard, props catalog.Properties) (plugin.PolicyResponse, error) {
	policy := p.operationPolicy(props)
	for _, m := range metacards {
		policy = policy.Merge(p.itemPolicy(m))
	}
	return plugin.PolicyResponse{OperationPolicy: policy}, nil
}

func (p *Policy) DeletedPolicy(_ context.Context, m *catalog.Metacard, _ catalog.Properties) (plugin.PolicyResponse, error) {
	return plugin.PolicyResponse{ItemPolicy: p.itemPolicy(m)}, nil
}

func (p *Policy) QueryPolicy(_ context.Context, _ catalog.Query, props catalog.Properties) (plugin.PolicyResponse, error) {
	return plugin.PolicyResponse{OperationPolicy: p.operationPolicy(props)}, nil
}

func (p *Policy) ResultPolicy(_ context.Context, r *catalog.Result, _ catalog.Properties) (plugin.PolicyResponse, error) {
	if r == nil {
		return plugin.PolicyResponse{}, nil
	}
	return plugin.PolicyResponse{ItemPolicy: p.itemPolicy(r.Metacard)}, nil
}

func (p *Policy) ResourcePolicy(_ context.Context, req *catalog.ResourceRequest) (plugin.PolicyResponse, error) {
	return plugin.PolicyResponse{OperationPolicy: p.operationPolicy(req.Properties)}, nil
}

func (p *Policy) ResourceResponsePolicy(_ context.Context, _ *catalog.ResourceResponse, m *catalog.Metacard) (plugin.PolicyResponse, error) {
	return plugin.PolicyResponse{ItemPolicy: p.itemPolicy(m)}, nil
}

func (p *Policy) itemPolicy(m *catalog.Metacard) catalog.PolicyMap {
	if m == nil || len(p.config.Attributes) == 0 {
		return nil
	}
	var policy catalog.PolicyMap
	for attr, key := range p.config.Attributes {
		values := stringValues(m.Values(attr))
		if len(values) == 0 {
			continue
		}
		policy = policy.Merge(map[string][]string{key: values})
	}
	return policy
}

func (p *Policy) operationPolicy(props catalog.Properties) catalog.PolicyMap {
	if len(p.config.Properties) == 0 {
		return nil
	}
	var policy catalog.PolicyMap
	for name, key := range p.config.Properties {
		v, ok := props.Get(name)
		if !ok {
			continue
		}
		values := stringValues([]any{v})
		if len(values) == 0 {
			continue
		}
		policy = policy.Merge(map[string][]string{key: values})
	}
	return policy
}

// stringValues flattens attribute values to sorted unique strings.
func stringValues(values []any) []string {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		switch t := v.(type) {
		case nil:
		case string:
			if t != "" {
				seen[t] = struct{}{}
			}
		case []string:
			for _, s := range t {
				if s != "" {
					seen[s] = struct{}{}
				}
			}
		default:
			seen[fmt.Sprint(t)] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ============================================================================
// Access
// ============================================================================

// Access enforces operation security on writes and resources, and item
// security on query results.
type Access struct {
	plugin.BaseAccess
}

func NewAccess() *Access {
	return &Access{}
}

func (a *Access) Name() string { return "attribute-access" }

func (a *Access) PreCreate(_ context.Context, req *catalog.CreateRequest) (*catalog.CreateRequest, error) {
	if err := permit(req.Properties, "create"); err != nil {
		return nil, err
	}
	return req, nil
}

func (a *Access) PreUpdate(_ context.Context, req *catalog.UpdateRequest, _ map[string]*catalog.Metacard) (*catalog.UpdateRequest, error) {
	if err := permit(req.Properties, "update"); err != nil {
		return nil, err
	}
	return req, nil
}

func (a *Access) PreDelete(_ context.Context, req *catalog.DeleteRequest) (*catalog.DeleteRequest, error) {
	if err := permit(req.Properties, "delete"); err != nil {
		return nil, err
	}
	return req, nil
}

func (a *Access) PreQuery(_ context.Context, req *catalog.QueryRequest) (*catalog.QueryRequest, error) {
	if err := permit(req.Properties, "query"); err != nil {
		return nil, err
	}
	return req, nil
}

// PostQuery drops the results whose item security the subject does not
// satisfy. Hits are reduced accordingly.
func (a *Access) PostQuery(_ context.Context, resp *catalog.QueryResponse) (*catalog.QueryResponse, error) {
	subject := resp.Properties.Subject
	if subject == nil && resp.Request != nil {
		subject = resp.Request.Properties.Subject
	}

	kept := make([]*catalog.Result, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r == nil || r.Metacard == nil {
			continue
		}
		if !subject.Permits(r.Metacard.Security()) {
			logger.Debug("Dropping result %s: subject lacks required attributes", r.Metacard.ID())
			continue
		}
		kept = append(kept, r)
	}

	if dropped := int64(len(resp.Results) - len(kept)); dropped > 0 && resp.Hits >= dropped {
		resp.Hits -= dropped
	}
	resp.Results = kept
	return resp, nil
}

func (a *Access) PreResource(_ context.Context, req *catalog.ResourceRequest) (*catalog.ResourceRequest, error) {
	if err := permit(req.Properties, "resource"); err != nil {
		return nil, err
	}
	return req, nil
}

func (a *Access) PostResource(_ context.Context, resp *catalog.ResourceResponse, m *catalog.Metacard) (*catalog.ResourceResponse, error) {
	subject := resp.Properties.Subject
	if subject == nil && resp.Request != nil {
		subject = resp.Request.Properties.Subject
	}
	if m != nil && !subject.Permits(m.Security()) {
		return nil, plugin.StopProcessing("subject may not retrieve the resource of %s", m.ID())
	}
	return resp, nil
}

func permit(props catalog.Properties, op string) error {
	if props.Subject.Permits(props.OperationSecurity) {
		return nil
	}
	name := "anonymous"
	if props.Subject != nil && props.Subject.Name != "" {
		name = props.Subject.Name
	}
	return plugin.StopProcessing("%s may not %s: missing required attributes", name, op)
}

var (
	_ plugin.PolicyPlugin = (*Policy)(nil)
	_ plugin.AccessPlugin = (*Access)(nil)
)

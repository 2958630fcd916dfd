package catalog

// OperationType identifies the write operation an OperationTransaction
// belongs to.
type OperationType string

const (
	OperationCreate OperationType = "create"
	OperationUpdate OperationType = "update"
	OperationDelete OperationType = "delete"
)

// OperationTransaction is the snapshot of state before a write, handed to
// plugins that need a before/after view. It is immutable.
type OperationTransaction struct {
	typ      OperationType
	previous []*Metacard
}

func NewOperationTransaction(typ OperationType, previous []*Metacard) *OperationTransaction {
	snapshot := make([]*Metacard, 0, len(previous))
	for _, m := range previous {
		snapshot = append(snapshot, m.Copy())
	}
	return &OperationTransaction{typ: typ, previous: snapshot}
}

func (t *OperationTransaction) Type() OperationType {
	return t.typ
}

// PreviousState returns copies of the metacards as they were before the
// operation.
func (t *OperationTransaction) PreviousState() []*Metacard {
	out := make([]*Metacard, len(t.previous))
	for i, m := range t.previous {
		out[i] = m.Copy()
	}
	return out
}

// Properties is the operation context threaded through the pipeline. The
// framework owns the routing and security fields; plugins read them and
// keep their own data in Extensions.
type Properties struct {
	Subject *Subject

	// Routing flags resolved before any plugin runs.
	LocalDestination  bool
	RemoteDestination bool

	// OperationSecurity is the merged operation-level policy.
	OperationSecurity PolicyMap

	Transaction *OperationTransaction

	// ContentPaths maps metacard id -> qualifier -> staged temp file.
	ContentPaths map[string]map[string]string

	// AttributeOverrides maps attribute name to raw override values.
	AttributeOverrides map[string][]string

	// ExistingMetacards maps update keys to the stored metacards they
	// replace.
	ExistingMetacards map[string]*Metacard

	// StoreResults maps a catalog store id to the metacards it affected.
	StoreResults map[string][]*Metacard

	// Resource retrieval.
	Qualifier   string
	SourceID    string
	Enterprise  bool
	MetacardID  string
	ResourceURI string
	Metacard    *Metacard

	Extensions map[string]any
}

// Set stores a plugin-specific value.
func (p *Properties) Set(key string, value any) {
	if p.Extensions == nil {
		p.Extensions = make(map[string]any)
	}
	p.Extensions[key] = value
}

// Get returns a plugin-specific value.
func (p *Properties) Get(key string) (any, bool) {
	v, ok := p.Extensions[key]
	return v, ok
}

// Snapshot returns a copy that can be handed to plugins without exposing
// the live maps.
func (p Properties) Snapshot() Properties {
	c := p
	c.OperationSecurity = p.OperationSecurity.Clone()
	if p.ContentPaths != nil {
		c.ContentPaths = make(map[string]map[string]string, len(p.ContentPaths))
		for id, paths := range p.ContentPaths {
			inner := make(map[string]string, len(paths))
			for q, path := range paths {
				inner[q] = path
			}
			c.ContentPaths[id] = inner
		}
	}
	if p.AttributeOverrides != nil {
		c.AttributeOverrides = make(map[string][]string, len(p.AttributeOverrides))
		for k, v := range p.AttributeOverrides {
			c.AttributeOverrides[k] = append([]string(nil), v...)
		}
	}
	if p.ExistingMetacards != nil {
		c.ExistingMetacards = make(map[string]*Metacard, len(p.ExistingMetacards))
		for k, m := range p.ExistingMetacards {
			c.ExistingMetacards[k] = m.Copy()
		}
	}
	if p.StoreResults != nil {
		c.StoreResults = make(map[string][]*Metacard, len(p.StoreResults))
		for k, v := range p.StoreResults {
			c.StoreResults[k] = append([]*Metacard(nil), v...)
		}
	}
	if p.Extensions != nil {
		c.Extensions = make(map[string]any, len(p.Extensions))
		for k, v := range p.Extensions {
			c.Extensions[k] = v
		}
	}
	c.Metacard = p.Metacard.Copy()
	return c
}

// MergeMissing copies fields of other that p does not set yet. Used to
// back-fill response properties from the request.
func (p *Properties) MergeMissing(other Properties) {
	if p.Subject == nil {
		p.Subject = other.Subject
	}
	if !p.LocalDestination {
		p.LocalDestination = other.LocalDestination
	}
	if !p.RemoteDestination {
		p.RemoteDestination = other.RemoteDestination
	}
	if p.OperationSecurity == nil {
		p.OperationSecurity = other.OperationSecurity.Clone()
	}
	if p.Transaction == nil {
		p.Transaction = other.Transaction
	}
	if p.Qualifier == "" {
		p.Qualifier = other.Qualifier
	}
	if p.SourceID == "" {
		p.SourceID = other.SourceID
	}
	if !p.Enterprise {
		p.Enterprise = other.Enterprise
	}
	if p.MetacardID == "" {
		p.MetacardID = other.MetacardID
	}
	if p.ResourceURI == "" {
		p.ResourceURI = other.ResourceURI
	}
	for k, v := range other.Extensions {
		if _, ok := p.Extensions[k]; !ok {
			p.Set(k, v)
		}
	}
}

package plugin

// Set holds the ordered plugin chains of a framework. Chains run in
// registration order.
type Set struct {
	Policy             []PolicyPlugin
	Access             []AccessPlugin
	PreIngest          []PreIngestPlugin
	PostIngest         []PostIngestPlugin
	PreQuery           []PreQueryPlugin
	PostQuery          []PostQueryPlugin
	PreFederatedQuery  []PreFederatedQueryPlugin
	PostFederatedQuery []PostFederatedQueryPlugin
	PreResource        []PreResourcePlugin
	PostResource       []PostResourcePlugin
	PreCreateStorage   []PreCreateStoragePlugin
	PostCreateStorage  []PostCreateStoragePlugin
	PreUpdateStorage   []PreUpdateStoragePlugin
	PostUpdateStorage  []PostUpdateStoragePlugin
}

// Register adds p to every chain whose capability it implements and returns
// the number of chains it joined.
func (s *Set) Register(p any) int {
	n := 0
	if v, ok := p.(PolicyPlugin); ok {
		s.Policy = append(s.Policy, v)
		n++
	}
	if v, ok := p.(AccessPlugin); ok {
		s.Access = append(s.Access, v)
		n++
	}
	if v, ok := p.(PreIngestPlugin); ok {
		s.PreIngest = append(s.PreIngest, v)
		n++
	}
	if v, ok := p.(PostIngestPlugin); ok {
		s.PostIngest = append(s.PostIngest, v)
		n++
	}
	if v, ok := p.(PreQueryPlugin); ok {
		s.PreQuery = append(s.PreQuery, v)
		n++
	}
	if v, ok := p.(PostQueryPlugin); ok {
		s.PostQuery = append(s.PostQuery, v)
		n++
	}
	if v, ok := p.(PreFederatedQueryPlugin); ok {
		s.PreFederatedQuery = append(s.PreFederatedQuery, v)
		n++
	}
	if v, ok := p.(PostFederatedQueryPlugin); ok {
		s.PostFederatedQuery = append(s.PostFederatedQuery, v)
		n++
	}
	if v, ok := p.(PreResourcePlugin); ok {
		s.PreResource = append(s.PreResource, v)
		n++
	}
	if v, ok := p.(PostResourcePlugin); ok {
		s.PostResource = append(s.PostResource, v)
		n++
	}
	if v, ok := p.(PreCreateStoragePlugin); ok {
		s.PreCreateStorage = append(s.PreCreateStorage, v)
		n++
	}
	if v, ok := p.(PostCreateStoragePlugin); ok {
		s.PostCreateStorage = append(s.PostCreateStorage, v)
		n++
	}
	if v, ok := p.(PreUpdateStoragePlugin); ok {
		s.PreUpdateStorage = append(s.PreUpdateStorage, v)
		n++
	}
	if v, ok := p.(PostUpdateStoragePlugin); ok {
		s.PostUpdateStorage = append(s.PostUpdateStorage, v)
		n++
	}
	return n
}

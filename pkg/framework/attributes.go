package framework

import (
	"sort"
	"sync"

	"github.com/marmos91/dittocat/internal/logger"
	"github.com/marmos91/dittocat/pkg/catalog"
)

// ============================================================================
// Attribute injection
// ============================================================================

// AttributeInjector contributes attribute descriptors to metacard types.
// Injected descriptors are added to a metacard's type before ingest so
// later stages (overrides, providers) know their formats.
type AttributeInjector interface {
	Inject(t *catalog.MetacardType) []catalog.AttributeDescriptor
}

// StaticInjector injects a fixed set of descriptors, into every type or
// only into the named types.
type StaticInjector struct {
	Descriptors []catalog.AttributeDescriptor
	Types       []string
}

func (s StaticInjector) Inject(t *catalog.MetacardType) []catalog.AttributeDescriptor {
	if t == nil {
		return nil
	}
	if len(s.Types) == 0 {
		return s.Descriptors
	}
	for _, name := range s.Types {
		if name == t.Name() {
			return s.Descriptors
		}
	}
	return nil
}

func (f *CatalogFramework) injectAttributes(m *catalog.Metacard) {
	if len(f.injectors) == 0 {
		return
	}
	t := m.Type()
	var extra []catalog.AttributeDescriptor
	for _, inj := range f.injectors {
		for _, d := range inj.Inject(t) {
			if _, declared := t.Descriptor(d.Name); !declared {
				extra = append(extra, d)
			}
		}
	}
	if len(extra) > 0 {
		m.SetType(t.With(extra...))
	}
}

// ============================================================================
// Default attribute values
// ============================================================================

// DefaultAttributeRegistry holds values given to attributes an ingested
// metacard leaves unset. Type-specific defaults win over global ones.
//
// Thread Safety: Safe for concurrent use.
type DefaultAttributeRegistry struct {
	mu     sync.RWMutex
	global map[string][]any
	byType map[string]map[string][]any
}

func NewDefaultAttributeRegistry() *DefaultAttributeRegistry {
	return &DefaultAttributeRegistry{
		global: make(map[string][]any),
		byType: make(map[string]map[string][]any),
	}
}

// SetDefault sets the default of attr for every metacard type. No values
// removes it.
func (r *DefaultAttributeRegistry) SetDefault(attr string, values ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(values) == 0 {
		delete(r.global, attr)
		return
	}
	r.global[attr] = values
}

// SetTypeDefault sets the default of attr for metacards of typeName only.
func (r *DefaultAttributeRegistry) SetTypeDefault(typeName, attr string, values ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(values) == 0 {
		delete(r.byType[typeName], attr)
		return
	}
	if r.byType[typeName] == nil {
		r.byType[typeName] = make(map[string][]any)
	}
	r.byType[typeName][attr] = values
}

// Defaults returns the effective defaults for a metacard type.
func (r *DefaultAttributeRegistry) Defaults(typeName string) map[string][]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]any, len(r.global)+len(r.byType[typeName]))
	for k, v := range r.global {
		out[k] = v
	}
	for k, v := range r.byType[typeName] {
		out[k] = v
	}
	return out
}

// Apply sets every default attribute m does not have yet.
func (r *DefaultAttributeRegistry) Apply(m *catalog.Metacard) {
	if m == nil {
		return
	}
	defaults := r.Defaults(m.Type().Name())
	names := make([]string, 0, len(defaults))
	for name := range defaults {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if len(m.Values(name)) == 0 {
			m.SetAttribute(name, defaults[name]...)
		}
	}
}

// prepareMetacard runs the injectors then fills defaults.
func (f *CatalogFramework) prepareMetacard(m *catalog.Metacard) {
	f.injectAttributes(m)
	f.defaults.Apply(m)
}

// ============================================================================
// Attribute overrides
// ============================================================================

// applyOverrides sets attributes from raw override strings, parsed with
// each attribute's declared format. Undeclared attributes are strings.
// Values that do not parse are skipped; the id is never overridden.
func applyOverrides(m *catalog.Metacard, overrides map[string][]string) {
	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if name == catalog.AttrID {
			continue
		}
		desc, ok := m.Type().Descriptor(name)
		if !ok {
			desc = catalog.AttributeDescriptor{Name: name, Format: catalog.FormatString, MultiValued: true}
		}

		values := make([]any, 0, len(overrides[name]))
		for _, raw := range overrides[name] {
			v, err := catalog.ParseValue(desc.Format, raw)
			if err != nil {
				logger.Debug("Skipping override %s=%q on %s: %v", name, raw, m.ID(), err)
				continue
			}
			values = append(values, v)
		}
		if len(values) == 0 {
			continue
		}
		if !desc.MultiValued {
			values = values[:1]
		}
		m.SetAttribute(name, values...)
	}
}

// Package filter provides the query predicates used across DittoCat.
//
// Filters are small immutable trees built with the constructor functions in
// this package (Equal, Like, AllOf, ...). Catalog providers evaluate them
// with Match against anything exposing attribute values through Record;
// remote sources may instead translate the exported node types into their
// own query language.
package filter

import (
	"fmt"
	"strings"
	"time"
)

// Record is anything a filter can be evaluated against. Multi-valued
// attributes return every value; a missing attribute returns nil.
type Record interface {
	Values(attribute string) []any
}

// Filter is a predicate over records.
type Filter interface {
	Match(r Record) bool
	String() string
}

// ============================================================================
// Constant filters
// ============================================================================

// IncludeAll matches every record.
type IncludeAll struct{}

func (IncludeAll) Match(Record) bool { return true }
func (IncludeAll) String() string    { return "INCLUDE" }

// ExcludeAll matches nothing.
type ExcludeAll struct{}

func (ExcludeAll) Match(Record) bool { return false }
func (ExcludeAll) String() string    { return "EXCLUDE" }

var (
	Include Filter = IncludeAll{}
	Exclude Filter = ExcludeAll{}
)

// ============================================================================
// Comparison filters
// ============================================================================

// EqualTo matches records where any value of Attribute equals Value.
type EqualTo struct {
	Attribute string
	Value     any
}

func Equal(attribute string, value any) Filter {
	return EqualTo{Attribute: attribute, Value: value}
}

func (f EqualTo) Match(r Record) bool {
	for _, v := range r.Values(f.Attribute) {
		if Equals(v, f.Value) {
			return true
		}
	}
	return false
}

func (f EqualTo) String() string {
	return fmt.Sprintf("%s = %s", f.Attribute, quote(f.Value))
}

// LikeText matches string values against a wildcard pattern where '*'
// matches any run of characters and '?' exactly one.
type LikeText struct {
	Attribute     string
	Pattern       string
	CaseSensitive bool
}

// Like builds a case-insensitive wildcard match.
func Like(attribute, pattern string) Filter {
	return LikeText{Attribute: attribute, Pattern: pattern}
}

func (f LikeText) Match(r Record) bool {
	pattern := f.Pattern
	if !f.CaseSensitive {
		pattern = strings.ToLower(pattern)
	}
	for _, v := range r.Values(f.Attribute) {
		s := toString(v)
		if !f.CaseSensitive {
			s = strings.ToLower(s)
		}
		if wildcardMatch(pattern, s) {
			return true
		}
	}
	return false
}

func (f LikeText) String() string {
	return fmt.Sprintf("%s LIKE '%s'", f.Attribute, f.Pattern)
}

// Null matches records with no value for Attribute.
type Null struct {
	Attribute string
}

func IsNull(attribute string) Filter {
	return Null{Attribute: attribute}
}

func (f Null) Match(r Record) bool {
	for _, v := range r.Values(f.Attribute) {
		if v != nil {
			return false
		}
	}
	return true
}

func (f Null) String() string {
	return f.Attribute + " IS NULL"
}

// Operator is an ordering comparison.
type Operator string

const (
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
)

// Comparison matches records where any value of Attribute compares to Value
// according to Op. Values of incomparable kinds never match.
type Comparison struct {
	Attribute string
	Op        Operator
	Value     any
}

func LessThan(attribute string, value any) Filter {
	return Comparison{Attribute: attribute, Op: OpLess, Value: value}
}

func GreaterThan(attribute string, value any) Filter {
	return Comparison{Attribute: attribute, Op: OpGreater, Value: value}
}

func Before(attribute string, t time.Time) Filter {
	return Comparison{Attribute: attribute, Op: OpLess, Value: t}
}

func After(attribute string, t time.Time) Filter {
	return Comparison{Attribute: attribute, Op: OpGreater, Value: t}
}

func (f Comparison) Match(r Record) bool {
	for _, v := range r.Values(f.Attribute) {
		c, ok := compare(v, f.Value)
		if !ok {
			continue
		}
		switch f.Op {
		case OpLess:
			if c < 0 {
				return true
			}
		case OpLessEqual:
			if c <= 0 {
				return true
			}
		case OpGreater:
			if c > 0 {
				return true
			}
		case OpGreaterEqual:
			if c >= 0 {
				return true
			}
		}
	}
	return false
}

func (f Comparison) String() string {
	return fmt.Sprintf("%s %s %s", f.Attribute, f.Op, quote(f.Value))
}

// ============================================================================
// Logical filters
// ============================================================================

// And matches when every child matches.
type And struct {
	Filters []Filter
}

// AllOf combines filters with AND. Nil children are dropped; no children
// yields Include and a single child is returned as is.
func AllOf(filters ...Filter) Filter {
	kept := compact(filters)
	switch len(kept) {
	case 0:
		return Include
	case 1:
		return kept[0]
	}
	return And{Filters: kept}
}

func (f And) Match(r Record) bool {
	for _, child := range f.Filters {
		if !child.Match(r) {
			return false
		}
	}
	return true
}

func (f And) String() string {
	return join(f.Filters, " AND ")
}

// Or matches when at least one child matches.
type Or struct {
	Filters []Filter
}

// AnyOf combines filters with OR. No children yields Exclude.
func AnyOf(filters ...Filter) Filter {
	kept := compact(filters)
	switch len(kept) {
	case 0:
		return Exclude
	case 1:
		return kept[0]
	}
	return Or{Filters: kept}
}

func (f Or) Match(r Record) bool {
	for _, child := range f.Filters {
		if child.Match(r) {
			return true
		}
	}
	return false
}

func (f Or) String() string {
	return join(f.Filters, " OR ")
}

// Negation inverts its child.
type Negation struct {
	Filter Filter
}

func Not(f Filter) Filter {
	return Negation{Filter: f}
}

func (f Negation) Match(r Record) bool {
	return !f.Filter.Match(r)
}

func (f Negation) String() string {
	return "NOT (" + f.Filter.String() + ")"
}

// ============================================================================
// Inspection
// ============================================================================

// References reports whether any node of f tests attribute. Filters of
// types outside this package are assumed not to.
func References(f Filter, attribute string) bool {
	switch n := f.(type) {
	case EqualTo:
		return n.Attribute == attribute
	case LikeText:
		return n.Attribute == attribute
	case Null:
		return n.Attribute == attribute
	case Comparison:
		return n.Attribute == attribute
	case And:
		return anyReferences(n.Filters, attribute)
	case Or:
		return anyReferences(n.Filters, attribute)
	case Negation:
		return References(n.Filter, attribute)
	}
	return false
}

func anyReferences(filters []Filter, attribute string) bool {
	for _, child := range filters {
		if References(child, attribute) {
			return true
		}
	}
	return false
}

func compact(filters []Filter) []Filter {
	kept := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if f != nil {
			kept = append(kept, f)
		}
	}
	return kept
}

func join(filters []Filter, sep string) string {
	parts := make([]string, len(filters))
	for i, f := range filters {
		parts[i] = f.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func quote(v any) string {
	switch val := v.(type) {
	case string:
		return "'" + val + "'"
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

// wildcardMatch implements '*' and '?' matching with backtracking on the
// last star.
func wildcardMatch(pattern, s string) bool {
	p := []rune(pattern)
	r := []rune(s)
	pi, si := 0, 0
	star, mark := -1, 0

	for si < len(r) {
		switch {
		case pi < len(p) && (p[pi] == '?' || p[pi] == r[si]):
			pi++
			si++
		case pi < len(p) && p[pi] == '*':
			star = pi
			mark = si
			pi++
		case star != -1:
			pi = star + 1
			mark++
			si = mark
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}

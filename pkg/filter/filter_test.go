package filter

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type record map[string][]any

func (r record) Values(name string) []any { return r[name] }

func TestEqual(t *testing.T) {
	r := record{
		"id":    {"abc"},
		"tags":  {"resource", "workspace"},
		"size":  {int64(42)},
		"uri":   {mustURL("content:abc")},
		"valid": {true},
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"string match", Equal("id", "abc"), true},
		{"string mismatch", Equal("id", "abd"), false},
		{"multi-valued", Equal("tags", "workspace"), true},
		{"numeric kinds", Equal("size", 42), true},
		{"url vs string", Equal("uri", "content:abc"), true},
		{"bool", Equal("valid", true), true},
		{"missing attribute", Equal("title", "x"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(r))
		})
	}
}

func TestLike(t *testing.T) {
	r := record{"title": {"Satellite Image 01"}}

	assert.True(t, Like("title", "satellite*").Match(r))
	assert.True(t, Like("title", "*image ??").Match(r))
	assert.False(t, Like("title", "*radar*").Match(r))
	assert.False(t, LikeText{Attribute: "title", Pattern: "satellite*", CaseSensitive: true}.Match(r))
}

func TestIsNull(t *testing.T) {
	assert.True(t, IsNull("tags").Match(record{}))
	assert.False(t, IsNull("tags").Match(record{"tags": {"resource"}}))
}

func TestComparison(t *testing.T) {
	now := time.Now()
	r := record{"modified": {now}, "size": {10}}

	assert.True(t, Before("modified", now.Add(time.Hour)).Match(r))
	assert.False(t, After("modified", now.Add(time.Hour)).Match(r))
	assert.True(t, GreaterThan("size", 5).Match(r))
	assert.False(t, LessThan("size", 5).Match(r))
	assert.False(t, LessThan("size", "five").Match(r))
}

func TestLogical(t *testing.T) {
	r := record{"id": {"1"}, "title": {"a"}}

	assert.Equal(t, Include, AllOf())
	assert.Equal(t, Exclude, AnyOf())
	assert.Equal(t, Equal("id", "1"), AllOf(nil, Equal("id", "1")))

	assert.True(t, AllOf(Equal("id", "1"), Equal("title", "a")).Match(r))
	assert.False(t, AllOf(Equal("id", "1"), Equal("title", "b")).Match(r))
	assert.True(t, AnyOf(Equal("id", "2"), Equal("title", "a")).Match(r))
	assert.True(t, Not(Equal("id", "2")).Match(r))
}

func TestString(t *testing.T) {
	f := AllOf(Equal("id", "1"), AnyOf(IsNull("tags"), Like("tags", "resource")))
	assert.Equal(t, "(id = '1' AND (tags IS NULL OR tags LIKE 'resource'))", f.String())
}

func TestCompareOrdersMixedKinds(t *testing.T) {
	assert.Equal(t, -1, Compare(nil, "a"))
	assert.Equal(t, 1, Compare(2.5, 1))
	assert.Equal(t, 0, Compare("x", "x"))
	assert.Equal(t, -1, Compare("10", 9))
}

func mustURL(s string) *url.URL {
	u, err := url.Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

func TestReferences(t *testing.T) {
	f := AllOf(Like("title", "*report*"), Not(AnyOf(Equal("metacard-tags", "resource"), IsNull("owner"))))

	assert.True(t, References(f, "title"))
	assert.True(t, References(f, "metacard-tags"))
	assert.True(t, References(f, "owner"))
	assert.False(t, References(f, "id"))
	assert.False(t, References(Include, "id"))
	assert.True(t, References(GreaterThan("size", 3), "size"))
}

package filter

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Equals reports whether two attribute values are equal after normalising
// numeric kinds, times and URLs.
func Equals(a, b any) bool {
	if c, ok := compare(a, b); ok {
		return c == 0
	}
	return false
}

// Compare orders two attribute values. Values of different kinds are
// ordered by their string form so sorting stays total; nil sorts first.
func Compare(a, b any) int {
	if c, ok := compare(a, b); ok {
		return c
	}
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return strings.Compare(toString(a), toString(b))
}

func compare(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}

	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return at.Compare(bt), true
	}

	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}

	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case ab == bb:
			return 0, true
		case !ab:
			return -1, true
		}
		return 1, true
	}

	as, aok := asText(a)
	bs, bok := asText(b)
	if !aok || !bok {
		return 0, false
	}
	return strings.Compare(as, bs), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func asText(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	case *url.URL:
		if s == nil {
			return "", false
		}
		return s.String(), true
	case fmt.Stringer:
		return s.String(), true
	}
	return "", false
}

func toString(v any) string {
	if s, ok := asText(v); ok {
		return s
	}
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}

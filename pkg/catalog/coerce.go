package catalog

import (
	"encoding/base64"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are tried in order when parsing DATE values from text.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	time.DateTime,
	time.DateOnly,
}

// ParseValue converts a textual value to the Go type used for format.
func ParseValue(format AttributeFormat, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch format {
	case FormatString, FormatXML, FormatGeometry:
		return raw, nil
	case FormatBoolean:
		return strconv.ParseBool(raw)
	case FormatDate:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return t.UTC(), nil
			}
		}
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), nil
		}
		return nil, fmt.Errorf("unparsable date %q", raw)
	case FormatShort:
		v, err := strconv.ParseInt(raw, 10, 16)
		return int16(v), err
	case FormatInteger:
		v, err := strconv.ParseInt(raw, 10, 32)
		return int32(v), err
	case FormatLong:
		return strconv.ParseInt(raw, 10, 64)
	case FormatFloat:
		v, err := strconv.ParseFloat(raw, 32)
		return float32(v), err
	case FormatDouble:
		return strconv.ParseFloat(raw, 64)
	case FormatBinary:
		return base64.StdEncoding.DecodeString(raw)
	case FormatObject:
		return raw, nil
	}
	return nil, fmt.Errorf("unsupported format %s", format)
}

// CoerceValue converts a decoded value (from JSON, YAML or CBOR) to the Go
// type used for format. Text is parsed with ParseValue.
func CoerceValue(format AttributeFormat, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok {
		return ParseValue(format, s)
	}

	switch format {
	case FormatString, FormatXML, FormatGeometry:
		switch val := v.(type) {
		case *url.URL:
			return val.String(), nil
		case []byte:
			return string(val), nil
		}
		return fmt.Sprint(v), nil
	case FormatBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case FormatDate:
		if t, ok := v.(time.Time); ok {
			return t.UTC(), nil
		}
	case FormatShort, FormatInteger, FormatLong:
		n, ok := toInt64(v)
		if !ok {
			break
		}
		switch format {
		case FormatShort:
			if n < math.MinInt16 || n > math.MaxInt16 {
				return nil, fmt.Errorf("%d overflows SHORT", n)
			}
			return int16(n), nil
		case FormatInteger:
			if n < math.MinInt32 || n > math.MaxInt32 {
				return nil, fmt.Errorf("%d overflows INTEGER", n)
			}
			return int32(n), nil
		}
		return n, nil
	case FormatFloat, FormatDouble:
		f, ok := toFloat64(v)
		if !ok {
			break
		}
		if format == FormatFloat {
			return float32(f), nil
		}
		return f, nil
	case FormatBinary:
		if b, ok := v.([]byte); ok {
			return append([]byte(nil), b...), nil
		}
	case FormatObject:
		return v, nil
	}
	return nil, fmt.Errorf("cannot use %T as %s", v, format)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		if float32(int64(n)) == n {
			return int64(n), true
		}
	case float64:
		if float64(int64(n)) == n {
			return int64(n), true
		}
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

// ToPolicyMap converts a decoded security value to a PolicyMap.
func ToPolicyMap(v any) (PolicyMap, bool) {
	switch m := v.(type) {
	case PolicyMap:
		return m.Clone(), true
	case map[string][]string:
		return PolicyMap(m).Clone(), true
	case map[string]any:
		out := make(PolicyMap, len(m))
		for k, raw := range m {
			values, ok := toStrings(raw)
			if !ok {
				return nil, false
			}
			out[k] = values
		}
		return out, true
	case map[any]any:
		out := make(PolicyMap, len(m))
		for k, raw := range m {
			key, ok := k.(string)
			if !ok {
				return nil, false
			}
			values, ok := toStrings(raw)
			if !ok {
				return nil, false
			}
			out[key] = values
		}
		return out, true
	}
	return nil, false
}

func toStrings(v any) ([]string, bool) {
	switch s := v.(type) {
	case string:
		return []string{s}, true
	case []string:
		return append([]string(nil), s...), true
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	}
	return nil, false
}

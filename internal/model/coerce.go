package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	ErrUnknownField = errors.New("unknown field")
	errCast         = errors.New("cast failed")
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// CoerceString converts a raw query-string value to the field's Go type.
// For array fields the element type is used, so equality matches members.
func (m *Model) CoerceString(field, raw string) (any, error) {
	typ := m.FieldType(field)
	if typ == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	if typ == TypeArray {
		typ = m.Fields[field].Items
	}
	v, err := coerceScalar(typ, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q", field, raw)
	}
	return v, nil
}

func coerceScalar(typ string, v any) (any, error) {
	switch typ {
	case TypeString, TypeID:
		switch x := v.(type) {
		case string:
			return x, nil
		case float64, int, int64, bool, json.Number:
			return fmt.Sprint(x), nil
		}
	case TypeNumber:
		f, ok := toFloat(v)
		if ok {
			return f, nil
		}
	case TypeInteger:
		f, ok := toFloat(v)
		if ok && f == math.Trunc(f) {
			return int64(f), nil
		}
	case TypeBoolean:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(x))
			if err == nil {
				return b, nil
			}
		}
	case TypeDate:
		return toTime(v)
	case TypeObject:
		if obj, ok := v.(map[string]any); ok {
			return obj, nil
		}
	}
	return nil, errCast
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func toTime(v any) (any, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		// epoch milliseconds, as Date.now() produces
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), nil
		}
	case float64:
		return time.UnixMilli(int64(x)).UTC(), nil
	case int64:
		return time.UnixMilli(x).UTC(), nil
	}
	return nil, errCast
}

// coerceValue converts a decoded JSON value to the field's stored type.
func coerceValue(f *Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if f.Type == TypeArray {
		items, ok := v.([]any)
		if !ok {
			items = []any{v}
		}
		out := make([]any, 0, len(items))
		for _, it := range items {
			c, err := coerceScalar(f.Items, it)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, nil
	}
	c, err := coerceScalar(f.Type, v)
	if err != nil {
		return nil, err
	}
	if s, ok := c.(string); ok && f.Type == TypeString {
		if f.Trim {
			s = strings.TrimSpace(s)
		}
		if f.Lowercase {
			s = strings.ToLower(s)
		}
		c = s
	}
	return c, nil
}

package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// RawBooking - запись как её отдал источник: поля могут отсутствовать или называться по-разному.
type RawBooking map[string]any

// Value returns the field if it is present and not null.
func (r RawBooking) Value(key string) (any, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Has reports whether the field carries a usable value. Empty strings do not count.
func (r RawBooking) Has(key string) bool {
	v, ok := r.Value(key)
	if !ok {
		return false
	}
	if s, isStr := v.(string); isStr {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// String returns string fields, and integral numbers formatted as strings (numeric ids).
func (r RawBooking) String(key string) (string, bool) {
	v, ok := r.Value(key)
	if !ok {
		return "", false
	}
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		return s, s != ""
	case json.Number:
		return x.String(), true
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return strconv.FormatInt(int64(x), 10), true
		}
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	default:
		return "", false
	}
}

// Number returns numeric fields; numeric strings are accepted. NaN and Inf are rejected.
func (r RawBooking) Number(key string) (float64, bool) {
	v, ok := r.Value(key)
	if !ok {
		return 0, false
	}
	return toNumber(v)
}

// Object returns a populated nested object.
func (r RawBooking) Object(key string) (RawBooking, bool) {
	v, ok := r.Value(key)
	if !ok {
		return nil, false
	}
	switch x := v.(type) {
	case map[string]any:
		return RawBooking(x), true
	case RawBooking:
		return x, true
	default:
		return nil, false
	}
}

// List returns an array field.
func (r RawBooking) List(key string) ([]any, bool) {
	v, ok := r.Value(key)
	if !ok {
		return nil, false
	}
	switch x := v.(type) {
	case []any:
		return x, true
	case []map[string]any:
		out := make([]any, 0, len(x))
		for _, m := range x {
			out = append(out, m)
		}
		return out, true
	case []string:
		out := make([]any, 0, len(x))
		for _, s := range x {
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// Clone makes a shallow copy so callers can add fields without touching the source snapshot.
func (r RawBooking) Clone() RawBooking {
	out := make(RawBooking, len(r)+4)
	for k, v := range r {
		out[k] = v
	}
	return out
}

func toNumber(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

package namenode

import "time"

// These helpers tolerate the type drift a document can pick up crossing
// the store boundary: the in-memory store keeps Go's native types
// (int64, []string), while the sqlite store round-trips everything
// through JSON, which only knows float64 numbers and []any slices.

func toString(v any) string {
	s, _ := v.(string)
	return s
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func toStringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return append([]string(nil), s...)
	case []any:
		out := make([]string, len(s))
		for i, e := range s {
			out[i] = toString(e)
		}
		return out
	default:
		return nil
	}
}

func unixNanoTime(v any) time.Time {
	ns := toInt64(v)
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

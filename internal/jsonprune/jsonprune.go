// Package jsonprune strips keys from decoded JSON objects before comparing
// agent output with stored expectations. Every function returns a new value
// and leaves its input untouched.
package jsonprune

import "regexp"

// RemoveNulls drops keys whose value is null, recursing into nested objects.
func RemoveNulls(obj map[string]any) map[string]any {
	return prune(obj, func(_ string, v any) bool { return v == nil })
}

// RemoveKey drops every key equal to key at any depth.
func RemoveKey(obj map[string]any, key string) map[string]any {
	return prune(obj, func(k string, _ any) bool { return k == key })
}

// RemoveKeyMatching drops every key re matches at any depth.
func RemoveKeyMatching(obj map[string]any, re *regexp.Regexp) map[string]any {
	return prune(obj, func(k string, _ any) bool { return re.MatchString(k) })
}

func prune(obj map[string]any, drop func(string, any) bool) map[string]any {
	if obj == nil {
		return nil
	}
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		if drop(k, v) {
			continue
		}
		out[k] = pruneValue(v, drop)
	}
	return out
}

// Arrays are copied so the result shares no containers with the input.
func pruneValue(v any, drop func(string, any) bool) any {
	switch v := v.(type) {
	case map[string]any:
		return prune(v, drop)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = pruneValue(e, drop)
		}
		return out
	default:
		return v
	}
}

package template

import (
	"encoding/json"
	"fmt"
	"strings"
)

// expand recursively walks node, resolving:
//   - an object with exactly one key "$param" whose value is a string path
//     -> typed injection: substitute the raw resolved value, preserving type.
//   - a string -> scan for {{key}} / {{param.path}} placeholders, substitute
//     stringified parameter values.
//   - objects/arrays -> recurse.
//   - scalars -> copy through.
func expand(node any, params map[string]any) (any, error) {
	switch v := node.(type) {
	case map[string]any:
		if path, ok := paramRef(v); ok {
			val, ok := lookupPath(params, path)
			if !ok {
				return nil, fmt.Errorf("$param reference %q not found", path)
			}
			return val, nil
		}
		out := make(map[string]any, len(v))
		for k, child := range v {
			expanded, err := expand(child, params)
			if err != nil {
				return nil, err
			}
			out[k] = expanded
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			expanded, err := expand(child, params)
			if err != nil {
				return nil, err
			}
			out[i] = expanded
		}
		return out, nil
	case string:
		return substitutePlaceholders(v, params), nil
	default:
		return v, nil
	}
}

func paramRef(obj map[string]any) (string, bool) {
	if len(obj) != 1 {
		return "", false
	}
	v, ok := obj["$param"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// substitutePlaceholders replaces every {{key}} / {{param.path}} occurrence
// in s with the stringified parameter value (json-dumped for non-scalars).
func substitutePlaceholders(s string, params map[string]any) string {
	var b strings.Builder
	i := 0
	for i < len(s) {
		start := strings.Index(s[i:], "{{")
		if start < 0 {
			b.WriteString(s[i:])
			break
		}
		start += i
		b.WriteString(s[i:start])
		end := strings.Index(s[start:], "}}")
		if end < 0 {
			b.WriteString(s[start:])
			break
		}
		end += start
		path := strings.TrimSpace(s[start+2 : end])
		if val, ok := lookupPath(params, path); ok {
			b.WriteString(stringify(val))
		} else {
			b.WriteString(s[start : end+2]) // leave unresolved placeholders intact
		}
		i = end + 2
	}
	return b.String()
}

// lookupPath navigates dot-notation into nested JSON-decoded params, e.g.
// "timeout_ms" or "retry.count".
func lookupPath(params map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = params
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[p]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func stringify(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	case bool:
		return fmt.Sprintf("%t", v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

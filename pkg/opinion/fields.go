package opinion

import (
	"encoding/json"
	"strconv"
	"strings"
)

// The helpers below read loosely-typed fields out of a recovered object.
// Each takes the primary key first and any accepted aliases after it, and
// returns a zero value when no key matches. A nil map is fine to index.

func stringField(m map[string]any, keys ...string) string {
	for _, key := range keys {
		s, ok := m[key].(string)
		if !ok {
			continue
		}
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func floatField(m map[string]any, keys ...string) float64 {
	for _, key := range keys {
		switch val := m[key].(type) {
		case float64:
			return val
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
				return f
			}
		}
	}
	return 0
}

func boolField(m map[string]any, keys ...string) bool {
	for _, key := range keys {
		switch val := m[key].(type) {
		case bool:
			return val
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(val)); err == nil {
				return b
			}
		}
	}
	return false
}

// countField reads an integer count. A list value counts as its length,
// for models that enumerate items instead of counting them.
func countField(m map[string]any, keys ...string) int {
	for _, key := range keys {
		switch val := m[key].(type) {
		case float64:
			return int(val)
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
				return n
			}
		case []any:
			return len(val)
		}
	}
	return 0
}

// stringsField reads a list of strings. A bare string value becomes a
// single-element list; non-string list items are kept as compact JSON so
// structured evidence entries survive.
func stringsField(m map[string]any, keys ...string) []string {
	for _, key := range keys {
		switch val := m[key].(type) {
		case string:
			if s := strings.TrimSpace(val); s != "" {
				return []string{s}
			}
		case []any:
			out := make([]string, 0, len(val))
			for _, item := range val {
				if s := itemString(item); s != "" {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}

func stringMapField(m map[string]any, keys ...string) map[string]string {
	for _, key := range keys {
		raw, ok := m[key].(map[string]any)
		if !ok || len(raw) == 0 {
			continue
		}
		out := make(map[string]string, len(raw))
		for k, v := range raw {
			if s := itemString(v); s != "" {
				out[strings.TrimSpace(k)] = s
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

func itemString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

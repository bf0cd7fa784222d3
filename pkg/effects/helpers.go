package effects

import (
	"fmt"
	"strings"
)

// quoteIdent double-quotes a Snowflake identifier so names with mixed
// case or special characters round-trip correctly.
func quoteIdent(ident string) string {
	escaped := strings.ReplaceAll(ident, `"`, `""`)
	return fmt.Sprintf(`"%s"`, escaped)
}

func columnStrings(rows []map[string]any, column string) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, stringValue(row[column]))
	}
	return out
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

func int64Value(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func stringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, stringValue(item))
		}
		return out
	case string:
		trimmed := strings.Trim(t, "[]")
		if trimmed == "" {
			return nil
		}
		parts := strings.Split(trimmed, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			out = append(out, strings.Trim(strings.TrimSpace(p), `"`))
		}
		return out
	default:
		return nil
	}
}

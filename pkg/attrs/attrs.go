// Package attrs reads values back out of slog-style key/value attribute lists.
package attrs

import "fmt"

// ExtractString extracts a string value from a key-value attribute slice.
// The slice should be formatted as [key1, value1, key2, value2, ...].
// Values implementing fmt.Stringer (typed IDs) are rendered with String.
// Returns empty string if the key is not found or the value is neither.
func ExtractString(attrs []any, key string) string {
	for i := 0; i+1 < len(attrs); i += 2 {
		k, ok := attrs[i].(string)
		if !ok || k != key {
			continue
		}
		switch v := attrs[i+1].(type) {
		case string:
			return v
		case fmt.Stringer:
			return v.String()
		}
	}
	return ""
}

// Package strings provides string list utilities used for configured name sets.
package strings

import "strings"

// DedupeAndTrim trims each name and keeps the first occurrence of every
// non-blank one. A nil input stays nil.
func DedupeAndTrim(values []string) []string {
	if values == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// ExpandList flattens entries that may themselves be comma separated, which is
// how list values arrive when they come from an environment variable.
func ExpandList(values []string) []string {
	var parts []string
	for _, v := range values {
		parts = append(parts, strings.Split(v, ",")...)
	}
	if parts == nil {
		return []string{}
	}
	return DedupeAndTrim(parts)
}

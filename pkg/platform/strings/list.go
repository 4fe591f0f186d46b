// Package strings normalizes the free-form list values found in profile
// fields and comma separated settings.
package strings

import "strings"

// DedupeAndTrim trims every value and drops empties and repeats, keeping
// first-seen order. Comparison is case-sensitive.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
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

// SplitList splits raw on sep and normalizes the parts with DedupeAndTrim.
// An empty or blank raw yields nil.
func SplitList(raw, sep string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return DedupeAndTrim(strings.Split(raw, sep))
}

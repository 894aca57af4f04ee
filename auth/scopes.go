package auth

import (
	"strings"
	"unicode"
)

// ParseScopes splits a scope claim into individual scopes. A string that
// contains a comma is split on commas; anything else is split on whitespace.
// Entries are trimmed, empties dropped and duplicates removed, keeping the
// first occurrence.
//
// The comma heuristic breaks if a scope name itself contains a comma. It is
// kept for compatibility with authorities that emit comma-joined scopes.
func ParseScopes(s string) []string {
	var parts []string
	if strings.Contains(s, ",") {
		parts = strings.Split(s, ",")
	} else {
		parts = strings.FieldsFunc(s, unicode.IsSpace)
	}
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// MissingScopes returns the entries of required that are absent from
// granted, in the order they appear in required.
func MissingScopes(granted, required []string) []string {
	if len(required) == 0 {
		return nil
	}
	have := make(map[string]struct{}, len(granted))
	for _, s := range granted {
		have[s] = struct{}{}
	}
	var missing []string
	for _, want := range required {
		if _, ok := have[want]; !ok {
			missing = append(missing, want)
		}
	}
	return missing
}

// HasRequiredScopes reports whether granted is a superset of required.
func HasRequiredScopes(granted, required []string) bool {
	return len(MissingScopes(granted, required)) == 0
}

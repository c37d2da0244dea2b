package core

import "strings"

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// ContainsString reports whether `s` is in `list`.
func ContainsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// CleanStrings cleans every item of `list`, dropping the blank and the repeated ones.
func CleanStrings(list []string, lower ...bool) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s = CleanString(s, lower...); s != "" && !ContainsString(out, s) {
			out = append(out, s)
		}
	}
	return out
}

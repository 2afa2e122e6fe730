// Package strings provides string normalization utilities.
package strings

import (
	"slices"
	"strings"
	"unicode"
)

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
func DedupeAndTrim(values []string) []string {
	return dedupe(values, strings.TrimSpace)
}

// NormalizeSet trims, dedupes and sorts values so equal sets compare and
// serialize identically. Nil in, nil out.
func NormalizeSet(values []string) []string {
	if values == nil {
		return nil
	}
	out := DedupeAndTrim(values)
	slices.Sort(out)
	return out
}

// NormalizeUpperSet is NormalizeSet with every element upper-cased first.
func NormalizeUpperSet(values []string) []string {
	if values == nil {
		return nil
	}
	out := dedupe(values, func(s string) string {
		return strings.ToUpper(strings.TrimSpace(s))
	})
	slices.Sort(out)
	return out
}

// ContainsFold reports whether values contains target, ignoring case.
func ContainsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}

// ToSnakeCase converts Go field names (e.g. "UseType") to snake_case.
func ToSnakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 &&
			(unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func dedupe(values []string, norm func(string) string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		n := norm(v)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; !ok {
			seen[n] = struct{}{}
			result = append(result, n)
		}
	}
	return result
}

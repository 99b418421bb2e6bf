// Package emailaddr normalizes and validates addresses and extracts them
// from free text.
package emailaddr

import (
	"regexp"
	"strings"
)

// MaxLength is the longest address accepted (RFC 5321 path limit).
const MaxLength = 254

var (
	validRe   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	extractRe = regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`)
)

// Normalize trims and lower-cases an address.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Valid reports whether s has the local@domain.tld shape. s should already
// be normalized.
func Valid(s string) bool {
	return s != "" && len(s) <= MaxLength && validRe.MatchString(s)
}

// Find returns every address-shaped substring of text, normalized, in
// order of appearance and including repeats.
func Find(text string) []string {
	matches := extractRe.FindAllString(text, -1)
	for i, m := range matches {
		matches[i] = Normalize(m)
	}
	return matches
}

// Extract returns the valid addresses embedded in text, de-duplicated in
// first-seen order.
func Extract(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, e := range Find(text) {
		if _, ok := seen[e]; ok || !Valid(e) {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

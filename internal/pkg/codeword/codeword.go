// Package codeword provides normalization for promotional code values.
// A code is 6 letters followed by 4 digits, optionally hyphen-joined
// (e.g. "ABCDEF-1234"). All functions are pure.
package codeword

import (
	"regexp"
	"strings"
)

// MinKeyLength is the minimum normalized length for a token to be treated
// as a code at all. Shorter tokens are spreadsheet noise.
const MinKeyLength = 8

// hyphenLength is the normalized length at or above which Prettify
// re-inserts the display hyphen.
const hyphenLength = 10

var (
	wellFormedRe = regexp.MustCompile(`^[A-Z]{6}-[0-9]{4}$`)
	bareRe       = regexp.MustCompile(`^[A-Z]{6}[0-9]{4}$`)
	headerRe     = regexp.MustCompile(`(?i)^(kod|code|id|№|raqam|#)`)
	nonAlnumRe   = regexp.MustCompile(`[^A-Z0-9]`)
)

// Normalize reduces raw input to its canonical key: uppercase with every
// character outside [A-Z0-9] stripped.
func Normalize(raw string) string {
	return nonAlnumRe.ReplaceAllString(strings.ToUpper(strings.TrimSpace(raw)), "")
}

// Prettify returns the display form of a canonical key: one hyphen after
// the 6th character when the key is long enough to carry the full code
// shape, otherwise the key unchanged.
func Prettify(key string) string {
	if len(key) >= hyphenLength {
		return key[:6] + "-" + key[6:]
	}
	return key
}

// WellFormed reports whether raw is a valid submission: after uppercasing,
// exactly 6 letters and 4 digits with at most one hyphen between them.
// Malformed input must be rejected before any store access.
func WellFormed(raw string) bool {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if bareRe.MatchString(s) {
		s = s[:6] + "-" + s[6:]
	}
	return wellFormedRe.MatchString(s)
}

// IsHeaderToken reports whether a spreadsheet cell looks like a header row
// label rather than a code.
func IsHeaderToken(s string) bool {
	return headerRe.MatchString(strings.TrimSpace(s))
}

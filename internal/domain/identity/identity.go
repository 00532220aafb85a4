// Package identity canonicalizes learner profile references and validates emails.
package identity

import (
	"regexp"
	"strings"
)

// ProfileBaseURL is the canonical prefix every normalized profile reference carries.
const ProfileBaseURL = "https://www.cloudskillsboost.google/public_profiles/"

var (
	// profileRe locates a public profile reference inside arbitrary text.
	profileRe = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?cloudskillsboost\.google/public_profiles/([A-Za-z0-9_-]+)`)

	// strictProfileRe is the request-side shape: scheme required and nothing before
	// it. Sub-paths such as /badges are allowed after the id.
	strictProfileRe = regexp.MustCompile(`(?i)^https?://(?:www\.)?cloudskillsboost\.google/public_profiles/[A-Za-z0-9_-]+(?:[/?#].*)?$`)

	bareIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// ExtractProfileID returns the opaque profile id embedded in ref.
// The id segment keeps its original case.
func ExtractProfileID(ref string) (string, bool) {
	m := profileRe.FindStringSubmatch(ref)
	if len(m) < 2 || m[1] == "" {
		return "", false
	}
	return m[1], true
}

// ProfileKey is ExtractProfileID that also accepts a bare profile id.
func ProfileKey(ref string) (string, bool) {
	if id, ok := ExtractProfileID(ref); ok {
		return id, true
	}
	ref = strings.TrimSpace(ref)
	if bareIDRe.MatchString(ref) {
		return ref, true
	}
	return "", false
}

// IsProfileID reports whether s is a well-formed bare profile id.
func IsProfileID(s string) bool {
	return bareIDRe.MatchString(s)
}

// Normalize rebuilds ref as a canonical profile URL. Normalize is idempotent.
func Normalize(ref string) (string, bool) {
	id, ok := ExtractProfileID(ref)
	if !ok {
		return "", false
	}
	return ProfileBaseURL + id, true
}

// IsProfileURL reports whether ref is an acceptable profile URL on the request path.
func IsProfileURL(ref string) bool {
	return strictProfileRe.MatchString(strings.TrimSpace(ref))
}

// IsValidEmail performs permissive local@domain.tld syntax validation.
func IsValidEmail(s string) bool {
	return emailRe.MatchString(s)
}

// NormalizeEmail returns the comparison key for an email address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// EqualEmail compares two addresses case-insensitively.
func EqualEmail(a, b string) bool {
	na, nb := NormalizeEmail(a), NormalizeEmail(b)
	return na != "" && na == nb
}

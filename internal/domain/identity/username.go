package identity

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fallbackPrefix is prepended to the employee id when no usable code exists
const fallbackPrefix = "emp"

// DeriveUsername computes the login name for an employee code. Accented
// characters are folded to their base letter, everything outside
// [a-z0-9._-] is dropped. When the code yields nothing usable the username is
// synthesized from the employee id.
func DeriveUsername(code, employeeID string) string {
	if u := sanitize(code); u != "" {
		return u
	}
	if id := sanitize(employeeID); id != "" {
		return fallbackPrefix + id
	}
	return ""
}

// NormalizeUsername lowercases and trims a username for storage and lookup
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func sanitize(s string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		s,
	)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(folded)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "._-")
}

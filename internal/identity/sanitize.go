package identity

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// LoginDomain is appended to sanitized login names to form the
// synthetic account address.
const LoginDomain = "connect.ro"

var whitespaceRun = regexp.MustCompile(`\s+`)

// stripDiacritics decomposes the string and drops combining marks, so
// "Ștefan Ilieș" becomes "Stefan Ilies". Falls back to the input when
// the transform fails.
func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// SanitizeLoginName lowercases the name, strips diacritics and
// collapses whitespace runs into single dots.
func SanitizeLoginName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = stripDiacritics(s)
	return whitespaceRun.ReplaceAllString(s, ".")
}

// EmailForName maps a display name onto its synthetic account address,
// e.g. "Ana Maria" -> "ana.maria@connect.ro".
func EmailForName(name string) string {
	return SanitizeLoginName(name) + "@" + LoginDomain
}

// Package slug turns tenant names into URL path segments.
package slug

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxLen = 63

var (
	ErrInvalid = errors.New("invalid slug")

	nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)
	valid    = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]*[a-z0-9])?$`)
)

// Make strips accents, lowercases and joins words with single hyphens.
// "Barbearia São João" becomes "barbearia-sao-joao".
func Make(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	s := nonAlnum.ReplaceAllString(strings.ToLower(folded), "-")
	s = strings.Trim(s, "-")
	if len(s) > maxLen {
		s = strings.TrimRight(s[:maxLen], "-")
	}
	return s
}

// Normalize canonicalises user input such as a slug typed into a login form.
func Normalize(raw string) (string, error) {
	s := Make(strings.TrimSpace(raw))
	if !Valid(s) {
		return "", ErrInvalid
	}
	return s, nil
}

func Valid(s string) bool {
	return len(s) >= 2 && len(s) <= maxLen && valid.MatchString(s)
}

// Package normalize canonicalizes person and organization names so that
// different spellings of the same identity compare equal.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	parenthetical = regexp.MustCompile(`\([^)]*\)`)
	initial       = regexp.MustCompile(`(^|[^\p{L}\p{N}])\p{L}\.`)
	nonWord       = regexp.MustCompile(`[^\p{L}\p{N}]+`)
)

// suffixes that follow a comma without inverting the name
var commaSuffixes = map[string]bool{
	"jr": true, "sr": true, "ii": true, "iii": true, "iv": true,
	"inc": true, "co": true, "ltd": true, "llc": true, "the elder": true, "the younger": true,
}

// honorifics dropped from the front of a name
var honorifics = map[string]bool{
	"professor": true, "prof": true, "sir": true, "dame": true, "dr": true,
	"mr": true, "mrs": true, "ms": true, "rev": true,
}

// Name returns the comparable form of a raw name. "Picasso, Pablo" and
// "Pablo Picasso" both become "pablo picasso".
func Name(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	if stripped := strings.TrimSpace(parenthetical.ReplaceAllString(s, " ")); stripped != "" {
		s = stripped
	}

	s = invert(s)
	s = Fold(s)
	s = strings.ReplaceAll(s, "&", " ")
	// Leading space lets the initial pattern anchor on the first token.
	// Matches consume their separator, so "j.m.w." needs repeated passes.
	s = " " + s
	for {
		next := initial.ReplaceAllString(s, "$1 ")
		if next == s {
			break
		}
		s = next
	}
	tokens := strings.Fields(nonWord.ReplaceAllString(s, " "))
	for len(tokens) > 1 && honorifics[tokens[0]] {
		tokens = tokens[1:]
	}
	return strings.Join(tokens, " ")
}

// Equal reports whether two raw names normalize identically.
func Equal(a, b string) bool {
	na := Name(a)
	return na != "" && na == Name(b)
}

// invert turns "Last, First" into "First Last".
func invert(s string) string {
	if strings.Count(s, ",") != 1 {
		return s
	}
	last, first, _ := strings.Cut(s, ",")
	last = strings.TrimSpace(last)
	first = strings.TrimSpace(first)
	if last == "" || first == "" {
		return strings.TrimSpace(last + " " + first)
	}
	if commaSuffixes[strings.Trim(strings.ToLower(first), ". ")] {
		return last + " " + first
	}
	return first + " " + last
}

// Fold lower-cases s and strips diacritics.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// Tokens splits s into folded word tokens.
func Tokens(s string) []string {
	return strings.Fields(nonWord.ReplaceAllString(Fold(s), " "))
}

// Slug joins the folded tokens of s with dashes.
func Slug(s string) string {
	return strings.Join(Tokens(s), "-")
}

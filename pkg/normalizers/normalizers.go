// Package normalizers provides string normalization for source attributes and candidate properties
package normalizers

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("nfkc", NFKC)
	Register("casefold", Casefold)
	Register("collapse_whitespace", CollapseWhitespace)
	Register("remove_punctuation", RemovePunctuation)
	Register("capitalize", Capitalize)
	Register("title", Title)
	Register("nlabel", NormalizeLabel)
	Register("family_name", HarmonizeFamilyName)
	Register("given_name", HarmonizeGivenName)
	Register("strip_previous_name", StripPreviousName)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value. Unknown names leave the value unchanged.
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// NFKC applies Unicode compatibility composition
func NFKC(s string) string {
	return norm.NFKC.String(s)
}

// Casefold folds case for caseless comparison.
// Casers are stateful, so one is built per call.
func Casefold(s string) string {
	return cases.Fold().String(s)
}

// CollapseWhitespace replaces whitespace runs with a single space and trims
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// RemovePunctuation removes all punctuation characters
func RemovePunctuation(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsPunct(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Capitalize upper-cases the first letter and lower-cases the rest
func Capitalize(s string) string {
	runes := []rune(strings.ToLower(s))
	if len(runes) == 0 {
		return s
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// Title converts every word to title case
func Title(s string) string {
	return cases.Title(language.Finnish).String(s)
}

// NormalizeLabel is the comparison form of a catalog or source label:
// NFKC, case folded, whitespace collapsed.
func NormalizeLabel(s string) string {
	return CollapseWhitespace(Casefold(NFKC(s)))
}

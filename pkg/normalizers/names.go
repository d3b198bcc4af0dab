package normalizers

import (
	"regexp"
	"strings"
)

var (
	zeroInWordRe     = regexp.MustCompile(`([\p{L}])0([\p{L}])`)
	previousMarkerRe = regexp.MustCompile(`([\p{L}\p{N}_]{2} +)(E(?:NT)?\.)\s?([\p{L}\p{N}_]+)`)
	previousNameRe   = regexp.MustCompile(`\(ent\.\s*(.+)\)`)
)

// HarmonizeFamilyName unifies a family name to the catalog form "Lastname (ent. Previous)".
// OCR zeros inside words become O, % becomes / and the result is title cased.
func HarmonizeFamilyName(s string) string {
	s = zeroInWordRe.ReplaceAllString(s, "${1}O${2}")
	s = CollapseWhitespace(s)
	s = strings.ReplaceAll(s, "%", "/")
	s = previousMarkerRe.ReplaceAllString(s, "${1}(ent. ${3})")
	s = Title(s)
	s = strings.ReplaceAll(s, "(Ent.", "(ent.")
	return strings.ReplaceAll(s, "Von", "von")
}

// HarmonizeGivenName title cases given names and replaces % with /
func HarmonizeGivenName(s string) string {
	return strings.ReplaceAll(Title(CollapseWhitespace(s)), "%", "/")
}

// StripPreviousName drops the "(ent. X)" wrapper, keeping the previous name inline
func StripPreviousName(s string) string {
	return CollapseWhitespace(previousNameRe.ReplaceAllString(s, "$1"))
}

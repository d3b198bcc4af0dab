package normalizers

import (
	"regexp"
	"strings"
)

// ListSeparator joins multi-valued label lists in candidate properties
const ListSeparator = " || "

var (
	typedLiteralRe = regexp.MustCompile(`^"(.*)"(?:\^\^<?[^>]*>?|@[A-Za-z\-]+)?$`)
	singleQuotedRe = regexp.MustCompile(`^'(.*)'$`)
)

// CleanLiteral strips quoting artifacts from a raw property value:
// surrounding quotes, datatype or language suffixes and URI angle brackets.
func CleanLiteral(raw string) string {
	s := strings.TrimSpace(raw)
	if m := typedLiteralRe.FindStringSubmatch(s); m != nil {
		s = m[1]
	} else if m := singleQuotedRe.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	if strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">") {
		s = s[1 : len(s)-1]
	}
	return strings.TrimSpace(s)
}

// SplitList cleans raw values and expands " || " joined label lists
func SplitList(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		for _, part := range strings.Split(r, strings.TrimSpace(ListSeparator)) {
			if v := CleanLiteral(part); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

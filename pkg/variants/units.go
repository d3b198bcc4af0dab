package variants

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var bareNumberRe = regexp.MustCompile(`^\d+\.?$`)

// UnitExpander generates the abbreviation renderings of a military unit designation,
// e.g. "3./JR 1" -> "3/JR1", "3./JR. 1.", "JR 1", ...
type UnitExpander struct {
	abbreviations []abbreviation
}

// abbreviation is one dictionary token with its whole-token pattern
type abbreviation struct {
	token        string
	pattern      *regexp.Regexp
	replacements []string
}

// NewUnitExpander creates a unit expander with an optional token abbreviation dictionary
func NewUnitExpander(abbreviations map[string][]string) *UnitExpander {
	keys := make([]string, 0, len(abbreviations))
	for k := range abbreviations {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	e := &UnitExpander{abbreviations: make([]abbreviation, 0, len(keys))}
	for _, key := range keys {
		e.abbreviations = append(e.abbreviations, abbreviation{
			token:        key,
			pattern:      regexp.MustCompile(`(^|[^\p{L}\p{N}_])` + regexp.QuoteMeta(key) + `([^\p{L}\p{N}_]|$)`),
			replacements: append([]string(nil), abbreviations[key]...),
		})
	}
	return e
}

// Expand returns every joiner combination across slash-delimited parts plus each part on its own.
// Bare numeric tokens are dropped since they match too much. Input that is itself a bare number
// is returned as-is, only so that non-empty input never expands to nothing.
func (e *UnitExpander) Expand(raw string) []string {
	out := make(set)
	for _, input := range e.renderings(raw) {
		for _, v := range expandUnit(input) {
			if !bareNumberRe.MatchString(v) {
				out.add(v)
			}
		}
	}
	return orRaw(out.sorted(), raw)
}

// renderings returns the raw input plus one rendering per dictionary substitution
func (e *UnitExpander) renderings(raw string) []string {
	renderings := []string{raw}
	if len(e.abbreviations) == 0 {
		return renderings
	}

	tokens := splitTokens(raw)
	for _, a := range e.abbreviations {
		if !containsToken(tokens, a.token) {
			continue
		}
		for _, replacement := range a.replacements {
			renderings = append(renderings, a.pattern.ReplaceAllString(raw, "${1}"+replacement+"${2}"))
		}
	}
	return renderings
}

func expandUnit(raw string) []string {
	parts := strings.Split(raw, "/")
	variations := make([][]string, len(parts))
	for i, part := range parts {
		variations[i] = append(joinerVariations(part), part)
	}

	out := make(set)
	combineParts(variations, 0, make([]string, len(parts)), out)
	for _, list := range variations {
		for _, v := range list {
			out.add(strings.TrimSpace(v))
		}
	}
	return out.sorted()
}

// combineParts walks the cartesian product of per-part variations
func combineParts(variations [][]string, idx int, current []string, out set) {
	if idx == len(variations) {
		joined := strings.TrimSpace(strings.Join(current, "/"))
		out.add(strings.ReplaceAll(joined, " /", "/"))
		return
	}
	for _, v := range variations[idx] {
		current[idx] = v
		combineParts(variations, idx+1, current, out)
	}
}

// joinerVariations joins the part's tokens plus a trailing empty token with each joiner
func joinerVariations(part string) []string {
	inner := append(splitTokens(part), "")
	return []string{
		strings.Join(inner, "."),
		strings.Join(inner, ". "),
		strings.Join(inner, " "),
		strings.Join(inner, ""),
	}
}

// splitTokens returns runs of word characters, further split at lower-to-upper case transitions
func splitTokens(s string) []string {
	var tokens []string
	var current []rune
	var prev rune

	flush := func() {
		if len(current) > 0 {
			tokens = append(tokens, string(current))
			current = current[:0]
		}
	}

	for _, r := range s {
		if !isWordRune(r) {
			flush()
			prev = 0
			continue
		}
		if len(current) > 0 && unicode.IsLower(prev) && unicode.IsUpper(r) {
			flush()
		}
		current = append(current, r)
		prev = r
	}
	flush()

	return tokens
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func containsToken(tokens []string, token string) bool {
	for _, t := range tokens {
		if t == token {
			return true
		}
	}
	return false
}

package variants

import "github.com/Ramsey-B/fern/pkg/normalizers"

// TextExpander handles plain labels such as ranks, occupations and burial sites
type TextExpander struct {
	corrections map[string]string
}

// NewTextExpander creates a text expander with a misspelling correction table
func NewTextExpander(corrections map[string]string) *TextExpander {
	normalized := make(map[string]string, len(corrections))
	for wrong, right := range corrections {
		normalized[normalizers.NormalizeLabel(wrong)] = right
	}
	return &TextExpander{corrections: normalized}
}

// Expand returns the cleaned label and its capitalized form, after applying corrections
func (e *TextExpander) Expand(raw string) []string {
	label := normalizers.CollapseWhitespace(normalizers.NFKC(raw))
	if corrected, ok := e.corrections[normalizers.NormalizeLabel(label)]; ok {
		label = corrected
	}

	out := make(set)
	out.add(label, normalizers.Capitalize(label))
	return orRaw(out.sorted(), raw)
}

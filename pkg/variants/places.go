package variants

import (
	"sort"
	"strings"

	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// DefaultSuffixes is the fallback substitution applied when a direct label lookup fails
func DefaultSuffixes() map[string]string {
	return map[string]string{" kunta": " mlk"}
}

// PlaceExpander splits slash-separated place labels and derives suffix fallbacks.
// Historical aliases resolve straight to a catalog ID.
type PlaceExpander struct {
	aliases  map[string]string
	suffixes map[string]string
	order    []string
}

// NewPlaceExpander creates a place expander from an alias table and suffix substitutions
func NewPlaceExpander(aliases map[string]string, suffixes map[string]string) *PlaceExpander {
	if suffixes == nil {
		suffixes = DefaultSuffixes()
	}

	normalized := make(map[string]string, len(aliases))
	for label, id := range aliases {
		normalized[normalizers.NormalizeLabel(label)] = id
	}

	order := make([]string, 0, len(suffixes))
	for suffix := range suffixes {
		order = append(order, suffix)
	}
	sort.Strings(order)

	return &PlaceExpander{
		aliases:  normalized,
		suffixes: copyMap(suffixes),
		order:    order,
	}
}

// Labels splits a raw value on "/" into trimmed, unique labels in input order
func (e *PlaceExpander) Labels(raw string) []string {
	seen := make(set)
	var labels []string
	for _, part := range strings.Split(raw, "/") {
		label := normalizers.CollapseWhitespace(part)
		if label == "" {
			continue
		}
		if _, dup := seen[label]; dup {
			continue
		}
		seen.add(label)
		labels = append(labels, label)
	}
	return labels
}

// Alias returns the catalog ID of a known historical label
func (e *PlaceExpander) Alias(label string) (string, bool) {
	id, ok := e.aliases[normalizers.NormalizeLabel(label)]
	return id, ok
}

// Fallbacks returns the suffix-substituted forms of a label, in a stable order
func (e *PlaceExpander) Fallbacks(label string) []string {
	var out []string
	for _, suffix := range e.order {
		if strings.HasSuffix(label, suffix) {
			out = append(out, strings.TrimSuffix(label, suffix)+e.suffixes[suffix])
		}
	}
	return out
}

// Expand returns every label and its fallbacks
func (e *PlaceExpander) Expand(raw string) []string {
	out := make(set)
	for _, label := range e.Labels(raw) {
		out.add(label)
		out.add(e.Fallbacks(label)...)
	}
	return orRaw(out.sorted(), raw)
}

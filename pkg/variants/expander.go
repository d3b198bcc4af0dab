// Package variants expands noisy text attributes into the set of strings worth querying
package variants

import (
	"sort"
	"strings"
)

// Expander turns one raw attribute value into a set of query variants.
// Implementations are deterministic and return a sorted slice without duplicates.
type Expander interface {
	Expand(raw string) []string
}

// Kind names an expander implementation in configuration
type Kind string

const (
	KindUnit  Kind = "unit"
	KindPlace Kind = "place"
	KindText  Kind = "text"
)

// Tables holds the immutable lookup data injected into expanders
type Tables struct {
	// Abbreviations maps a whole unit token to alternative spellings
	Abbreviations map[string][]string
	// Aliases maps a historical place label to a catalog ID
	Aliases map[string]string
	// Suffixes maps a label suffix to its fallback replacement
	Suffixes map[string]string
	// Corrections maps known misspellings to their corrected form
	Corrections map[string]string
}

// New builds the expander for a kind. Unknown kinds fall back to the text expander.
func New(kind Kind, tables Tables) Expander {
	switch kind {
	case KindUnit:
		return NewUnitExpander(tables.Abbreviations)
	case KindPlace:
		return NewPlaceExpander(tables.Aliases, tables.Suffixes)
	default:
		return NewTextExpander(tables.Corrections)
	}
}

// set collects unique non-empty strings
type set map[string]struct{}

func (s set) add(values ...string) {
	for _, v := range values {
		if v != "" {
			s[v] = struct{}{}
		}
	}
}

func (s set) sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// orRaw guarantees a non-empty result for non-empty input
func orRaw(values []string, raw string) []string {
	if len(values) > 0 || raw == "" {
		return values
	}
	if trimmed := strings.TrimSpace(raw); trimmed != "" {
		return []string{trimmed}
	}
	return []string{raw}
}

func copyMap[V any](in map[string]V) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

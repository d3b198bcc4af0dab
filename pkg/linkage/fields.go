// Package linkage links source person records to a person catalog with a trained pairwise classifier
package linkage

import (
	"sort"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/catalog"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// FieldValue is one attribute of a person as compared by the linker
type FieldValue struct {
	Values []string
	// End closes interval fields
	End []string
}

// Empty reports whether the field carries nothing to compare
func (v FieldValue) Empty() bool {
	return len(v.Values) == 0 && len(v.End) == 0
}

// Person is an attribute-normalized record in one of the two dictionaries
type Person struct {
	ID     string
	Fields map[string]FieldValue
	// Block is the blocking key; pairs are only compared within a block
	Block string
}

// Dictionary maps record IDs to people
type Dictionary map[string]Person

// IDs returns the dictionary keys in sorted order
func (d Dictionary) IDs() []string {
	ids := make([]string, 0, len(d))
	for id := range d {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// collector builds people from source records and catalog entries
type collector struct {
	fields   []config.LinkerField
	blocking string
	catalogs catalog.Set
}

func (c collector) fromRecord(r models.SourceRecord) Person {
	p := Person{ID: r.ID, Fields: make(map[string]FieldValue, len(c.fields))}
	for _, f := range c.fields {
		value := FieldValue{Values: r.Values(f.Attribute)}
		if f.EndAttribute != "" {
			value.End = r.Values(f.EndAttribute)
		}
		// Linked fields only carry resolved values; an unresolved one stays missing
		if f.Link != "" {
			linked, _ := c.linkedValues(r, f)
			value = FieldValue{Values: linked}
		}
		p.Fields[f.Name] = normalizeField(f, value)
	}
	p.Block = c.block(r.Values(c.blocking))
	return p
}

func (c collector) linkedValues(r models.SourceRecord, f config.LinkerField) ([]string, bool) {
	link, ok := r.LinkFor(f.Link)
	if !ok {
		return nil, false
	}
	if f.LinkProperty == "" {
		return []string{link.TargetID}, true
	}
	cat, ok := c.catalogs.Get(f.Link)
	if !ok {
		return nil, false
	}
	entry, ok := cat.Get(link.TargetID)
	if !ok {
		return nil, false
	}
	values, ok := entry.Candidate().Property(f.LinkProperty)
	return values, ok
}

func (c collector) fromEntry(e catalog.Entry) Person {
	props := e.Candidate().Properties
	p := Person{ID: e.ID, Fields: make(map[string]FieldValue, len(c.fields))}
	for _, f := range c.fields {
		value := FieldValue{Values: props[f.Attribute]}
		if f.EndAttribute != "" {
			value.End = props[f.EndAttribute]
		}
		p.Fields[f.Name] = normalizeField(f, value)
	}
	p.Block = c.block(props[c.blocking])
	return p
}

func (c collector) block(values []string) string {
	for _, v := range values {
		if code := matching.Soundex(normalizers.StripPreviousName(normalizers.CleanLiteral(v))); code != "" {
			return code
		}
	}
	return ""
}

// normalizeField cleans quoting artifacts and, for strings, case and previous-name markers.
// Placeholder values listed as unknown are dropped.
func normalizeField(f config.LinkerField, v FieldValue) FieldValue {
	unknown := make(map[string]bool, len(f.UnknownValues))
	for _, u := range f.UnknownValues {
		unknown[normalizers.NormalizeLabel(u)] = true
	}
	clean := func(values []string) []string {
		out := make([]string, 0, len(values))
		for _, raw := range normalizers.SplitList(values) {
			if unknown[normalizers.NormalizeLabel(raw)] {
				continue
			}
			if f.Comparator == config.ComparatorString {
				raw = normalizers.NormalizeLabel(normalizers.StripPreviousName(raw))
			}
			if raw != "" {
				out = append(out, raw)
			}
		}
		return out
	}
	return FieldValue{Values: clean(v.Values), End: clean(v.End)}
}

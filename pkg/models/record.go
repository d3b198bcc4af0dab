package models

import "strings"

// SourceRecord is one entity to be resolved, e.g. one casualty entry.
// Attribute values are kept as raw strings; rules interpret them per their declared comparison type.
type SourceRecord struct {
	ID         string              `json:"id" validate:"required"`
	Attributes map[string][]string `json:"attributes"`
	Links      []Link              `json:"links,omitempty"`
}

// NewSourceRecord builds a record, dropping blank values so that absence always means unknown
func NewSourceRecord(id string, attributes map[string][]string) SourceRecord {
	attrs := make(map[string][]string, len(attributes))
	for name, values := range attributes {
		kept := make([]string, 0, len(values))
		for _, v := range values {
			if strings.TrimSpace(v) != "" {
				kept = append(kept, v)
			}
		}
		if len(kept) > 0 {
			attrs[name] = kept
		}
	}
	return SourceRecord{ID: id, Attributes: attrs}
}

// Value returns the first non-blank value of an attribute
func (r SourceRecord) Value(name string) (string, bool) {
	for _, v := range r.Attributes[name] {
		if v = strings.TrimSpace(v); v != "" {
			return v, true
		}
	}
	return "", false
}

// Values returns all non-blank values of an attribute
func (r SourceRecord) Values(name string) []string {
	out := make([]string, 0, len(r.Attributes[name]))
	for _, v := range r.Attributes[name] {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Has reports whether the attribute has at least one non-blank value
func (r SourceRecord) Has(name string) bool {
	_, ok := r.Value(name)
	return ok
}

// With returns a copy of the record with values appended to an attribute.
// The receiver is left untouched.
func (r SourceRecord) With(name string, values ...string) SourceRecord {
	out := r.clone()
	out.Attributes[name] = append(out.Attributes[name], values...)
	return out
}

// WithLink returns a copy of the record with a resolved link appended
func (r SourceRecord) WithLink(link Link) SourceRecord {
	out := r.clone()
	out.Links = append(out.Links, link)
	return out
}

func (r SourceRecord) clone() SourceRecord {
	attrs := make(map[string][]string, len(r.Attributes)+1)
	for k, v := range r.Attributes {
		attrs[k] = append([]string(nil), v...)
	}
	return SourceRecord{ID: r.ID, Attributes: attrs, Links: append([]Link(nil), r.Links...)}
}

// LinkFor returns the record's existing link for an entity type, if any
func (r SourceRecord) LinkFor(entityType EntityType) (Link, bool) {
	for _, l := range r.Links {
		if l.EntityType == entityType {
			return l, true
		}
	}
	return Link{}, false
}

// CandidateRecord is one entity returned by a remote lookup or a catalog.
// A missing property key means unknown, not empty.
type CandidateRecord struct {
	ID         string              `json:"id"`
	Properties map[string][]string `json:"properties"`
	Score      float64             `json:"score,omitempty"`
}

// Property returns the raw values of a candidate property
func (c CandidateRecord) Property(name string) ([]string, bool) {
	values, ok := c.Properties[name]
	if !ok || len(values) == 0 {
		return nil, false
	}
	return values, true
}

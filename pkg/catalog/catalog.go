// Package catalog holds the read-only reference catalogs records are resolved against
package catalog

import (
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// Entry is one reference entity
type Entry struct {
	ID     string   `yaml:"id" json:"id" validate:"required"`
	Labels []string `yaml:"labels" json:"labels"`
	// Level is the seniority of a rank
	Level *int `yaml:"level,omitempty" json:"level,omitempty"`
	// Current and Wartime name a municipality before and after the 1940s border changes
	Current string `yaml:"current,omitempty" json:"current,omitempty"`
	Wartime string `yaml:"wartime,omitempty" json:"wartime,omitempty"`
	// Attributes carry person fields for the probabilistic linker
	Attributes map[string][]string `yaml:"attributes,omitempty" json:"attributes,omitempty"`
}

// AllLabels returns the entry's labels plus its municipality names
func (e Entry) AllLabels() []string {
	labels := append([]string(nil), e.Labels...)
	for _, name := range []string{e.Current, e.Wartime} {
		if name != "" {
			labels = append(labels, name)
		}
	}
	return labels
}

// Candidate renders the entry as a candidate record
func (e Entry) Candidate() models.CandidateRecord {
	props := make(map[string][]string, len(e.Attributes)+4)
	for k, v := range e.Attributes {
		props[k] = append([]string(nil), v...)
	}
	if labels := e.AllLabels(); len(labels) > 0 {
		props["label"] = labels
	}
	if e.Level != nil {
		props["level"] = []string{strconv.Itoa(*e.Level)}
	}
	if e.Current != "" {
		props["current"] = []string{e.Current}
	}
	if e.Wartime != "" {
		props["wartime"] = []string{e.Wartime}
	}
	return models.CandidateRecord{ID: e.ID, Properties: props}
}

// Catalog is an immutable, label-indexed set of entries
type Catalog struct {
	entityType models.EntityType
	entries    []Entry
	byID       map[string]int
	byLabel    map[string][]int
}

// New indexes entries by ID and by normalized label
func New(entityType models.EntityType, entries []Entry) (*Catalog, error) {
	c := &Catalog{
		entityType: entityType,
		entries:    make([]Entry, 0, len(entries)),
		byID:       make(map[string]int, len(entries)),
		byLabel:    make(map[string][]int),
	}

	for _, entry := range entries {
		if entry.ID == "" {
			return nil, errors.Errorf("%s catalog entry without id", entityType)
		}
		if _, dup := c.byID[entry.ID]; dup {
			return nil, errors.Errorf("duplicate %s catalog entry %s", entityType, entry.ID)
		}

		idx := len(c.entries)
		c.entries = append(c.entries, entry)
		c.byID[entry.ID] = idx

		seen := make(map[string]bool)
		for _, label := range entry.AllLabels() {
			key := normalizers.NormalizeLabel(label)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			c.byLabel[key] = append(c.byLabel[key], idx)
		}
	}

	return c, nil
}

// EntityType returns the catalog's entity type
func (c *Catalog) EntityType() models.EntityType {
	return c.entityType
}

// Len returns the number of entries
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Entries returns a copy of all entries in load order
func (c *Catalog) Entries() []Entry {
	return append([]Entry(nil), c.entries...)
}

// Get returns an entry by ID
func (c *Catalog) Get(id string) (Entry, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return Entry{}, false
	}
	return c.entries[idx], true
}

// Lookup returns the entries whose label matches after normalization, ordered by ID
func (c *Catalog) Lookup(label string) []Entry {
	idxs := c.byLabel[normalizers.NormalizeLabel(label)]
	out := make([]Entry, 0, len(idxs))
	for _, idx := range idxs {
		out = append(out, c.entries[idx])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Level returns the seniority level of an entry given its ID or one of its labels
func (c *Catalog) Level(idOrLabel string) (int, bool) {
	if entry, ok := c.Get(idOrLabel); ok && entry.Level != nil {
		return *entry.Level, true
	}
	matches := c.Lookup(idOrLabel)
	if len(matches) == 1 && matches[0].Level != nil {
		return *matches[0].Level, true
	}
	return 0, false
}

// Set groups the catalogs loaded for a run
type Set map[models.EntityType]*Catalog

// Get returns the catalog for an entity type, if loaded
func (s Set) Get(entityType models.EntityType) (*Catalog, bool) {
	c, ok := s[entityType]
	return c, ok && c != nil
}

package candidates

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/catalog"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/variants"
)

// Source produces the candidate set for one record from its query variants
type Source interface {
	Candidates(ctx context.Context, record models.SourceRecord, variants []string) ([]models.CandidateRecord, error)
}

// Preparer is implemented by sources that batch lookups for a whole pass up front
type Preparer interface {
	Prepare(ctx context.Context, records []models.SourceRecord) error
}

// Querier is the free-text side of the remote client
type Querier interface {
	Query(ctx context.Context, text string) ([]models.CandidateRecord, error)
}

// Grouper is the batched structured side of the remote client
type Grouper interface {
	QueryGrouped(ctx context.Context, template, keyVar string, keys []string) (map[string][]models.CandidateRecord, error)
}

// RemoteSource asks the candidate service once per variant, or once for all
// variants joined by JoinSeparator when it is set.
type RemoteSource struct {
	Client        Querier
	JoinSeparator string
}

func (s *RemoteSource) Candidates(ctx context.Context, _ models.SourceRecord, variants []string) ([]models.CandidateRecord, error) {
	if len(variants) == 0 {
		return nil, nil
	}
	if s.JoinSeparator != "" {
		return s.Client.Query(ctx, strings.Join(variants, s.JoinSeparator))
	}

	var merged []models.CandidateRecord
	for _, v := range variants {
		records, err := s.Client.Query(ctx, v)
		if err != nil {
			return nil, err
		}
		merged = append(merged, records...)
	}
	return dedupe(merged), nil
}

// CatalogSource looks variants up in an in-memory catalog by normalized label
type CatalogSource struct {
	Catalog *catalog.Catalog
}

func (s *CatalogSource) Candidates(_ context.Context, _ models.SourceRecord, variants []string) ([]models.CandidateRecord, error) {
	var out []models.CandidateRecord
	for _, v := range variants {
		for _, entry := range s.Catalog.Lookup(v) {
			out = append(out, entry.Candidate())
		}
	}
	return dedupe(out), nil
}

// AliasSource resolves place labels in order: alias table, catalog label, suffix fallback.
// Each "/"-separated label stops at the first step that finds anything. Every candidate
// carries the source labels that resolved to it in its MatchedProperty.
type AliasSource struct {
	Places    *variants.PlaceExpander
	Catalog   *catalog.Catalog
	Attribute string
	Logger    ectologger.Logger
}

// MatchedProperty is the candidate property listing the source labels an AliasSource resolved
const MatchedProperty = "matched"

func (s *AliasSource) Candidates(ctx context.Context, record models.SourceRecord, _ []string) ([]models.CandidateRecord, error) {
	byID := make(map[string]models.CandidateRecord)
	var order []string
	for _, raw := range record.Values(s.Attribute) {
		for _, label := range s.Places.Labels(raw) {
			found := s.resolveLabel(label)
			if len(found) > 1 {
				s.Logger.WithContext(ctx).WithFields(map[string]any{
					"record_id": record.ID,
					"label":     label,
					"matches":   len(found),
				}).Warn("Place label matches several municipalities")
			}
			for _, c := range found {
				existing, seen := byID[c.ID]
				if !seen {
					existing = c
					order = append(order, c.ID)
				}
				existing.Properties[MatchedProperty] = append(existing.Properties[MatchedProperty], label)
				byID[c.ID] = existing
			}
		}
	}

	out := make([]models.CandidateRecord, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return dedupe(out), nil
}

func (s *AliasSource) resolveLabel(label string) []models.CandidateRecord {
	if id, ok := s.Places.Alias(label); ok {
		if entry, ok := s.Catalog.Get(id); ok {
			return []models.CandidateRecord{entry.Candidate()}
		}
		return []models.CandidateRecord{{ID: id, Properties: map[string][]string{"label": {label}}}}
	}

	lookups := append([]string{label}, s.Places.Fallbacks(label)...)
	for _, l := range lookups {
		entries := s.Catalog.Lookup(l)
		if len(entries) == 0 {
			continue
		}
		out := make([]models.CandidateRecord, len(entries))
		for i, e := range entries {
			out[i] = e.Candidate()
		}
		return out
	}
	return nil
}

// GroupedSource fetches candidates for every record's key attribute in batched
// structured queries during Prepare, then serves them per record.
type GroupedSource struct {
	Client Grouper
	// Template is a structured query with a {{values}} placeholder
	Template string
	// KeyAttribute is the record attribute holding the lookup key, e.g. a unit cover code
	KeyAttribute string
	// KeyVar is the binding that carries the key in each result row
	KeyVar string

	mu      sync.RWMutex
	fetched map[string][]models.CandidateRecord
}

func (s *GroupedSource) Prepare(ctx context.Context, records []models.SourceRecord) error {
	var keys []string
	for _, r := range records {
		keys = append(keys, r.Values(s.KeyAttribute)...)
	}
	return s.fetch(ctx, keys)
}

func (s *GroupedSource) Candidates(ctx context.Context, record models.SourceRecord, _ []string) ([]models.CandidateRecord, error) {
	keys := record.Values(s.KeyAttribute)
	if len(keys) == 0 {
		return nil, nil
	}

	var missing []string
	s.mu.RLock()
	for _, k := range keys {
		if _, ok := s.fetched[k]; !ok {
			missing = append(missing, k)
		}
	}
	s.mu.RUnlock()

	if len(missing) > 0 {
		if err := s.fetch(ctx, missing); err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.CandidateRecord
	for _, k := range keys {
		out = append(out, s.fetched[k]...)
	}
	return dedupe(out), nil
}

func (s *GroupedSource) fetch(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	grouped, err := s.Client.QueryGrouped(ctx, s.Template, s.KeyVar, keys)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetched == nil {
		s.fetched = make(map[string][]models.CandidateRecord, len(keys))
	}
	// Keys without rows are remembered as empty so they are not queried again
	for _, k := range keys {
		s.fetched[strings.TrimSpace(k)] = grouped[strings.TrimSpace(k)]
	}
	return nil
}

// ChainSource tries sources in order and returns the first non-empty result
type ChainSource []Source

func (c ChainSource) Candidates(ctx context.Context, record models.SourceRecord, variants []string) ([]models.CandidateRecord, error) {
	for _, s := range c {
		records, err := s.Candidates(ctx, record, variants)
		if err != nil {
			return nil, err
		}
		if len(records) > 0 {
			return records, nil
		}
	}
	return nil, nil
}

func (c ChainSource) Prepare(ctx context.Context, records []models.SourceRecord) error {
	for _, s := range c {
		if p, ok := s.(Preparer); ok {
			if err := p.Prepare(ctx, records); err != nil {
				return err
			}
		}
	}
	return nil
}

// dedupe keeps the first occurrence of each candidate ID and orders by ID
func dedupe(records []models.CandidateRecord) []models.CandidateRecord {
	if len(records) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(records))
	out := make([]models.CandidateRecord, 0, len(records))
	for _, r := range records {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

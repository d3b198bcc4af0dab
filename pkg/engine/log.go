package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// DecisionLog is the append-only decision log of one pass. It is safe for concurrent appends.
type DecisionLog struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	seq      int
	decision models.MatchDecision
}

// Append records the decision of the record at input position seq
func (l *DecisionLog) Append(seq int, decision models.MatchDecision) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{seq: seq, decision: decision})
}

// Len returns the number of logged decisions
func (l *DecisionLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Decisions returns a copy of the log in input order
func (l *DecisionLog) Decisions() []models.MatchDecision {
	l.mu.Lock()
	entries := append([]logEntry(nil), l.entries...)
	l.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]models.MatchDecision, len(entries))
	for i, e := range entries {
		out[i] = e.decision
	}
	return out
}

// RunSummary reports one entity-type pass
type RunSummary struct {
	RunID      string                        `json:"run_id"`
	EntityType models.EntityType             `json:"entity_type"`
	StartedAt  time.Time                     `json:"started_at"`
	FinishedAt time.Time                     `json:"finished_at"`
	Records    int                           `json:"records"`
	Counts     map[models.DecisionStatus]int `json:"counts"`
	// Failed lists records aborted by a remote failure when the pass continues on error
	Failed    []string               `json:"failed,omitempty"`
	Skipped   []string               `json:"skipped,omitempty"`
	Decisions []models.MatchDecision `json:"-"`
}

func newSummary(runID string, entityType models.EntityType, records int) *RunSummary {
	return &RunSummary{
		RunID:      runID,
		EntityType: entityType,
		StartedAt:  time.Now().UTC(),
		Records:    records,
		Counts:     make(map[models.DecisionStatus]int),
	}
}

func (s *RunSummary) finish(decisions []models.MatchDecision) {
	s.Decisions = decisions
	for _, d := range decisions {
		s.Counts[d.Status]++
	}
	sort.Strings(s.Failed)
	s.FinishedAt = time.Now().UTC()
}

// Links returns the links implied by the accepted decisions
func (s *RunSummary) Links() []models.Link {
	var out []models.Link
	for _, d := range s.Decisions {
		if link, ok := d.Link(); ok {
			out = append(out, link)
		}
	}
	return out
}

package models

import "time"

// DecisionStatus is the outcome of resolving one source record
type DecisionStatus string

const (
	DecisionStatusAccepted     DecisionStatus = "accepted"
	DecisionStatusAmbiguous    DecisionStatus = "ambiguous"
	DecisionStatusRejected     DecisionStatus = "rejected"
	DecisionStatusNoCandidates DecisionStatus = "no_candidates"
)

// RuleDelta is one scoring rule's contribution to a candidate score
type RuleDelta struct {
	Rule  string  `json:"rule"`
	Delta float64 `json:"delta"`
}

// ScoredCandidate is a candidate with its aggregate score and per-rule explanation
type ScoredCandidate struct {
	Candidate   CandidateRecord `json:"candidate"`
	Score       float64         `json:"score"`
	Explanation []RuleDelta     `json:"explanation"`
}

// Alternative is a runner-up candidate retained for audit
type Alternative struct {
	CandidateID string  `json:"candidate_id"`
	Score       float64 `json:"score"`
}

// MatchDecision is the resolution outcome for one source record and entity type
type MatchDecision struct {
	ID           string         `json:"id"`
	RunID        string         `json:"run_id,omitempty"`
	RecordID     string         `json:"record_id"`
	EntityType   EntityType     `json:"entity_type"`
	Status       DecisionStatus `json:"status"`
	BestMatch    *string        `json:"best_match"`
	BestScore    *float64       `json:"best_score"`
	Alternatives []Alternative  `json:"alternatives"`
	Explanation  []RuleDelta    `json:"explanation,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Link returns the edge implied by an accepted decision
func (d MatchDecision) Link() (Link, bool) {
	if d.Status != DecisionStatusAccepted || d.BestMatch == nil {
		return Link{}, false
	}
	score := 0.0
	if d.BestScore != nil {
		score = *d.BestScore
	}
	return Link{
		RecordID:   d.RecordID,
		EntityType: d.EntityType,
		TargetID:   *d.BestMatch,
		Score:      score,
	}, true
}

// Link is a resolved edge from a source record to a catalog entity
type Link struct {
	RecordID   string     `json:"record_id"`
	EntityType EntityType `json:"entity_type"`
	TargetID   string     `json:"target_id"`
	Score      float64    `json:"score"`
}

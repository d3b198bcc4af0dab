package matching

import (
	"context"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Policy is the acceptance configuration of one entity type
type Policy struct {
	EntityType models.EntityType
	Threshold  float64
	// Margin is how far the best candidate must lead the runner-up to be accepted
	Margin float64
}

// Resolver turns a scored candidate set into a MatchDecision
type Resolver struct {
	logger ectologger.Logger
	now    func() time.Time
}

func NewResolver(logger ectologger.Logger) *Resolver {
	return &Resolver{logger: logger, now: time.Now}
}

// Resolve applies the threshold and the dominance check. Candidates are ordered by
// score descending, then ID ascending; scores equal to the threshold do not survive.
func (r *Resolver) Resolve(ctx context.Context, policy Policy, source models.SourceRecord, scored []models.ScoredCandidate) models.MatchDecision {
	decision := models.MatchDecision{
		ID:           uuid.NewString(),
		RecordID:     source.ID,
		EntityType:   policy.EntityType,
		Alternatives: []models.Alternative{},
		CreatedAt:    r.now().UTC(),
	}

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"record_id":   source.ID,
		"entity_type": policy.EntityType,
	})

	if len(scored) == 0 {
		decision.Status = models.DecisionStatusNoCandidates
		log.Warn("No candidates found")
		return decision
	}

	ordered := append([]models.ScoredCandidate(nil), scored...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Score != ordered[j].Score {
			return ordered[i].Score > ordered[j].Score
		}
		return ordered[i].Candidate.ID < ordered[j].Candidate.ID
	})

	survivors := 0
	for survivors < len(ordered) && ordered[survivors].Score > policy.Threshold {
		survivors++
	}

	top := ordered[0]
	decision.BestScore = &top.Score

	if survivors == 0 {
		decision.Status = models.DecisionStatusRejected
		decision.Alternatives = alternatives(ordered)
		log.WithFields(map[string]any{
			"best_score": top.Score,
			"threshold":  policy.Threshold,
		}).Debug("No candidate above threshold")
		return decision
	}

	id := top.Candidate.ID
	decision.BestMatch = &id
	decision.Explanation = top.Explanation
	decision.Alternatives = alternatives(ordered[1:survivors])

	if survivors == 1 || top.Score-ordered[1].Score > policy.Margin {
		decision.Status = models.DecisionStatusAccepted
		if survivors > 1 {
			log.WithFields(map[string]any{
				"best_match":   id,
				"best_score":   top.Score,
				"alternatives": decision.Alternatives,
			}).Warn("Several candidates above threshold, accepted the dominant one")
		}
		return decision
	}

	decision.Status = models.DecisionStatusAmbiguous
	log.WithFields(map[string]any{
		"best_match":   id,
		"best_score":   top.Score,
		"alternatives": decision.Alternatives,
	}).Warn("Ambiguous match")
	return decision
}

func alternatives(scored []models.ScoredCandidate) []models.Alternative {
	out := make([]models.Alternative, len(scored))
	for i, s := range scored {
		out[i] = models.Alternative{CandidateID: s.Candidate.ID, Score: s.Score}
	}
	return out
}

// Package matching scores candidates against a source record and resolves the scored set into a decision
package matching

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/catalog"
	"github.com/Ramsey-B/fern/pkg/models"
)

// UnanchoredRule names the up-front penalty for records without a temporal anchor
const UnanchoredRule = "unanchored"

// Scorer computes the compatibility of one candidate with one source record
type Scorer interface {
	Score(ctx context.Context, source models.SourceRecord, candidate models.CandidateRecord) models.ScoredCandidate
}

// RuleScorer sums independent rule deltas
type RuleScorer struct {
	logger            ectologger.Logger
	rules             []Rule
	anchors           []string
	unanchoredPenalty float64
}

// NewRuleScorer builds the rule pipeline of an entity model
func NewRuleScorer(model *config.EntityModel, catalogs catalog.Set, logger ectologger.Logger) (*RuleScorer, error) {
	rules := make([]Rule, 0, len(model.Rules))
	for _, rm := range model.Rules {
		rule, err := NewRule(rm, catalogs)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	return &RuleScorer{
		logger:            logger,
		rules:             rules,
		anchors:           model.Anchors,
		unanchoredPenalty: model.UnanchoredPenalty,
	}, nil
}

func (s *RuleScorer) Score(ctx context.Context, source models.SourceRecord, candidate models.CandidateRecord) models.ScoredCandidate {
	scored := models.ScoredCandidate{
		Candidate:   candidate,
		Explanation: make([]models.RuleDelta, 0, len(s.rules)+1),
	}

	if s.unanchoredPenalty > 0 && len(s.anchors) > 0 && !hasAny(source, s.anchors) {
		scored.Score -= s.unanchoredPenalty
		scored.Explanation = append(scored.Explanation, models.RuleDelta{Rule: UnanchoredRule, Delta: -s.unanchoredPenalty})
	}

	for _, rule := range s.rules {
		delta, err := rule.Score(source, candidate)
		if err != nil {
			level := s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"record_id":    source.ID,
				"candidate_id": candidate.ID,
				"rule":         rule.Name(),
			})
			if errors.Is(err, ErrStructural) {
				level.Debug("Rule skipped")
			} else {
				level.Warn("Rule failed")
			}
			delta = 0
		}
		scored.Score += delta
		scored.Explanation = append(scored.Explanation, models.RuleDelta{Rule: rule.Name(), Delta: delta})
	}

	return scored
}

// ScoreAll scores every candidate in order
func ScoreAll(ctx context.Context, scorer Scorer, source models.SourceRecord, candidates []models.CandidateRecord) []models.ScoredCandidate {
	out := make([]models.ScoredCandidate, len(candidates))
	for i, c := range candidates {
		out[i] = scorer.Score(ctx, source, c)
	}
	return out
}

func hasAny(source models.SourceRecord, attributes []string) bool {
	for _, a := range attributes {
		if source.Has(a) {
			return true
		}
	}
	return false
}

package matching

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/catalog"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// ErrStructural marks a candidate whose data a rule cannot use; the rule contributes zero
var ErrStructural = errors.New("structural data failure")

// Rule contributes one additive delta to a candidate score.
// A rule that cannot compare the two sides returns 0.
type Rule interface {
	Name() string
	Score(source models.SourceRecord, candidate models.CandidateRecord) (float64, error)
}

// NewRule builds a rule from its configuration. catalogs may be nil when no rule needs levels.
func NewRule(model config.RuleModel, catalogs catalog.Set) (Rule, error) {
	base := ruleBase{name: model.Name, source: model.Source, candidate: model.Candidate}

	switch model.Type {
	case config.RuleExact:
		r := &ExactRule{
			ruleBase:     base,
			bonus:        model.Bonus,
			penalty:      model.Penalty,
			rareBonus:    model.RareBonus,
			rareMinLevel: model.RareMinLevel,
			common:       labelSet(model.CommonValues),
			unknown:      labelSet(model.UnknownValues),
		}
		if model.RareMinLevel != nil {
			levels, ok := catalogs.Get(model.LevelCatalog)
			if !ok {
				return nil, errors.Errorf("rule %s: rare_min_level needs the %q catalog", model.Name, model.LevelCatalog)
			}
			r.levels = levels
		}
		return r, nil
	case config.RuleFuzzy:
		return &FuzzyRule{ruleBase: base, max: model.Bonus, minSimilarity: model.MinSimilarity}, nil
	case config.RuleDate:
		return &DateRule{
			ruleBase:      base,
			candidateEnd:  model.CandidateEnd,
			exactBonus:    model.Bonus,
			withinBonus:   model.WithinBonus,
			penalty:       model.Penalty,
			nearMissRatio: model.MinSimilarity,
		}, nil
	case config.RuleSet:
		return &SetRule{ruleBase: base, bonus: model.Bonus, split: model.Split}, nil
	default:
		return nil, errors.Errorf("rule %s: unknown type %q", model.Name, model.Type)
	}
}

type ruleBase struct {
	name      string
	source    string
	candidate string
}

func (r ruleBase) Name() string {
	return r.name
}

// candidateValues returns the cleaned, list-expanded values of a candidate property
func (r ruleBase) candidateValues(c models.CandidateRecord) ([]string, error) {
	raw, ok := c.Property(r.candidate)
	if !ok {
		return nil, errors.Wrapf(ErrStructural, "candidate %s has no %s", c.ID, r.candidate)
	}
	values := normalizers.SplitList(raw)
	if len(values) == 0 {
		return nil, errors.Wrapf(ErrStructural, "candidate %s has an empty %s", c.ID, r.candidate)
	}
	return values, nil
}

// ExactRule rewards equal categorical values and penalizes known, different ones
type ExactRule struct {
	ruleBase
	bonus        float64
	penalty      float64
	rareBonus    float64
	rareMinLevel *int
	levels       *catalog.Catalog
	common       map[string]bool
	unknown      map[string]bool
}

func (r *ExactRule) Score(source models.SourceRecord, candidate models.CandidateRecord) (float64, error) {
	src := r.known(source.Values(r.source))
	if len(src) == 0 {
		return 0, nil
	}
	values, err := r.candidateValues(candidate)
	if err != nil {
		return 0, err
	}
	cand := make(map[string]bool, len(values))
	for _, v := range r.known(values) {
		cand[v.key] = true
	}
	if len(cand) == 0 {
		return 0, nil
	}

	for _, v := range src {
		if cand[v.key] {
			if r.isRare(v.key, v.raw) {
				return r.bonus + r.rareBonus, nil
			}
			return r.bonus, nil
		}
	}
	return -r.penalty, nil
}

type keyedValue struct {
	key string
	raw string
}

// known normalizes values in order, dropping unknown placeholders
func (r *ExactRule) known(values []string) []keyedValue {
	out := make([]keyedValue, 0, len(values))
	for _, v := range values {
		key := normalizers.NormalizeLabel(normalizers.CleanLiteral(v))
		if key == "" || r.unknown[key] {
			continue
		}
		out = append(out, keyedValue{key: key, raw: v})
	}
	return out
}

func (r *ExactRule) isRare(key, raw string) bool {
	if r.rareBonus == 0 {
		return false
	}
	if r.levels != nil && r.rareMinLevel != nil {
		level, ok := r.levels.Level(normalizers.CleanLiteral(raw))
		return ok && level >= *r.rareMinLevel
	}
	if len(r.common) > 0 {
		return !r.common[key]
	}
	return false
}

// FuzzyRule scales linearly from 0 at minSimilarity to max at an identical string
type FuzzyRule struct {
	ruleBase
	max           float64
	minSimilarity float64
}

func (r *FuzzyRule) Score(source models.SourceRecord, candidate models.CandidateRecord) (float64, error) {
	src := source.Values(r.source)
	if len(src) == 0 {
		return 0, nil
	}
	values, err := r.candidateValues(candidate)
	if err != nil {
		return 0, err
	}

	best := 0.0
	for _, s := range src {
		s = normalizers.NormalizeLabel(s)
		for _, c := range values {
			best = max(best, Ratio(s, normalizers.NormalizeLabel(c)))
		}
	}
	return r.scale(best), nil
}

func (r *FuzzyRule) scale(similarity float64) float64 {
	if similarity < r.minSimilarity {
		return 0
	}
	if r.minSimilarity >= 1 {
		return r.max
	}
	return r.max * (similarity - r.minSimilarity) / (1 - r.minSimilarity)
}

// DateRule compares a source date against a candidate date or date range
type DateRule struct {
	ruleBase
	candidateEnd  string
	exactBonus    float64
	withinBonus   float64
	penalty       float64
	nearMissRatio float64
}

func (r *DateRule) Score(source models.SourceRecord, candidate models.CandidateRecord) (float64, error) {
	raw, ok := source.Value(r.source)
	if !ok {
		return 0, nil
	}
	date, err := normalizers.ParseDate(raw)
	if errors.Is(err, normalizers.ErrUnknownDate) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(ErrStructural, "source %s: %v", r.source, err)
	}

	begin, end, err := r.candidateRange(candidate)
	if err != nil {
		return 0, err
	}

	if begin.Equal(end) {
		if date.Equal(begin) {
			return r.exactBonus, nil
		}
		// A point date one typo away is not evidence against the candidate
		if r.nearMissRatio > 0 && Ratio(normalizers.FormatDate(date), normalizers.FormatDate(begin)) >= r.nearMissRatio {
			return 0, nil
		}
		return -r.penalty, nil
	}

	if !date.Before(begin) && !date.After(end) {
		return r.withinBonus, nil
	}
	return -r.penalty, nil
}

func (r *DateRule) candidateRange(candidate models.CandidateRecord) (time.Time, time.Time, error) {
	raw, _ := candidate.Property(r.candidate)
	if r.candidateEnd != "" {
		endRaw, _ := candidate.Property(r.candidateEnd)
		raw = append(append([]string(nil), raw...), endRaw...)
	}

	var begin, end time.Time
	for _, v := range normalizers.SplitList(raw) {
		t, err := normalizers.ParseDate(v)
		if err != nil {
			continue
		}
		if begin.IsZero() || t.Before(begin) {
			begin = t
		}
		if end.IsZero() || t.After(end) {
			end = t
		}
	}
	if begin.IsZero() {
		return begin, end, errors.Wrapf(ErrStructural, "candidate %s has no usable %s", candidate.ID, r.candidate)
	}
	return begin, end, nil
}

// SetRule rewards a non-empty intersection; an empty side is unknown and scores zero
type SetRule struct {
	ruleBase
	bonus float64
	split string
}

func (r *SetRule) Score(source models.SourceRecord, candidate models.CandidateRecord) (float64, error) {
	src := make(map[string]bool)
	for _, v := range source.Values(r.source) {
		parts := []string{v}
		if r.split != "" {
			parts = strings.Split(v, r.split)
		}
		for _, p := range parts {
			if key := normalizers.NormalizeLabel(normalizers.CleanLiteral(p)); key != "" {
				src[key] = true
			}
		}
	}
	if len(src) == 0 {
		return 0, nil
	}

	raw, ok := candidate.Property(r.candidate)
	if !ok {
		return 0, nil
	}
	for _, v := range normalizers.SplitList(raw) {
		if src[normalizers.NormalizeLabel(v)] {
			return r.bonus, nil
		}
	}
	return 0, nil
}

func labelSet(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[normalizers.NormalizeLabel(v)] = true
	}
	return out
}

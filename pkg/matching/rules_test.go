package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/catalog"
	"github.com/Ramsey-B/fern/pkg/models"
)

func record(attrs map[string][]string) models.SourceRecord {
	return models.NewSourceRecord("r1", attrs)
}

func candidate(id string, props map[string][]string) models.CandidateRecord {
	return models.CandidateRecord{ID: id, Properties: props}
}

func mustRule(t *testing.T, model config.RuleModel, catalogs catalog.Set) Rule {
	t.Helper()
	rule, err := NewRule(model, catalogs)
	require.NoError(t, err)
	return rule
}

func TestDateRule_ContainmentBeatsOutOfRange(t *testing.T) {
	rule := mustRule(t, config.RuleModel{
		Name: "activity", Type: config.RuleDate, Source: "death_date", Candidate: "activity",
		Bonus: 60, WithinBonus: 40, Penalty: 100, MinSimilarity: 0.8,
	}, nil)
	cand := candidate("u1", map[string][]string{"activity": {"1944-04-01", "1944-04-03"}})

	inside, err := rule.Score(record(map[string][]string{"death_date": {"1944-04-02"}}), cand)
	require.NoError(t, err)
	outside, err := rule.Score(record(map[string][]string{"death_date": {"1941-11-24"}}), cand)
	require.NoError(t, err)

	assert.Equal(t, 40.0, inside)
	assert.Equal(t, -100.0, outside)
	assert.Greater(t, inside, outside)
}

func TestDateRule_PointRange(t *testing.T) {
	rule := mustRule(t, config.RuleModel{
		Name: "death", Type: config.RuleDate, Source: "death_date", Candidate: "death",
		Bonus: 60, WithinBonus: 40, Penalty: 100, MinSimilarity: 0.8,
	}, nil)
	cand := candidate("p1", map[string][]string{"death": {`"1944-04-03"^^<http://www.w3.org/2001/XMLSchema#date>`}})

	tests := []struct {
		source string
		want   float64
	}{
		{"3.4.1944", 60},
		{"1944-04-02", 0},
		{"1941-11-24", -100},
		{"xx.xx.1944", 0},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			got, err := rule.Score(record(map[string][]string{"death_date": {tt.source}}), cand)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDateRule_StructuralFailure(t *testing.T) {
	rule := mustRule(t, config.RuleModel{Name: "d", Type: config.RuleDate, Source: "death_date", Candidate: "death", Penalty: 10}, nil)

	_, err := rule.Score(record(map[string][]string{"death_date": {"1944-04-02"}}), candidate("p1", nil))
	assert.ErrorIs(t, err, ErrStructural)

	got, err := rule.Score(record(nil), candidate("p1", nil))
	require.NoError(t, err)
	assert.Equal(t, 0.0, got, "no source value means the rule does not fire")
}

func TestFuzzyRule_ScalesAboveMinimum(t *testing.T) {
	rule := mustRule(t, config.RuleModel{
		Name: "label", Type: config.RuleFuzzy, Source: "unit", Candidate: "label", Bonus: 100, MinSimilarity: 0.5,
	}, nil)

	tests := []struct {
		source string
		labels string
		want   float64
	}{
		{"JR 1", "JR 1 || I/JR 1", 100},
		{"kitten", "sitting", 100 * (1 - 3.0/7.0 - 0.5) / 0.5},
		{"abc", "xyz", 0},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			got, err := rule.Score(record(map[string][]string{"unit": {tt.source}}), candidate("u", map[string][]string{"label": {tt.labels}}))
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestExactRule_RarityFromCatalogLevel(t *testing.T) {
	one, six := 1, 6
	ranks, err := catalog.New(models.EntityTypeRank, []catalog.Entry{
		{ID: "r1", Labels: []string{"Sotamies"}, Level: &one},
		{ID: "r6", Labels: []string{"Kapteeni"}, Level: &six},
	})
	require.NoError(t, err)

	minLevel := 3
	rule := mustRule(t, config.RuleModel{
		Name: "rank", Type: config.RuleExact, Source: "rank", Candidate: "rank",
		Bonus: 100, RareBonus: 50, Penalty: 20, RareMinLevel: &minLevel, LevelCatalog: models.EntityTypeRank,
		UnknownValues: []string{"tuntematon"},
	}, catalog.Set{models.EntityTypeRank: ranks})

	tests := []struct {
		name   string
		source string
		cand   string
		want   float64
	}{
		{"rare match", "Kapteeni", "kapteeni", 150},
		{"common match", "Sotamies", "Sotamies", 100},
		{"mismatch", "Sotamies", "Kapteeni", -20},
		{"unknown source", "Tuntematon", "Kapteeni", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rule.Score(record(map[string][]string{"rank": {tt.source}}), candidate("p", map[string][]string{"rank": {tt.cand}}))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExactRule_RarityFromCommonValues(t *testing.T) {
	rule := mustRule(t, config.RuleModel{
		Name: "rank", Type: config.RuleExact, Source: "rank", Candidate: "rank",
		Bonus: 100, RareBonus: 30, CommonValues: []string{"Sotamies", "Korpraali"},
	}, nil)

	got, err := rule.Score(record(map[string][]string{"rank": {"Kapteeni"}}), candidate("p", map[string][]string{"rank": {"Kapteeni"}}))
	require.NoError(t, err)
	assert.Equal(t, 130.0, got)

	got, err = rule.Score(record(map[string][]string{"rank": {"Korpraali"}}), candidate("p", map[string][]string{"rank": {"Korpraali"}}))
	require.NoError(t, err)
	assert.Equal(t, 100.0, got)
}

func TestExactRule_NeedsLevelCatalog(t *testing.T) {
	level := 3
	_, err := NewRule(config.RuleModel{
		Name: "rank", Type: config.RuleExact, Source: "rank", Candidate: "rank", RareMinLevel: &level, LevelCatalog: models.EntityTypeRank,
	}, nil)
	assert.Error(t, err)
}

func TestSetRule(t *testing.T) {
	rule := mustRule(t, config.RuleModel{Name: "place", Type: config.RuleSet, Source: "place", Candidate: "matched", Bonus: 150, Split: "/"}, nil)

	got, err := rule.Score(record(map[string][]string{"place": {"Helsinki/Pyhäjärvi Ol"}}), candidate("m", map[string][]string{"matched": {"pyhäjärvi ol"}}))
	require.NoError(t, err)
	assert.Equal(t, 150.0, got)

	got, err = rule.Score(record(map[string][]string{"place": {"Helsinki"}}), candidate("m", map[string][]string{"matched": {"Espoo"}}))
	require.NoError(t, err)
	assert.Equal(t, 0.0, got, "disjoint sets are not penalized")

	got, err = rule.Score(record(map[string][]string{"place": {"Helsinki"}}), candidate("m", nil))
	require.NoError(t, err)
	assert.Equal(t, 0.0, got, "an empty side is unknown")
}

func TestNewRule_UnknownType(t *testing.T) {
	_, err := NewRule(config.RuleModel{Name: "x", Type: "magic"}, nil)
	assert.Error(t, err)
}

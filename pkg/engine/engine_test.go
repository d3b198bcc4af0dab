package engine

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/catalog"
	"github.com/Ramsey-B/fern/pkg/linkage"
	"github.com/Ramsey-B/fern/pkg/models"
)

var errUnavailable = errors.New("service unavailable")

func silentLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeQuerier struct {
	mu      sync.Mutex
	answers map[string][]models.CandidateRecord
	// failOn makes any query containing the substring fail
	failOn  string
	queries []string
}

func (f *fakeQuerier) Query(_ context.Context, text string) ([]models.CandidateRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, text)
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, errUnavailable
	}
	for key, records := range f.answers {
		if strings.Contains(text, key) {
			return records, nil
		}
	}
	return nil, nil
}

type fakeGrouper struct {
	rows  map[string][]models.CandidateRecord
	calls int
}

func (f *fakeGrouper) QueryGrouped(_ context.Context, _ string, _ string, keys []string) (map[string][]models.CandidateRecord, error) {
	f.calls++
	out := map[string][]models.CandidateRecord{}
	for _, k := range keys {
		if rows, ok := f.rows[k]; ok {
			out[k] = rows
		}
	}
	return out, nil
}

type fakeSink struct {
	written []models.MatchDecision
}

func (f *fakeSink) Name() string { return "fake" }

func (f *fakeSink) Write(_ context.Context, decisions []models.MatchDecision) error {
	f.written = append(f.written, decisions...)
	return nil
}

func (f *fakeSink) Close() error { return nil }

// modelFor keeps only the listed entity types of the default model
func modelFor(types ...models.EntityType) *config.ScoringModel {
	m := config.DefaultScoringModel()
	kept := map[models.EntityType]*config.EntityModel{}
	for _, et := range types {
		kept[et] = m.EntityTypes[et]
	}
	m.EntityTypes = kept
	return m
}

func record(id string, attrs map[string]string) models.SourceRecord {
	multi := make(map[string][]string, len(attrs))
	for k, v := range attrs {
		multi[k] = []string{v}
	}
	return models.NewSourceRecord(id, multi)
}

func decisionsByRecord(s *RunSummary) map[string]models.MatchDecision {
	out := map[string]models.MatchDecision{}
	for _, d := range s.Decisions {
		out[d.RecordID] = d
	}
	return out
}

func TestEngine_RankFromCatalogWithCorrection(t *testing.T) {
	two, seven := 2, 7
	ranks, err := catalog.New(models.EntityTypeRank, []catalog.Entry{
		{ID: "rank:aliupseeri", Labels: []string{"Aliupseeri"}, Level: &two},
		{ID: "rank:eversti", Labels: []string{"Eversti"}, Level: &seven},
	})
	require.NoError(t, err)

	sink := &fakeSink{}
	e, err := New(DefaultConfig(), modelFor(models.EntityTypeRank), catalog.Set{models.EntityTypeRank: ranks}, Services{}, sink, silentLogger())
	require.NoError(t, err)

	summary, err := e.Run(context.Background(), models.EntityTypeRank, []models.SourceRecord{
		record("a", map[string]string{"rank": "Alipuseeri"}),
		record("b", map[string]string{"rank": "eversti"}),
		record("c", map[string]string{"rank": "Tuntematon"}),
	})
	require.NoError(t, err)

	got := decisionsByRecord(summary)
	require.Len(t, got, 3)

	assert.Equal(t, models.DecisionStatusAccepted, got["a"].Status)
	assert.Equal(t, "rank:aliupseeri", *got["a"].BestMatch)
	assert.Equal(t, 150.0, *got["a"].BestScore)

	assert.Equal(t, models.DecisionStatusAccepted, got["b"].Status)
	assert.Equal(t, 175.0, *got["b"].BestScore, "rare ranks earn the rarity bonus")

	assert.Equal(t, models.DecisionStatusNoCandidates, got["c"].Status)

	assert.Equal(t, 2, summary.Counts[models.DecisionStatusAccepted])
	assert.Len(t, summary.Links(), 2)
	require.Len(t, sink.written, 3)
	for _, d := range sink.written {
		assert.Equal(t, summary.RunID, d.RunID)
	}
}

func TestEngine_UnitCoverPathAndFallback(t *testing.T) {
	grouper := &fakeGrouper{rows: map[string][]models.CandidateRecord{
		"1234": {{ID: "unit:a", Properties: map[string][]string{"cover": {"1234"}, "label": {"JR 1 || Jalkaväkirykmentti 1"}}}},
	}}
	remote := &fakeQuerier{answers: map[string][]models.CandidateRecord{
		"JR 2": {{ID: "unit:b", Properties: map[string][]string{
			"label":          {"JR 2"},
			"related_period": {"WinterWar"},
			"activity_begin": {"1939-11-30"},
			"activity_end":   {"1940-03-13"},
		}}},
	}}

	e, err := New(DefaultConfig(), modelFor(models.EntityTypeUnit), nil, Services{Candidates: remote, Structured: grouper}, nil, silentLogger())
	require.NoError(t, err)

	summary, err := e.Run(context.Background(), models.EntityTypeUnit, []models.SourceRecord{
		record("u1", map[string]string{"unit_code": "1234", "unit": "JR 1", "death_date": "2.4.1944"}),
		record("u2", map[string]string{"unit_code": "9999", "unit": "JR 2", "death_date": "15.1.1940"}),
		record("u3", nil),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, grouper.calls, "cover codes are fetched in one batch")

	got := decisionsByRecord(summary)

	assert.Equal(t, models.DecisionStatusAccepted, got["u1"].Status)
	assert.Equal(t, "unit:a", *got["u1"].BestMatch)
	assert.Equal(t, 200.0, *got["u1"].BestScore)

	u2 := got["u2"]
	assert.Equal(t, models.DecisionStatusAccepted, u2.Status)
	assert.Equal(t, "unit:b", *u2.BestMatch)
	assert.Contains(t, u2.Explanation, models.RuleDelta{Rule: "period", Delta: 50}, "winter war records get the derived period")
	assert.Contains(t, u2.Explanation, models.RuleDelta{Rule: "activity", Delta: 40})

	require.NotEmpty(t, remote.queries)
	assert.Contains(t, remote.queries[0], " # ", "fallback variants go out as one joined query")

	assert.Equal(t, models.DecisionStatusNoCandidates, got["u3"].Status)
}

func TestEngine_MunicipalityFromAliasesAndSuffixFallback(t *testing.T) {
	munis, err := catalog.New(models.EntityTypeMunicipality, []catalog.Entry{
		{ID: config.MunicipalityNamespace + "m_place_75", Labels: []string{"Pyhäjärvi"}},
		{ID: config.MunicipalityNamespace + "m_place_543", Labels: []string{"Pyhäjärvi"}},
		{ID: config.MunicipalityNamespace + "palkane", Labels: []string{"Pälkäne mlk"}},
	})
	require.NoError(t, err)

	e, err := New(DefaultConfig(), modelFor(models.EntityTypeMunicipality), catalog.Set{models.EntityTypeMunicipality: munis}, Services{}, nil, silentLogger())
	require.NoError(t, err)

	summary, err := e.Run(context.Background(), models.EntityTypeMunicipality, []models.SourceRecord{
		record("a", map[string]string{"birth_place": "Pyhäjärvi Ol"}),
		record("b", map[string]string{"birth_place": "Pälkäne kunta"}),
		record("c", map[string]string{"birth_place": "Pyhäjärvi"}),
	})
	require.NoError(t, err)
	got := decisionsByRecord(summary)

	assert.Equal(t, models.DecisionStatusAccepted, got["a"].Status)
	assert.Equal(t, config.MunicipalityNamespace+"m_place_75", *got["a"].BestMatch)

	assert.Equal(t, models.DecisionStatusAccepted, got["b"].Status)
	assert.Equal(t, config.MunicipalityNamespace+"palkane", *got["b"].BestMatch)

	assert.Equal(t, models.DecisionStatusAmbiguous, got["c"].Status, "an unqualified shared name is never guessed")
	assert.Len(t, got["c"].Alternatives, 1)
}

func TestEngine_RemoteFailure(t *testing.T) {
	records := []models.SourceRecord{
		record("o1", map[string]string{"occupation": "Maanviljelijä"}),
		record("o2", map[string]string{"occupation": "Broken"}),
		record("o3", map[string]string{"occupation": "Maanviljelijä"}),
	}
	answers := map[string][]models.CandidateRecord{
		"Maanviljelijä": {{ID: "occ:1", Properties: map[string][]string{"label": {"maanviljelijä"}}}},
	}

	t.Run("aborts the pass by default", func(t *testing.T) {
		q := &fakeQuerier{answers: answers, failOn: "Broken"}
		e, err := New(DefaultConfig(), modelFor(models.EntityTypeOccupation), nil, Services{Candidates: q}, nil, silentLogger())
		require.NoError(t, err)

		_, err = e.Run(context.Background(), models.EntityTypeOccupation, records)
		assert.ErrorIs(t, err, errUnavailable)
		assert.Contains(t, err.Error(), "o2")
	})

	t.Run("continues when configured", func(t *testing.T) {
		q := &fakeQuerier{answers: answers, failOn: "Broken"}
		cfg := Config{Concurrency: 1, ContinueOnError: true}
		e, err := New(cfg, modelFor(models.EntityTypeOccupation), nil, Services{Candidates: q}, nil, silentLogger())
		require.NoError(t, err)

		summary, err := e.Run(context.Background(), models.EntityTypeOccupation, records)
		require.NoError(t, err)
		assert.Equal(t, []string{"o2"}, summary.Failed)
		require.Len(t, summary.Decisions, 2)
		assert.Equal(t, "o1", summary.Decisions[0].RecordID)
		assert.Equal(t, "o3", summary.Decisions[1].RecordID)
	})

	t.Run("cancelled context", func(t *testing.T) {
		q := &fakeQuerier{answers: answers}
		e, err := New(Config{ContinueOnError: true}, modelFor(models.EntityTypeOccupation), nil, Services{Candidates: q}, nil, silentLogger())
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = e.Run(ctx, models.EntityTypeOccupation, records)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestEngine_ConcurrentPassKeepsInputOrder(t *testing.T) {
	q := &fakeQuerier{answers: map[string][]models.CandidateRecord{
		"Hautausmaa": {{ID: "cem:1", Properties: map[string][]string{"label": {"Hautausmaa"}}}},
	}}
	e, err := New(Config{Concurrency: 8}, modelFor(models.EntityTypeCemetery), nil, Services{Candidates: q}, nil, silentLogger())
	require.NoError(t, err)

	var records []models.SourceRecord
	for i := 0; i < 40; i++ {
		records = append(records, record(string(rune('A'+i)), map[string]string{"cemetery": "Hautausmaa"}))
	}

	summary, err := e.Run(context.Background(), models.EntityTypeCemetery, records)
	require.NoError(t, err)
	require.Len(t, summary.Decisions, len(records))
	for i, d := range summary.Decisions {
		assert.Equal(t, records[i].ID, d.RecordID)
		assert.Equal(t, models.DecisionStatusAccepted, d.Status)
	}
}

func TestEngine_UnknownEntityType(t *testing.T) {
	e, err := New(DefaultConfig(), modelFor(), nil, Services{}, nil, silentLogger())
	require.NoError(t, err)

	_, err = e.Run(context.Background(), models.EntityTypeUnit, nil)
	assert.ErrorIs(t, err, ErrUnknownEntityType)
	assert.Empty(t, e.EntityTypes())
}

func TestNew_MissingServiceFails(t *testing.T) {
	_, err := New(DefaultConfig(), modelFor(models.EntityTypeOccupation), nil, Services{}, nil, silentLogger())
	assert.Error(t, err)

	_, err = New(DefaultConfig(), modelFor(models.EntityTypeRank), nil, Services{}, nil, silentLogger())
	assert.Error(t, err, "rank scoring needs the rank catalog")
}

func TestEngine_LinkPersons(t *testing.T) {
	entry := func(id, given, family, birth string) catalog.Entry {
		return catalog.Entry{ID: id, Attributes: map[string][]string{
			"given_name": {given}, "family_name": {family}, "birth_date": {birth},
		}}
	}
	reference, err := catalog.New(models.EntityTypePerson, []catalog.Entry{
		entry("p1", "Matti", "Virtanen", "1910-01-01"),
		entry("p2", "Juho", "Virtanen", "1915-05-05"),
		entry("p3", "Eino", "Korhonen", "1912-03-03"),
	})
	require.NoError(t, err)

	person := func(id, given, family, birth string) models.SourceRecord {
		return record(id, map[string]string{"given_name": given, "family_name": family, "birth_date": birth})
	}
	linked := func(r models.SourceRecord, target string) models.SourceRecord {
		return r.WithLink(models.Link{RecordID: r.ID, EntityType: models.EntityTypePerson, TargetID: target})
	}

	model := modelFor(models.EntityTypePerson)
	model.Linker.Fields = []config.LinkerField{
		{Name: "given", Attribute: "given_name", Comparator: config.ComparatorString},
		{Name: "family", Attribute: "family_name", Comparator: config.ComparatorString},
		{Name: "birth_date", Attribute: "birth_date", Comparator: config.ComparatorDate, HasMissing: true},
	}

	sink := &fakeSink{}
	e, err := New(DefaultConfig(), model, nil, Services{}, sink, silentLogger())
	require.NoError(t, err)
	assert.Empty(t, e.EntityTypes(), "persons have no rule pipeline")

	summary, result, err := e.LinkPersons(context.Background(), []models.SourceRecord{
		linked(person("s1", "Matti", "Virtanen", "1.1.1910"), "p1"),
		linked(person("s2", "Eino", "Korhonen", "3.3.1912"), "p3"),
		person("r1", "Juho", "Virtanen", "5.5.1915"),
	}, reference, linkage.GroundTruth{})
	require.NoError(t, err)

	assert.Equal(t, []string{"s1", "s2"}, summary.Skipped)
	require.Len(t, summary.Decisions, 1)
	assert.Equal(t, "r1", summary.Decisions[0].RecordID)
	assert.Equal(t, summary.RunID, summary.Decisions[0].RunID)
	assert.NotNil(t, result.Model)
	assert.Len(t, sink.written, 1)
}

package linkage

import (
	"context"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/catalog"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
)

func silentLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func testFields() []config.LinkerField {
	return []config.LinkerField{
		{Name: "given", Attribute: "given_name", Comparator: config.ComparatorString},
		{Name: "family", Attribute: "family_name", Comparator: config.ComparatorString},
		{Name: "birth_date", Attribute: "birth_date", Comparator: config.ComparatorDate, HasMissing: true},
	}
}

func TestComparer_SymmetricRoundTrip(t *testing.T) {
	fields := config.DefaultLinkerModel().Fields
	comparer, err := NewComparer(fields)
	require.NoError(t, err)

	c := collector{fields: fields, blocking: "family_name"}
	a := c.fromRecord(models.NewSourceRecord("a", map[string][]string{
		"given_name":     {"Matti Johannes"},
		"family_name":    {"Virtanen (ent. Wirtanen)"},
		"birth_place":    {"Helsinki", "Helsingfors"},
		"birth_date":     {"1.2.1915"},
		"death_date":     {"1942-03-01"},
		"activity_begin": {"1941-06-25"},
		"activity_end":   {"1942-03-01"},
		"rank":           {"Sotamies"},
		"rank_level":     {"1"},
		"unit":           {"JR 1"},
	}))
	b := c.fromRecord(models.NewSourceRecord("b", map[string][]string{
		"given_name":     {"Matti"},
		"family_name":    {"Wirtanen"},
		"birth_place":    {"helsinki"},
		"birth_date":     {"1915-02-03"},
		"activity_begin": {"1943-01-01"},
		"rank":           {"Korpraali"},
		"rank_level":     {"2"},
		"unit":           {"JR 2"},
	}))

	ab := comparer.Compare(a, b)
	ba := comparer.Compare(b, a)
	assert.Equal(t, ab, ba)
	assert.Len(t, comparer.Row(ab), comparer.Width())

	deathIdx := -1
	for i, f := range fields {
		if f.Name == "death_date" {
			deathIdx = i
		}
	}
	require.GreaterOrEqual(t, deathIdx, 0)
	assert.True(t, ab.Missing[deathIdx], "missing is flagged, not imputed")
	assert.Equal(t, 0.0, ab.Values[deathIdx])
}

func TestCollector_InlinesPreviousNameAndBlocks(t *testing.T) {
	c := collector{fields: testFields(), blocking: "family_name"}
	p := c.fromRecord(models.NewSourceRecord("a", map[string][]string{"family_name": {"Virtanen (ent. Wirtanen)"}}))

	assert.Equal(t, []string{"virtanen wirtanen"}, p.Fields["family"].Values)
	assert.Equal(t, matching.Soundex("Virtanen Wirtanen"), p.Block)
	assert.Equal(t, "V635", p.Block)
}

func TestCollector_ReadsLinkedCatalogValues(t *testing.T) {
	six := 6
	ranks, err := catalog.New(models.EntityTypeRank, []catalog.Entry{{ID: "r6", Labels: []string{"Kapteeni"}, Level: &six}})
	require.NoError(t, err)

	c := collector{
		fields:   config.DefaultLinkerModel().Fields,
		blocking: "family_name",
		catalogs: catalog.Set{models.EntityTypeRank: ranks},
	}
	record := models.NewSourceRecord("a", map[string][]string{"rank": {"Kapteeni"}}).
		WithLink(models.Link{RecordID: "a", EntityType: models.EntityTypeRank, TargetID: "r6"})

	p := c.fromRecord(record)
	assert.Equal(t, []string{"r6"}, p.Fields["rank"].Values)
	assert.Equal(t, []string{"6"}, p.Fields["rank_level"].Values)
}

func TestComparer_UnresolvedLinkedFieldsAreMissing(t *testing.T) {
	fields := config.DefaultLinkerModel().Fields
	comparer, err := NewComparer(fields)
	require.NoError(t, err)

	c := collector{fields: fields, blocking: "family_name"}
	a := c.fromRecord(models.NewSourceRecord("a", map[string][]string{
		"family_name": {"Virtanen"},
		"rank":        {"Tuntematon"},
		"unit":        {"JR 1"},
	}))
	b := c.fromRecord(models.NewSourceRecord("b", map[string][]string{
		"family_name": {"Virtanen"},
		"rank":        {"Tuntematon"},
		"unit":        {"JR 1"},
	}))

	fv := comparer.Compare(a, b)
	for i, f := range fields {
		if f.Link == "" {
			continue
		}
		t.Run(f.Name, func(t *testing.T) {
			assert.True(t, fv.Missing[i], "an unlinked value is not compared")
			assert.Equal(t, 0.0, fv.Values[i])
		})
	}
}

func TestCollector_DropsUnknownValues(t *testing.T) {
	ranks, err := catalog.New(models.EntityTypeRank, []catalog.Entry{{ID: "r0", Labels: []string{"Tuntematon"}}})
	require.NoError(t, err)

	fields := []config.LinkerField{
		{Name: "rank", Attribute: "rank", Comparator: config.ComparatorExact, HasMissing: true,
			Link: models.EntityTypeRank, LinkProperty: "label", UnknownValues: []string{"tuntematon"}},
	}
	c := collector{fields: fields, blocking: "family_name", catalogs: catalog.Set{models.EntityTypeRank: ranks}}
	record := models.NewSourceRecord("a", map[string][]string{"rank": {"Tuntematon"}}).
		WithLink(models.Link{RecordID: "a", EntityType: models.EntityTypeRank, TargetID: "r0"})

	assert.True(t, c.fromRecord(record).Fields["rank"].Empty())

	comparer, err := NewComparer(fields)
	require.NoError(t, err)
	ref := c.fromEntry(catalog.Entry{ID: "p1", Attributes: map[string][]string{"rank": {"TUNTEMATON"}}})
	fv := comparer.Compare(c.fromRecord(record), ref)
	assert.True(t, fv.Missing[0])
}

func TestSample_DeterministicAndBounded(t *testing.T) {
	src := []string{"s3", "s1", "s2", "s4"}
	ref := []string{"r1", "r2", "r3", "r4", "r5"}

	first := Sample(src, ref, 7, 42)
	second := Sample(src, ref, 7, 42)
	assert.Equal(t, first, second)
	assert.Len(t, first, 7)

	seen := map[Pair]bool{}
	for _, p := range first {
		assert.False(t, seen[p], "pairs are distinct")
		seen[p] = true
	}

	assert.Len(t, Sample(src, ref, 2000000, 42), 20, "bounded by the pair universe")
	assert.Empty(t, Sample(nil, ref, 10, 42))
}

func TestCalibrate_FavoursPrecision(t *testing.T) {
	scores := []float64{0.9, 0.8, 0.7, 0.6, 0.2}
	labels := []bool{true, true, false, true, false}

	c := Calibrate(scores, labels, 0.3)
	assert.InDelta(t, 0.75, c.Threshold, 1e-9)
	assert.Equal(t, 1.0, c.Precision)

	loose := Calibrate(scores, labels, 3)
	assert.InDelta(t, 0.4, loose.Threshold, 1e-9)
	assert.Equal(t, 1.0, loose.Recall)
}

func TestTrain_SeparatesClassesDeterministically(t *testing.T) {
	x := [][]float64{{1, 1}, {0.9, 1}, {0.1, 0}, {0, 0.2}}
	y := []bool{true, true, false, false}
	opts := TrainOptions{Iterations: 300, LearningRate: 0.5, L2: 0.01}

	a, err := Train(x, y, opts)
	require.NoError(t, err)
	b, err := Train(x, y, opts)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Greater(t, a.Predict([]float64{1, 1}), 0.5)
	assert.Less(t, a.Predict([]float64{0, 0}), 0.5)

	_, err = Train(x, y[:2], opts)
	assert.Error(t, err)
}

func TestLoadGroundTruth(t *testing.T) {
	gt, err := LoadGroundTruth(strings.NewReader(`{"match":[["s1","p1"]],"distinct":[["s1","p2"]],"links":{"s2":"p3"}}`))
	require.NoError(t, err)

	lab := newLabeler(gt)
	match, known := lab.label(Pair{"s1", "p1"})
	assert.True(t, known)
	assert.True(t, match)

	match, known = lab.label(Pair{"s2", "p4"})
	assert.True(t, known, "a source linked elsewhere is distinct")
	assert.False(t, match)

	_, known = lab.label(Pair{"s9", "p1"})
	assert.False(t, known)
}

func personEntry(id, given, family, birth string) catalog.Entry {
	return catalog.Entry{ID: id, Attributes: map[string][]string{
		"given_name":  {given},
		"family_name": {family},
		"birth_date":  {birth},
	}}
}

func personRecord(id, given, family, birth string) models.SourceRecord {
	return models.NewSourceRecord(id, map[string][]string{
		"given_name":  {given},
		"family_name": {family},
		"birth_date":  {birth},
	})
}

func linkedTo(r models.SourceRecord, target string) models.SourceRecord {
	return r.WithLink(models.Link{RecordID: r.ID, EntityType: models.EntityTypePerson, TargetID: target})
}

func TestLinker_Run(t *testing.T) {
	reference, err := catalog.New(models.EntityTypePerson, []catalog.Entry{
		personEntry("p1", "Matti", "Virtanen", "1910-01-01"),
		personEntry("p2", "Juho", "Virtanen", "1915-05-05"),
		personEntry("p3", "Matti", "Virtanen", "1920-02-02"),
		personEntry("p4", "Eino", "Korhonen", "1912-03-03"),
		personEntry("p5", "Toivo", "Korhonen", "1918-08-08"),
	})
	require.NoError(t, err)

	records := []models.SourceRecord{
		linkedTo(personRecord("s1", "Matti", "Virtanen", "1.1.1910"), "p1"),
		linkedTo(personRecord("s2", "Eino", "Korhonen", "3.3.1912"), "p4"),
		linkedTo(personRecord("s3", "Toivo", "Korhonen", "8.8.1918"), "p5"),
		personRecord("r1", "Juho", "VIRTANEN", "5.5.1915"),
		personRecord("r2", "Aarne", "Mäkelä", "1.1.1900"),
	}

	cfg := config.DefaultLinkerModel()
	cfg.Fields = testFields()

	linker, err := New(cfg, 0, nil, matching.NewResolver(silentLogger()), silentLogger())
	require.NoError(t, err)

	result, err := linker.Run(context.Background(), records, reference, GroundTruth{})
	require.NoError(t, err)

	assert.Equal(t, StageEmitted, linker.Stage())
	assert.ElementsMatch(t, []string{"s1", "s2", "s3"}, result.Skipped)
	assert.Equal(t, 25, result.PairsSampled)
	assert.Equal(t, 15, result.PairsLabeled)
	require.Len(t, result.Decisions, 2)

	byRecord := map[string]models.MatchDecision{}
	for _, d := range result.Decisions {
		byRecord[d.RecordID] = d
	}

	r1 := byRecord["r1"]
	assert.Equal(t, models.DecisionStatusAccepted, r1.Status)
	require.NotNil(t, r1.BestMatch)
	assert.Equal(t, "p2", *r1.BestMatch)
	assert.Greater(t, *r1.BestScore, result.Model.Calibration.Threshold)

	assert.Equal(t, models.DecisionStatusNoCandidates, byRecord["r2"].Status)
}

func TestLinker_InsufficientLabels(t *testing.T) {
	reference, err := catalog.New(models.EntityTypePerson, []catalog.Entry{personEntry("p1", "Matti", "Virtanen", "1910-01-01")})
	require.NoError(t, err)

	cfg := config.DefaultLinkerModel()
	cfg.Fields = testFields()
	linker, err := New(cfg, 0, nil, matching.NewResolver(silentLogger()), silentLogger())
	require.NoError(t, err)

	_, err = linker.Run(context.Background(), []models.SourceRecord{personRecord("r1", "Matti", "Virtanen", "1910-01-01")}, reference, GroundTruth{})
	assert.ErrorIs(t, err, ErrInsufficientLabels)
}

func TestLinker_MatchBeforeTrain(t *testing.T) {
	linker, err := New(config.DefaultLinkerModel(), 0, nil, matching.NewResolver(silentLogger()), silentLogger())
	require.NoError(t, err)

	_, _, err = linker.Match(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotTrained)
}

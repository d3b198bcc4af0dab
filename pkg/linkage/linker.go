package linkage

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/catalog"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
)

var (
	// ErrNotTrained is returned when matching is attempted before training
	ErrNotTrained = errors.New("linkage model is not trained")
	// ErrInsufficientLabels is returned when either class has fewer labeled pairs than required
	ErrInsufficientLabels = errors.New("not enough labeled pairs to train")
)

// Stage is the linker's position in a run
type Stage string

const (
	StageNew        Stage = "new"
	StageCollected  Stage = "collected"
	StageSampled    Stage = "sampled"
	StageLabeled    Stage = "labeled"
	StageTrained    Stage = "trained"
	StageCalibrated Stage = "calibrated"
	StageMatched    Stage = "matched"
	StageEmitted    Stage = "emitted"
)

// maxRejectedAlternatives bounds the below-threshold pairs kept for audit per record
const maxRejectedAlternatives = 10

// Model is a trained classifier with its calibrated acceptance threshold
type Model struct {
	Classifier  *Classifier `json:"classifier"`
	Calibration Calibration `json:"calibration"`
	Columns     []string    `json:"columns"`
}

// Result is the outcome of one linking run
type Result struct {
	Decisions []models.MatchDecision
	Model     *Model
	// Skipped lists source records excluded from matching because they already have a person link
	Skipped      []string
	PairsSampled int
	PairsLabeled int
	PairsScored  int
}

// Linker runs one batch: collect, sample, label, train, calibrate, match, emit.
// A Linker is single-use and not safe for concurrent use.
type Linker struct {
	cfg       config.LinkerModel
	margin    float64
	comparer  *Comparer
	collector collector
	resolver  *matching.Resolver
	logger    ectologger.Logger

	stage      Stage
	sources    Dictionary
	references Dictionary
	entries    map[string]catalog.Entry
	blocks     map[string][]string
	sampled    []Pair
	labeled    []labeledPair
	model      *Model
}

type labeledPair struct {
	pair  Pair
	match bool
}

// New creates a linker. catalogs supplies linked values such as rank levels; margin is the resolver margin.
func New(cfg config.LinkerModel, margin float64, catalogs catalog.Set, resolver *matching.Resolver, logger ectologger.Logger) (*Linker, error) {
	comparer, err := NewComparer(cfg.Fields)
	if err != nil {
		return nil, err
	}
	return &Linker{
		cfg:       cfg,
		margin:    margin,
		comparer:  comparer,
		collector: collector{fields: cfg.Fields, blocking: cfg.BlockingAttribute, catalogs: catalogs},
		resolver:  resolver,
		logger:    logger,
		stage:     StageNew,
	}, nil
}

// Stage returns the last completed stage
func (l *Linker) Stage() Stage {
	return l.stage
}

// Run executes every stage and returns one decision per unlinked source record
func (l *Linker) Run(ctx context.Context, records []models.SourceRecord, reference *catalog.Catalog, truth GroundTruth) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "linkage.Linker.Run")
	defer span.End()

	l.Collect(ctx, records, reference)
	l.Sample(ctx)
	l.Label(ctx, truth.WithRecordLinks(records))
	if err := l.Train(ctx); err != nil {
		return nil, err
	}
	calibration := l.Calibrate(ctx)

	scored, skipped, err := l.Match(ctx, records)
	if err != nil {
		return nil, err
	}
	decisions := l.Emit(ctx, records, scored, skipped)

	pairsScored := 0
	for _, s := range scored {
		pairsScored += len(s)
	}

	l.logger.WithContext(ctx).WithFields(map[string]any{
		"decisions": len(decisions),
		"skipped":   len(skipped),
		"threshold": calibration.Threshold,
	}).Info("Person linking finished")

	return &Result{
		Decisions:    decisions,
		Model:        l.model,
		Skipped:      skipped,
		PairsSampled: len(l.sampled),
		PairsLabeled: len(l.labeled),
		PairsScored:  pairsScored,
	}, nil
}

// Collect materializes the source and reference dictionaries
func (l *Linker) Collect(ctx context.Context, records []models.SourceRecord, reference *catalog.Catalog) {
	l.sources = make(Dictionary, len(records))
	for _, r := range records {
		l.sources[r.ID] = l.collector.fromRecord(r)
	}

	entries := reference.Entries()
	l.references = make(Dictionary, len(entries))
	l.entries = make(map[string]catalog.Entry, len(entries))
	l.blocks = make(map[string][]string)
	for _, e := range entries {
		p := l.collector.fromEntry(e)
		l.references[e.ID] = p
		l.entries[e.ID] = e
		if p.Block != "" {
			l.blocks[p.Block] = append(l.blocks[p.Block], e.ID)
		}
	}
	for block := range l.blocks {
		sort.Strings(l.blocks[block])
	}

	l.stage = StageCollected
	l.logger.WithContext(ctx).WithFields(map[string]any{
		"sources":    len(l.sources),
		"references": len(l.references),
		"blocks":     len(l.blocks),
	}).Info("Collected person dictionaries")
}

// Sample draws the seeded random pair sample
func (l *Linker) Sample(ctx context.Context) []Pair {
	l.sampled = Sample(l.sources.IDs(), l.references.IDs(), l.cfg.SampleSize, l.cfg.Seed)
	l.stage = StageSampled
	l.logger.WithContext(ctx).WithField("pairs", len(l.sampled)).Debug("Sampled pairs")
	return l.sampled
}

// Label keeps the sampled pairs known to the ground truth and adds every explicitly labeled pair
func (l *Linker) Label(ctx context.Context, truth GroundTruth) {
	lab := newLabeler(truth)
	seen := make(map[Pair]bool)
	l.labeled = l.labeled[:0]

	add := func(p Pair) {
		if seen[p] {
			return
		}
		if _, ok := l.sources[p.Source]; !ok {
			return
		}
		if _, ok := l.references[p.Reference]; !ok {
			return
		}
		match, known := lab.label(p)
		if !known {
			return
		}
		seen[p] = true
		l.labeled = append(l.labeled, labeledPair{pair: p, match: match})
	}

	for _, p := range l.sampled {
		add(p)
	}
	for _, p := range lab.bootstrap() {
		add(p)
	}

	l.stage = StageLabeled
	l.logger.WithContext(ctx).WithField("pairs", len(l.labeled)).Info("Labeled training pairs")
}

// Train fits the classifier on the labeled pairs
func (l *Linker) Train(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "linkage.Linker.Train")
	defer span.End()

	matches, distinct := 0, 0
	x := make([][]float64, len(l.labeled))
	y := make([]bool, len(l.labeled))
	for i, lp := range l.labeled {
		x[i] = l.row(lp.pair)
		y[i] = lp.match
		if lp.match {
			matches++
		} else {
			distinct++
		}
	}

	minLabels := max(l.cfg.MinLabels, 1)
	if matches < minLabels || distinct < minLabels {
		return errors.Wrapf(ErrInsufficientLabels, "%d matches and %d distinct pairs, need %d of each", matches, distinct, minLabels)
	}

	classifier, err := Train(x, y, TrainOptions{
		Iterations:   l.cfg.Iterations,
		LearningRate: l.cfg.LearningRate,
		L2:           l.cfg.L2,
	})
	if err != nil {
		return errors.Wrap(err, "failed to train person classifier")
	}

	l.model = &Model{Classifier: classifier, Columns: l.comparer.ColumnNames()}
	l.stage = StageTrained
	l.logger.WithContext(ctx).WithFields(map[string]any{
		"matches":  matches,
		"distinct": distinct,
		"weights":  classifier.Weights,
	}).Info("Trained person classifier")
	return nil
}

// Calibrate chooses the acceptance threshold on the labeled pairs
func (l *Linker) Calibrate(ctx context.Context) Calibration {
	scores := make([]float64, len(l.labeled))
	labels := make([]bool, len(l.labeled))
	for i, lp := range l.labeled {
		scores[i] = l.model.Classifier.Predict(l.row(lp.pair))
		labels[i] = lp.match
	}

	l.model.Calibration = Calibrate(scores, labels, l.cfg.RecallWeight)
	metrics.LinkerThreshold.Set(l.model.Calibration.Threshold)

	l.stage = StageCalibrated
	l.logger.WithContext(ctx).WithFields(map[string]any{
		"threshold": l.model.Calibration.Threshold,
		"precision": l.model.Calibration.Precision,
		"recall":    l.model.Calibration.Recall,
	}).Info("Calibrated person threshold")
	return l.model.Calibration
}

// Match scores every blocked pair of the unlinked source records. Records that already
// have a person link are returned as skipped.
func (l *Linker) Match(ctx context.Context, records []models.SourceRecord) (map[string][]models.ScoredCandidate, []string, error) {
	if l.model == nil {
		return nil, nil, ErrNotTrained
	}

	threshold := l.model.Calibration.Threshold
	out := make(map[string][]models.ScoredCandidate, len(records))
	var skipped []string

	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if _, linked := r.LinkFor(models.EntityTypePerson); linked {
			skipped = append(skipped, r.ID)
			continue
		}

		src := l.sources[r.ID]
		refs := l.blocks[src.Block]
		if src.Block == "" || len(refs) == 0 {
			continue
		}

		scored := make([]models.ScoredCandidate, 0, len(refs))
		for _, refID := range refs {
			scored = append(scored, l.score(src, refID))
		}
		metrics.LinkerPairsScored.Add(float64(len(scored)))
		out[r.ID] = trimBelow(scored, threshold)
	}

	l.stage = StageMatched
	return out, skipped, nil
}

// Emit resolves each unlinked record's scored pairs into a decision, so no record gets two links
func (l *Linker) Emit(ctx context.Context, records []models.SourceRecord, scored map[string][]models.ScoredCandidate, skipped []string) []models.MatchDecision {
	skip := make(map[string]bool, len(skipped))
	for _, id := range skipped {
		skip[id] = true
	}

	policy := matching.Policy{
		EntityType: models.EntityTypePerson,
		Threshold:  l.model.Calibration.Threshold,
		Margin:     l.margin,
	}

	decisions := make([]models.MatchDecision, 0, len(records)-len(skipped))
	for _, r := range records {
		if skip[r.ID] {
			continue
		}
		decisions = append(decisions, l.resolver.Resolve(ctx, policy, r, scored[r.ID]))
	}

	l.stage = StageEmitted
	return decisions
}

// Model returns the trained model, or nil before training
func (l *Linker) Model() *Model {
	return l.model
}

func (l *Linker) row(p Pair) []float64 {
	return l.comparer.Row(l.comparer.Compare(l.sources[p.Source], l.references[p.Reference]))
}

func (l *Linker) score(src Person, refID string) models.ScoredCandidate {
	row := l.comparer.Row(l.comparer.Compare(src, l.references[refID]))
	contributions := l.model.Classifier.Contributions(row)

	explanation := make([]models.RuleDelta, len(contributions))
	for i, c := range contributions {
		explanation[i] = models.RuleDelta{Rule: l.model.Columns[i], Delta: c}
	}

	candidate := l.entries[refID].Candidate()
	probability := l.model.Classifier.Predict(row)
	candidate.Score = probability
	return models.ScoredCandidate{Candidate: candidate, Score: probability, Explanation: explanation}
}

// trimBelow keeps every pair above threshold and the best few below it
func trimBelow(scored []models.ScoredCandidate, threshold float64) []models.ScoredCandidate {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Candidate.ID < scored[j].Candidate.ID
	})
	above := 0
	for above < len(scored) && scored[above].Score > threshold {
		above++
	}
	return scored[:min(len(scored), above+maxRejectedAlternatives)]
}

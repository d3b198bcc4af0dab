// Package engine runs entity-resolution passes over batches of source records
package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/catalog"
	"github.com/Ramsey-B/fern/pkg/linkage"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/sinks"
)

// ErrUnknownEntityType is returned for entity types without a pipeline
var ErrUnknownEntityType = errors.New("no pipeline for entity type")

// deathDateAttribute is checked against the wartime window on every pass
const deathDateAttribute = "death_date"

// Config controls how a pass runs
type Config struct {
	// Concurrency bounds the records resolved at once; 1 is sequential
	Concurrency int
	// ContinueOnError aborts only the failing record instead of the whole pass
	ContinueOnError bool
}

func DefaultConfig() Config {
	return Config{Concurrency: 1}
}

// Engine owns one pipeline per entity type and the person linker settings
type Engine struct {
	cfg       Config
	model     *config.ScoringModel
	catalogs  catalog.Set
	resolver  *matching.Resolver
	pipelines map[models.EntityType]*Pipeline
	sink      sinks.Sink
	logger    ectologger.Logger
}

// New builds a pipeline for every non-person entity type in the model. sink may be nil.
func New(cfg Config, model *config.ScoringModel, catalogs catalog.Set, services Services, sink sinks.Sink, logger ectologger.Logger) (*Engine, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	e := &Engine{
		cfg:       cfg,
		model:     model,
		catalogs:  catalogs,
		resolver:  matching.NewResolver(logger),
		pipelines: make(map[models.EntityType]*Pipeline),
		sink:      sink,
		logger:    logger,
	}

	for et, em := range model.EntityTypes {
		if et == models.EntityTypePerson {
			continue
		}
		p, err := NewPipeline(et, em, model.Tables, catalogs, services, e.resolver, logger)
		if err != nil {
			return nil, err
		}
		e.pipelines[et] = p
	}
	return e, nil
}

// EntityTypes lists the entity types with a pipeline, sorted
func (e *Engine) EntityTypes() []models.EntityType {
	out := make([]models.EntityType, 0, len(e.pipelines))
	for et := range e.pipelines {
		out = append(out, et)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Pipeline returns the pipeline of an entity type
func (e *Engine) Pipeline(entityType models.EntityType) (*Pipeline, bool) {
	p, ok := e.pipelines[entityType]
	return p, ok
}

// ResolveOne resolves a single record outside a pass
func (e *Engine) ResolveOne(ctx context.Context, entityType models.EntityType, record models.SourceRecord) (models.MatchDecision, error) {
	p, ok := e.pipelines[entityType]
	if !ok {
		return models.MatchDecision{}, errors.Wrapf(ErrUnknownEntityType, "%s", entityType)
	}
	decision, err := p.Resolve(ctx, record)
	if err != nil {
		return models.MatchDecision{}, err
	}
	metrics.DecisionsTotal.WithLabelValues(string(entityType), string(decision.Status)).Inc()
	return decision, nil
}

// Run resolves every record for one entity type. Each record yields exactly one decision,
// or is listed as failed when ContinueOnError is set; otherwise the first failure aborts the pass.
func (e *Engine) Run(ctx context.Context, entityType models.EntityType, records []models.SourceRecord) (*RunSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "engine.Engine.Run")
	defer span.End()

	p, ok := e.pipelines[entityType]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownEntityType, "%s", entityType)
	}

	summary := newSummary(uuid.NewString(), entityType, len(records))
	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":      summary.RunID,
		"entity_type": entityType,
		"records":     len(records),
	})
	log.Info("Starting resolution pass")

	e.checkWartime(ctx, records)

	if err := p.Prepare(ctx, records); err != nil {
		if !e.cfg.ContinueOnError {
			return nil, err
		}
		log.WithError(err).Warn("Prefetch failed, records will query individually")
	}

	decisions := &DecisionLog{}
	var failedMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)

	for i, record := range records {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			start := time.Now()
			decision, err := p.Resolve(gctx, record)
			metrics.RecordDuration.WithLabelValues(string(entityType)).Observe(time.Since(start).Seconds())

			if err != nil {
				metrics.RecordFailuresTotal.WithLabelValues(string(entityType)).Inc()
				if !e.cfg.ContinueOnError {
					return errors.Wrapf(err, "record %s", record.ID)
				}
				log.WithError(err).WithField("record_id", record.ID).Error("Record aborted")
				failedMu.Lock()
				summary.Failed = append(summary.Failed, record.ID)
				failedMu.Unlock()
				return nil
			}

			decision.RunID = summary.RunID
			metrics.DecisionsTotal.WithLabelValues(string(entityType), string(decision.Status)).Inc()
			decisions.Append(i, decision)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Resolution pass aborted")
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summary.finish(decisions.Decisions())
	if err := e.emit(ctx, summary.Decisions); err != nil {
		return summary, err
	}

	log.WithFields(map[string]any{
		"counts": summary.Counts,
		"failed": len(summary.Failed),
	}).Info("Resolution pass finished")
	return summary, nil
}

// RunAll runs every entity-type pass concurrently. Passes share no state.
func (e *Engine) RunAll(ctx context.Context, records []models.SourceRecord) ([]*RunSummary, error) {
	types := e.EntityTypes()
	summaries := make([]*RunSummary, len(types))

	g, gctx := errgroup.WithContext(ctx)
	for i, et := range types {
		g.Go(func() error {
			s, err := e.Run(gctx, et, records)
			if err != nil {
				return errors.Wrapf(err, "%s pass", et)
			}
			summaries[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

// LinkPersons trains the person linker on this batch and resolves every unlinked record against reference
func (e *Engine) LinkPersons(ctx context.Context, records []models.SourceRecord, reference *catalog.Catalog, truth linkage.GroundTruth) (*RunSummary, *linkage.Result, error) {
	ctx, span := tracing.StartSpan(ctx, "engine.Engine.LinkPersons")
	defer span.End()

	margin := 0.0
	if pm, ok := e.model.Entity(models.EntityTypePerson); ok {
		margin = pm.AmbiguityMargin
	}

	linker, err := linkage.New(e.model.Linker, margin, e.catalogs, e.resolver, e.logger)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to build person linker")
	}

	summary := newSummary(uuid.NewString(), models.EntityTypePerson, len(records))
	e.checkWartime(ctx, records)

	result, err := linker.Run(ctx, records, reference, truth)
	if err != nil {
		return nil, nil, err
	}

	for i := range result.Decisions {
		result.Decisions[i].RunID = summary.RunID
		metrics.DecisionsTotal.WithLabelValues(string(models.EntityTypePerson), string(result.Decisions[i].Status)).Inc()
	}
	summary.Skipped = result.Skipped
	summary.finish(result.Decisions)

	if err := e.emit(ctx, summary.Decisions); err != nil {
		return summary, result, err
	}
	return summary, result, nil
}

func (e *Engine) emit(ctx context.Context, decisions []models.MatchDecision) error {
	if e.sink == nil || len(decisions) == 0 {
		return nil
	}
	return errors.Wrap(e.sink.Write(ctx, decisions), "failed to emit decisions")
}

// checkWartime flags death dates outside the war
func (e *Engine) checkWartime(ctx context.Context, records []models.SourceRecord) {
	for _, r := range records {
		raw, ok := r.Value(deathDateAttribute)
		if !ok {
			continue
		}
		t, err := normalizers.ParseDate(raw)
		if err != nil || normalizers.InWartime(t) {
			continue
		}
		e.logger.WithContext(ctx).WithFields(map[string]any{
			"record_id":  r.ID,
			"death_date": raw,
		}).Warn("Death date outside the war")
	}
}

package engine

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/candidates"
	"github.com/Ramsey-B/fern/pkg/catalog"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/variants"
)

// Services are the remote clients pipelines draw candidates from. Any may be nil
// when no entity model needs it.
type Services struct {
	Candidates candidates.Querier
	Places     candidates.Querier
	Structured candidates.Grouper
}

func (s Services) querier(service string) (candidates.Querier, bool) {
	switch service {
	case config.ServicePlaces:
		return s.Places, s.Places != nil
	case config.ServiceCandidates, "":
		return s.Candidates, s.Candidates != nil
	default:
		return nil, false
	}
}

// Pipeline resolves one record for one entity type: expand, retrieve, score, resolve.
// A Rejected or NoCandidates outcome is retried on the fallback pipeline when one is configured.
type Pipeline struct {
	entityType  models.EntityType
	attribute   string
	expander    variants.Expander
	source      candidates.Source
	scorer      matching.Scorer
	resolver    *matching.Resolver
	policy      matching.Policy
	derivations []config.DerivationModel
	fallback    *Pipeline
	logger      ectologger.Logger

	// scoreVariants lets label rules see corrected spellings
	scoreVariants bool
}

// NewPipeline builds the pipeline of an entity model and its fallbacks
func NewPipeline(
	entityType models.EntityType,
	model *config.EntityModel,
	tables config.TablesModel,
	catalogs catalog.Set,
	services Services,
	resolver *matching.Resolver,
	logger ectologger.Logger,
) (*Pipeline, error) {
	source, err := newSource(entityType, model, tables, catalogs, services, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "%s candidate source", entityType)
	}

	scorer, err := matching.NewRuleScorer(model, catalogs, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "%s scoring rules", entityType)
	}

	p := &Pipeline{
		entityType:  entityType,
		attribute:   model.QueryAttribute,
		expander:    variants.New(model.Expander, tables.Variants()),
		source:      source,
		scorer:      scorer,
		resolver:    resolver,
		policy:      matching.Policy{EntityType: entityType, Threshold: model.Threshold, Margin: model.AmbiguityMargin},
		derivations: model.Derivations,
		logger:      logger,

		scoreVariants: model.Expander == variants.KindText,
	}

	if model.Fallback != nil {
		p.fallback, err = NewPipeline(entityType, model.Fallback, tables, catalogs, services, resolver, logger)
		if err != nil {
			return nil, errors.Wrap(err, "fallback")
		}
	}
	return p, nil
}

func newSource(
	entityType models.EntityType,
	model *config.EntityModel,
	tables config.TablesModel,
	catalogs catalog.Set,
	services Services,
	logger ectologger.Logger,
) (candidates.Source, error) {
	switch model.Source {
	case config.SourceCatalog:
		cat, ok := catalogs.Get(entityType)
		if !ok {
			return nil, errors.Errorf("no %s catalog loaded", entityType)
		}
		return &candidates.CatalogSource{Catalog: cat}, nil

	case config.SourcePlaces:
		var chain candidates.ChainSource
		if cat, ok := catalogs.Get(models.EntityTypeMunicipality); ok {
			chain = append(chain, &candidates.AliasSource{
				Places:    variants.NewPlaceExpander(tables.Aliases, tables.Suffixes),
				Catalog:   cat,
				Attribute: model.QueryAttribute,
				Logger:    logger,
			})
		}
		if q, ok := services.querier(model.Service); ok {
			chain = append(chain, &candidates.RemoteSource{Client: q, JoinSeparator: model.JoinSeparator})
		}
		if len(chain) == 0 {
			return nil, errors.New("places source needs a municipality catalog or a place service")
		}
		return chain, nil

	case config.SourceGrouped:
		if services.Structured == nil {
			return nil, errors.New("grouped source needs the structured query service")
		}
		return &candidates.GroupedSource{
			Client:       services.Structured,
			Template:     model.Grouped.Template,
			KeyAttribute: model.Grouped.KeyAttribute,
			KeyVar:       model.Grouped.KeyVar,
		}, nil

	default:
		q, ok := services.querier(model.Service)
		if !ok {
			return nil, errors.Errorf("service %q is not available", model.Service)
		}
		return &candidates.RemoteSource{Client: q, JoinSeparator: model.JoinSeparator}, nil
	}
}

// EntityType returns the entity type the pipeline resolves
func (p *Pipeline) EntityType() models.EntityType {
	return p.entityType
}

// Prepare lets batching sources prefetch for a whole pass
func (p *Pipeline) Prepare(ctx context.Context, records []models.SourceRecord) error {
	ctx, span := tracing.StartSpan(ctx, "engine.Pipeline.Prepare")
	defer span.End()

	derived := make([]models.SourceRecord, len(records))
	for i, r := range records {
		derived[i] = p.derive(ctx, r)
	}

	if preparer, ok := p.source.(candidates.Preparer); ok {
		if err := preparer.Prepare(ctx, derived); err != nil {
			return errors.Wrapf(err, "failed to prepare %s candidates", p.entityType)
		}
	}
	if p.fallback != nil {
		return p.fallback.Prepare(ctx, derived)
	}
	return nil
}

// Resolve produces the decision for one record. Errors are remote failures only;
// "no match" outcomes are decisions.
func (p *Pipeline) Resolve(ctx context.Context, record models.SourceRecord) (models.MatchDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "engine.Pipeline.Resolve")
	defer span.End()

	record = p.derive(ctx, record)

	queries := p.Variants(record)
	found, err := p.source.Candidates(ctx, record, queries)
	if err != nil {
		return models.MatchDecision{}, errors.Wrapf(err, "failed to retrieve %s candidates for %s", p.entityType, record.ID)
	}

	scoring := record
	if p.scoreVariants {
		if extra := missingValues(record, p.attribute, queries); len(extra) > 0 {
			scoring = record.With(p.attribute, extra...)
		}
	}
	scored := matching.ScoreAll(ctx, p.scorer, scoring, found)
	decision := p.resolver.Resolve(ctx, p.policy, record, scored)

	if p.fallback == nil || !retryable(decision.Status) {
		return decision, nil
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"record_id":   record.ID,
		"entity_type": p.entityType,
		"status":      decision.Status,
	}).Debug("Trying fallback candidates")

	fallback, err := p.fallback.Resolve(ctx, record)
	if err != nil {
		return models.MatchDecision{}, err
	}
	// A fallback that found nothing keeps the primary rejection and its audit trail
	if fallback.Status == models.DecisionStatusNoCandidates && decision.Status == models.DecisionStatusRejected {
		return decision, nil
	}
	return fallback, nil
}

// Variants returns the query strings expanded from every value of the query attribute
func (p *Pipeline) Variants(record models.SourceRecord) []string {
	if p.attribute == "" {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, raw := range record.Values(p.attribute) {
		for _, v := range p.expander.Expand(normalizers.CleanLiteral(raw)) {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	sort.Strings(out)
	return out
}

// derive adds the configured derived attributes. Records that already carry the value are unchanged.
func (p *Pipeline) derive(ctx context.Context, record models.SourceRecord) models.SourceRecord {
	for _, d := range p.derivations {
		if hasValue(record, d.Attribute, d.Value) {
			continue
		}
		raw, ok := record.Value(d.From)
		if !ok {
			continue
		}
		t, err := normalizers.ParseDate(raw)
		if err != nil {
			p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"record_id": record.ID,
				"attribute": d.From,
			}).Debug("Unparseable date, skipping derivation")
			continue
		}
		if t.Before(d.BeforeTime()) {
			record = record.With(d.Attribute, d.Value)
		}
	}
	return record
}

func hasValue(record models.SourceRecord, attribute, value string) bool {
	for _, v := range record.Values(attribute) {
		if v == value {
			return true
		}
	}
	return false
}

func missingValues(record models.SourceRecord, attribute string, values []string) []string {
	var out []string
	for _, v := range values {
		if !hasValue(record, attribute, v) {
			out = append(out, v)
		}
	}
	return out
}

func retryable(status models.DecisionStatus) bool {
	return status == models.DecisionStatusRejected || status == models.DecisionStatusNoCandidates
}

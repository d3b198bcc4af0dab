package main

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/Ramsey-B/fern/internal/repositories/decision"
	"github.com/Ramsey-B/fern/pkg/engine"
	"github.com/Ramsey-B/fern/pkg/models"
)

// servingBackend lets the HTTP routes exist before startup has finished. Calls made
// before the engine is stored answer 503.
type servingBackend struct {
	engine atomic.Pointer[engine.Engine]
	repo   atomic.Pointer[decision.Repository]
}

var (
	errStarting      = httperror.NewHTTPError(http.StatusServiceUnavailable, "engine is starting")
	errNoDecisionLog = httperror.NewHTTPError(http.StatusServiceUnavailable, "decision store not configured")
)

func (b *servingBackend) EntityTypes() []models.EntityType {
	e := b.engine.Load()
	if e == nil {
		return []models.EntityType{}
	}
	return e.EntityTypes()
}

func (b *servingBackend) ResolveOne(ctx context.Context, entityType models.EntityType, record models.SourceRecord) (models.MatchDecision, error) {
	e := b.engine.Load()
	if e == nil {
		return models.MatchDecision{}, errStarting
	}
	return e.ResolveOne(ctx, entityType, record)
}

func (b *servingBackend) Get(ctx context.Context, id string) (*models.MatchDecision, error) {
	repo := b.repo.Load()
	if repo == nil {
		return nil, errNoDecisionLog
	}
	return repo.Get(ctx, id)
}

func (b *servingBackend) ListByRecord(ctx context.Context, recordID string, entityType models.EntityType, limit int) ([]models.MatchDecision, error) {
	repo := b.repo.Load()
	if repo == nil {
		return nil, errNoDecisionLog
	}
	return repo.ListByRecord(ctx, recordID, entityType, limit)
}

// Name, Write and Close make the backend the decision sink of the HTTP routes. Writes go
// to the decision log only; the batch sinks are for passes.
func (b *servingBackend) Name() string {
	return "api"
}

func (b *servingBackend) Write(ctx context.Context, decisions []models.MatchDecision) error {
	repo := b.repo.Load()
	if repo == nil {
		return nil
	}
	return repo.Write(ctx, decisions)
}

func (b *servingBackend) Close() error {
	return nil
}
